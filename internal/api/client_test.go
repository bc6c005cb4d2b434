package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIDDecode(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"42","b":42,"c":null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != "42" || v.B != "42" || v.C != "" {
		t.Fatalf("got a=%q b=%q c=%q", v.A, v.B, v.C)
	}

	if err := json.Unmarshal([]byte(`{"a":true}`), &v); err == nil {
		t.Fatal("expected error for boolean id")
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such board","boardId":9}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Board.Board(context.Background(), "9")
	if err == nil {
		t.Fatal("expected error")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want *StatusError, got %T: %v", err, err)
	}
	if se.Status != http.StatusNotFound {
		t.Fatalf("status = %d", se.Status)
	}
	if se.Message != "no such board" {
		t.Fatalf("message = %q", se.Message)
	}
	var id ID
	if !se.Field("boardId", &id) || id != "9" {
		t.Fatalf("Field(boardId) = %q", id)
	}
	if se.Field("missing", &id) {
		t.Fatal("Field should report absent fields")
	}
}

func TestCreateCallOutcomes(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/calls" || r.Method != http.MethodPost {
				t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.Write([]byte(`{"call":{"id":11,"conversationId":3,"initiatorId":"u1","type":"video","status":"created"},"roomId":"room-11"}`))
		}))
		defer srv.Close()

		out, err := New(srv.URL).Calls.Create(context.Background(), "3", "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if out.AlreadyExists() {
			t.Fatal("fresh call tagged as existing")
		}
		if out.Created == nil || out.Created.ID != "11" || out.RoomID != "room-11" {
			t.Fatalf("outcome = %v", out)
		}
	})

	t.Run("conflict with existing call id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Active call already exists for this conversation","callId":7}`))
		}))
		defer srv.Close()

		out, err := New(srv.URL).Calls.Create(context.Background(), "3", "video")
		if err != nil {
			t.Fatalf("conflict should not be an error, got %v", err)
		}
		if !out.AlreadyExists() || out.Existing != "7" {
			t.Fatalf("outcome = %v", out)
		}
	})

	t.Run("other 400 surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"conversation not found"}`))
		}))
		defer srv.Close()

		if _, err := New(srv.URL).Calls.Create(context.Background(), "99", "video"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestJoinAlreadyJoinedIsSuccess(t *testing.T) {
	t.Run("fresh join", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"roomId":"room-5"}`))
		}))
		defer srv.Close()

		room, err := New(srv.URL).Calls.Join(context.Background(), "5")
		if err != nil || room != "room-5" {
			t.Fatalf("join = %q, %v", room, err)
		}
	})

	t.Run("already joined", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"User already joined the call"}`))
		}))
		defer srv.Close()

		if _, err := New(srv.URL).Calls.Join(context.Background(), "5"); err != nil {
			t.Fatalf("already-joined should be success, got %v", err)
		}
	})
}

func TestLoginInstallsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			w.Write([]byte(`{"token":"tok-1","user":{"id":"u1","firstName":"Ada","lastName":"L","email":"ada@example.org"}}`))
		case "/api/auth/me":
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"id":"u1","firstName":"Ada","lastName":"L","email":"ada@example.org"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Auth.Login(context.Background(), "ada@example.org", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "tok-1" || res.User.DisplayName() != "Ada L" {
		t.Fatalf("result = %+v", res)
	}
	if c.Token() != "tok-1" {
		t.Fatalf("token not installed: %q", c.Token())
	}

	if _, err := c.Auth.Me(context.Background()); err != nil {
		t.Fatalf("me: %v", err)
	}
	if gotAuth != "tok-1" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}

func TestMyTeam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/teams/user" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"team":{"id":3,"name":"Platform","Users":[
			{"id":"u1","firstName":"Ada","lastName":"L","email":"ada@example.org"},
			{"id":"u2","firstName":"Grace","lastName":"H","email":"grace@example.org"}]}}`))
	}))
	defer srv.Close()

	team, err := New(srv.URL).Team.Mine(context.Background())
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if team == nil || team.ID != "3" || team.Name != "Platform" {
		t.Fatalf("team = %+v", team)
	}
	if len(team.Members) != 2 || team.Members[1].DisplayName() != "Grace H" {
		t.Fatalf("members = %+v", team.Members)
	}
}

func TestMyTeamAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"team":null}`))
	}))
	defer srv.Close()

	team, err := New(srv.URL).Team.Mine(context.Background())
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if team != nil {
		t.Fatalf("expected nil team, got %+v", team)
	}
}
