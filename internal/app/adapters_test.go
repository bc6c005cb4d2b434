package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/signal"
)

func TestToSignal(t *testing.T) {
	env := &signal.Envelope{
		Event:         signal.EventOffer,
		CallID:        "7",
		FromUserID:    "u1",
		ToUserID:      "u2",
		SDP:           json.RawMessage(`{"type":"offer"}`),
		InitiatorID:   "u1",
		InitiatorName: "Ada",
	}
	sig := toSignal(env)
	if sig.Event != "offer" || sig.CallID != "7" || sig.FromUserID != "u1" || sig.ToUserID != "u2" {
		t.Fatalf("signal = %+v", sig)
	}
	if string(sig.SDP) != `{"type":"offer"}` || sig.InitiatorName != "Ada" {
		t.Fatalf("payload lost: %+v", sig)
	}
}

func TestCallBackendOutcomes(t *testing.T) {
	t.Run("create fresh", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"call":{"id":11,"conversationId":3,"initiatorId":"me"},"roomId":"r"}`))
		}))
		defer srv.Close()

		b := callBackend{calls: api.New(srv.URL).Calls}
		out, err := b.CreateCall(context.Background(), "3")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if out.CallID != "11" || out.InitiatorID != "me" {
			t.Fatalf("outcome = %+v", out)
		}
	})

	t.Run("create joins existing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Active call already exists","callId":"7"}`))
		}))
		defer srv.Close()

		b := callBackend{calls: api.New(srv.URL).Calls}
		out, err := b.CreateCall(context.Background(), "3")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if out.CallID != "7" || out.InitiatorID != "" {
			t.Fatalf("existing call should carry no initiator: %+v", out)
		}
	})

	t.Run("initiator lookup", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/calls/7" {
				t.Fatalf("path = %s", r.URL.Path)
			}
			w.Write([]byte(`{"call":{"id":7,"initiatorId":"u9"}}`))
		}))
		defer srv.Close()

		b := callBackend{calls: api.New(srv.URL).Calls}
		init, err := b.CallInitiator(context.Background(), "7")
		if err != nil || init != "u9" {
			t.Fatalf("initiator = %q, %v", init, err)
		}
	})
}

func TestRelayAdapterDisconnected(t *testing.T) {
	a := newRelayAdapter()

	if err := a.SendOffer("7", nil); err == nil {
		t.Fatal("send without connection should fail")
	}
	if _, _, err := a.JoinCallRoom("7"); err == nil {
		t.Fatal("join without connection should fail")
	}

	// Broadcast subscriptions survive while disconnected.
	ch, cancel := a.Broadcasts()
	a.fanout(toSignal(&signal.Envelope{Event: signal.EventIncomingCall, CallID: "5"}))
	select {
	case sig := <-ch:
		if sig.CallID != "5" {
			t.Fatalf("signal = %+v", sig)
		}
	default:
		t.Fatal("fanout did not reach subscriber")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should close on cancel")
	}
}

func TestNormalizeLoopback(t *testing.T) {
	cases := []struct{ in, addr string }{
		{"", "127.0.0.1:7777"},
		{":7870", "127.0.0.1:7870"},
		{"0.0.0.0:7870", "127.0.0.1:7870"},
		{"127.0.0.1:9000", "127.0.0.1:9000"},
	}
	for _, tc := range cases {
		addr, url := normalizeLoopback(tc.in)
		if addr != tc.addr || url != "http://"+tc.addr {
			t.Fatalf("normalizeLoopback(%q) = %q, %q", tc.in, addr, url)
		}
	}
}
