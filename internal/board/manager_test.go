package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/storage"
)

func boardBackend(t *testing.T) (*api.Client, *atomic.Int64) {
	t.Helper()
	var moves atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/boards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"boards": []map[string]any{{"id": 1, "name": "Sprint"}},
		})
	})
	mux.HandleFunc("GET /api/boards/1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": 1, "name": "Sprint",
			"columns": []map[string]any{
				{"id": 10, "name": "Todo", "order": 0, "tasks": []map[string]any{
					{"id": 100, "columnId": 10, "title": "fix login", "order": 0},
				}},
				{"id": 11, "name": "Done", "order": 1},
			},
		})
	})
	mux.HandleFunc("PUT /api/boards/1/tasks/100/move", func(w http.ResponseWriter, r *http.Request) {
		moves.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api.New(srv.URL), &moves
}

func TestBoardFetchAndSnapshotFallback(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	client, _ := boardBackend(t)
	m := New(client.Board, db)

	b, err := m.Board(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name != "Sprint" || len(b.Columns) != 2 || b.Columns[0].Tasks[0].Title != "fix login" {
		t.Fatalf("unexpected board: %+v", b)
	}

	// Same cache, dead backend: the snapshot serves.
	offline := New(api.New("http://127.0.0.1:1").Board, db)
	cached, err := offline.Board(context.Background(), "1")
	if err != nil {
		t.Fatalf("snapshot fallback failed: %v", err)
	}
	if cached.Name != "Sprint" || len(cached.Columns) != 2 {
		t.Fatalf("unexpected cached board: %+v", cached)
	}

	if _, err := offline.Board(context.Background(), "99"); err == nil {
		t.Fatal("unknown board without snapshot must error")
	}
}

func TestBoardsListFallback(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	client, _ := boardBackend(t)
	if _, err := New(client.Board, db).Boards(context.Background()); err != nil {
		t.Fatal(err)
	}

	offline := New(api.New("http://127.0.0.1:1").Board, db)
	boards, err := offline.Boards(context.Background())
	if err != nil {
		t.Fatalf("list fallback failed: %v", err)
	}
	if len(boards) != 1 || boards[0].Name != "Sprint" {
		t.Fatalf("unexpected cached list: %+v", boards)
	}
}

func TestMoveTaskRefreshesSnapshot(t *testing.T) {
	client, moves := boardBackend(t)
	m := New(client.Board, nil)

	if err := m.MoveTask(context.Background(), "1", "100", "11", 0); err != nil {
		t.Fatal(err)
	}
	if moves.Load() != 1 {
		t.Fatalf("move called %d times", moves.Load())
	}
}
