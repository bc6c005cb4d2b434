package routes

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/ui/render"
)

func registerBoardRoutes(mux *http.ServeMux, d Deps) {
	handleGet(mux, "/boards", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r, d) {
			return
		}
		boards, err := d.Boards.Boards(r.Context())
		if err != nil {
			log.Printf("BOARD: list: %v", err)
		}
		render.Render(w, render.BoardListVM{
			BaseVM: baseVM("Boards", "boards", "boards", d),
			Boards: boards,
		})
	})

	// GET /boards/{id}
	mux.HandleFunc("/boards/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !requireAuth(w, r, d) {
			return
		}
		boardID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/boards/"), "/")
		if boardID == "" || strings.Contains(boardID, "/") {
			http.NotFound(w, r)
			return
		}
		b, err := d.Boards.Board(r.Context(), api.ID(boardID))
		if err != nil {
			http.Error(w, fmt.Sprintf("board unavailable: %v", err), http.StatusBadGateway)
			return
		}
		render.Render(w, render.BoardVM{
			BaseVM: baseVM(b.Name, "boards", "board", d),
			Board:  b,
		})
	})

	// POST /api/boards/{id}/tasks and /api/boards/{id}/move
	mux.HandleFunc("/api/boards/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tail := strings.TrimPrefix(r.URL.Path, "/api/boards/")
		parts := strings.SplitN(tail, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		boardID := api.ID(parts[0])

		switch parts[1] {
		case "tasks":
			var req struct {
				ColumnID    string `json:"columnId"`
				Title       string `json:"title"`
				Description string `json:"description"`
			}
			if decodeJSON(w, r, &req) != nil {
				return
			}
			if req.ColumnID == "" || req.Title == "" {
				http.Error(w, "missing columnId or title", http.StatusBadRequest)
				return
			}
			task, err := d.Boards.CreateTask(r.Context(), boardID, api.ID(req.ColumnID), req.Title, req.Description)
			if err != nil {
				http.Error(w, fmt.Sprintf("create task failed: %v", err), http.StatusBadGateway)
				return
			}
			writeJSON(w, task)

		case "move":
			var req struct {
				TaskID     string `json:"taskId"`
				ToColumnID string `json:"toColumnId"`
				Order      int    `json:"order"`
			}
			if decodeJSON(w, r, &req) != nil {
				return
			}
			if req.TaskID == "" || req.ToColumnID == "" {
				http.Error(w, "missing taskId or toColumnId", http.StatusBadRequest)
				return
			}
			if err := d.Boards.MoveTask(r.Context(), boardID, api.ID(req.TaskID), api.ID(req.ToColumnID), req.Order); err != nil {
				http.Error(w, fmt.Sprintf("move failed: %v", err), http.StatusBadGateway)
				return
			}
			writeJSON(w, map[string]string{"status": "ok"})

		default:
			http.NotFound(w, r)
		}
	})
}
