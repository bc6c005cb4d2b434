package routes

import (
	"net/http"

	"github.com/teamloop/teamloop/internal/ui/render"
)

func registerLogRoutes(mux *http.ServeMux, d Deps) {
	if d.Logs == nil {
		return
	}
	mux.HandleFunc("/api/logs", d.Logs.ServeLogsJSON)
	mux.HandleFunc("/api/logs/stream", d.Logs.ServeLogsSSE)

	if !d.Debug {
		return
	}
	handleGet(mux, "/logs", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r, d) {
			return
		}
		render.Render(w, render.LogsVM{
			BaseVM: baseVM("Logs", "logs", "logs", d),
		})
	})
}
