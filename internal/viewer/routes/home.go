package routes

import (
	"log"
	"net/http"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/ui/render"
)

func registerHomeRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !requireAuth(w, r, d) {
			return
		}

		var convs []api.Conversation
		var boards []api.Board
		if d.Chat != nil {
			var err error
			if convs, err = d.Chat.Conversations(r.Context()); err != nil {
				log.Printf("HOME: conversations: %v", err)
			}
		}
		if d.Boards != nil {
			var err error
			if boards, err = d.Boards.Boards(r.Context()); err != nil {
				log.Printf("HOME: boards: %v", err)
			}
		}

		render.Render(w, render.HomeVM{
			BaseVM:        baseVM("Home", "home", "home", d),
			Conversations: convs,
			Boards:        boards,
		})
	})
}
