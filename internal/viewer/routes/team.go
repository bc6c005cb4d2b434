package routes

import (
	"log"
	"net/http"

	"github.com/teamloop/teamloop/internal/ui/render"
)

func registerTeamRoutes(mux *http.ServeMux, d Deps) {
	handleGet(mux, "/team", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r, d) {
			return
		}
		team, err := d.API.Team.Mine(r.Context())
		if err != nil {
			log.Printf("TEAM: load: %v", err)
		}
		render.Render(w, render.TeamVM{
			BaseVM: baseVM("My Team", "team", "team", d),
			Team:   team,
		})
	})
}
