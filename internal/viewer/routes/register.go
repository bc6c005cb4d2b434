package routes

import (
	"net/http"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/board"
	"github.com/teamloop/teamloop/internal/call"
	"github.com/teamloop/teamloop/internal/chat"
	"github.com/teamloop/teamloop/internal/wiki"
)

type Logs interface {
	ServeLogsJSON(w http.ResponseWriter, r *http.Request)
	ServeLogsSSE(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	API    *api.Client
	Calls  *call.Manager
	Chat   *chat.Manager
	Boards *board.Manager
	Wiki   *wiki.Manager
	Logs   Logs

	SelfID   func() string
	SelfName func() string

	LoggedIn  func() bool
	SetAuth   func(token string, user *api.User) error
	ClearAuth func()

	BaseURL string
	Debug   bool
}

func Register(mux *http.ServeMux, d Deps) {
	registerAuthRoutes(mux, d)
	registerHomeRoutes(mux, d)
	registerChatRoutes(mux, d)
	registerCallRoutes(mux, d)
	registerBoardRoutes(mux, d)
	registerWikiRoutes(mux, d)
	registerTeamRoutes(mux, d)
	registerLogRoutes(mux, d)
}
