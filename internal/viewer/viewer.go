package viewer

import (
	"net/http"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/board"
	"github.com/teamloop/teamloop/internal/call"
	"github.com/teamloop/teamloop/internal/chat"
	viewerassets "github.com/teamloop/teamloop/internal/ui/assets"
	"github.com/teamloop/teamloop/internal/ui/render"
	"github.com/teamloop/teamloop/internal/viewer/routes"
	"github.com/teamloop/teamloop/internal/wiki"
)

// Viewer bundles everything the loopback web UI needs. The app layer fills
// it in after login wiring is established.
type Viewer struct {
	API    *api.Client
	Calls  *call.Manager
	Chat   *chat.Manager
	Boards *board.Manager
	Wiki   *wiki.Manager
	Logs   *LogBuffer

	SelfID   func() string
	SelfName func() string

	// LoggedIn reports whether a usable auth token is installed; pages
	// redirect to /login when it returns false.
	LoggedIn func() bool

	// SetAuth installs a fresh token and identity after login or register.
	// ClearAuth drops them on logout.
	SetAuth   func(token string, user *api.User) error
	ClearAuth func()

	// BaseURL is the canonical base for templates (e.g. http://127.0.0.1:7777).
	BaseURL string

	Debug bool
}

// Start runs the loopback HTTP server. Blocks until the listener fails.
func Start(addr string, v Viewer) error {
	if err := render.InitTemplates(); err != nil {
		return err
	}

	mux := http.NewServeMux()

	mux.Handle("/assets/", http.StripPrefix("/assets/",
		noCache(viewerassets.Handler()),
	))

	baseURL := v.BaseURL
	if baseURL == "" {
		baseURL = "http://" + addr
	}

	deps := routes.Deps{
		API:       v.API,
		Calls:     v.Calls,
		Chat:      v.Chat,
		Boards:    v.Boards,
		Wiki:      v.Wiki,
		SelfID:    v.SelfID,
		SelfName:  v.SelfName,
		LoggedIn:  v.LoggedIn,
		SetAuth:   v.SetAuth,
		ClearAuth: v.ClearAuth,
		BaseURL:   baseURL,
		Debug:     v.Debug,
	}
	if v.Logs != nil {
		deps.Logs = v.Logs
	}
	routes.Register(mux, deps)

	return http.ListenAndServe(addr, mux)
}
