// Package app wires the daemon together: config, storage, the REST client,
// the relay connection, the call engine and the loopback viewer. It is the
// only package that imports all of them.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/auth"
	"github.com/teamloop/teamloop/internal/board"
	"github.com/teamloop/teamloop/internal/call"
	"github.com/teamloop/teamloop/internal/chat"
	"github.com/teamloop/teamloop/internal/config"
	"github.com/teamloop/teamloop/internal/signal"
	"github.com/teamloop/teamloop/internal/storage"
	"github.com/teamloop/teamloop/internal/util"
	"github.com/teamloop/teamloop/internal/viewer"
	"github.com/teamloop/teamloop/internal/wiki"
)

type Options struct {
	DataDir string
	CfgPath string
	Cfg     config.Config
}

// state is the mutable part of the daemon: the signed-in user and the relay
// connection, both of which come and go with login.
type state struct {
	ctx     context.Context

	client *api.Client
	tokens *auth.Store
	relay  *relayAdapter

	calls  *call.Manager
	chatM  *chat.Manager
	boards *board.Manager
	wikiM  *wiki.Manager

	cfgNow func() config.Config

	mu       sync.Mutex
	self     *api.User
	sig      *signal.Client
	stopChat func()
}

func Run(ctx context.Context, opt Options) error {
	logBuf := viewer.NewLogBuffer(800)
	log.SetOutput(io.MultiWriter(os.Stderr, logBuf))

	logBanner(opt.DataDir, opt.CfgPath)

	cfg := opt.Cfg

	// Live config reload. A failed watcher is not fatal; the daemon just
	// keeps the config it started with.
	cfgNow := func() config.Config { return cfg }
	watcher, err := config.Watch(opt.CfgPath, cfg)
	if err != nil {
		log.Printf("CONFIG: watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
		cfgNow = watcher.Current
	}

	db, err := storage.Open(opt.DataDir)
	if err != nil {
		log.Printf("WARNING: local cache unavailable: %v (running without offline data)", err)
		db = nil
	} else {
		defer db.Close()
	}

	client := api.New(cfg.Server.APIURL)
	tokens := auth.NewStoreAt(util.ResolvePath(opt.DataDir, cfg.Auth.TokenFile))
	relay := newRelayAdapter()

	st := &state{
		ctx:     ctx,
		client:  client,
		tokens:  tokens,
		relay:   relay,
		cfgNow:  cfgNow,
		calls: call.New(relay, callBackend{calls: client.Calls}, "", call.MediaConfig{
			ICEServers: cfg.Call.ICEServers,
			Disabled:   cfg.Call.VideoDisabled,
		}),
		chatM:  chat.New(client.Chat, db, "", chat.DefaultHistorySize),
		boards: board.New(client.Board, db),
		wikiM:  wiki.New(client.Wiki, db),
	}
	defer st.calls.Close()

	if watcher != nil {
		watcher.OnChange(func(c config.Config) {
			log.Printf("CONFIG: reloaded %s", opt.CfgPath)
			st.calls.SetMedia(call.MediaConfig{
				ICEServers: c.Call.ICEServers,
				Disabled:   c.Call.VideoDisabled,
			})
		})
	}

	// Restore a persisted session, if the backend still honors the token.
	if tok, err := tokens.Load(); err == nil {
		client.SetToken(tok)
		if u, err := client.Auth.Me(ctx); err == nil {
			if err := st.install(tok, u, false); err != nil {
				log.Printf("AUTH: session restore: %v", err)
			}
		} else {
			log.Printf("AUTH: stored token rejected: %v", err)
			client.SetToken("")
		}
	} else if !errors.Is(err, auth.ErrNoToken) {
		log.Printf("AUTH: token load: %v", err)
	}

	addr, url := normalizeLoopback(cfg.Viewer.HTTPAddr)

	v := viewer.Viewer{
		API:       client,
		Calls:     st.calls,
		Chat:      st.chatM,
		Boards:    st.boards,
		Wiki:      st.wikiM,
		Logs:      logBuf,
		SelfID:    st.selfID,
		SelfName:  st.selfName,
		LoggedIn:  st.loggedIn,
		SetAuth:   func(tok string, u *api.User) error { return st.install(tok, u, true) },
		ClearAuth: st.clear,
		BaseURL:   url,
		Debug:     cfg.Viewer.Debug,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Start(addr, v) }()
	log.Printf("viewer: %s", url)

	select {
	case <-ctx.Done():
		st.clearConnection()
		return nil
	case err := <-errCh:
		return fmt.Errorf("viewer: %w", err)
	}
}

// install persists the token (when persist is set), records the user and
// connects the relay. Called from login, register and session restore.
func (s *state) install(tok string, u *api.User, persist bool) error {
	if persist {
		if err := s.tokens.Save(tok); err != nil {
			log.Printf("AUTH: persisting token: %v", err)
		}
	}
	s.client.SetToken(tok)

	s.mu.Lock()
	s.self = u
	s.mu.Unlock()

	s.calls.SetSelf(u.ID.String())
	s.chatM.SetSelf(u.ID)

	log.Printf("AUTH: signed in as %s (%s)", u.DisplayName(), u.ID)
	return s.connect(tok, u.ID)
}

// connect dials the relay and starts the chat delivery pump. An unreachable
// relay is reported but not fatal; REST features still work.
func (s *state) connect(tok string, selfID api.ID) error {
	s.clearConnection()

	cfg := s.cfgNow()
	sig, err := signal.Dial(s.ctx, cfg.SocketURL(), tok, selfID)
	if err != nil {
		log.Printf("SIGNAL: relay unavailable: %v", err)
		return nil
	}

	ch, cancel := sig.Subscribe()
	go s.pumpChat(ch)

	s.mu.Lock()
	s.sig = sig
	s.stopChat = cancel
	s.mu.Unlock()

	s.relay.setConn(sig)
	return nil
}

// pumpChat folds relay-delivered chat messages into the chat manager.
func (s *state) pumpChat(ch chan *signal.Envelope) {
	for env := range ch {
		if env.Event != signal.EventMessage || len(env.Message) == 0 {
			continue
		}
		var msg api.Message
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			log.Printf("CHAT: bad relay message: %v", err)
			continue
		}
		s.chatM.Deliver(&msg)
	}
}

func (s *state) clear() {
	s.tokens.Clear()
	s.client.SetToken("")

	s.mu.Lock()
	s.self = nil
	s.mu.Unlock()

	s.clearConnection()
	log.Printf("AUTH: signed out")
}

func (s *state) clearConnection() {
	s.mu.Lock()
	sig := s.sig
	stop := s.stopChat
	s.sig = nil
	s.stopChat = nil
	s.mu.Unlock()

	s.relay.setConn(nil)
	if stop != nil {
		stop()
	}
	if sig != nil {
		sig.Close()
	}
}

func (s *state) loggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self != nil
}

func (s *state) selfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return ""
	}
	return s.self.ID.String()
}

func (s *state) selfName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return ""
	}
	return s.self.DisplayName()
}
