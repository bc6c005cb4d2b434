package call

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Manager owns active call sessions and bridges relay broadcasts to them.
// At most one session exists per call id.
type Manager struct {
	sig     Signaler
	backend Backend
	selfID  string
	media   MediaConfig

	mu       sync.RWMutex
	sessions map[string]*Session

	incomingMu sync.RWMutex
	incoming   []func(IncomingCall)

	eventMu sync.Mutex
	events  map[chan Event]struct{}

	done chan struct{}
}

// New creates a call Manager and starts listening for incoming-call
// broadcasts immediately.
func New(sig Signaler, backend Backend, selfID string, media MediaConfig) *Manager {
	m := &Manager{
		sig:      sig,
		backend:  backend,
		selfID:   selfID,
		media:    media,
		sessions: make(map[string]*Session),
		events:   make(map[chan Event]struct{}),
		done:     make(chan struct{}),
	}
	go m.dispatchLoop()
	return m
}

// SetSelf records the signed-in user id used for role derivation in new
// sessions. Called after login.
func (m *Manager) SetSelf(id string) {
	m.mu.Lock()
	m.selfID = id
	m.mu.Unlock()
}

// SetMedia updates the media config applied to sessions opened from now on.
// Sessions already in flight keep the config they started with.
func (m *Manager) SetMedia(media MediaConfig) {
	m.mu.Lock()
	m.media = media
	m.mu.Unlock()
}

// OnIncoming registers a callback fired for each incoming-call broadcast.
// Multiple handlers can be registered; each viewer event stream adds one.
func (m *Manager) OnIncoming(fn func(IncomingCall)) {
	m.incomingMu.Lock()
	m.incoming = append(m.incoming, fn)
	m.incomingMu.Unlock()
}

// SubscribeEvents returns a channel of manager events (incoming calls, call
// endings) and a cancel func. Slow subscribers drop events rather than
// blocking the dispatch loop.
func (m *Manager) SubscribeEvents() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	m.eventMu.Lock()
	m.events[ch] = struct{}{}
	m.eventMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.eventMu.Lock()
			delete(m.events, ch)
			m.eventMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Manager) emit(ev Event) {
	m.eventMu.Lock()
	for ch := range m.events {
		select {
		case ch <- ev:
		default:
		}
	}
	m.eventMu.Unlock()
}

// StartCall creates a call for a conversation, or transparently joins the
// one already in progress. The returned session is started; errors other
// than the handled conflicts surface to the caller.
func (m *Manager) StartCall(ctx context.Context, conversationID string) (*Session, error) {
	out, err := m.backend.CreateCall(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if out.InitiatorID == "" {
		log.Printf("CALL: conversation %s already has call %s — joining", conversationID, out.CallID)
	} else {
		log.Printf("CALL: created %s for conversation %s", out.CallID, conversationID)
	}
	return m.Open(ctx, out.CallID, out.InitiatorID)
}

// Join opens a session for a known call id as a callee. The initiator is
// resolved from the call record during startup when initiatorID is empty.
func (m *Manager) Join(ctx context.Context, callID, initiatorID string) (*Session, error) {
	return m.Open(ctx, callID, initiatorID)
}

// Open creates and starts a session for callID. Opening a call that already
// has a mounted session returns the existing one.
func (m *Manager) Open(ctx context.Context, callID, initiatorID string) (*Session, error) {
	if callID == "" {
		return nil, fmt.Errorf("missing call id")
	}

	m.mu.Lock()
	if existing, ok := m.sessions[callID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	sess := newSession(callID, m.selfID, m.sig, m.backend, m.media)
	sess.removed = func() { m.removeSession(callID) }
	m.sessions[callID] = sess
	m.mu.Unlock()

	if err := sess.Start(ctx, initiatorID); err != nil {
		m.removeSession(callID)
		return nil, err
	}
	return sess, nil
}

// GetSession returns the active session for callID, if any.
func (m *Manager) GetSession(callID string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[callID]
	m.mu.RUnlock()
	return s, ok
}

// AllSessions returns a snapshot of the active sessions.
func (m *Manager) AllSessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	return out
}

func (m *Manager) removeSession(callID string) {
	m.mu.Lock()
	delete(m.sessions, callID)
	m.mu.Unlock()
	m.emit(Event{Kind: EventEnded, CallID: callID})
}

// Close shuts down the manager and hangs up all active sessions.
func (m *Manager) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// dispatchLoop forwards incoming-call broadcasts to registered handlers.
func (m *Manager) dispatchLoop() {
	ch, cancel := m.sig.Broadcasts()
	defer cancel()

	for {
		select {
		case <-m.done:
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if sig.Event != SignalIncoming {
				continue
			}
			ic := IncomingCall{
				CallID:        sig.CallID,
				InitiatorID:   sig.InitiatorID,
				InitiatorName: sig.InitiatorName,
			}
			m.incomingMu.RLock()
			handlers := make([]func(IncomingCall), len(m.incoming))
			copy(handlers, m.incoming)
			m.incomingMu.RUnlock()
			for _, fn := range handlers {
				fn(ic)
			}
			m.emit(Event{
				Kind:          EventIncoming,
				CallID:        ic.CallID,
				InitiatorID:   ic.InitiatorID,
				InitiatorName: ic.InitiatorName,
			})
		}
	}
}
