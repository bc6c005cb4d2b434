// Package chat keeps conversation state for the viewer: message history per
// conversation, live delivery from the relay, and sending through the
// backend. The backend stores the canonical history; this manager keeps a
// bounded in-memory window plus the local cache for instant rendering.
package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/storage"
)

// DefaultHistorySize is the number of messages kept in memory per
// conversation.
const DefaultHistorySize = 100

// Manager handles chat state for the signed-in user.
type Manager struct {
	api    *api.ChatAPI
	cache  *storage.DB // may be nil (cache disabled)
	selfID api.ID
	limit  int

	mu        sync.RWMutex
	history   map[string][]*api.Message // keyed by conversation id, oldest first
	seen      map[string]struct{}       // message ids already delivered
	listeners []chan *api.Message
}

// New creates a chat manager. cache may be nil.
func New(chatAPI *api.ChatAPI, cache *storage.DB, selfID api.ID, historySize int) *Manager {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Manager{
		api:     chatAPI,
		cache:   cache,
		selfID:  selfID,
		limit:   historySize,
		history: make(map[string][]*api.Message),
		seen:    make(map[string]struct{}),
	}
}

// SetSelf records the signed-in user id. Called after login; the manager is
// constructed before a session exists.
func (m *Manager) SetSelf(id api.ID) {
	m.mu.Lock()
	m.selfID = id
	m.mu.Unlock()
}

// Mine reports whether msg was sent by the signed-in user.
func (m *Manager) Mine(msg *api.Message) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selfID != "" && msg.SenderID == m.selfID
}

// Conversations lists the user's conversations and refreshes the local user
// cache with every member seen.
func (m *Manager) Conversations(ctx context.Context) ([]api.Conversation, error) {
	convs, err := m.api.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		for _, c := range convs {
			for _, member := range c.Members {
				m.cache.UpsertCachedUser(storage.CachedUser{
					ID:   member.ID.String(),
					Name: member.DisplayName(),
				})
			}
		}
	}
	return convs, nil
}

// History returns the message window for a conversation, oldest first. The
// first call for a conversation fetches from the backend; when the backend
// is unreachable the local cache is served instead so the page still renders.
func (m *Manager) History(ctx context.Context, conversationID api.ID) ([]*api.Message, error) {
	key := conversationID.String()

	m.mu.RLock()
	msgs, loaded := m.history[key]
	m.mu.RUnlock()
	if loaded {
		return msgs, nil
	}

	fetched, err := m.api.Messages(ctx, conversationID)
	if err != nil {
		cached := m.cachedHistory(key)
		if cached != nil {
			log.Printf("CHAT: backend fetch failed, serving %d cached messages for %s: %v",
				len(cached), key, err)
			return cached, nil
		}
		return nil, err
	}

	m.mu.Lock()
	for i := range fetched {
		m.recordLocked(&fetched[i])
	}
	out := m.history[key]
	m.mu.Unlock()
	return out, nil
}

// Send posts a message through the backend and folds the stored record into
// history. The relay will echo the message back; the id dedupe absorbs it.
func (m *Manager) Send(ctx context.Context, conversationID api.ID, content string) (*api.Message, error) {
	msg, err := m.api.Send(ctx, conversationID, content)
	if err != nil {
		return nil, err
	}
	m.Deliver(msg)
	return msg, nil
}

// Deliver folds one relay-delivered message into history and notifies
// listeners. Duplicates (REST echo vs relay delivery) are dropped on id.
func (m *Manager) Deliver(msg *api.Message) {
	if msg == nil || msg.ID.String() == "" {
		return
	}

	m.mu.Lock()
	if _, dup := m.seen[msg.ID.String()]; dup {
		m.mu.Unlock()
		return
	}
	m.recordLocked(msg)
	listeners := make([]chan *api.Message, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- msg:
		default: // listener buffer full, skip
		}
	}
}

// recordLocked appends msg to its conversation window, trims to the limit
// and writes through to the cache. Caller holds m.mu.
func (m *Manager) recordLocked(msg *api.Message) {
	key := msg.ConversationID.String()
	m.seen[msg.ID.String()] = struct{}{}
	window := append(m.history[key], msg)
	if over := len(window) - m.limit; over > 0 {
		for _, old := range window[:over] {
			delete(m.seen, old.ID.String())
		}
		window = window[over:]
	}
	m.history[key] = window

	if m.cache != nil {
		m.cache.SaveMessage(storage.CachedMessage{
			ID:             msg.ID.String(),
			ConversationID: key,
			SenderID:       msg.SenderID.String(),
			Body:           msg.Content,
			SentAt:         time.UnixMilli(msg.SentAt),
		})
		if msg.SenderName != "" {
			m.cache.UpsertCachedUser(storage.CachedUser{
				ID:   msg.SenderID.String(),
				Name: msg.SenderName,
			})
		}
	}
}

// cachedHistory loads the offline fallback window from the cache.
func (m *Manager) cachedHistory(conversationID string) []*api.Message {
	if m.cache == nil {
		return nil
	}
	rows, err := m.cache.RecentMessages(conversationID, m.limit)
	if err != nil || len(rows) == 0 {
		return nil
	}
	out := make([]*api.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, &api.Message{
			ID:             api.ID(r.ID),
			ConversationID: api.ID(r.ConversationID),
			SenderID:       api.ID(r.SenderID),
			SenderName:     m.cache.GetUserName(r.SenderID),
			Content:        r.Body,
			SentAt:         r.SentAt.UnixMilli(),
		})
	}
	return out
}

// Subscribe returns a channel receiving newly delivered messages and a
// cancel func.
func (m *Manager) Subscribe() (<-chan *api.Message, func()) {
	ch := make(chan *api.Message, 16)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			for i, l := range m.listeners {
				if l == ch {
					m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Close shuts down the manager and closes all listener channels.
func (m *Manager) Close() {
	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()
	for _, ch := range listeners {
		close(ch)
	}
}
