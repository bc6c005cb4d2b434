package storage

import (
	"time"
)

// CachedMessage is one chat message kept locally for instant history
// rendering. Duplicate saves (REST fetch plus relay delivery of the same
// message) are collapsed on the message id.
type CachedMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	SentAt         time.Time
}

// SaveMessage inserts a message, ignoring duplicates.
func (d *DB) SaveMessage(m CachedMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, body, sent_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, m.ID, m.ConversationID, m.SenderID, m.Body, m.SentAt)
	return err
}

// RecentMessages returns up to limit messages for a conversation, oldest
// first.
func (d *DB) RecentMessages(conversationID string, limit int) ([]CachedMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT id, conversation_id, sender_id, body, sent_at FROM (
			SELECT id, conversation_id, sender_id, body, sent_at
			FROM messages WHERE conversation_id = ?
			ORDER BY sent_at DESC LIMIT ?
		) ORDER BY sent_at ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CachedMessage
	for rows.Next() {
		var m CachedMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneMessages keeps only the newest keep messages per conversation.
func (d *DB) PruneMessages(conversationID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		DELETE FROM messages WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE conversation_id = ?
			ORDER BY sent_at DESC LIMIT ?
		)
	`, conversationID, conversationID, keep)
	return err
}
