package storage

import (
	"time"
)

// CachedUser is the locally cached profile of a backend user, refreshed
// whenever the user appears in a conversation or call.
type CachedUser struct {
	ID        string
	Name      string
	AvatarURL string
	UpdatedAt time.Time
}

// UpsertCachedUser inserts or refreshes a user profile.
func (d *DB) UpsertCachedUser(u CachedUser) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO users (id, name, avatar_url, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			avatar_url = excluded.avatar_url,
			updated_at = CURRENT_TIMESTAMP
	`, u.ID, u.Name, u.AvatarURL)
	return err
}

// GetCachedUser returns a cached user by id.
func (d *DB) GetCachedUser(id string) (CachedUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var u CachedUser
	err := d.db.QueryRow(`
		SELECT id, name, avatar_url, updated_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.AvatarURL, &u.UpdatedAt)
	if err != nil {
		return CachedUser{}, false
	}
	return u, true
}

// GetUserName returns the cached display name for id, or the id itself when
// the user is unknown so callers always have something to render.
func (d *DB) GetUserName(id string) string {
	if u, ok := d.GetCachedUser(id); ok && u.Name != "" {
		return u.Name
	}
	return id
}

// ListCachedUsers returns all cached users ordered by name.
func (d *DB) ListCachedUsers() ([]CachedUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT id, name, avatar_url, updated_at FROM users ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CachedUser
	for rows.Next() {
		var u CachedUser
		if err := rows.Scan(&u.ID, &u.Name, &u.AvatarURL, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteCachedUser removes a user from the cache.
func (d *DB) DeleteCachedUser(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}
