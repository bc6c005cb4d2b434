package storage

import (
	"encoding/json"
	"time"
)

// Snapshot kinds in use.
const (
	SnapshotBoard = "board"
	SnapshotWiki  = "wiki"
)

// SaveSnapshot stores v as JSON under (kind, key), replacing any previous
// snapshot.
func (d *DB) SaveSnapshot(kind, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.db.Exec(`
		INSERT INTO snapshots (kind, key, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(kind, key) DO UPDATE SET
			data       = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, kind, key, string(data))
	return err
}

// LoadSnapshot unmarshals the snapshot stored under (kind, key) into v and
// returns its age. ok is false when no snapshot exists or it fails to decode.
func (d *DB) LoadSnapshot(kind, key string, v any) (age time.Duration, ok bool) {
	d.mu.RLock()
	var data string
	var updated time.Time
	err := d.db.QueryRow(`
		SELECT data, updated_at FROM snapshots WHERE kind = ? AND key = ?
	`, kind, key).Scan(&data, &updated)
	d.mu.RUnlock()
	if err != nil {
		return 0, false
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return 0, false
	}
	return time.Since(updated), true
}

// DeleteSnapshots removes all snapshots of one kind.
func (d *DB) DeleteSnapshots(kind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`DELETE FROM snapshots WHERE kind = ?`, kind)
	return err
}
