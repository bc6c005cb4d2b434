// Package board serves kanban state to the viewer. Reads go to the backend
// with the last good snapshot cached locally, so the board still renders
// when the backend is briefly unreachable. Mutations always go to the
// backend and refresh the snapshot on success.
package board

import (
	"context"
	"log"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/storage"
)

// Manager fronts the boards API with a snapshot cache.
type Manager struct {
	api   *api.BoardAPI
	cache *storage.DB // may be nil
}

// New creates a board manager. cache may be nil.
func New(boardAPI *api.BoardAPI, cache *storage.DB) *Manager {
	return &Manager{api: boardAPI, cache: cache}
}

// Boards lists boards, falling back to the cached list when the backend is
// unreachable.
func (m *Manager) Boards(ctx context.Context) ([]api.Board, error) {
	boards, err := m.api.Boards(ctx)
	if err != nil {
		var cached []api.Board
		if m.load("list", &cached) {
			log.Printf("BOARD: serving cached board list: %v", err)
			return cached, nil
		}
		return nil, err
	}
	m.save("list", boards)
	return boards, nil
}

// Board returns one board with columns and tasks, falling back to its
// snapshot when the backend is unreachable.
func (m *Manager) Board(ctx context.Context, boardID api.ID) (*api.Board, error) {
	b, err := m.api.Board(ctx, boardID)
	if err != nil {
		var cached api.Board
		if m.load(boardID.String(), &cached) {
			log.Printf("BOARD: serving cached board %s: %v", boardID, err)
			return &cached, nil
		}
		return nil, err
	}
	m.save(boardID.String(), b)
	return b, nil
}

// CreateTask adds a task and refreshes the board snapshot.
func (m *Manager) CreateTask(ctx context.Context, boardID, columnID api.ID, title, description string) (*api.Task, error) {
	task, err := m.api.CreateTask(ctx, boardID, columnID, title, description)
	if err != nil {
		return nil, err
	}
	m.refresh(ctx, boardID)
	return task, nil
}

// MoveTask moves a task between columns and refreshes the board snapshot.
func (m *Manager) MoveTask(ctx context.Context, boardID, taskID, toColumnID api.ID, order int) error {
	if err := m.api.MoveTask(ctx, boardID, taskID, toColumnID, order); err != nil {
		return err
	}
	m.refresh(ctx, boardID)
	return nil
}

// refresh re-fetches a board after a mutation so the snapshot reflects the
// backend's ordering decisions. Best effort.
func (m *Manager) refresh(ctx context.Context, boardID api.ID) {
	b, err := m.api.Board(ctx, boardID)
	if err != nil {
		log.Printf("BOARD: snapshot refresh for %s failed: %v", boardID, err)
		return
	}
	m.save(boardID.String(), b)
}

func (m *Manager) save(key string, v any) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SaveSnapshot(storage.SnapshotBoard, key, v); err != nil {
		log.Printf("BOARD: snapshot save %s: %v", key, err)
	}
}

func (m *Manager) load(key string, v any) bool {
	if m.cache == nil {
		return false
	}
	_, ok := m.cache.LoadSnapshot(storage.SnapshotBoard, key, v)
	return ok
}
