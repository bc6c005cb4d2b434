package api

import (
	"context"
	"fmt"
)

// BoardAPI wraps the /api/boards endpoints.
type BoardAPI struct {
	c *Client
}

// Boards lists the kanban boards visible to the current user.
func (a *BoardAPI) Boards(ctx context.Context) ([]Board, error) {
	var res struct {
		Boards []Board `json:"boards"`
	}
	if err := a.c.getJSON(ctx, "/api/boards", &res); err != nil {
		return nil, err
	}
	return res.Boards, nil
}

// Board returns one board with its columns and tasks.
func (a *BoardAPI) Board(ctx context.Context, boardID ID) (*Board, error) {
	var b Board
	if err := a.c.getJSON(ctx, fmt.Sprintf("/api/boards/%s", boardID), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateTask adds a task to a column.
func (a *BoardAPI) CreateTask(ctx context.Context, boardID, columnID ID, title, description string) (*Task, error) {
	var res struct {
		Task Task `json:"task"`
	}
	path := fmt.Sprintf("/api/boards/%s/tasks", boardID)
	err := a.c.postJSON(ctx, path, map[string]any{
		"columnId":    columnID,
		"title":       title,
		"description": description,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res.Task, nil
}

// MoveTask moves a task to a column at the given position.
func (a *BoardAPI) MoveTask(ctx context.Context, boardID, taskID, toColumnID ID, order int) error {
	path := fmt.Sprintf("/api/boards/%s/tasks/%s/move", boardID, taskID)
	return a.c.putJSON(ctx, path, map[string]any{
		"columnId": toColumnID,
		"order":    order,
	}, nil)
}
