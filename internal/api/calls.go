package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CallAPI wraps the /api/calls endpoints.
//
// The backend signals two expected conflicts with status 400: creating a call
// for a conversation that already has one in progress, and joining a call
// twice. Both are alternate success paths for the caller, so Create returns a
// tagged outcome and Join swallows the already-joined case instead of forcing
// call sites to pick the error apart.
type CallAPI struct {
	c *Client
}

// CreateOutcome is the result of Create. Exactly one branch is set:
// Created when a new call was made, Existing when a call for the
// conversation is already in progress and should be joined instead.
type CreateOutcome struct {
	Created  *Call
	RoomID   string
	Existing ID
}

// AlreadyExists reports whether the conversation already had a call.
func (o CreateOutcome) AlreadyExists() bool { return o.Existing != "" }

func (o CreateOutcome) String() string {
	if o.AlreadyExists() {
		return fmt.Sprintf("exists(%s)", o.Existing)
	}
	if o.Created != nil {
		return fmt.Sprintf("created(%s)", o.Created.ID)
	}
	return "none"
}

// Create starts a call for a conversation. A 400 carrying an existing callId
// becomes an AlreadyExists outcome, not an error.
func (a *CallAPI) Create(ctx context.Context, conversationID ID, callType string) (CreateOutcome, error) {
	if callType == "" {
		callType = "video"
	}
	var res struct {
		Call   Call   `json:"call"`
		RoomID string `json:"roomId"`
	}
	err := a.c.postJSON(ctx, "/api/calls", map[string]any{
		"conversationId": conversationID,
		"type":           callType,
	}, &res)
	if err == nil {
		return CreateOutcome{Created: &res.Call, RoomID: res.RoomID}, nil
	}

	var se *StatusError
	if errors.As(err, &se) && se.Status == 400 {
		var existing ID
		if se.Field("callId", &existing) && existing != "" {
			return CreateOutcome{Existing: existing}, nil
		}
	}
	return CreateOutcome{}, err
}

// Get fetches one call record by id. Used to resolve the initiator when the
// join path carries no initiator id.
func (a *CallAPI) Get(ctx context.Context, callID ID) (*Call, error) {
	var res struct {
		Call Call `json:"call"`
	}
	if err := a.c.getJSON(ctx, fmt.Sprintf("/api/calls/%s", callID), &res); err != nil {
		return nil, err
	}
	return &res.Call, nil
}

// Join registers the current user as a call participant. Joining twice is
// idempotent: the backend's "already joined" conflict is treated as success.
func (a *CallAPI) Join(ctx context.Context, callID ID) (roomID string, err error) {
	var res struct {
		RoomID string `json:"roomId"`
	}
	err = a.c.postJSON(ctx, fmt.Sprintf("/api/calls/%s/join", callID), struct{}{}, &res)
	if err == nil {
		return res.RoomID, nil
	}

	var se *StatusError
	if errors.As(err, &se) && se.Status == 400 &&
		strings.Contains(strings.ToLower(se.Message), "already joined") {
		return "", nil
	}
	return "", err
}

// Leave removes the current user from a call.
func (a *CallAPI) Leave(ctx context.Context, callID ID) error {
	return a.c.postJSON(ctx, fmt.Sprintf("/api/calls/%s/leave", callID), struct{}{}, nil)
}

// End terminates the call for every participant. Initiator only.
func (a *CallAPI) End(ctx context.Context, callID ID) error {
	return a.c.postJSON(ctx, fmt.Sprintf("/api/calls/%s/end", callID), struct{}{}, nil)
}

// Participants lists the users currently in a call.
func (a *CallAPI) Participants(ctx context.Context, callID ID) ([]CallParticipant, error) {
	var res struct {
		Participants []CallParticipant `json:"participants"`
	}
	if err := a.c.getJSON(ctx, fmt.Sprintf("/api/calls/%s/participants", callID), &res); err != nil {
		return nil, err
	}
	return res.Participants, nil
}
