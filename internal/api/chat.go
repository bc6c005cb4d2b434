package api

import (
	"context"
	"fmt"
)

// ChatAPI wraps the /api/conversations endpoints.
type ChatAPI struct {
	c *Client
}

// Conversations lists the conversations the current user belongs to.
func (a *ChatAPI) Conversations(ctx context.Context) ([]Conversation, error) {
	var res struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := a.c.getJSON(ctx, "/api/conversations", &res); err != nil {
		return nil, err
	}
	return res.Conversations, nil
}

// Messages returns the message history of one conversation, oldest first.
func (a *ChatAPI) Messages(ctx context.Context, conversationID ID) ([]Message, error) {
	var res struct {
		Messages []Message `json:"messages"`
	}
	path := fmt.Sprintf("/api/conversations/%s/messages", conversationID)
	if err := a.c.getJSON(ctx, path, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// Send posts a message to a conversation and returns the stored record.
func (a *ChatAPI) Send(ctx context.Context, conversationID ID, content string) (*Message, error) {
	var res struct {
		Message Message `json:"message"`
	}
	path := fmt.Sprintf("/api/conversations/%s/messages", conversationID)
	if err := a.c.postJSON(ctx, path, map[string]string{"content": content}, &res); err != nil {
		return nil, err
	}
	return &res.Message, nil
}
