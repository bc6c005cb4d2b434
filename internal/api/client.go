// Package api is the REST client for the teamloop backend. It is a thin
// wrapper layer: every method maps to one backend endpoint, decodes JSON into
// the types in types.go and reports non-2xx responses as *StatusError so
// callers can branch on status without string matching.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teamloop/teamloop/internal/util"
)

// StatusError is a non-2xx backend response with its decoded body.
type StatusError struct {
	Status  int
	Message string          // body "message" field, when present
	Body    json.RawMessage // raw body for endpoint-specific fields
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend status %d", e.Status)
}

// Field decodes one named field of the error body into v.
// Returns false when the field is absent or does not decode.
func (e *StatusError) Field(name string, v any) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(e.Body, &m); err != nil {
		return false
	}
	raw, ok := m[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Client talks to the backend REST API. Token is set after login and attached
// to every request. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string

	Auth  *AuthAPI
	Chat  *ChatAPI
	Board *BoardAPI
	Wiki  *WikiAPI
	Calls *CallAPI
	Team  *TeamAPI
}

// New creates a client for the backend at baseURL.
func New(baseURL string) *Client {
	c := &Client{
		baseURL: util.NormalizeURL(baseURL),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	c.Auth = &AuthAPI{c: c}
	c.Chat = &ChatAPI{c: c}
	c.Board = &BoardAPI{c: c}
	c.Wiki = &WikiAPI{c: c}
	c.Calls = &CallAPI{c: c}
	c.Team = &TeamAPI{c: c}
	return c
}

// SetToken sets the bearer token attached to subsequent requests.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Token returns the current session token ("" when logged out).
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// getJSON performs a GET request and decodes a 2xx JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	return c.do(ctx, http.MethodGet, path, nil, v)
}

// postJSON performs a POST request with a JSON body and decodes a 2xx JSON
// response into v. body and v may each be nil.
func (c *Client) postJSON(ctx context.Context, path string, body, v any) error {
	return c.do(ctx, http.MethodPost, path, body, v)
}

func (c *Client) putJSON(ctx context.Context, path string, body, v any) error {
	return c.do(ctx, http.MethodPut, path, body, v)
}

func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return readStatusError(resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func readStatusError(resp *http.Response) *StatusError {
	se := &StatusError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return se
	}
	se.Body = json.RawMessage(raw)

	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &msg) == nil {
		se.Message = strings.TrimSpace(msg.Message)
	}
	return se
}
