package directline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultBase is the production Direct Line endpoint base.
const DefaultBase = "https://directline.botframework.com/v3/directline"

// APIError is a non-2xx response from the Direct Line service.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directline: %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Conversation is the response to create/renew calls.
type Conversation struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token"`
	StreamURL      string `json:"streamUrl"`
	ExpiresIn      int    `json:"expires_in"`
}

// ResourceResponse acknowledges a posted activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// Client talks to the Direct Line REST API. All calls are
// bearer-authenticated with the channel secret.
type Client struct {
	secret string
	base   string
	http   *http.Client

	mu    sync.Mutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBase overrides the endpoint base, mainly for tests.
func WithBase(base string) ClientOption {
	return func(c *Client) {
		if base != "" {
			c.base = base
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(secret string, opts ...ClientOption) *Client {
	c := &Client{
		secret: secret,
		base:   DefaultBase,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the most recently issued conversation token, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) rememberToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	if c.token == "" {
		c.token = token
	}
	c.mu.Unlock()
}

// GenerateToken issues a Direct Line token without starting a
// conversation.
func (c *Client) GenerateToken(ctx context.Context) (string, error) {
	var conv Conversation
	if err := c.do(ctx, "generate token", http.MethodPost, "/tokens/generate", nil, &conv); err != nil {
		return "", err
	}
	c.rememberToken(conv.Token)
	return conv.Token, nil
}

// CreateConversation starts a new conversation and returns its id,
// token, and stream URL.
func (c *Client) CreateConversation(ctx context.Context) (*Conversation, error) {
	var conv Conversation
	if err := c.do(ctx, "create conversation", http.MethodPost, "/conversations", nil, &conv); err != nil {
		return nil, err
	}
	c.rememberToken(conv.Token)
	return &conv, nil
}

// RenewConversation fetches a fresh stream URL for an existing
// conversation. A stale stream URL must never be reused; callers renew
// before every reopen attempt.
func (c *Client) RenewConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	path := "/conversations/" + conversationID
	if err := c.do(ctx, "renew conversation", http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	if conv.ConversationID == "" {
		conv.ConversationID = conversationID
	}
	c.rememberToken(conv.Token)
	return &conv, nil
}

// PostActivity sends one activity into a conversation and returns the
// acknowledged activity id.
func (c *Client) PostActivity(ctx context.Context, conversationID string, activity *Activity) (string, error) {
	var ack ResourceResponse
	path := "/conversations/" + conversationID + "/activities"
	if err := c.do(ctx, "post activity", http.MethodPost, path, activity, &ack); err != nil {
		return "", err
	}
	return ack.ID, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directline: encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("directline: building %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directline: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("directline: decoding %s response: %w", op, err)
		}
	}
	return nil
}
