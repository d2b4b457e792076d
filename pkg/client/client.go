package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTurnFailed marks a turn the server reported as failed after streaming
// began; chunks rendered so far remain valid.
var ErrTurnFailed = errors.New("turn failed")

// Client talks to the chat backend. Session context is explicit: the token is
// carried by the client value, never ambient state.
type Client struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	TurnTimeout time.Duration
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Token:       token,
		HTTPClient:  &http.Client{},
		TurnTimeout: 2 * time.Minute,
	}
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// TurnOutcome reports a finished (or failed-after-start) turn.
type TurnOutcome struct {
	ConversationID string
	AssistantText  string
}

// SendMessage posts one turn and consumes the SSE stream, invoking onDelta
// per chunk in arrival order. conversationID may be empty; the server then
// creates one and hands its id back in the first frame, which is echoed in
// the outcome. The whole read runs under the caller's ctx plus TurnTimeout.
func (c *Client) SendMessage(ctx context.Context, conversationID, model, text string, onDelta func(string)) (*TurnOutcome, error) {
	if c.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.TurnTimeout)
		defer cancel()
	}

	payload := map[string]any{"message": text, "model": model}
	if conversationID != "" {
		payload["conversationId"] = conversationID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	outcome := &TurnOutcome{ConversationID: resp.Header.Get("X-Conversation-ID")}
	full := strings.Builder{}

	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	event := ""
	done := false
	var turnErr error
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")
			switch event {
			case "user_saved":
				var frame struct {
					ConversationID string `json:"conversation_id"`
				}
				if err := json.Unmarshal([]byte(data), &frame); err == nil && frame.ConversationID != "" {
					outcome.ConversationID = frame.ConversationID
				}
			case "delta":
				chunk := unescapeDelta(data)
				full.WriteString(chunk)
				if onDelta != nil {
					onDelta(chunk)
				}
			case "error":
				var frame struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal([]byte(data), &frame)
				turnErr = fmt.Errorf("%w: %s", ErrTurnFailed, frame.Error)
				done = true
			case "done":
				done = true
			}
		}
		if done {
			break
		}
	}
	outcome.AssistantText = full.String()
	if turnErr != nil {
		return outcome, turnErr
	}
	if err := scanner.Err(); err != nil {
		return outcome, fmt.Errorf("%w: %v", ErrTurnFailed, err)
	}
	if !done {
		return outcome, fmt.Errorf("%w: stream ended without done event", ErrTurnFailed)
	}
	return outcome, nil
}

// unescapeDelta reverses the server's delta escaping (backslash first, then
// newline) in one scan. A pair of ReplaceAll calls cannot do this: an escaped
// backslash followed by a real 'n' would be misread as an escaped newline.
func unescapeDelta(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	var out struct {
		Conversation Conversation `json:"conversation"`
	}
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

// ListConversations returns the caller's conversations ordered by creation
// time ascending.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) RenameConversation(ctx context.Context, id, title string) (*Conversation, error) {
	var out struct {
		Conversation Conversation `json:"conversation"`
	}
	if err := c.doJSON(ctx, http.MethodPut, "/conversations", map[string]any{"id": id, "title": title}, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/conversations", map[string]any{"id": id}, nil)
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/messages?conversationId="+conversationID, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/logout", nil, nil)
}
