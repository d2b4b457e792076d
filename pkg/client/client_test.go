package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseChatServer(t *testing.T, convID string, chunks []string, failAfter int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, `{"msg":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Conversation-ID", convID)
		fmt.Fprintf(w, "event: user_saved\ndata: {\"conversation_id\": \"%s\"}\n\n", convID)
		flusher.Flush()
		for i, c := range chunks {
			if failAfter >= 0 && i >= failAfter {
				fmt.Fprint(w, "event: error\ndata: {\"error\": \"model upstream error\"}\n\n")
				flusher.Flush()
				return
			}
			esc := strings.NewReplacer("\\", "\\\\", "\n", "\\n").Replace(c)
			fmt.Fprintf(w, "event: delta\ndata: %s\n\n", esc)
			flusher.Flush()
		}
		fmt.Fprint(w, "event: done\ndata: {\"ok\": true}\n\n")
		flusher.Flush()
	}))
}

func TestSendMessageRendersChunksInOrderAndAdoptsID(t *testing.T) {
	srv := sseChatServer(t, "conv-123", []string{"Hi", " there", "!"}, -1)
	defer srv.Close()

	c := New(srv.URL, "tok")
	var rendered strings.Builder
	out, err := c.SendMessage(context.Background(), "", "gemini", "Hello", func(chunk string) {
		rendered.WriteString(chunk)
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if rendered.String() != "Hi there!" {
		t.Fatalf("rendered = %q; want %q", rendered.String(), "Hi there!")
	}
	if out.AssistantText != "Hi there!" {
		t.Fatalf("assistant text = %q", out.AssistantText)
	}
	if out.ConversationID != "conv-123" {
		t.Fatalf("conversation id = %q; want conv-123", out.ConversationID)
	}
}

func TestSendMessageNewlineUnescaping(t *testing.T) {
	srv := sseChatServer(t, "conv-1", []string{"line one\nline two"}, -1)
	defer srv.Close()

	c := New(srv.URL, "tok")
	out, err := c.SendMessage(context.Background(), "", "gemini", "Hello", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if out.AssistantText != "line one\nline two" {
		t.Fatalf("assistant text = %q", out.AssistantText)
	}
}

func TestSendMessageKeepsLiteralBackslashN(t *testing.T) {
	// code samples routinely contain the two-character sequence \n
	emitted := "printf(\"\\n\");"
	srv := sseChatServer(t, "conv-2", []string{emitted}, -1)
	defer srv.Close()

	c := New(srv.URL, "tok")
	out, err := c.SendMessage(context.Background(), "", "gemini", "Hello", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if out.AssistantText != emitted {
		t.Fatalf("assistant text = %q; want %q", out.AssistantText, emitted)
	}
}

func TestUnescapeDelta(t *testing.T) {
	cases := []struct {
		wire, want string
	}{
		{"plain", "plain"},
		{"a\\nb", "a\nb"},
		{"a\\\\nb", "a\\nb"},
		{"a\\\\\\nb", "a\\\nb"},
		{"trailing\\", "trailing\\"},
		{"\\x kept", "\\x kept"},
	}
	for _, tc := range cases {
		if got := unescapeDelta(tc.wire); got != tc.want {
			t.Errorf("unescapeDelta(%q) = %q; want %q", tc.wire, got, tc.want)
		}
	}
}

func TestSendMessageMidStreamErrorKeepsRenderedText(t *testing.T) {
	srv := sseChatServer(t, "conv-9", []string{"Partial", " rest"}, 1)
	defer srv.Close()

	c := New(srv.URL, "tok")
	var rendered strings.Builder
	out, err := c.SendMessage(context.Background(), "", "gemini", "Hello", func(chunk string) {
		rendered.WriteString(chunk)
	})
	if !errors.Is(err, ErrTurnFailed) {
		t.Fatalf("err = %v; want ErrTurnFailed", err)
	}
	if rendered.String() != "Partial" {
		t.Fatalf("rendered = %q; want %q", rendered.String(), "Partial")
	}
	if out == nil || out.ConversationID != "conv-9" {
		t.Fatalf("outcome should still carry the conversation id: %+v", out)
	}
}

func TestChatViewStateMachineAndReconciliation(t *testing.T) {
	srv := sseChatServer(t, "conv-new", []string{"ok"}, -1)
	defer srv.Close()

	v := NewChatView(New(srv.URL, "tok"))
	if v.State() != StateNoConversation || v.ConversationID() != "" {
		t.Fatalf("fresh view must start unresolved")
	}

	var sawStreaming bool
	_, err := v.Send(context.Background(), "gemini", "Hello", func(string) {
		if v.State() == StateStreaming {
			sawStreaming = true
		}
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !sawStreaming {
		t.Fatalf("view must be Streaming while deltas arrive")
	}
	if v.State() != StateIdle {
		t.Fatalf("state = %v; want Idle after the stream completes", v.State())
	}
	if v.ConversationID() != "conv-new" {
		t.Fatalf("view did not adopt the server-assigned id: %q", v.ConversationID())
	}

	v.Reset()
	if v.State() != StateNoConversation || v.ConversationID() != "" {
		t.Fatalf("reset must detach the view")
	}
}

func TestRESTWrappers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /conversations":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"conversation": map[string]any{"id": "c1", "title": "New Conversation"}})
		case "GET /conversations":
			json.NewEncoder(w).Encode(map[string]any{"conversations": []map[string]any{{"id": "c1"}, {"id": "c2"}}})
		case "PUT /conversations":
			json.NewEncoder(w).Encode(map[string]any{"conversation": map[string]any{"id": "c1", "title": "renamed"}})
		case "DELETE /conversations":
			json.NewEncoder(w).Encode(map[string]any{"msg": "conversation deleted"})
		case "GET /messages":
			json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{
				{"role": "user", "content": "Hello"},
				{"role": "assistant", "content": "Hi there!"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, "")
	if err != nil || conv.ID != "c1" {
		t.Fatalf("create: %v %+v", err, conv)
	}
	convs, err := c.ListConversations(ctx)
	if err != nil || len(convs) != 2 {
		t.Fatalf("list: %v %+v", err, convs)
	}
	renamed, err := c.RenameConversation(ctx, "c1", "renamed")
	if err != nil || renamed.Title != "renamed" {
		t.Fatalf("rename: %v %+v", err, renamed)
	}
	if err := c.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := c.ListMessages(ctx, "c1")
	if err != nil || len(msgs) != 2 || msgs[1].Content != "Hi there!" {
		t.Fatalf("messages: %v %+v", err, msgs)
	}
}
