package client

import (
	"context"
	"errors"
)

// State is the per-chat-view phase.
type State int

const (
	StateNoConversation State = iota
	StateStreaming
	StateIdle
)

var ErrBusy = errors.New("a turn is already streaming")

// ChatView tracks one chat view's reconciliation state: the phase machine
// NoConversation -> Streaming -> Idle and the conversation id as it moves
// from unresolved to server-confirmed. Updates are cooperative: Send renders
// deltas inline on the calling goroutine, matching a UI's single render loop.
type ChatView struct {
	client         *Client
	state          State
	conversationID string
	cancel         context.CancelFunc
}

func NewChatView(c *Client) *ChatView {
	return &ChatView{client: c, state: StateNoConversation}
}

func (v *ChatView) State() State { return v.state }

// ConversationID returns the server-confirmed id, or "" while unresolved.
func (v *ChatView) ConversationID() string { return v.conversationID }

// Send runs one turn. On the first send of a fresh view the server creates
// the conversation; its id is adopted from the stream's first frame, so no
// follow-up listing guess is needed. The turn is cancellable via Abandon and
// bounded by the client's TurnTimeout.
func (v *ChatView) Send(ctx context.Context, model, text string, onDelta func(string)) (*TurnOutcome, error) {
	if v.state == StateStreaming {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	defer func() {
		cancel()
		v.cancel = nil
	}()

	v.state = StateStreaming
	outcome, err := v.client.SendMessage(ctx, v.conversationID, model, text, onDelta)
	if outcome != nil && outcome.ConversationID != "" {
		v.conversationID = outcome.ConversationID
	}
	if v.conversationID != "" {
		v.state = StateIdle
	} else {
		v.state = StateNoConversation
	}
	return outcome, err
}

// Resume attaches the view to an existing conversation and returns its
// history so the caller can render it.
func (v *ChatView) Resume(ctx context.Context, conversationID string) ([]Message, error) {
	if v.state == StateStreaming {
		return nil, ErrBusy
	}
	msgs, err := v.client.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	v.conversationID = conversationID
	v.state = StateIdle
	return msgs, nil
}

// Abandon cancels an in-flight turn. Cancelling the request context tears
// down the server-side provider call, so abandoned turns release upstream
// resources instead of streaming into the void.
func (v *ChatView) Abandon() {
	if v.cancel != nil {
		v.cancel()
	}
}

// Reset detaches the view for a brand-new chat (e.g. the user clicked "new
// conversation"), abandoning any in-flight turn first.
func (v *ChatView) Reset() {
	v.Abandon()
	v.state = StateNoConversation
	v.conversationID = ""
}
