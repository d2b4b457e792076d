package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"OmniChat/models"
	"OmniChat/pkg/cache"
	"OmniChat/pkg/llm"
	"OmniChat/pkg/store"
)

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrPersistence  = errors.New("persistence failure")
)

// TurnEvents receives a turn's stream as it happens. OnStarted fires once,
// after the user message is durable, carrying the resolved conversation id
// (the id handoff for implicitly created conversations). OnDelta fires per
// chunk in emission order.
type TurnEvents struct {
	OnStarted func(conversationID string)
	OnDelta   func(chunk string)
}

// TurnResult reports how a turn ended, independent of what was streamed.
type TurnResult struct {
	ConversationID string
	AssistantText  string
	AssistantSaved bool
	FromCache      bool
}

// Orchestrator runs one chat turn: resolve or create the conversation,
// persist the user message, stream the provider's reply while accumulating
// it, persist the assistant message. Each turn is independent; concurrency
// safety rests on the store's atomic appends.
type Orchestrator struct {
	store       *store.Store
	providerFor func(llm.Model) (llm.Provider, error)
	cache       *cache.Cache
	cacheTTL    time.Duration
}

func NewOrchestrator(st *store.Store, providerFor func(llm.Model) (llm.Provider, error), c *cache.Cache, cacheTTL time.Duration) *Orchestrator {
	if providerFor == nil {
		providerFor = llm.New
	}
	return &Orchestrator{store: st, providerFor: providerFor, cache: c, cacheTTL: cacheTTL}
}

// HandleTurn processes one user message. Input and model validation happen
// before any write; the user message is durable before the provider is
// invoked; on a mid-stream provider failure the accumulated partial text is
// persisted so history matches what the caller already saw, and the upstream
// error is returned alongside the result.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID string, conversationID *string, model llm.Model, text string, ev TurnEvents) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	provider, err := o.providerFor(model)
	if err != nil {
		return nil, err
	}

	var conv *models.Conversation
	if conversationID != nil && *conversationID != "" {
		conv, err = o.store.GetConversation(userID, *conversationID)
		if err != nil {
			return nil, err
		}
	} else {
		conv, err = o.store.CreateConversation(userID, models.TitleFromMessage(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	if _, err := o.store.AppendMessage(conv.ID, models.RoleUser, text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if ev.OnStarted != nil {
		ev.OnStarted(conv.ID)
	}

	history, err := o.history(conv.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	res := &TurnResult{ConversationID: conv.ID}
	key := o.cacheKey(model, history)

	if cached, ok := o.cache.GetChatResponse(key); ok {
		log.Printf("[chat] cache hit for conversation %s", conv.ID)
		replayChunks(cached, ev.OnDelta)
		res.AssistantText = cached
		res.FromCache = true
		if _, err := o.store.AppendMessage(conv.ID, models.RoleAssistant, cached); err != nil {
			return res, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		res.AssistantSaved = true
		return res, nil
	}

	full := strings.Builder{}
	streamText, streamErr := provider.Stream(ctx, history, func(chunk string) {
		full.WriteString(chunk)
		if ev.OnDelta != nil {
			ev.OnDelta(chunk)
		}
	})
	// Trust the accumulator over the provider's return so persisted text is
	// exactly what the caller rendered.
	botText := full.String()
	if botText == "" {
		botText = streamText
	}
	res.AssistantText = botText

	if streamErr != nil {
		log.Printf("[chat] provider %s failed for conversation %s: %v", provider.Name(), conv.ID, streamErr)
		if strings.TrimSpace(botText) != "" {
			// Keep the partial: history must match what the client rendered.
			if _, err := o.store.AppendMessage(conv.ID, models.RoleAssistant, botText); err != nil {
				log.Printf("[chat] failed to persist partial reply for conversation %s: %v", conv.ID, err)
			} else {
				res.AssistantSaved = true
			}
		}
		return res, streamErr
	}

	if _, err := o.store.AppendMessage(conv.ID, models.RoleAssistant, botText); err != nil {
		// Chunks already reached the caller; report the gap instead of hiding it.
		log.Printf("[chat] failed to persist assistant reply for conversation %s: %v", conv.ID, err)
		return res, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	res.AssistantSaved = true
	o.cache.SetChatResponse(key, botText, cache.StatusCompleted, o.cacheTTL)
	return res, nil
}

// history loads the conversation's messages, newest last; the just-persisted
// user message is the final entry.
func (o *Orchestrator) history(conversationID string) ([]llm.ChatMessage, error) {
	msgs, err := o.store.ListMessages(conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]llm.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, llm.ChatMessage{Role: m.Role, Text: m.Content})
	}
	return history, nil
}

func (o *Orchestrator) cacheKey(model llm.Model, history []llm.ChatMessage) string {
	parts := make([]string, 0, len(history)*2+1)
	parts = append(parts, string(model))
	for _, m := range history {
		parts = append(parts, m.Role, m.Text)
	}
	return cache.KeyFromStrings(parts...)
}

// replayChunks re-streams a cached reply in small pieces so the client render
// path behaves the same as a live turn.
func replayChunks(text string, onDelta func(string)) {
	if onDelta == nil {
		return
	}
	const step = 24
	r := []rune(text)
	for i := 0; i < len(r); i += step {
		end := i + step
		if end > len(r) {
			end = len(r)
		}
		onDelta(string(r[i:end]))
	}
}
