package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"OmniChat/models"
	"OmniChat/pkg/cache"
	"OmniChat/pkg/llm"
	"OmniChat/pkg/store"
)

func newTestOrchestrator(t *testing.T, provider llm.Provider) (*Orchestrator, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(db)
	providerFor := func(m llm.Model) (llm.Provider, error) {
		if provider == nil {
			return nil, llm.ErrInvalidModel
		}
		return provider, nil
	}
	return NewOrchestrator(st, providerFor, cache.New(0), 10*time.Minute), st
}

func TestTurnCreatesConversationAndPersistsBothMessages(t *testing.T) {
	orch, st := newTestOrchestrator(t, llm.NewMock("Hi", " there", "!"))

	var startedID string
	var rendered strings.Builder
	res, err := orch.HandleTurn(context.Background(), "alice", nil, llm.ModelGemini, "Hello", TurnEvents{
		OnStarted: func(id string) { startedID = id },
		OnDelta:   func(c string) { rendered.WriteString(c) },
	})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if res.ConversationID == "" || res.ConversationID != startedID {
		t.Fatalf("conversation id not handed off: res=%q started=%q", res.ConversationID, startedID)
	}
	if rendered.String() != "Hi there!" {
		t.Fatalf("rendered = %q; want %q", rendered.String(), "Hi there!")
	}
	if !res.AssistantSaved || res.AssistantText != "Hi there!" {
		t.Fatalf("result = %+v", res)
	}

	convs, _ := st.ListConversations("alice")
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0].Title != "Hello" {
		t.Fatalf("title = %q; want the first message", convs[0].Title)
	}

	msgs, _ := st.ListMessages(res.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("expected exactly user+assistant rows, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("user row wrong: %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Content != "Hi there!" {
		t.Fatalf("assistant row wrong: %+v", msgs[1])
	}
}

func TestEmptyMessageRejectedBeforeAnyWrite(t *testing.T) {
	orch, st := newTestOrchestrator(t, llm.NewMock("x"))

	_, err := orch.HandleTurn(context.Background(), "alice", nil, llm.ModelGemini, "   \n", TurnEvents{})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v; want ErrEmptyMessage", err)
	}
	convs, _ := st.ListConversations("alice")
	if len(convs) != 0 {
		t.Fatalf("no conversation may exist after rejected input, got %d", len(convs))
	}
}

func TestInvalidModelRejectedBeforeAnyWrite(t *testing.T) {
	orch, st := newTestOrchestrator(t, nil)

	_, err := orch.HandleTurn(context.Background(), "alice", nil, llm.Model("nope"), "Hello", TurnEvents{})
	if !errors.Is(err, llm.ErrInvalidModel) {
		t.Fatalf("err = %v; want ErrInvalidModel", err)
	}
	convs, _ := st.ListConversations("alice")
	if len(convs) != 0 {
		t.Fatalf("no conversation may exist after rejected model, got %d", len(convs))
	}
}

func TestMidStreamFailurePersistsPartialAndUserMessage(t *testing.T) {
	orch, st := newTestOrchestrator(t, &llm.Mock{
		Chunks:    []string{"Partial", " rest"},
		Err:       errors.New("provider died"),
		FailAfter: 1,
	})

	var rendered strings.Builder
	res, err := orch.HandleTurn(context.Background(), "alice", nil, llm.ModelGemini, "Hello", TurnEvents{
		OnDelta: func(c string) { rendered.WriteString(c) },
	})
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("err = %v; want ErrUpstream", err)
	}
	if rendered.String() != "Partial" {
		t.Fatalf("rendered = %q; want %q", rendered.String(), "Partial")
	}
	if !res.AssistantSaved {
		t.Fatalf("partial text should be persisted per policy")
	}

	msgs, _ := st.ListMessages(res.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("expected user + partial assistant rows, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser {
		t.Fatalf("user message must be durable before the provider runs")
	}
	if msgs[1].Content != "Partial" {
		t.Fatalf("persisted partial = %q; want %q", msgs[1].Content, "Partial")
	}
}

func TestFailureBeforeFirstChunkPersistsOnlyUserMessage(t *testing.T) {
	orch, st := newTestOrchestrator(t, &llm.Mock{Chunks: []string{"x"}, Err: errors.New("down")})

	res, err := orch.HandleTurn(context.Background(), "alice", nil, llm.ModelGemini, "Hello", TurnEvents{})
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("err = %v; want ErrUpstream", err)
	}
	msgs, _ := st.ListMessages(res.ConversationID)
	if len(msgs) != 1 || msgs[0].Role != models.RoleUser {
		t.Fatalf("expected only the user row, got %+v", msgs)
	}
}

func TestExistingConversationOwnershipEnforced(t *testing.T) {
	orch, st := newTestOrchestrator(t, llm.NewMock("ok"))
	conv, _ := st.CreateConversation("bob", "bob's")

	_, err := orch.HandleTurn(context.Background(), "alice", &conv.ID, llm.ModelGemini, "hi", TurnEvents{})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("err = %v; want ErrForbidden", err)
	}
	msgs, _ := st.ListMessages(conv.ID)
	if len(msgs) != 0 {
		t.Fatalf("no message may be written into a foreign conversation")
	}
}

func TestCachedReplyReplaysWithoutProviderAndStillPersists(t *testing.T) {
	mock := llm.NewMock("Cached", " answer")
	orch, st := newTestOrchestrator(t, mock)

	res1, err := orch.HandleTurn(context.Background(), "alice", nil, llm.ModelGemini, "Same question", TurnEvents{})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	// Second fresh conversation with the identical history hits the cache;
	// make the provider hostile to prove it is not called.
	mock.Err = errors.New("must not be invoked")
	mock.FailAfter = 0

	var rendered strings.Builder
	res2, err := orch.HandleTurn(context.Background(), "alice", nil, llm.ModelGemini, "Same question", TurnEvents{
		OnDelta: func(c string) { rendered.WriteString(c) },
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if !res2.FromCache {
		t.Fatalf("expected cache hit")
	}
	if rendered.String() != res1.AssistantText {
		t.Fatalf("replayed %q; want %q", rendered.String(), res1.AssistantText)
	}
	msgs, _ := st.ListMessages(res2.ConversationID)
	if len(msgs) != 2 || msgs[1].Content != res1.AssistantText {
		t.Fatalf("cached turn must still persist the assistant row: %+v", msgs)
	}
}
