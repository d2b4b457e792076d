package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"OmniChat/pkg/config"
)

// Model is the closed set of selectable providers.
type Model string

const (
	ModelGemini     Model = "gemini"
	ModelPerplexity Model = "perplexity"
	ModelBedrock    Model = "bedrock"
	// ModelMock is not user-selectable; it backs tests and the local fallback.
	ModelMock Model = "mock"
)

var (
	ErrInvalidModel = errors.New("unknown model choice")
	// ErrUpstream marks provider failures. Chunks emitted before the failure
	// remain valid; the error is a terminal signal, not a retroactive one.
	ErrUpstream = errors.New("upstream model error")
)

// ChatMessage is one prior turn handed to a provider as context.
type ChatMessage struct {
	Role string // models.RoleUser / models.RoleAssistant
	Text string
}

// Provider turns conversation context into a finite ordered sequence of text
// chunks. Stream forwards each chunk to onDelta as it arrives and returns the
// full concatenation. A stream is not restartable.
type Provider interface {
	Name() Model
	Stream(ctx context.Context, history []ChatMessage, onDelta func(string)) (string, error)
}

// ParseModel validates a client-supplied model tag.
func ParseModel(s string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(s))) {
	case ModelGemini:
		return ModelGemini, nil
	case ModelPerplexity:
		return ModelPerplexity, nil
	case ModelBedrock:
		return ModelBedrock, nil
	}
	return "", ErrInvalidModel
}

// New builds the provider for a model choice from process configuration.
func New(m Model) (Provider, error) {
	switch m {
	case ModelGemini:
		return NewGemini(config.GeminiAPIKey, config.GeminiModel), nil
	case ModelPerplexity:
		return NewPerplexity(config.PerplexityAPIKey, config.PerplexityModel), nil
	case ModelBedrock:
		return NewBedrock(config.BedrockModelID, config.AWSRegion), nil
	case ModelMock:
		return &Mock{}, nil
	}
	return nil, ErrInvalidModel
}

// systemPrompt applies to every provider.
const systemPrompt = "You are a helpful AI assistant. Answer clearly and " +
	"concisely, using Markdown formatting (headings, lists, code blocks) where " +
	"it improves readability."

func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	e := strings.ToLower(err.Error())
	if strings.Contains(e, "status 503") || strings.Contains(e, "unavailable") {
		return true
	}
	if strings.Contains(e, "status 429") || strings.Contains(e, "resource_exhausted") || strings.Contains(e, "quota") {
		return true
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
