package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mock is a deterministic in-process provider for tests and local runs.
// When Err is set the stream fails after emitting FailAfter chunks (0 means
// before the first chunk).
type Mock struct {
	Chunks    []string
	Err       error
	FailAfter int
}

func NewMock(chunks ...string) *Mock {
	return &Mock{Chunks: chunks}
}

func (m *Mock) Name() Model { return ModelMock }

func (m *Mock) Stream(ctx context.Context, history []ChatMessage, onDelta func(string)) (string, error) {
	chunks := m.Chunks
	if len(chunks) == 0 && m.Err == nil {
		chunks = defaultMockChunks(history)
	}
	full := strings.Builder{}
	for i, c := range chunks {
		if m.Err != nil && i >= m.FailAfter {
			return full.String(), fmt.Errorf("%w: %v", ErrUpstream, m.Err)
		}
		if err := ctx.Err(); err != nil {
			return full.String(), fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		full.WriteString(c)
		if onDelta != nil {
			onDelta(c)
		}
	}
	if m.Err != nil && m.FailAfter >= len(chunks) {
		return full.String(), fmt.Errorf("%w: %v", ErrUpstream, m.Err)
	}
	return full.String(), nil
}

func defaultMockChunks(history []ChatMessage) []string {
	last := ""
	if len(history) > 0 {
		last = strings.TrimSpace(history[len(history)-1].Text)
	}
	return []string{"You said: ", last}
}
