package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"OmniChat/models"
)

const perplexityDefaultBaseURL = "https://api.perplexity.ai"

// Perplexity streams from the chat/completions endpoint (OpenAI-style SSE:
// "data: {json}" lines terminated by "data: [DONE]").
type Perplexity struct {
	apiKey  string
	model   string
	baseURL string
}

func NewPerplexity(apiKey, model string) *Perplexity {
	return &Perplexity{apiKey: apiKey, model: model, baseURL: perplexityDefaultBaseURL}
}

func (p *Perplexity) Name() Model { return ModelPerplexity }

// SetBaseURL points the adapter at a different API host (tests).
func (p *Perplexity) SetBaseURL(u string) { p.baseURL = strings.TrimRight(u, "/") }

func (p *Perplexity) Stream(ctx context.Context, history []ChatMessage, onDelta func(string)) (string, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		log.Printf("[perplexity] PERPLEXITY_API_KEY is not set")
		return "", fmt.Errorf("%w: PERPLEXITY_API_KEY is not set", ErrUpstream)
	}

	body, err := p.payload(history)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	text, err := p.callStream(ctx, body, onDelta)
	if err != nil && text == "" && isRetriable(err) {
		sleepWithContext(ctx, 2*time.Second)
		text, err = p.callStream(ctx, body, onDelta)
	}
	if err != nil {
		log.Printf("[perplexity] stream model %s failed: %v", p.model, err)
		return text, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return text, nil
}

func (p *Perplexity) payload(history []ChatMessage) ([]byte, error) {
	messages := make([]any, 0, len(history)+1)
	messages = append(messages, map[string]any{"role": "system", "content": systemPrompt})
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, map[string]any{"role": role, "content": m.Text})
	}
	reqBody := map[string]any{
		"model":    p.model,
		"messages": messages,
		"stream":   true,
	}
	return json.Marshal(reqBody)
}

func (p *Perplexity) callStream(ctx context.Context, body []byte, onDelta func(string)) (string, error) {
	url := p.baseURL + "/chat/completions"
	log.Printf("[perplexity] streaming model %s", p.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	full := strings.Builder{}
	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimSpace(line[5:])
		if line == "[DONE]" {
			break
		}
		if txt := perplexityDeltaText(line); txt != "" {
			full.WriteString(txt)
			if onDelta != nil {
				onDelta(txt)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read error: %w", err)
	}
	return full.String(), nil
}

// perplexityDeltaText extracts choices[0].delta.content from one stream frame.
func perplexityDeltaText(line string) string {
	var frame struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		return ""
	}
	if len(frame.Choices) == 0 {
		return ""
	}
	return frame.Choices[0].Delta.Content
}
