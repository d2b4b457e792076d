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

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini streams from the Generative Language API. It retries once on
// retriable statuses and falls back to the non-streaming endpoint when the
// stream completes without yielding any text.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model, baseURL: geminiDefaultBaseURL}
}

func (g *Gemini) Name() Model { return ModelGemini }

// SetBaseURL points the adapter at a different API host (tests).
func (g *Gemini) SetBaseURL(u string) { g.baseURL = strings.TrimRight(u, "/") }

func (g *Gemini) Stream(ctx context.Context, history []ChatMessage, onDelta func(string)) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		log.Printf("[gemini] GEMINI_API_KEY is not set")
		return "", fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrUpstream)
	}

	body, err := g.payload(history)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	text, err := g.callStream(ctx, body, onDelta)
	if err != nil && text == "" && isRetriable(err) {
		sleepWithContext(ctx, 2*time.Second)
		text, err = g.callStream(ctx, body, onDelta)
	}
	if err != nil {
		log.Printf("[gemini] stream model %s failed: %v", g.model, err)
		return text, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	// Stream finished silently; ask for the full answer in one shot.
	full, err := g.callGenerate(ctx, body)
	if err != nil {
		log.Printf("[gemini] fallback model %s failed: %v", g.model, err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if onDelta != nil && full != "" {
		onDelta(full)
	}
	return full, nil
}

func (g *Gemini) payload(history []ChatMessage) ([]byte, error) {
	contents := make([]any, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []any{map[string]any{"text": m.Text}},
		})
	}
	reqBody := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []any{map[string]any{"text": systemPrompt}},
		},
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":     0.6,
			"maxOutputTokens": 2048,
			"topK":            40,
			"topP":            0.9,
		},
	}
	return json.Marshal(reqBody)
}

func (g *Gemini) callStream(ctx context.Context, body []byte, onDelta func(string)) (string, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", g.baseURL, g.model, g.apiKey)
	log.Printf("[gemini] streaming model %s", g.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

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
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "data:") {
			line = strings.TrimSpace(line[5:])
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if txt := geminiCandidateText(obj); txt != "" {
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

func (g *Gemini) callGenerate(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	log.Printf("[gemini] using model %s", g.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBytes)))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("decode error: %w", err)
	}
	return strings.TrimSpace(geminiCandidateText(parsed)), nil
}

// geminiCandidateText pulls the first candidate's text parts out of a
// generateContent (or stream frame) response object.
func geminiCandidateText(obj map[string]any) string {
	cands, ok := obj["candidates"].([]any)
	if !ok || len(cands) == 0 {
		return ""
	}
	first, ok := cands[0].(map[string]any)
	if !ok {
		return ""
	}
	content, ok := first["content"].(map[string]any)
	if !ok {
		return ""
	}
	parts, ok := content["parts"].([]any)
	if !ok {
		return ""
	}
	b := strings.Builder{}
	for _, p := range parts {
		if pm, ok := p.(map[string]any); ok {
			if txt, ok := pm["text"].(string); ok {
				b.WriteString(txt)
			}
		}
	}
	return b.String()
}
