package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"OmniChat/models"
)

// Bedrock streams via InvokeModelWithResponseStream using the Anthropic
// messages body shape. The SDK handles SigV4 and the event-stream framing.
type Bedrock struct {
	modelID string
	region  string

	initOnce sync.Once
	initErr  error
	client   *bedrockruntime.Client
}

func NewBedrock(modelID, region string) *Bedrock {
	return &Bedrock{modelID: modelID, region: region}
}

func (b *Bedrock) Name() Model { return ModelBedrock }

func (b *Bedrock) init(ctx context.Context) error {
	b.initOnce.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.region))
		if err != nil {
			b.initErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		b.client = bedrockruntime.NewFromConfig(cfg)
	})
	return b.initErr
}

func (b *Bedrock) Stream(ctx context.Context, history []ChatMessage, onDelta func(string)) (string, error) {
	if err := b.init(ctx); err != nil {
		log.Printf("[bedrock] init failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	body, err := b.payload(history)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	log.Printf("[bedrock] streaming model %s", b.modelID)
	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     &b.modelID,
		ContentType: strPtr("application/json"),
		Accept:      strPtr("application/json"),
		Body:        body,
	})
	if err != nil {
		log.Printf("[bedrock] invoke failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	stream := out.GetStream()
	defer stream.Close()

	full := strings.Builder{}
	for event := range stream.Events() {
		chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		if txt, ok := decodeBedrockChunk(chunk.Value.Bytes); ok && txt != "" {
			full.WriteString(txt)
			if onDelta != nil {
				onDelta(txt)
			}
		}
	}
	if err := stream.Err(); err != nil {
		log.Printf("[bedrock] stream read error: %v", err)
		return full.String(), fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return full.String(), nil
}

func (b *Bedrock) payload(history []ChatMessage) ([]byte, error) {
	messages := make([]any, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, map[string]any{
			"role":    role,
			"content": []any{map[string]any{"type": "text", "text": m.Text}},
		})
	}
	reqBody := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        2048,
		"system":            systemPrompt,
		"messages":          messages,
	}
	return json.Marshal(reqBody)
}

// decodeBedrockChunk extracts text from one Anthropic stream event payload.
// Only content_block_delta events carry text; everything else is skipped.
func decodeBedrockChunk(raw []byte) (string, bool) {
	var frame struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", false
	}
	if frame.Type != "content_block_delta" || frame.Delta.Type != "text_delta" {
		return "", false
	}
	return frame.Delta.Text, true
}

func strPtr(s string) *string { return &s }
