package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"OmniChat/middleware"
	"OmniChat/pkg/chat"
	"OmniChat/pkg/llm"
	"OmniChat/pkg/store"
)

// deltaEscaper keeps a delta chunk on a single SSE data line. The backslash
// is escaped before the newline so model output containing a literal
// backslash-n (code samples do) survives the round trip.
var deltaEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n")

// ChatStream runs one turn and streams the assistant reply as SSE.
// Client will receive:
// - event: user_saved (once) with the resolved conversation id, also mirrored
//   in the X-Conversation-ID header
// - event: delta (multiple) with partial text chunks
// - event: error (once, instead of done) if the provider fails mid-stream
// - event: done (once) when finished
func ChatStream(orch *chat.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.String(http.StatusInternalServerError, "streaming unsupported")
			return
		}

		uid := middleware.CurrentUserID(c)

		var body struct {
			Message        string  `json:"message"`
			Model          string  `json:"model"`
			ConversationID *string `json:"conversationId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Message) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "message is required"})
			return
		}
		model, err := llm.ParseModel(body.Model)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "unknown model"})
			return
		}

		if !middleware.DuplicateGuard(uid, body.Message) {
			c.JSON(http.StatusTooManyRequests, gin.H{"msg": "duplicate message"})
			return
		}
		release := middleware.AcquireUserSlot(uid)
		defer release()

		// Stream headers are written lazily so validation/ownership failures
		// above and inside the orchestrator still produce plain JSON statuses.
		started := false
		events := chat.TurnEvents{
			OnStarted: func(conversationID string) {
				c.Header("Content-Type", "text/event-stream")
				c.Header("Cache-Control", "no-cache")
				c.Header("Connection", "keep-alive")
				c.Header("X-Accel-Buffering", "no") // nginx buffering off
				c.Header("X-Conversation-ID", conversationID)
				fmt.Fprintf(c.Writer, "event: user_saved\n")
				fmt.Fprintf(c.Writer, "data: {\"conversation_id\": \"%s\"}\n\n", conversationID)
				flusher.Flush()
				started = true
			},
			OnDelta: func(chunk string) {
				fmt.Fprintf(c.Writer, "event: delta\n")
				fmt.Fprintf(c.Writer, "data: %s\n\n", deltaEscaper.Replace(chunk))
				flusher.Flush()
			},
		}

		_, err = orch.HandleTurn(c.Request.Context(), uid, body.ConversationID, model, body.Message, events)
		if err != nil {
			// The failed turn must be resendable as-is.
			middleware.ForgetDuplicate(uid, body.Message)
			if !started {
				status, msg := turnErrStatus(err)
				if status == http.StatusInternalServerError {
					log.Printf("[chat] turn failed for user %s: %v", uid, err)
				}
				c.JSON(status, gin.H{"msg": msg})
				return
			}
			// Chunks already flushed; the stream itself carries the failure.
			log.Printf("[chat] turn failed mid-stream for user %s: %v", uid, err)
			fmt.Fprintf(c.Writer, "event: error\n")
			fmt.Fprintf(c.Writer, "data: {\"error\": \"%s\"}\n\n", publicTurnError(err))
			flusher.Flush()
			return
		}

		fmt.Fprintf(c.Writer, "event: done\n")
		fmt.Fprintf(c.Writer, "data: {\"ok\": true}\n\n")
		flusher.Flush()
	}
}

func turnErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, llm.ErrInvalidModel):
		return http.StatusBadRequest, "unknown model"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway, "model upstream error"
	}
	return http.StatusInternalServerError, "internal error"
}

// publicTurnError is the generic wording sent inside an SSE error event;
// details stay in the log.
func publicTurnError(err error) string {
	switch {
	case errors.Is(err, llm.ErrUpstream):
		return "model upstream error"
	case errors.Is(err, chat.ErrPersistence):
		return "reply could not be saved"
	case errors.Is(err, store.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, store.ErrForbidden):
		return "forbidden"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "message is required"
	}
	return "internal error"
}
