package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"OmniChat/middleware"
	"OmniChat/pkg/chat"
	"OmniChat/pkg/llm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

type wsStartPayload struct {
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	Model          string  `json:"model"`
	ConversationID *string `json:"conversationId"`
}

// ChatWS handles WebSocket chat streaming.
// Client protocol (JSON messages):
//
//	-> {type: "start", message: string, model: string, conversationId?: string}
//	<- {type: "user_saved", conversation_id: string}
//	<- {type: "delta", data: string}
//	<- {type: "done", ok: true}
//	<- {type: "error", error: string}
func ChatWS(orch *chat.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authenticate via ?token=JWT; browsers cannot set headers on WS dials
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing token query"})
			return
		}
		uid, _, ok := middleware.ValidateToken(c, tokenStr)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ws] upgrade error: %v", err)
			return
		}
		defer conn.Close()

		// Setup read limits and pong handler for keepalive
		conn.SetReadLimit(1 << 20) // 1MB
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		})

		// Read exactly one start message per connection
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[ws] read message error: %v", err)
			return
		}
		var start wsStartPayload
		if err := json.Unmarshal(msgBytes, &start); err != nil || strings.ToLower(start.Type) != "start" || strings.TrimSpace(start.Message) == "" {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": "invalid start payload"})
			return
		}
		model, err := llm.ParseModel(start.Model)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": "unknown model"})
			return
		}

		if !middleware.DuplicateGuard(uid, start.Message) {
			_ = conn.WriteJSON(gin.H{"type": "error", "error": "duplicate message"})
			return
		}
		release := middleware.AcquireUserSlot(uid)
		defer release()

		events := chat.TurnEvents{
			OnStarted: func(conversationID string) {
				_ = conn.WriteJSON(gin.H{"type": "user_saved", "conversation_id": conversationID})
			},
			OnDelta: func(chunk string) {
				_ = conn.WriteJSON(gin.H{"type": "delta", "data": chunk})
			},
		}

		if _, err := orch.HandleTurn(c.Request.Context(), uid, start.ConversationID, model, start.Message, events); err != nil {
			log.Printf("[ws] turn failed for user %s: %v", uid, err)
			middleware.ForgetDuplicate(uid, start.Message)
			_ = conn.WriteJSON(gin.H{"type": "error", "error": publicTurnError(err)})
			return
		}
		_ = conn.WriteJSON(gin.H{"type": "done", "ok": true})
	}
}
