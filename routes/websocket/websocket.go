package websocket

import (
	"github.com/gin-gonic/gin"

	"OmniChat/controllers"
	chatsvc "OmniChat/pkg/chat"
)

// Register registers the websocket chat route (token auth happens in the
// handshake, not the HTTP middleware)
func Register(r *gin.Engine, orch *chatsvc.Orchestrator) {
	r.GET("/ws/chat", controllers.ChatWS(orch))
}
