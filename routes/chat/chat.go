package chat

import (
	"github.com/gin-gonic/gin"

	"OmniChat/controllers"
	"OmniChat/middleware"
	chatsvc "OmniChat/pkg/chat"
)

// Register registers the streaming chat route (protected, rate limited)
func Register(g *gin.RouterGroup, orch *chatsvc.Orchestrator) {
	g.POST("/chat", middleware.RateLimit(), controllers.ChatStream(orch))
}
