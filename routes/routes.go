package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"OmniChat/middleware"
	"OmniChat/pkg/chat"
	"OmniChat/pkg/store"

	chatRoutes "OmniChat/routes/chat"
	convRoutes "OmniChat/routes/conversation"
	sessionRoutes "OmniChat/routes/session"
	websocketRoutes "OmniChat/routes/websocket"
)

func RegisterRoutes(r *gin.Engine, st *store.Store, orch *chat.Orchestrator) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "chat backend running"})
	})

	websocketRoutes.Register(r, orch)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware())
	sessionRoutes.Register(protected)
	convRoutes.Register(protected, st)
	chatRoutes.Register(protected, orch)
}
