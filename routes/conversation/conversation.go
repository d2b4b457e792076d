package conversation

import (
	"github.com/gin-gonic/gin"

	"OmniChat/controllers"
	"OmniChat/pkg/store"
)

// Register registers conversation and message routes (protected)
func Register(g *gin.RouterGroup, st *store.Store) {
	g.POST("/conversations", controllers.CreateConversation(st))
	g.GET("/conversations", controllers.ListConversations(st))
	g.PUT("/conversations", controllers.RenameConversation(st))
	g.DELETE("/conversations", controllers.DeleteConversation(st))
	g.GET("/messages", controllers.ListMessages(st))
}
