package session

import (
	"github.com/gin-gonic/gin"

	"OmniChat/controllers"
)

// Register registers session routes (protected)
func Register(g *gin.RouterGroup) {
	g.POST("/logout", controllers.Logout())
}
