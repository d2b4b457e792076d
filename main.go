package main

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"OmniChat/models"
	"OmniChat/pkg/cache"
	"OmniChat/pkg/chat"
	"OmniChat/pkg/config"
	"OmniChat/pkg/llm"
	"OmniChat/pkg/store"
	tokenstore "OmniChat/pkg/token"
	"OmniChat/routes"
)

func main() {
	// config loads in pkg/config init()

	// init DB (sqlite in same folder)
	db, err := gorm.Open(sqlite.Open("app.db"), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// auto-migrate
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{}); err != nil {
		log.Fatalf("failed migrate: %v", err)
	}

	if config.RedisAddr != "" {
		tokenstore.UseRedis(config.RedisAddr)
	}

	cache.SetMaxItems(config.ChatCacheMaxItems)

	st := store.New(db)
	orch := chat.NewOrchestrator(st, llm.New, cache.Default(),
		time.Duration(config.ChatCacheTTLSeconds)*time.Second)

	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173", "http://127.0.0.1:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-Conversation-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, st, orch)
	r.Run(":" + config.Port)
}
