package config

import (
	"log"
	"os"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	GeminiAPIKey     string
	GeminiModel      string
	PerplexityAPIKey string
	PerplexityModel  string
	AWSRegion        string
	BedrockModelID   string

	AppEnv       string
	IsStaging    bool
	IsProduction bool

	JWTSecret string
	Port      string
	RedisAddr string

	// runtime tunables
	RateLimitWindowSeconds int
	RateLimitCapacity      int
	UserConcurrencyLimit   int
	DuplicateWindowSeconds int
	ChatCacheTTLSeconds    int
	ChatCacheMaxItems      int
)

// loadAppEnv loads .env for non-production environments only; production is
// expected to carry real environment variables.
func loadAppEnv() {
	AppEnv = os.Getenv("APP_ENV")
	if AppEnv == "production" {
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}
}

func init() {
	loadAppEnv()

	GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	GeminiModel = os.Getenv("GEMINI_MODEL")
	PerplexityAPIKey = os.Getenv("PERPLEXITY_API_KEY")
	PerplexityModel = os.Getenv("PERPLEXITY_MODEL")
	AWSRegion = os.Getenv("AWS_REGION")
	BedrockModelID = os.Getenv("BEDROCK_MODEL_ID")

	AppEnv = os.Getenv("APP_ENV")
	if !slices.Contains([]string{"staging", "production"}, AppEnv) {
		AppEnv = "staging"
	}
	IsStaging = AppEnv == "staging"
	IsProduction = AppEnv == "production"

	if GeminiModel == "" {
		GeminiModel = "gemini-2.0-flash"
	}
	if PerplexityModel == "" {
		PerplexityModel = "sonar"
	}
	if BedrockModelID == "" {
		BedrockModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if AWSRegion == "" {
		AWSRegion = "us-east-1"
	}

	JWTSecret = os.Getenv("JWT_SECRET_KEY")
	Port = os.Getenv("PORT")
	if Port == "" {
		Port = "5000"
	}
	RedisAddr = os.Getenv("REDIS_ADDR")

	RateLimitWindowSeconds = atoiOr(os.Getenv("RATE_LIMIT_WINDOW_SECONDS"), 10)
	RateLimitCapacity = atoiOr(os.Getenv("RATE_LIMIT_CAPACITY"), 5)
	UserConcurrencyLimit = atoiOr(os.Getenv("USER_CONCURRENCY_LIMIT"), 2)
	DuplicateWindowSeconds = atoiOr(os.Getenv("DUPLICATE_WINDOW_SECONDS"), 45)
	ChatCacheTTLSeconds = atoiOr(os.Getenv("CHAT_CACHE_TTL_SECONDS"), 600)
	ChatCacheMaxItems = atoiOr(os.Getenv("CHAT_CACHE_MAX_ITEMS"), 500)

	if IsProduction && JWTSecret == "" {
		log.Fatal("JWT_SECRET_KEY must be set in production")
	}

	log.Printf("[config] AppEnv=%s IsStaging=%v IsProduction=%v", AppEnv, IsStaging, IsProduction)
	log.Printf("[config] GeminiKeyPresent=%v PerplexityKeyPresent=%v BedrockModel=%s",
		GeminiAPIKey != "", PerplexityAPIKey != "", BedrockModelID)
	log.Printf("[config] RedisAddrPresent=%v", RedisAddr != "")
	log.Printf("[config] RateLimit window=%ds capacity=%d userConc=%d dupWindow=%ds cacheTTL=%ds cacheMax=%d",
		RateLimitWindowSeconds, RateLimitCapacity, UserConcurrencyLimit, DuplicateWindowSeconds, ChatCacheTTLSeconds, ChatCacheMaxItems)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
