package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// フォローグラフのバックエンド種別
const (
	FollowGraphPostgres = "postgres"
	FollowGraphNeo4j    = "neo4j"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// Feed
	FeedFollowingRate        float64
	FeedRecommendRate        float64
	FeedRecommendSearchRange time.Duration
	FeedMaxPageSize          int

	// Count cache
	RedisURL      string
	CountCacheTTL time.Duration

	// Events
	NatsURL string

	// Follow graph
	FollowGraphBackend string
	Neo4jURI           string
	Neo4jUser          string
	Neo4jPassword      string

	// Rate Limit
	RateLimitGeneral int
	RateLimitFeed    int

	// Cleanup
	LikeRetentionDays int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が範囲外の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FeedFollowingRate = getEnvFloat("FEED_FOLLOWING_RATE", 0.7)
	cfg.FeedRecommendRate = getEnvFloat("FEED_RECOMMEND_RATE", 0.3)
	cfg.FeedRecommendSearchRange = getEnvDuration("FEED_RECOMMEND_SEARCH_RANGE", 7*24*time.Hour)
	cfg.FeedMaxPageSize = getEnvInt("FEED_MAX_PAGE_SIZE", 100)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.CountCacheTTL = getEnvDuration("COUNT_CACHE_TTL", 30*time.Second)
	cfg.NatsURL = getEnvString("NATS_URL", "")
	cfg.FollowGraphBackend = getEnvString("FOLLOW_GRAPH_BACKEND", FollowGraphPostgres)
	cfg.Neo4jURI = getEnvString("NEO4J_URI", "")
	cfg.Neo4jUser = getEnvString("NEO4J_USER", "")
	cfg.Neo4jPassword = getEnvString("NEO4J_PASSWORD", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitFeed = getEnvInt("RATE_LIMIT_FEED", 60)
	cfg.LikeRetentionDays = getEnvInt("LIKE_RETENTION_DAYS", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は読み込んだ値の範囲を検証する。
// フォロー率と推薦率の合計は制約しない。
func (c *Config) validate() error {
	if c.FeedFollowingRate < 0 || c.FeedFollowingRate > 1 {
		return fmt.Errorf("FEED_FOLLOWING_RATE must be within [0, 1]: %v", c.FeedFollowingRate)
	}
	if c.FeedRecommendRate < 0 || c.FeedRecommendRate > 1 {
		return fmt.Errorf("FEED_RECOMMEND_RATE must be within [0, 1]: %v", c.FeedRecommendRate)
	}
	if c.FeedRecommendSearchRange <= 0 {
		return fmt.Errorf("FEED_RECOMMEND_SEARCH_RANGE must be positive: %v", c.FeedRecommendSearchRange)
	}
	if c.FeedMaxPageSize <= 0 {
		return fmt.Errorf("FEED_MAX_PAGE_SIZE must be positive: %d", c.FeedMaxPageSize)
	}

	switch c.FollowGraphBackend {
	case FollowGraphPostgres:
	case FollowGraphNeo4j:
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required when FOLLOW_GRAPH_BACKEND=%s", FollowGraphNeo4j)
		}
	default:
		return fmt.Errorf("unsupported FOLLOW_GRAPH_BACKEND: %q", c.FollowGraphBackend)
	}

	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
