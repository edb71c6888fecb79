// Package config loads process-wide configuration from environment variables,
// following the same load-and-validate-once pattern as the rest of the stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration. Immutable after Load() returns.
type Config struct {
	Port        int
	Environment string

	DatabaseURL      string
	DatabaseMaxConns int
	Neo4jURI         string
	Neo4jUser        string
	Neo4jPassword    string
	RedisAddr        string
	RedisPassword    string

	GatewayBaseURL string

	FastModel      string
	AccurateModel  string
	EmbeddingModel string

	FastTimeout      time.Duration
	AccurateTimeout  time.Duration
	EmbeddingTimeout time.Duration

	FastConcurrency      int64
	AccurateConcurrency  int64
	EmbeddingConcurrency int64
	DefaultConcurrency   int64

	CacheTTL         time.Duration
	TopK             int
	DistanceThreshold float64
	MinResults       int
	RelatedActsDepth int
	ContextBudgetTokens int

	InternalAuthSecret string
	JWTSecret          string
	RateLimitPerMinute int

	FrontendURL string
}

// Load reads configuration from environment variables. DATABASE_URL is
// always required; outside the development environment INTERNAL_AUTH_SECRET
// and JWT_SECRET are required too. Everything else has a sensible default.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),

		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),
		Neo4jURI:         envStr("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        envStr("NEO4J_USER", "neo4j"),
		Neo4jPassword:    envStr("NEO4J_PASSWORD", ""),
		RedisAddr:        envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    envStr("REDIS_PASSWORD", ""),

		GatewayBaseURL: envStr("LLM_GATEWAY_BASE_URL", "http://localhost:11434"),

		FastModel:      envStr("FAST_MODEL", "llama3.2"),
		AccurateModel:  envStr("ACCURATE_MODEL", "llama3.1:70b"),
		EmbeddingModel: envStr("EMBEDDING_MODEL", "nomic-embed-text"),

		FastTimeout:      envSeconds("FAST_TIMEOUT_SEC", 15),
		AccurateTimeout:  envSeconds("ACCURATE_TIMEOUT_SEC", 240),
		EmbeddingTimeout: envSeconds("EMBEDDING_TIMEOUT_SEC", 30),

		FastConcurrency:      int64(envInt("FAST_CONCURRENCY", 4)),
		AccurateConcurrency:  int64(envInt("ACCURATE_CONCURRENCY", 1)),
		EmbeddingConcurrency: int64(envInt("EMBEDDING_CONCURRENCY", 4)),
		DefaultConcurrency:   int64(envInt("DEFAULT_CONCURRENCY", 3)),

		CacheTTL:            envSeconds("CACHE_TTL_SEC", 300),
		TopK:                envInt("TOP_K", 10),
		DistanceThreshold:   envFloat("DISTANCE_THRESHOLD", 0.5),
		MinResults:          envInt("MIN_RESULTS", 3),
		RelatedActsDepth:    envInt("RELATED_ACTS_DEPTH", 2),
		ContextBudgetTokens: envInt("CONTEXT_BUDGET_TOKENS", 4000),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),
		JWTSecret:          envStr("JWT_SECRET", ""),
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 30),

		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),
	}

	if cfg.Environment != "development" {
		if cfg.InternalAuthSecret == "" {
			return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
		}
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("config.Load: JWT_SECRET is required in %s environment", cfg.Environment)
		}
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(key, fallbackSeconds)) * time.Second
}
