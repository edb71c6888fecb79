package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "PORT", "ENVIRONMENT", "DATABASE_MAX_CONNS",
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "REDIS_ADDR", "REDIS_PASSWORD",
		"LLM_GATEWAY_BASE_URL", "FAST_MODEL", "ACCURATE_MODEL", "EMBEDDING_MODEL",
		"FAST_TIMEOUT_SEC", "ACCURATE_TIMEOUT_SEC", "EMBEDDING_TIMEOUT_SEC",
		"FAST_CONCURRENCY", "ACCURATE_CONCURRENCY", "EMBEDDING_CONCURRENCY", "DEFAULT_CONCURRENCY",
		"CACHE_TTL_SEC", "TOP_K", "DISTANCE_THRESHOLD", "MIN_RESULTS",
		"RELATED_ACTS_DEPTH", "CONTEXT_BUDGET_TOKENS", "INTERNAL_AUTH_SECRET",
		"RATE_LIMIT_PER_MINUTE", "FRONTEND_URL", "JWT_SECRET",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when DATABASE_URL is unset")
	}
}

func TestLoad_DefaultsInDevelopment(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "development")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.FastTimeout != 15*time.Second {
		t.Errorf("FastTimeout = %v, want 15s", cfg.FastTimeout)
	}
	if cfg.AccurateTimeout != 240*time.Second {
		t.Errorf("AccurateTimeout = %v, want 240s", cfg.AccurateTimeout)
	}
	if cfg.DistanceThreshold != 0.5 {
		t.Errorf("DistanceThreshold = %v, want 0.5", cfg.DistanceThreshold)
	}
}

func TestLoad_RequiresInternalAuthSecretOutsideDevelopment(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("ENVIRONMENT", "production")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when INTERNAL_AUTH_SECRET is unset in production")
	}

	os.Setenv("INTERNAL_AUTH_SECRET", "s3cr3t")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when JWT_SECRET is unset in production")
	}

	os.Setenv("JWT_SECRET", "jwt-s3cr3t")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InternalAuthSecret != "s3cr3t" {
		t.Errorf("InternalAuthSecret = %q, want %q", cfg.InternalAuthSecret, "s3cr3t")
	}
	if cfg.JWTSecret != "jwt-s3cr3t" {
		t.Errorf("JWTSecret = %q, want %q", cfg.JWTSecret, "jwt-s3cr3t")
	}
}

func TestLoad_OverridesFromEnvironment(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("TOP_K", "20")
	os.Setenv("FAST_CONCURRENCY", "8")
	os.Setenv("FRONTEND_URL", "https://example.com")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TopK != 20 {
		t.Errorf("TopK = %d, want 20", cfg.TopK)
	}
	if cfg.FastConcurrency != 8 {
		t.Errorf("FastConcurrency = %d, want 8", cfg.FastConcurrency)
	}
	if cfg.FrontendURL != "https://example.com" {
		t.Errorf("FrontendURL = %q, want %q", cfg.FrontendURL, "https://example.com")
	}
}
