package config_test

import (
	"os"
	"testing"

	"apikeyproxy/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "HTTP_CLIENT_BASE_URL", "HTTP_CLIENT_TIMEOUT", "HTTP_CLIENT_RETRIES",
		"PROXY_BODY_LIMIT", "CACHE_TTL_DEFAULT", "CACHE_STALE_TTL", "CACHE_BYPASS_PATHS",
		"API_KEYS_RATE_LIMIT_WINDOW_SECONDS", "API_KEYS_RATE_LIMIT_MAX_REQUESTS", "ADMIN_API_TOKEN",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_RequiresBaseURL(t *testing.T) {
	clearEnv(t)
	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error when HTTP_CLIENT_BASE_URL is unset")
	}
}

func TestLoad_RejectsBaseURLWithPath(t *testing.T) {
	clearEnv(t)
	os.Setenv("HTTP_CLIENT_BASE_URL", "https://api.example.com/v1")
	defer os.Unsetenv("HTTP_CLIENT_BASE_URL")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for non-origin base url")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("HTTP_CLIENT_BASE_URL", "https://api.example.com")
	defer os.Unsetenv("HTTP_CLIENT_BASE_URL")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default :8080, got %s", cfg.ListenAddr)
	}
	if cfg.Cache.TTLDefaultSeconds != 60 {
		t.Fatalf("expected default ttl 60, got %d", cfg.Cache.TTLDefaultSeconds)
	}
	if cfg.APIKeys.RateLimitMaxRequests != 120 {
		t.Fatalf("expected default rate limit 120, got %d", cfg.APIKeys.RateLimitMaxRequests)
	}
}

func TestLoad_ParsesBypassPaths(t *testing.T) {
	clearEnv(t)
	os.Setenv("HTTP_CLIENT_BASE_URL", "https://api.example.com")
	os.Setenv("CACHE_BYPASS_PATHS", "/private, /admin")
	defer os.Unsetenv("HTTP_CLIENT_BASE_URL")
	defer os.Unsetenv("CACHE_BYPASS_PATHS")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Cache.BypassPathPrefixes) != 2 || cfg.Cache.BypassPathPrefixes[0] != "/private" {
		t.Fatalf("unexpected bypass prefixes: %v", cfg.Cache.BypassPathPrefixes)
	}
}
