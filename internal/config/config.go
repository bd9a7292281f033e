// Package config loads the process configuration from environment variables
// (optionally seeded from a local .env file), applying documented defaults
// rather than letting zero-values drift silently into the rest of the system.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config is the fully-resolved process configuration.
type Config struct {
	ListenAddr string // PORT, rendered as ":<port>"
	LogLevel   string

	HTTPClient HTTPClientConfig
	Proxy      ProxyConfig
	Cache      CacheConfig
	APIKeys    APIKeysConfig
	Admin      AdminConfig
}

// HTTPClientConfig controls the outbound upstream client.
type HTTPClientConfig struct {
	BaseURL    *url.URL // HTTP_CLIENT_BASE_URL, origin-only
	ServerKey  string   // HTTP_CLIENT_API_KEY, injected when the client omits one
	TimeoutMs  int      // HTTP_CLIENT_TIMEOUT
	Retries    int      // HTTP_CLIENT_RETRIES, 0-5, GET only
}

// ProxyConfig controls request-plane behavior ahead of the upstream call.
type ProxyConfig struct {
	BodyLimitBytes      int           // PROXY_BODY_LIMIT
	AdmissionCapacity   int           // PROXY_ADMISSION_CAPACITY, 0 disables admission control
	AdmissionWaitMs     int           // PROXY_ADMISSION_WAIT_MS
}

// CacheConfig controls cache-aside + SWR behavior.
type CacheConfig struct {
	RedisURL              string   // CACHE_REDIS_URL
	TTLDefaultSeconds      int      // CACHE_TTL_DEFAULT
	StaleTTLSeconds        int      // CACHE_STALE_TTL
	IgnoreUpstreamControl  bool     // CACHE_IGNORE_UPSTREAM_CONTROL
	BypassPathPrefixes     []string // CACHE_BYPASS_PATHS
	Debug                  bool     // CACHE_DEBUG
}

// APIKeysConfig controls the key registry namespace and rate-limit defaults.
type APIKeysConfig struct {
	RedisPrefix             string // API_KEYS_REDIS_PREFIX
	RateLimitWindowSeconds  int    // API_KEYS_RATE_LIMIT_WINDOW_SECONDS
	RateLimitMaxRequests    int    // API_KEYS_RATE_LIMIT_MAX_REQUESTS
}

// AdminConfig controls the internal admin surface.
type AdminConfig struct {
	Token                  string // ADMIN_API_TOKEN
	RateLimitWindowSeconds int    // ADMIN_RATE_LIMIT_WINDOW_SECONDS
	RateLimitMaxRequests   int    // ADMIN_RATE_LIMIT_MAX_REQUESTS
}

const (
	defaultPort                      = "8080"
	defaultLogLevel                  = "info"
	defaultHTTPTimeoutMs             = 5000
	defaultHTTPRetries               = 1
	defaultProxyBodyLimitBytes       = 1048576
	defaultProxyAdmissionCapacity    = 256
	defaultProxyAdmissionWaitMs      = 2000
	defaultCacheTTLSeconds           = 60
	defaultCacheStaleTTLSeconds      = 30
	defaultAPIKeysRedisPrefix        = "apikeys"
	defaultRateLimitWindowSeconds    = 60
	defaultRateLimitMaxRequests      = 120
	defaultAdminRateLimitMaxRequests = 30
)

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	port := getEnv("PORT", defaultPort)
	listenAddr := port
	if !strings.HasPrefix(listenAddr, ":") {
		listenAddr = ":" + listenAddr
	}

	baseURLRaw := strings.TrimSpace(os.Getenv("HTTP_CLIENT_BASE_URL"))
	if baseURLRaw == "" {
		return nil, errors.New("HTTP_CLIENT_BASE_URL must be defined (e.g., https://api.example.com)")
	}
	baseURL, err := url.Parse(baseURLRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_CLIENT_BASE_URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, errors.New("HTTP_CLIENT_BASE_URL must include scheme and host (e.g., https://api.example.com)")
	}
	if p := strings.Trim(baseURL.Path, "/"); p != "" {
		return nil, fmt.Errorf("HTTP_CLIENT_BASE_URL must be origin-only, got path %q", baseURL.Path)
	}

	timeoutMs := getEnvInt("HTTP_CLIENT_TIMEOUT", defaultHTTPTimeoutMs)
	if timeoutMs < 100 {
		timeoutMs = 100
	}
	retries := getEnvInt("HTTP_CLIENT_RETRIES", defaultHTTPRetries)
	if retries < 0 {
		retries = 0
	}
	if retries > 5 {
		retries = 5
	}

	bodyLimit := getEnvInt("PROXY_BODY_LIMIT", defaultProxyBodyLimitBytes)
	if bodyLimit < 1024 {
		bodyLimit = 1024
	}
	admissionCapacity := getEnvInt("PROXY_ADMISSION_CAPACITY", defaultProxyAdmissionCapacity)
	if admissionCapacity < 0 {
		admissionCapacity = 0
	}
	admissionWaitMs := getEnvInt("PROXY_ADMISSION_WAIT_MS", defaultProxyAdmissionWaitMs)
	if admissionWaitMs < 0 {
		admissionWaitMs = 0
	}

	ttlDefault := getEnvInt("CACHE_TTL_DEFAULT", defaultCacheTTLSeconds)
	staleTTL := getEnvInt("CACHE_STALE_TTL", defaultCacheStaleTTLSeconds)

	bypassRaw := getEnv("CACHE_BYPASS_PATHS", "")
	var bypassPrefixes []string
	if bypassRaw != "" {
		for _, p := range strings.Split(bypassRaw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				bypassPrefixes = append(bypassPrefixes, p)
			}
		}
	}

	rlWindow := getEnvInt("API_KEYS_RATE_LIMIT_WINDOW_SECONDS", defaultRateLimitWindowSeconds)
	if rlWindow <= 0 {
		rlWindow = defaultRateLimitWindowSeconds
	}
	rlMax := getEnvInt("API_KEYS_RATE_LIMIT_MAX_REQUESTS", defaultRateLimitMaxRequests)
	if rlMax <= 0 {
		rlMax = defaultRateLimitMaxRequests
	}
	adminWindow := getEnvInt("ADMIN_RATE_LIMIT_WINDOW_SECONDS", rlWindow)
	if adminWindow <= 0 {
		adminWindow = rlWindow
	}

	return &Config{
		ListenAddr: listenAddr,
		LogLevel:   getEnv("LOG_LEVEL", defaultLogLevel),
		HTTPClient: HTTPClientConfig{
			BaseURL:   baseURL,
			ServerKey: os.Getenv("HTTP_CLIENT_API_KEY"),
			TimeoutMs: timeoutMs,
			Retries:   retries,
		},
		Proxy: ProxyConfig{
			BodyLimitBytes:    bodyLimit,
			AdmissionCapacity: admissionCapacity,
			AdmissionWaitMs:   admissionWaitMs,
		},
		Cache: CacheConfig{
			RedisURL:             getEnv("CACHE_REDIS_URL", "redis://127.0.0.1:6379/0"),
			TTLDefaultSeconds:    ttlDefault,
			StaleTTLSeconds:      staleTTL,
			IgnoreUpstreamControl: getEnvBool("CACHE_IGNORE_UPSTREAM_CONTROL", false),
			BypassPathPrefixes:   bypassPrefixes,
			Debug:                getEnvBool("CACHE_DEBUG", false),
		},
		APIKeys: APIKeysConfig{
			RedisPrefix:            getEnv("API_KEYS_REDIS_PREFIX", defaultAPIKeysRedisPrefix),
			RateLimitWindowSeconds: rlWindow,
			RateLimitMaxRequests:   rlMax,
		},
		Admin: AdminConfig{
			Token:                  os.Getenv("ADMIN_API_TOKEN"),
			RateLimitWindowSeconds: adminWindow,
			RateLimitMaxRequests:   getEnvInt("ADMIN_RATE_LIMIT_MAX_REQUESTS", defaultAdminRateLimitMaxRequests),
		},
	}, nil
}

// Retrieves an environment variable or returns the default value.
func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Retrieves a boolean environment variable or returns the default value.
func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// Retrieves an integer environment variable or returns the default value.
func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}
