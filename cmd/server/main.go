package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apikeyproxy/internal/admin"
	"apikeyproxy/internal/audit"
	"apikeyproxy/internal/cachestore"
	"apikeyproxy/internal/config"
	"apikeyproxy/internal/keyregistry"
	"apikeyproxy/internal/proxy"
	"apikeyproxy/internal/ratelimiter"
	"apikeyproxy/internal/statestore"
	"apikeyproxy/internal/upstream"
)

func main() {
	// Load environment variables from the .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file (%v), using system environment variables", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	store, err := statestore.NewRedisStore(cfg.Cache.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	if store.Fallback() {
		log.Printf("Warning: state store unreachable at startup, running in degraded fallback mode")
	}

	auditLog := audit.New(os.Stdout)

	keys := keyregistry.New(store, cfg.APIKeys.RedisPrefix)
	limiter := ratelimiter.New(store, cfg.APIKeys.RedisPrefix)
	cache := cachestore.New(store, time.Duration(cfg.HTTPClient.TimeoutMs)*time.Millisecond)
	client := upstream.New(cfg.HTTPClient)
	admission := proxy.NewAdmission(cfg.Proxy.AdmissionCapacity, time.Duration(cfg.Proxy.AdmissionWaitMs)*time.Millisecond)
	pipeline := proxy.New(*cfg, keys, limiter, cache, client, admission, auditLog)

	invalidator := admin.NewInvalidator(store, cache)
	adminSurface := admin.NewSurface(keys, invalidator, limiter, auditLog, cfg.Admin.Token, cfg.Admin.RateLimitWindowSeconds, cfg.Admin.RateLimitMaxRequests)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", pipeline)
	adminSurface.Routes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/health/cache", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("degraded"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Printf("Listening on %s, proxying to %s, cache ttl=%ds stale=%ds, admission capacity=%d",
		cfg.ListenAddr, cfg.HTTPClient.BaseURL.String(), cfg.Cache.TTLDefaultSeconds, cfg.Cache.StaleTTLSeconds, cfg.Proxy.AdmissionCapacity)

	if err := http.ListenAndServe(cfg.ListenAddr, withServerHeaders(mux)); err != nil {
		log.Fatal(err)
	}
}

// withServerHeaders adds identifying response headers ahead of every route.
func withServerHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "apikeyproxy/0.1")
		next.ServeHTTP(w, r)
	})
}
