// Command fixtureupstream is a minimal, YAML-configured HTTP origin used in
// local development and integration tests against the proxy: it serves a
// fixed set of canned responses instead of a real backend.
package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"
)

// route is one canned response, matched on exact method + path.
type route struct {
	Path         string `yaml:"path"`
	Method       string `yaml:"method"`
	Status       int    `yaml:"status"`
	ContentType  string `yaml:"contentType"`
	CacheControl string `yaml:"cacheControl"`
	Body         string `yaml:"body"`
	DelayMs      int    `yaml:"delayMs"`
}

type fixtureFile struct {
	Routes []route `yaml:"routes"`
}

func defaultFixtures() fixtureFile {
	return fixtureFile{Routes: []route{
		{Path: "/widgets", Method: "GET", Status: 200, ContentType: "application/json", CacheControl: "max-age=60", Body: `{"widgets":[{"id":1,"name":"sprocket"}]}`},
		{Path: "/widgets", Method: "POST", Status: 201, ContentType: "application/json", Body: `{"created":true}`},
		{Path: "/volatile", Method: "GET", Status: 200, ContentType: "application/json", CacheControl: "no-store", Body: `{"time":"varies"}`},
	}}
}

func loadFixtures(path string) fixtureFile {
	if path == "" {
		return defaultFixtures()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		log.Printf("fixtureupstream: could not read %s (%v), using built-in defaults", path, err)
		return defaultFixtures()
	}
	var f fixtureFile
	if err := yaml.Unmarshal(blob, &f); err != nil {
		log.Printf("fixtureupstream: could not parse %s (%v), using built-in defaults", path, err)
		return defaultFixtures()
	}
	return f
}

func main() {
	addr := getEnv("FIXTURE_ADDR", ":9090")
	fixtures := loadFixtures(os.Getenv("FIXTURE_CONFIG"))

	mux := http.NewServeMux()
	for _, rt := range fixtures.Routes {
		mux.HandleFunc(rt.Method+" "+rt.Path, routeHandler(rt))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Printf("fixtureupstream listening on %s with %d routes", addr, len(fixtures.Routes))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func routeHandler(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.DelayMs > 0 {
			time.Sleep(time.Duration(rt.DelayMs) * time.Millisecond)
		}
		if rt.ContentType != "" {
			w.Header().Set("Content-Type", rt.ContentType)
		}
		if rt.CacheControl != "" {
			w.Header().Set("Cache-Control", rt.CacheControl)
		}
		status := rt.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		w.Write([]byte(rt.Body))
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
