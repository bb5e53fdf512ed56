package handler

import (
	"log"
	"net/http"
	"time"
)

// LoggingMiddleware logs every request with its duration. It wraps the whole
// handler chain, so unmatched paths get logged too — mux only runs Use()
// middleware on matched routes, which would leave 404s invisible.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("→ %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		log.Printf("← %s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

// AuthMiddleware enforces a static bearer token on every endpoint except the
// root info page and the aggregate health check. An empty expected token
// disables auth (development mode). Like LoggingMiddleware it wraps the whole
// chain so unknown paths are rejected before they reach the router.
func AuthMiddleware(expectedToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/api/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		if expectedToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+expectedToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
