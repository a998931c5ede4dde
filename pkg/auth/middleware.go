// Package auth guards the HTTP surface with API keys and a per-client
// token-bucket rate limit.
package auth

import (
	"net"
	"net/http"
	"strings"

	"notifeed/pkg/logger"
)

// SecConfig holds the key sets and rate limit settings for the HTTP
// surface. Device keys may call the feed and ingestion endpoints; admin
// keys additionally reach the admin endpoints.
type SecConfig struct {
	DeviceKeys map[string]struct{}
	AdminKeys  map[string]struct{}
	RPS        float64
	Burst      int
}

// openPaths bypass auth entirely (probes and metrics scrapes).
var openPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// Middleware wraps next with API key and rate limit checks. When no
// device keys are configured the surface is open (local development).
func Middleware(cfg SecConfig, next http.Handler) http.Handler {
	lp := &limiterPool{cfg: cfg}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, open := openPaths[r.URL.Path]; open {
			next.ServeHTTP(w, r)
			return
		}

		if !lp.Allow(clientKey(r)) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
			return
		}

		key := apiKey(r)
		if strings.HasPrefix(r.URL.Path, "/v1/admin/") {
			if _, ok := cfg.AdminKeys[key]; !ok {
				logger.Warn("admin_auth_rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if len(cfg.DeviceKeys) > 0 {
			_, dev := cfg.DeviceKeys[key]
			_, adm := cfg.AdminKeys[key]
			if !dev && !adm {
				logger.Warn("auth_rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func apiKey(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	return ""
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
