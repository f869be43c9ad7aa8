package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/config"
	"github.com/loom-ai/loom/pkg/httpext"
	"github.com/loom-ai/loom/pkg/ratelimit"
)

// RateLimit applies a per-IP sliding window to an endpoint group.
func RateLimit(limitKey string) func(http.Handler) http.Handler {
	cfg := config.GetRateLimitConfig(limitKey)
	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			// Use X-Forwarded-For if behind proxy, otherwise remote address
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.RemoteAddr
			}

			if !limiter.Allow(ip) {
				log.Warn().Str("ip", ip).Str("limit", limitKey).Msg("Rate limit exceeded")
				httpext.JsonError(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
