package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// OriginMatcher reports whether an Origin header names one of allowedOrigins,
// compared case-insensitively.
func OriginMatcher(allowedOrigins []string) func(origin string) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(origin string) bool {
		_, ok := allowed[strings.ToLower(strings.TrimSpace(origin))]
		return ok
	}
}

// CORS allows the configured frontend origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	match := OriginMatcher(allowedOrigins)

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return match(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
