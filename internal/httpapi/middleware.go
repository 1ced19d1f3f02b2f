package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"reconctl/internal/httpx"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDMiddleware assigns every inbound request a uuid, following the
// teacher's requestIDMiddleware. The id is also set on the request header,
// where httpx.Write reads it for the requestId of error responses.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		r.Header.Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders sets a conservative baseline CSP, matching the
// teacher's handler of the same name.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'none'")
		next.ServeHTTP(w, r)
	})
}

// writeLimiter throttles job-creation traffic, the one route expensive
// enough to need it (spec.md §2's admission path guards against an
// unbounded burst of POST /api/jobs). Each handler wrapped by rateLimited
// gets its own limiter.
func rateLimited(next http.HandlerFunc) http.HandlerFunc {
	writeLimiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 10)
	return func(w http.ResponseWriter, r *http.Request) {
		if !writeLimiter.Allow() {
			httpx.Write(w, r, httpx.TooManyRequests("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	}
}

func recoverMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
					httpx.Write(w, r, httpx.Internal(nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
