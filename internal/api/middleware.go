// internal/api/middleware.go
package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/apiutil"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/authz"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/ratelimit"
)

type Middleware func(http.Handler) http.Handler

func ChainMiddleware(h http.Handler, middleware ...Middleware) http.Handler {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create response wrapper to capture status code
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Str("request_id", r.Context().Value(requestIDKey{}).(string)).
			Msg("Request completed")
	})
}

func WithRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger := log.Ctx(r.Context())
				stack := debug.Stack()
				logger.Error().
					Interface("error", err).
					Str("stack", string(stack)).
					Msg("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		// Create a logger with the request ID
		logger := log.With().Str("request_id", requestID).Logger()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = logger.WithContext(ctx)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithActor resolves the identity proxy headers into a context actor.
// Anonymous requests pass through; individual handlers decide whether an
// actor is required.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := authz.ActorFromHeaders(r); ok {
			r = r.WithContext(authz.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// WithRateLimit throttles requests per actor and per client address.
// trustProxy controls whether forwarded-for headers are honored.
func WithRateLimit(limiter *ratelimit.Limiter, trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.GetClientIP(r, trustProxy)
			userKey := ip
			if actor, ok := authz.ActorFromContext(r.Context()); ok {
				userKey = strconv.FormatInt(actor.UserID, 10)
			}

			result := limiter.CheckAttempt(userKey, ip)
			if !result.Allowed {
				log.Ctx(r.Context()).Warn().
					Str("reason", result.Reason).
					Dur("retry_after", result.RetryAfter).
					Msg("Request rate limited")
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
				apiutil.WriteError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			limiter.RecordAttempt(userKey, ip)
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wrapper to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
