package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vncsmyrnk/devicesession/internal/adapters/metrics"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyClaims    contextKey = "claims"

	// UserIDKey holds the authenticated uuid.UUID.
	UserIDKey contextKey = "user_id"
)

const (
	maxRequestBodySize = 1 << 20
	requestIDBytes     = 8
)

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func claimsFrom(ctx context.Context) (*domain.AccessClaims, bool) {
	claims, ok := ctx.Value(ctxKeyClaims).(*domain.AccessClaims)
	return claims, ok
}

// requestIDMiddleware reuses a client supplied X-Request-ID or makes one up.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestIDFrom(r.Context()),
			)
		})
	}
}

func recoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered in HTTP handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", requestIDFrom(r.Context()),
					)
					writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// requireAccessToken verifies the bearer token against the presenting
// device and stores the claims and user id in the request context.
func requireAccessToken(issuer ports.AccessTokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}

			claims, err := issuer.Verify(token, strings.TrimSpace(r.Header.Get(HeaderDeviceID)))
			if err != nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware gates one endpoint bucket per client IP. It runs before
// any body parsing so a rejected request causes no writes.
func rateLimitMiddleware(
	limiter ports.RateLimiter,
	bucket string,
	rule config.RateLimitRule,
	m *metrics.Metrics,
	logger *logging.Logger,
) func(http.Handler) http.Handler {
	throttle := &rate.Sometimes{First: 1, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			decision, err := limiter.Allow(r.Context(), bucket+":"+ip, rule.Limit, rule.Window())
			if err != nil {
				respondError(w, r, logger, err)
				return
			}

			setRateLimitHeaders(w, decision)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.RecordRateLimited(bucket)
			throttle.Do(func() {
				logger.Info("rate limit exceeded",
					"bucket", bucket,
					"ip", ip,
					"reset_at", decision.ResetAt,
					"request_id", requestIDFrom(r.Context()),
				)
			})

			retryAfter := int(math.Ceil(time.Until(decision.ResetAt).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
				Error:     "too many requests",
				Code:      CodeRateLimited,
				Remaining: decision.Remaining,
				ResetAt:   decision.ResetAt.UTC(),
			})
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d domain.RateLimitDecision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func generateRequestID() string {
	b := make([]byte, requestIDBytes)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
