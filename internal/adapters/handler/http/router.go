package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vncsmyrnk/devicesession/internal/adapters/metrics"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

const (
	BucketLogin   = "login"
	BucketRefresh = "refresh"
)

// RouterConfig carries what the router needs besides the handlers.
type RouterConfig struct {
	RateLimit      config.RateLimitConfig
	MetricsPath    string
	RequestTimeout time.Duration
	Limiter        ports.RateLimiter
	Issuer         ports.AccessTokenIssuer
	Metrics        *metrics.Metrics
	Logger         *logging.Logger
}

func NewHandler(cfg RouterConfig, authHandler *AuthHandler, userHandler *UserHandler) http.Handler {
	r := chi.NewRouter()

	if cfg.RateLimit.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(cfg.Logger))
	r.Use(loggingMiddleware(cfg.Logger))
	r.Use(cfg.Metrics.HTTPMiddleware)
	r.Use(bodySizeLimitMiddleware)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimitMiddleware(cfg.Limiter, BucketLogin, cfg.RateLimit.Login, cfg.Metrics, cfg.Logger)).
			Post("/login", authHandler.Login)

		r.With(rateLimitMiddleware(cfg.Limiter, BucketRefresh, cfg.RateLimit.Refresh, cfg.Metrics, cfg.Logger)).
			Post("/refresh", authHandler.Refresh)

		r.With(rateLimitMiddleware(cfg.Limiter, BucketRefresh, cfg.RateLimit.Refresh, cfg.Metrics, cfg.Logger)).
			Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireAccessToken(cfg.Issuer))
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Get("/me", userHandler.GetMe)
			r.Get("/devices", userHandler.ListDevices)
		})
	})

	return r
}
