package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/adapters/handler/http"
	"github.com/vncsmyrnk/devicesession/internal/adapters/metrics"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/core/services"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

var version = "dev"

const (
	purgeInterval  = time.Hour
	purgeRetention = 7 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", os.Getenv("DEVSESSION_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, version)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	verifier := services.NewCredentialService(st.users, domain.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.LockoutDuration(),
	})
	devices := services.NewDeviceService(st.devices)
	refresh := services.NewRefreshTokenService(st.tokens, services.RefreshTokenConfig{
		Secret:             []byte(cfg.Tokens.RefreshSecret),
		TTL:                cfg.RefreshTTL(),
		ReuseRevokesDevice: cfg.Tokens.ReuseRevokesDevice,
	}, logger)
	issuer := services.NewAccessTokenIssuer(cfg.Tokens.AccessSecret, cfg.AccessTTL(), cfg.Tokens.Issuer)
	sessions := services.NewSessionService(verifier, st.users, devices, refresh, issuer, st.audit, logger)
	maintenance := services.NewMaintenanceService(st.tokens, st.buckets)

	go purgeLoop(ctx, maintenance, logger)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handler := http.NewHandler(http.RouterConfig{
		RateLimit:      cfg.RateLimit,
		MetricsPath:    metricsPath,
		RequestTimeout: cfg.GetRequestTimeout(),
		Limiter:        st.limiter,
		Issuer:         issuer,
		Metrics:        m,
		Logger:         logger,
	},
		http.NewAuthHandler(sessions, cfg.Cookie, m, logger),
		http.NewUserHandler(services.NewUserService(st.users), devices, logger),
	)

	server := &stdhttp.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", server.Addr,
			"database", cfg.Database.Driver,
			"ratelimit", cfg.RateLimit.Backend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func purgeLoop(ctx context.Context, maintenance ports.MaintenanceService, logger *logging.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := maintenance.Purge(ctx, purgeRetention)
			if err != nil {
				logger.Error("purge failed", "error", err)
				continue
			}
			logger.Info("purged stale auth state",
				"refresh_tokens", result.RefreshTokens,
				"rate_limit_buckets", result.RateLimitBuckets,
			)
		case <-ctx.Done():
			return
		}
	}
}
