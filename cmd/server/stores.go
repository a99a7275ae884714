package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/adapters/ratelimit"
	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/core/services"
	"github.com/vncsmyrnk/devicesession/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

const limiterSweepInterval = time.Minute

type stores struct {
	users   ports.UserRepository
	devices ports.DeviceRepository
	tokens  ports.AuthRepository
	audit   ports.AuditSink
	limiter ports.RateLimiter
	buckets ports.StalePurger
	db      *sql.DB
}

func (s *stores) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openStores picks the persistence and rate-limit backends. The in-memory
// limiter sweeps its own expired windows until ctx is done.
func openStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		st.db = db

		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", "migrations", applied)
		}

		st.users = postgres.NewUserRepository(db)
		st.devices = postgres.NewDeviceRepository(db)
		st.tokens = postgres.NewAuthRepository(db)
		st.audit = postgres.NewAuditRepository(db)
	case config.DriverMemory:
		users := memory.NewUserRepository()
		if err := bootstrapAdmin(users, cfg.Bootstrap, logger); err != nil {
			return nil, err
		}
		st.users = users
		st.devices = memory.NewDeviceRepository()
		st.tokens = memory.NewAuthRepository()
		st.audit = memory.NewAuditRepository()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	switch cfg.RateLimit.Backend {
	case config.DriverPostgres:
		limiter := postgres.NewRateLimitRepository(st.db)
		st.limiter, st.buckets = limiter, limiter
	default:
		limiter := ratelimit.NewMemoryLimiter()
		go limiter.Run(ctx, limiterSweepInterval)
		st.limiter, st.buckets = limiter, limiter
	}

	return st, nil
}

func bootstrapAdmin(users *memory.UserRepository, cfg config.BootstrapConfig, logger *logging.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Warn("memory driver started without a bootstrap admin; no user can log in")
		return nil
	}

	hash, err := services.HashPassword(cfg.AdminPassword, bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := users.AddUser(domain.User{
		Email:        services.NormalizeEmail(cfg.AdminEmail),
		Name:         "Administrator",
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		Role:         domain.RolePlatformAdmin,
	})
	logger.Info("bootstrapped platform admin", "user_id", admin.ID)
	return nil
}
