package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	handler "github.com/vncsmyrnk/devicesession/internal/adapters/handler/http"
	"github.com/vncsmyrnk/devicesession/internal/adapters/metrics"
	repo "github.com/vncsmyrnk/devicesession/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/services"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

const testPassword = "correct horse battery staple"

type TestApp struct {
	DB          *sql.DB
	Server      *httptest.Server
	Client      *http.Client
	DBContainer testcontainers.Container
}

func (a *TestApp) Teardown(t *testing.T) {
	t.Helper()
	a.Server.Close()
	_ = a.DB.Close()
	require.NoError(t, testcontainers.TerminateContainer(a.DBContainer))
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	dbName := "testdb"
	user := "user"
	password := "password"

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

// setupTestApp wires the production stack against a throwaway database:
// Postgres repositories, the Postgres rate limiter and the real router.
func setupTestApp(t *testing.T, configure func(*config.Config)) *TestApp {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	dbContainer, dbURL, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = repo.Migrate(ctx, db)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Cookie.Secure = false
	cfg.RateLimit.Backend = config.DriverPostgres
	if configure != nil {
		configure(cfg)
	}

	logger := logging.Nop()
	userRepo := repo.NewUserRepository(db)
	authRepo := repo.NewAuthRepository(db)
	limiter := repo.NewRateLimitRepository(db)
	m := metrics.New()

	devices := services.NewDeviceService(repo.NewDeviceRepository(db))
	issuer := services.NewAccessTokenIssuer("access-secret-access-secret-access-secret", cfg.AccessTTL(), cfg.Tokens.Issuer)
	sessions := services.NewSessionService(
		services.NewCredentialService(userRepo, domain.LockoutPolicy{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.LockoutDuration(),
		}),
		userRepo,
		devices,
		services.NewRefreshTokenService(authRepo, services.RefreshTokenConfig{
			Secret:             []byte("refresh-secret-refresh-secret-refresh"),
			TTL:                cfg.RefreshTTL(),
			ReuseRevokesDevice: cfg.Tokens.ReuseRevokesDevice,
		}, logger),
		issuer,
		repo.NewAuditRepository(db),
		logger,
	)

	router := handler.NewHandler(handler.RouterConfig{
		RateLimit:   cfg.RateLimit,
		MetricsPath: cfg.Metrics.Path,
		Limiter:     limiter,
		Issuer:      issuer,
		Metrics:     m,
		Logger:      logger,
	},
		handler.NewAuthHandler(sessions, cfg.Cookie, m, logger),
		handler.NewUserHandler(services.NewUserService(userRepo), devices, logger),
	)

	server := httptest.NewServer(router)

	return &TestApp{
		DB:          db,
		Server:      server,
		Client:      server.Client(),
		DBContainer: dbContainer,
	}
}

func createUser(t *testing.T, db *sql.DB, email string) uuid.UUID {
	t.Helper()

	var tenantID uuid.UUID
	err := db.QueryRow("INSERT INTO tenants (name) VALUES ($1) RETURNING id", "Acme").Scan(&tenantID)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	var userID uuid.UUID
	err = db.QueryRow(
		"INSERT INTO users (email, name, password_hash, tenant_id) VALUES ($1, $2, $3, $4) RETURNING id",
		email, "Test User", string(hash), tenantID,
	).Scan(&userID)
	require.NoError(t, err)
	return userID
}
