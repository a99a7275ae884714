package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
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

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	container, connStr, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	applied, err := Migrate(ctx, db)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	return db
}

func createUser(t *testing.T, db *sql.DB, email string) *domain.User {
	t.Helper()
	ctx := context.Background()
	repo := &UserRepository{db: db}

	tenant := &domain.Tenant{Name: "Acme", Status: domain.TenantStatusActive}
	require.NoError(t, repo.CreateTenant(ctx, tenant))

	user := &domain.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$04$placeholder",
		Status:       domain.UserStatusActive,
		Role:         domain.RoleEmployee,
		TenantID:     &tenant.ID,
	}
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

func createDevice(t *testing.T, db *sql.DB, userID uuid.UUID, deviceID string) *domain.Device {
	t.Helper()
	device := &domain.Device{
		UserID:     userID,
		DeviceID:   deviceID,
		Platform:   "ios",
		Name:       "iPhone",
		AppVersion: "1.0.0",
		LastSeenAt: time.Now().UTC(),
	}
	require.NoError(t, NewDeviceRepository(db).Upsert(context.Background(), device))
	return device
}
