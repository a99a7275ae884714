package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
)

const userColumns = `
	u.id, u.email, u.name, u.password_hash, u.status, u.role, u.tenant_id, u.employee_id,
	u.failed_login_attempts, u.locked_until, u.last_login_at, u.created_at,
	t.id, t.name, t.status`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) ports.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT` + userColumns + `
		FROM users u LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE LOWER(u.email) = LOWER($1) AND u.deleted_at IS NULL`
	return readWithRetry(ctx, func() (*domain.User, error) {
		return scanUser(r.db.QueryRowContext(ctx, query, email))
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT` + userColumns + `
		FROM users u LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE u.id = $1 AND u.deleted_at IS NULL`
	return readWithRetry(ctx, func() (*domain.User, error) {
		return scanUser(r.db.QueryRowContext(ctx, query, id))
	})
}

// RecordLoginFailure locks the user row so concurrent failures cannot lose
// an increment.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, policy domain.LockoutPolicy, now time.Time) (*domain.LoginFailure, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT failed_login_attempts, locked_until FROM users WHERE id = $1 FOR UPDATE`, id,
	).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to read login failures: %w", err)
	}

	failure := policy.Next(attempts, nullTimePtr(lockedUntil), now)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = $2, locked_until = $3 WHERE id = $1`,
		id, failure.Attempts, failure.LockedUntil,
	); err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit login failure: %w", err)
	}
	return &failure, nil
}

func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, now)
	return err
}

// CreateTenant and CreateUser back the admin CLI and tests.
func (r *UserRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	query := `INSERT INTO tenants (name, status) VALUES ($1, $2) RETURNING id`
	return r.db.QueryRowContext(ctx, query, tenant.Name, tenant.Status).Scan(&tenant.ID)
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, name, password_hash, status, role, tenant_id, employee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		user.Email, user.Name, user.PasswordHash, user.Status, user.Role, user.TenantID, user.EmployeeID,
	).Scan(&user.ID, &user.CreatedAt)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var (
		tenantID, employeeID, joinedTenantID uuid.NullUUID
		lockedUntil, lastLoginAt             sql.NullTime
		tenantName, tenantStatus             sql.NullString
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Status,
		&user.Role,
		&tenantID,
		&employeeID,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&lastLoginAt,
		&user.CreatedAt,
		&joinedTenantID,
		&tenantName,
		&tenantStatus,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	user.TenantID = nullUUIDPtr(tenantID)
	user.EmployeeID = nullUUIDPtr(employeeID)
	user.LockedUntil = nullTimePtr(lockedUntil)
	user.LastLoginAt = nullTimePtr(lastLoginAt)
	if joinedTenantID.Valid {
		user.Tenant = &domain.Tenant{
			ID:     joinedTenantID.UUID,
			Name:   tenantName.String,
			Status: domain.TenantStatus(tenantStatus.String),
		}
	}
	return user, nil
}

func nullUUIDPtr(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
