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

var ErrDuplicateTokenHash = errors.New("refresh token hash already exists")

type AuthRepository struct {
	db *sql.DB
}

func NewAuthRepository(db *sql.DB) ports.AuthRepository {
	return &AuthRepository{db: db}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, user_id, device_id, token_hash, issued_at, expires_at, user_agent, ip)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func storeRefreshToken(ctx context.Context, db execer, token *domain.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	_, err := db.ExecContext(ctx, insertRefreshToken,
		token.ID,
		token.UserID,
		token.DeviceID,
		token.TokenHash,
		token.IssuedAt,
		token.ExpiresAt,
		token.UserAgent,
		token.IP,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateTokenHash
	}
	return err
}

func (r *AuthRepository) StoreRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	return storeRefreshToken(ctx, r.db, token)
}

func (r *AuthRepository) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, device_id, token_hash, issued_at, expires_at, revoked_at, replaced_by, user_agent, ip
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	return readWithRetry(ctx, func() (*domain.RefreshToken, error) {
		token := &domain.RefreshToken{}
		var revokedAt sql.NullTime
		var replacedBy uuid.NullUUID
		err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
			&token.ID,
			&token.UserID,
			&token.DeviceID,
			&token.TokenHash,
			&token.IssuedAt,
			&token.ExpiresAt,
			&revokedAt,
			&replacedBy,
			&token.UserAgent,
			&token.IP,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		token.RevokedAt = nullTimePtr(revokedAt)
		token.ReplacedBy = nullUUIDPtr(replacedBy)
		return token, nil
	})
}

// RotateRefreshToken locks the old row first, so of two concurrent rotations
// of the same token the second one observes revoked_at and writes nothing.
func (r *AuthRepository) RotateRefreshToken(ctx context.Context, oldID uuid.UUID, revokedAt time.Time, next *domain.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT revoked_at FROM refresh_tokens WHERE id = $1 FOR UPDATE`, oldID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRefreshTokenInvalid
		}
		return fmt.Errorf("failed to lock refresh token: %w", err)
	}
	if current.Valid {
		return domain.ErrRefreshTokenRevoked
	}

	if err := storeRefreshToken(ctx, tx, next); err != nil {
		return fmt.Errorf("failed to store rotated token: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL`,
		oldID, revokedAt, next.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke rotated token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRefreshTokenRevoked
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	return nil
}

func (r *AuthRepository) RevokeRefreshToken(ctx context.Context, id uuid.UUID, revokedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, revokedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *AuthRepository) RevokeDeviceRefreshTokens(ctx context.Context, userID uuid.UUID, deviceID string, revokedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $3 WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL`,
		userID, deviceID, revokedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *AuthRepository) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID, revokedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, revokedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *AuthRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
