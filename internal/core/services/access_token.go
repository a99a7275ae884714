package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

// accessClaims is the wire form of domain.AccessClaims.
type accessClaims struct {
	jwt.RegisteredClaims
	TenantID   string      `json:"tid,omitempty"`
	Role       domain.Role `json:"role"`
	EmployeeID string      `json:"eid,omitempty"`
	DeviceID   string      `json:"did"`
}

// AccessTokenIssuer signs and verifies HS256 access tokens. It holds no
// state besides its key and never touches storage.
type AccessTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewAccessTokenIssuer(secret string, ttl time.Duration, issuer string) *AccessTokenIssuer {
	return &AccessTokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

func (i *AccessTokenIssuer) Issue(claims domain.AccessClaims) (*domain.AccessToken, error) {
	if claims.DeviceID == "" {
		return nil, domain.ErrInvalidDevice
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	wire := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Role:     claims.Role,
		DeviceID: claims.DeviceID,
	}
	if claims.TenantID != nil {
		wire.TenantID = claims.TenantID.String()
	}
	if claims.EmployeeID != nil {
		wire.EmployeeID = claims.EmployeeID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wire)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &domain.AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, algorithm, issuer, expiry and that the token was
// issued to deviceID. Every failure wraps domain.ErrUnauthorized.
func (i *AccessTokenIssuer) Verify(tokenString, deviceID string) (*domain.AccessClaims, error) {
	var wire accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &wire, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	if wire.DeviceID == "" || wire.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: token bound to another device", domain.ErrUnauthorized)
	}

	userID, err := uuid.Parse(wire.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", domain.ErrUnauthorized)
	}

	claims := &domain.AccessClaims{
		UserID:   userID,
		Role:     wire.Role,
		DeviceID: wire.DeviceID,
	}
	if claims.TenantID, err = parseOptionalUUID(wire.TenantID); err != nil {
		return nil, fmt.Errorf("%w: malformed tenant", domain.ErrUnauthorized)
	}
	if claims.EmployeeID, err = parseOptionalUUID(wire.EmployeeID); err != nil {
		return nil, fmt.Errorf("%w: malformed employee", domain.ErrUnauthorized)
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}

	return claims, nil
}

func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errors.New("invalid uuid")
	}
	return &id, nil
}
