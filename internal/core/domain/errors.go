package domain

import "errors"

var (
	ErrInvalidDevice        = errors.New("invalid device")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account is locked")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrVerificationRequired = errors.New("account verification required")
	ErrTenantInactive       = errors.New("tenant is not active")

	ErrRefreshTokenInvalid = errors.New("refresh token not found")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrDeviceMismatch      = errors.New("refresh token bound to another device")

	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal server error")
)

// IsRefreshTokenError reports whether err is one of the rotation outcomes
// that must surface to the client as a generic 401.
func IsRefreshTokenError(err error) bool {
	return errors.Is(err, ErrRefreshTokenInvalid) ||
		errors.Is(err, ErrRefreshTokenRevoked) ||
		errors.Is(err, ErrRefreshTokenExpired) ||
		errors.Is(err, ErrDeviceMismatch)
}
