package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

const (
	CodeInvalidDevice        = "INVALID_DEVICE"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeAccountDisabled      = "ACCOUNT_DISABLED"
	CodeVerificationRequired = "VERIFICATION_REQUIRED"
	CodeTenantInactive       = "TENANT_INACTIVE"
	CodeRateLimited          = "RATE_LIMITED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// errInvalidRequest marks a malformed body or a missing refresh token.
var errInvalidRequest = errors.New("invalid request")

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type rateLimitResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

type apiError struct {
	status  int
	code    string
	message string
}

// mapError turns a domain error into the response a client may see. Refresh
// failures collapse into one code so a caller cannot probe why a token failed.
func mapError(err error) apiError {
	switch {
	case errors.Is(err, errInvalidRequest):
		return apiError{http.StatusBadRequest, CodeInvalidRequest, "invalid request"}
	case errors.Is(err, domain.ErrInvalidDevice):
		return apiError{http.StatusBadRequest, CodeInvalidDevice, "missing or invalid device headers"}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"}
	case domain.IsRefreshTokenError(err):
		return apiError{http.StatusUnauthorized, CodeInvalidRefreshToken, "invalid refresh token"}
	case errors.Is(err, domain.ErrUnauthorized):
		return apiError{http.StatusUnauthorized, CodeUnauthorized, "unauthorized"}
	case errors.Is(err, domain.ErrAccountLocked):
		return apiError{http.StatusForbidden, CodeAccountLocked, "account is temporarily locked"}
	case errors.Is(err, domain.ErrAccountDisabled):
		return apiError{http.StatusForbidden, CodeAccountDisabled, "account is disabled"}
	case errors.Is(err, domain.ErrVerificationRequired):
		return apiError{http.StatusForbidden, CodeVerificationRequired, "account verification required"}
	case errors.Is(err, domain.ErrTenantInactive):
		return apiError{http.StatusForbidden, CodeTenantInactive, "organization is not active"}
	case errors.Is(err, domain.ErrRateLimited):
		return apiError{http.StatusTooManyRequests, CodeRateLimited, "too many requests"}
	default:
		return apiError{http.StatusInternalServerError, CodeInternal, "internal server error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondError writes the mapped error. Anything that maps to a 500 is logged
// with its full chain first; the client only sees the generic message.
func respondError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) apiError {
	mapped := mapError(err)
	if mapped.status == http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
	}
	writeError(w, mapped.status, mapped.code, mapped.message)
	return mapped
}
