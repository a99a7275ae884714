package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vncsmyrnk/devicesession/internal/adapters/metrics"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

type AuthHandler struct {
	sessions   ports.SessionService
	cookie     refreshCookie
	setOnLogin bool
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

func NewAuthHandler(sessions ports.SessionService, cookieCfg config.CookieConfig, m *metrics.Metrics, logger *logging.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:   sessions,
		cookie:     refreshCookie{cfg: cookieCfg},
		setOnLogin: cookieCfg.SetOnLogin,
		metrics:    m,
		logger:     logger.With("component", "auth_handler"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	User         domain.UserProfile `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type emptyResponse struct{}

// Login exchanges email and password for a device-bound session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	device, err := deviceFromRequest(r)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.failLogin(w, r, errInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.failLogin(w, r, errInvalidRequest)
		return
	}

	session, err := h.sessions.Login(r.Context(), ports.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   device,
		Client:   clientMeta(r),
	})
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	h.metrics.RecordLogin(metrics.OutcomeSuccess)
	if h.setOnLogin {
		h.cookie.set(w, session.RefreshToken, session.RefreshExpiresAt)
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		User:         session.User.Profile(),
	})
}

// Refresh rotates the presented refresh token. A cookie that failed to
// rotate is cleared so a stale client stops retrying it.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	device, err := deviceFromRequest(r)
	if err != nil {
		h.failRefresh(w, r, presentedToken{}, err)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.failRefresh(w, r, presentedToken{}, errInvalidRequest)
		return
	}

	presented := resolveRefreshToken(strings.TrimSpace(req.RefreshToken), r, h.cookie.cfg.Name)
	if presented.source == tokenSourceNone {
		h.failRefresh(w, r, presented, errInvalidRequest)
		return
	}

	session, err := h.sessions.Refresh(r.Context(), ports.RefreshInput{
		RefreshToken: presented.value,
		Device:       device,
		Client:       clientMeta(r),
	})
	if err != nil {
		h.failRefresh(w, r, presented, err)
		return
	}

	h.metrics.RecordRefresh(metrics.OutcomeSuccess)
	// A cookie sent alongside a body token still holds the token just rotated
	// away and must be replaced too.
	if presented.source == tokenSourceCookie || h.cookie.presentIn(r) || h.setOnLogin {
		h.cookie.set(w, session.RefreshToken, session.RefreshExpiresAt)
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
}

// Logout revokes the presented token for this device. It always succeeds
// so a client can call it blindly.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.clear(w)

	device, err := deviceFromRequest(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, h.logger, errInvalidRequest)
		return
	}

	presented := resolveRefreshToken(strings.TrimSpace(req.RefreshToken), r, h.cookie.cfg.Name)
	if presented.source != tokenSourceNone {
		if err := h.sessions.Logout(r.Context(), presented.value, device); err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, emptyResponse{})
}

// LogoutAll revokes every refresh token of the authenticated user.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
		return
	}

	count, err := h.sessions.LogoutAll(r.Context(), claims)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.logger.Info("logged out everywhere",
		"user_id", claims.UserID,
		"revoked", count,
		"request_id", requestIDFrom(r.Context()),
	)
	h.cookie.clear(w)
	writeJSON(w, http.StatusOK, emptyResponse{})
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request, err error) {
	mapped := respondError(w, r, h.logger, err)
	h.metrics.RecordLogin(strings.ToLower(mapped.code))
}

func (h *AuthHandler) failRefresh(w http.ResponseWriter, r *http.Request, presented presentedToken, err error) {
	if presented.source == tokenSourceCookie {
		h.cookie.clear(w)
	}
	respondError(w, r, h.logger, err)
	h.metrics.RecordRefresh(refreshOutcome(err))

	if errors.Is(err, domain.ErrRefreshTokenRevoked) {
		h.metrics.RecordRefreshReuse()
	}
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrRefreshTokenInvalid):
		return "invalid"
	case errors.Is(err, domain.ErrRefreshTokenRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrRefreshTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrDeviceMismatch):
		return "device_mismatch"
	default:
		return strings.ToLower(mapError(err).code)
	}
}
