package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vncsmyrnk/devicesession/internal/adapters/metrics"
	"github.com/vncsmyrnk/devicesession/internal/adapters/ratelimit"
	"github.com/vncsmyrnk/devicesession/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/devicesession/internal/config"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/services"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

const (
	testEmail    = "user@example.com"
	testPassword = "correct horse battery staple"
)

type testApp struct {
	handler http.Handler
	users   *memory.UserRepository
	devices *memory.DeviceRepository
	tokens  *memory.AuthRepository
	audit   *memory.AuditRepository
	metrics *metrics.Metrics
	user    *domain.User
}

type testOption func(*config.Config)

func newTestApp(t *testing.T, opts ...testOption) *testApp {
	t.Helper()

	cfg := config.Default()
	cfg.Cookie.Secure = false
	for _, opt := range opts {
		opt(cfg)
	}

	logger := logging.Nop()
	users := memory.NewUserRepository()
	devices := memory.NewDeviceRepository()
	tokens := memory.NewAuthRepository()
	audit := memory.NewAuditRepository()
	m := metrics.New()

	tenant := domain.Tenant{ID: newUUID(), Name: "Acme", Status: domain.TenantStatusActive}
	users.AddTenant(tenant)

	hash, err := services.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	user := users.AddUser(domain.User{
		Email:        testEmail,
		Name:         "Test User",
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		Role:         domain.RoleEmployee,
		TenantID:     &tenant.ID,
	})

	credentials := services.NewCredentialService(users, domain.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.LockoutDuration(),
	})
	deviceService := services.NewDeviceService(devices)
	refreshTokens := services.NewRefreshTokenService(tokens, services.RefreshTokenConfig{
		Secret:             []byte("refresh-secret-refresh-secret-refresh"),
		TTL:                24 * time.Hour,
		ReuseRevokesDevice: cfg.Tokens.ReuseRevokesDevice,
	}, logger)
	issuer := services.NewAccessTokenIssuer("access-secret-access-secret-access-secret", 15*time.Minute, "devicesession")
	sessions := services.NewSessionService(credentials, users, deviceService, refreshTokens, issuer, audit, logger)

	router := NewHandler(RouterConfig{
		RateLimit:   cfg.RateLimit,
		MetricsPath: cfg.Metrics.Path,
		Limiter:     ratelimit.NewMemoryLimiter(),
		Issuer:      issuer,
		Metrics:     m,
		Logger:      logger,
	},
		NewAuthHandler(sessions, cfg.Cookie, m, logger),
		NewUserHandler(services.NewUserService(users), deviceService, logger),
	)

	return &testApp{
		handler: router,
		users:   users,
		devices: devices,
		tokens:  tokens,
		audit:   audit,
		metrics: m,
		user:    user,
	}
}

func deviceHeaders(deviceID string) map[string]string {
	return map[string]string{
		HeaderDeviceID:       deviceID,
		HeaderDevicePlatform: "ios",
		HeaderDeviceName:     "Test iPhone",
		HeaderAppVersion:     "1.4.2",
	}
}

func (a *testApp) do(t *testing.T, method, path string, body any, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) login(t *testing.T, deviceID string) loginResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/login",
		loginRequest{Email: testEmail, Password: testPassword}, deviceHeaders(deviceID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
