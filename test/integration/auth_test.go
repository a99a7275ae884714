package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/devicesession/internal/config"
)

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *TestApp) post(t *testing.T, path, deviceID string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, a.Server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-device-id", deviceID)
	req.Header.Set("x-device-platform", "android")
	req.Header.Set("x-device-name", "Pixel 8")
	req.Header.Set("x-app-version", "2.4.1")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := a.Client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeTokens(t *testing.T, resp *http.Response) tokenPair {
	t.Helper()
	var pair tokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	return pair
}

func TestAuthFlow(t *testing.T) {
	app := setupTestApp(t, nil)
	defer app.Teardown(t)

	createUser(t, app.DB, "flow@example.com")

	// 1. Login
	resp := app.post(t, "/auth/login", "device-a", map[string]string{
		"email":    "flow@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeTokens(t, resp)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)

	// 2. Refresh rotates
	resp = app.post(t, "/auth/refresh", "device-a", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decodeTokens(t, resp)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// 3. Replaying the old token fails and kills the device chain
	resp = app.post(t, "/auth/refresh", "device-a", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.post(t, "/auth/refresh", "device-a", map[string]string{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var audits int
	require.NoError(t, app.DB.QueryRow("SELECT COUNT(*) FROM audit_logs").Scan(&audits))
	assert.Equal(t, 2, audits)
}

func TestAuthFlow_DeviceBinding(t *testing.T) {
	app := setupTestApp(t, nil)
	defer app.Teardown(t)

	createUser(t, app.DB, "bound@example.com")

	resp := app.post(t, "/auth/login", "device-a", map[string]string{
		"email":    "bound@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeTokens(t, resp)

	resp = app.post(t, "/auth/refresh", "device-b", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The mismatch did not consume the token.
	resp = app.post(t, "/auth/refresh", "device-a", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow_ConcurrentRefresh(t *testing.T) {
	app := setupTestApp(t, func(cfg *config.Config) {
		cfg.RateLimit.Refresh.Limit = 100
	})
	defer app.Teardown(t)

	createUser(t, app.DB, "race@example.com")

	resp := app.post(t, "/auth/login", "device-a", map[string]string{
		"email":    "race@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeTokens(t, resp)

	const attempts = 8
	statuses := make(chan int, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := app.post(t, "/auth/refresh", "device-a", map[string]string{"refreshToken": login.RefreshToken})
			statuses <- r.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	ok := 0
	for status := range statuses {
		if status == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusUnauthorized, status)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestAuthFlow_Invalid(t *testing.T) {
	app := setupTestApp(t, func(cfg *config.Config) {
		cfg.RateLimit.Login.Limit = 2
	})
	defer app.Teardown(t)

	createUser(t, app.DB, "invalid@example.com")

	resp := app.post(t, "/auth/login", "device-a", map[string]string{
		"email":    "invalid@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.post(t, "/auth/refresh", "device-a", map[string]string{}, &http.Cookie{Name: "refresh_token", Value: "garbage"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.post(t, "/auth/login", "device-a", map[string]string{
		"email":    "invalid@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.post(t, "/auth/login", "device-a", map[string]string{
		"email":    "invalid@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
