package http

import (
	"net/http"
	"time"

	"github.com/vncsmyrnk/devicesession/internal/config"
)

const refreshCookiePath = "/auth"

type tokenSource int

const (
	tokenSourceNone tokenSource = iota
	tokenSourceBody
	tokenSourceCookie
)

// presentedToken is where the refresh token of a request came from.
type presentedToken struct {
	source tokenSource
	value  string
}

// resolveRefreshToken prefers the body over the cookie.
func resolveRefreshToken(bodyToken string, r *http.Request, cookieName string) presentedToken {
	if bodyToken != "" {
		return presentedToken{source: tokenSourceBody, value: bodyToken}
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return presentedToken{source: tokenSourceCookie, value: cookie.Value}
	}
	return presentedToken{source: tokenSourceNone}
}

type refreshCookie struct {
	cfg config.CookieConfig
}

// presentIn reports whether the request carries a non-empty refresh cookie.
func (c refreshCookie) presentIn(r *http.Request) bool {
	cookie, err := r.Cookie(c.cfg.Name)
	return err == nil && cookie.Value != ""
}

func (c refreshCookie) set(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    token,
		Path:     refreshCookiePath,
		Domain:   c.cfg.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.cfg.SameSiteMode(),
	})
}

func (c refreshCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   c.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.cfg.SameSiteMode(),
	})
}
