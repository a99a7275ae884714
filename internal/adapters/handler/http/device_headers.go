package http

import (
	"net"
	"net/http"

	"github.com/vncsmyrnk/devicesession/internal/core/domain"
)

const (
	HeaderDeviceID       = "X-Device-Id"
	HeaderDevicePlatform = "X-Device-Platform"
	HeaderDeviceName     = "X-Device-Name"
	HeaderAppVersion     = "X-App-Version"
)

// deviceFromRequest reads and validates the device headers.
func deviceFromRequest(r *http.Request) (domain.DeviceInfo, error) {
	info := domain.DeviceInfo{
		DeviceID:   r.Header.Get(HeaderDeviceID),
		Platform:   r.Header.Get(HeaderDevicePlatform),
		Name:       r.Header.Get(HeaderDeviceName),
		AppVersion: r.Header.Get(HeaderAppVersion),
	}.Normalize()

	if err := info.Validate(); err != nil {
		return domain.DeviceInfo{}, err
	}
	return info, nil
}

func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	}
}

// clientIP uses RemoteAddr only. When proxy headers are trusted the router
// installs middleware.RealIP, which has already rewritten it.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
