package auth

import (
	"strings"

	"github.com/mssola/useragent"
)

// UnknownDevice labels sessions whose user agent could not be parsed.
const UnknownDevice = "Unknown"

// DeviceDescriptor turns a User-Agent header into a short label such as
// "Mobile - Android - Chrome". It never fails.
func DeviceDescriptor(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return UnknownDevice
	}

	ua := useragent.New(userAgent)

	var parts []string
	switch {
	case ua.Bot():
		parts = append(parts, "Bot")
	case ua.Mobile():
		parts = append(parts, "Mobile")
	}
	if os := ua.OSInfo().Name; os != "" {
		parts = append(parts, os)
	}
	if browser, _ := ua.Browser(); browser != "" {
		parts = append(parts, browser)
	}

	if len(parts) == 0 {
		return UnknownDevice
	}
	return strings.Join(parts, " - ")
}
