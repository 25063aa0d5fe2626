// Package device derives human-readable device names for sessions.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent returns "<browser> on <os>" for display in session lists.
func ParseUserAgent(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	if ua.Bot() {
		browser += " (bot)"
	}
	return strings.TrimSpace(browser + " on " + platform)
}
