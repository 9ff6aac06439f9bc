// Package device turns raw User-Agent strings into display names for
// session records, so subjects reviewing their verification history can
// recognize which device performed a capture.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent produces a short "Browser on OS" display name.
func ParseUserAgent(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OS()
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// Fingerprint hashes the stable parts of a User-Agent so session history can
// flag captures from a device the subject never used before. Minor browser
// version bumps keep the same fingerprint.
func Fingerprint(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	browser, version := ua.Browser()
	major := version
	if idx := strings.Index(version, "."); idx > 0 {
		major = version[:idx]
	}
	stable := strings.Join([]string{browser, major, ua.OS(), ua.Platform()}, "|")
	sum := sha256.Sum256([]byte(stable))
	return hex.EncodeToString(sum[:16])
}
