// Package fingerprint derives a stable device identifier from connection
// metadata. The identifier is a detection signal for device changes on a
// session, not an enforcement gate: a mismatch is surfaced to callers and
// never blocks a request by itself.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/stepstudio/stepstudio/pkg/clientip"
)

// Fingerprint captures the device context of a single HTTP request.
type Fingerprint struct {
	// DeviceID is a deterministic hash over stable request metadata; the
	// same client reproduces the same value across requests.
	DeviceID string
	// DeviceInfo is a short human-readable description of the client.
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// Compute derives the fingerprint for the request. Pure function: no side
// effects, no external calls.
//
// DeviceID hashes the User-Agent, the Accept* headers and the client IP.
// Header order is deliberately not included; intermediate proxies reorder
// headers and would break the stability guarantee.
func Compute(r *http.Request) Fingerprint {
	ip := clientip.GetIP(r)
	ua := r.UserAgent()

	components := []string{
		ua,
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		r.Header.Get("Accept"),
		ip,
	}

	var filtered []string
	for _, comp := range components {
		if comp != "" {
			filtered = append(filtered, comp)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(filtered, "|")))

	return Fingerprint{
		DeviceID:   hex.EncodeToString(hash[:16]),
		DeviceInfo: describe(ua),
		IPAddress:  ip,
		UserAgent:  ua,
	}
}

// Match reports whether the request's live-computed device id equals the
// stored one. Callers treat a false result as advisory.
func Match(r *http.Request, storedDeviceID string) bool {
	if storedDeviceID == "" {
		return true
	}
	return Compute(r).DeviceID == storedDeviceID
}

// describe summarizes a User-Agent into a short "Browser on OS" string.
// Matching is keyword-based; exact versioning is not worth the parsing cost
// for a descriptive field.
func describe(ua string) string {
	if ua == "" {
		return "Unknown device"
	}

	lower := strings.ToLower(ua)

	browser := "Unknown browser"
	switch {
	case strings.Contains(lower, "edg/"), strings.Contains(lower, "edge"):
		browser = "Edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		browser = "Opera"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	case strings.Contains(lower, "curl"), strings.Contains(lower, "wget"),
		strings.Contains(lower, "python"), strings.Contains(lower, "go-http-client"):
		browser = "API client"
	}

	os := "unknown OS"
	switch {
	case strings.Contains(lower, "android"):
		os = "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		os = "iOS"
	case strings.Contains(lower, "windows"):
		os = "Windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		os = "macOS"
	case strings.Contains(lower, "linux"):
		os = "Linux"
	}

	return browser + " on " + os
}
