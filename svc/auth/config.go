package auth

import "time"

// Config holds the session core's tunables, populated from the environment
// via pkg/config.
type Config struct {
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`              // Fixed session validity window.
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`  // Sweep cadence.
	PurgeAfter      time.Duration `env:"SESSION_PURGE_AFTER" envDefault:"720h"`     // Retention for terminated sessions (30 days).
	BaseURL         string        `env:"BASE_URL" envDefault:"http://localhost:8080"` // Public origin for login token URLs.
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"false"`         // Set the Secure flag on session cookies.

	RedeemRateLimit  int64         `env:"REDEEM_RATE_LIMIT" envDefault:"10"`  // Redemption attempts per client IP per window.
	RedeemRateWindow time.Duration `env:"REDEEM_RATE_WINDOW" envDefault:"1m"` // Rate limit window.
}
