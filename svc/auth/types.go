package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/stepstudio/stepstudio/pkg/roles"
)

// Session binds a principal, a role snapshot and a device context to a
// bounded validity window. The role is stamped at creation time and is not
// live-synced with the user's canonical role.
type Session struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	UserRole       roles.Role
	DeviceID       string
	DeviceInfo     string
	IPAddress      string
	UserAgent      string
	IsActive       bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
}

// Valid reports whether the session is logically valid at the given instant.
// Validity is always derived from both flags; IsActive alone is never
// trusted because the cleanup sweep and expiry race with live requests.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.IsActive && s.ExpiresAt.After(now)
}

// User is the minimal projection of a platform account the session core
// needs: existence and the canonical role.
type User struct {
	ID    uuid.UUID
	Email string
	Role  roles.Role
}

// LoginToken is a capability string granting one or more pre-authenticated
// logins under constrained conditions.
type LoginToken struct {
	ID              uuid.UUID
	Token           string
	Name            string
	Purpose         string
	CreatedByUserID uuid.UUID
	MaxUses         *int32
	UsedCount       int32
	ExpiresAt       *time.Time
	AllowedRoles    []roles.Role
	IsActive        bool
	Metadata        map[string]any
	LastUsedAt      *time.Time
	LastUsedIP      string
	CreatedAt       time.Time
}

// RedeemableErr returns nil when the token can be redeemed at the given
// instant, or the precise reason otherwise. Reasons are checked in a fixed
// precedence order: inactive, expired, exhausted.
func (t *LoginToken) RedeemableErr(now time.Time) error {
	if !t.IsActive {
		return ErrTokenInactive
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return ErrTokenExpired
	}
	if t.MaxUses != nil && t.UsedCount >= *t.MaxUses {
		return ErrTokenExhausted
	}
	return nil
}

// LoginAttempt is an immutable record of one redemption attempt against a
// login token, successful or not.
type LoginAttempt struct {
	ID            uuid.UUID
	TokenID       uuid.UUID
	Email         string
	Success       bool
	FailureReason string
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}

// SessionContext is the per-request authentication context, constructed once
// by the session middleware and passed explicitly to downstream calls.
type SessionContext struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Role      roles.Role
	// FingerprintMismatch flags that the live device id differs from the one
	// stored on the session. Advisory only; it never invalidates a session.
	FingerprintMismatch bool
}

// SessionStats summarizes the session table for observability endpoints.
type SessionStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`   // is_active and not yet expired
	Expired  int64 `json:"expired"`  // is_active but past expiry, not yet swept
	Inactive int64 `json:"inactive"` // terminated or swept
}

// CleanupReport carries the per-phase counts of one cleanup run.
type CleanupReport struct {
	Expired int64 `json:"expired"`
	Purged  int64 `json:"purged"`
	Orphans int64 `json:"orphans"`
}

// TokenFilter narrows and pages the admin token listing.
type TokenFilter struct {
	Search  string // matches name or purpose, case-insensitive
	Purpose string
	Active  *bool
	Limit   int
	Offset  int
}

// TokenUsage aggregates attempt statistics for one token.
type TokenUsage struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
}

// TokenWithUsage pairs a token with its usage stats for listings.
type TokenWithUsage struct {
	LoginToken
	Usage TokenUsage
}

// IssueTokenInput holds the admin-supplied parameters for a new login token.
type IssueTokenInput struct {
	Name         string
	Purpose      string
	MaxUses      *int32
	ExpiresAt    *time.Time
	AllowedRoles []roles.Role
	Metadata     map[string]any
}

// IssuedToken is the result of issuing a token: the row plus the
// fully-qualified redemption URL.
type IssuedToken struct {
	LoginToken
	LoginURL string
}

// AttemptInput describes one redemption attempt as reported by the login flow.
type AttemptInput struct {
	Email         string
	Success       bool
	FailureReason string
}
