package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore is the persistence boundary for session rows. The datastore
// is the single source of truth; there is no in-process session cache.
type SessionStore interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns the session by id or ErrSessionNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// TouchSession updates last_accessed_at. Best-effort: callers may drop
	// the error.
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error

	// TerminateSession sets is_active=false. Terminating an already
	// terminated or missing session is a no-op success.
	TerminateSession(ctx context.Context, id uuid.UUID) error

	// ReplaceSession terminates the old session and inserts the next one in
	// a single transaction, so a crash between the two steps cannot leave
	// the client holding cookies to a terminated session with no
	// replacement committed.
	ReplaceSession(ctx context.Context, oldID uuid.UUID, next *Session) error

	// TerminateUserSessions deactivates every active session of the user
	// and returns the number of rows affected.
	TerminateUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)

	// ExpireDueSessions deactivates sessions past their expiry.
	ExpireDueSessions(ctx context.Context, now time.Time) (int64, error)

	// PurgeInactiveSessions deletes inactive sessions last touched before
	// the cutoff.
	PurgeInactiveSessions(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOrphanSessions deletes sessions whose owning user no longer
	// exists.
	DeleteOrphanSessions(ctx context.Context) (int64, error)

	// SessionStats summarizes the session table.
	SessionStats(ctx context.Context) (*SessionStats, error)

	// UserSessions returns all session rows of one user, newest first.
	UserSessions(ctx context.Context, userID uuid.UUID) ([]Session, error)
}

// TokenStore is the persistence boundary for login tokens and their
// append-only attempt trail.
type TokenStore interface {
	// CreateToken inserts a new login token row.
	CreateToken(ctx context.Context, t *LoginToken) error

	// TokenByValue returns the token matching the capability string or
	// ErrTokenNotFound.
	TokenByValue(ctx context.Context, value string) (*LoginToken, error)

	// ListTokens returns a filtered page of tokens with usage stats and the
	// total match count.
	ListTokens(ctx context.Context, filter TokenFilter) ([]TokenWithUsage, int64, error)

	// DeleteToken removes the token and cascades its attempts, or returns
	// ErrTokenNotFound.
	DeleteToken(ctx context.Context, id uuid.UUID) error

	// RecordAttempt appends the attempt row. With consumeUse set it also
	// increments the token's used_count and stamps last_used_at/last_used_ip
	// in the same transaction, guarded by a conditional update so two
	// concurrent redemptions can never both take the last remaining use.
	// When the guard rejects the increment, nothing is written and the
	// precise redeemability error is returned.
	RecordAttempt(ctx context.Context, attempt *LoginAttempt, consumeUse bool) error
}

// UserStore resolves principals to their canonical role. Account CRUD lives
// elsewhere; the session core only needs existence and role.
type UserStore interface {
	// UserByID returns the user or ErrUserNotFound.
	UserByID(ctx context.Context, id uuid.UUID) (*User, error)
}
