package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepstudio/stepstudio/pkg/audit"
	"github.com/stepstudio/stepstudio/pkg/fingerprint"
	"github.com/stepstudio/stepstudio/pkg/roles"
)

// RoleSwitcher re-authenticates a principal under a different role by
// replacing the active session with a freshly stamped one.
type RoleSwitcher struct {
	sessions SessionStore
	users    UserStore
	ttl      time.Duration
	log      *slog.Logger
	sink     audit.Sink
}

// SwitcherOption configures the RoleSwitcher.
type SwitcherOption func(*RoleSwitcher)

// WithSwitcherTTL overrides the TTL stamped on replacement sessions.
func WithSwitcherTTL(ttl time.Duration) SwitcherOption {
	return func(s *RoleSwitcher) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSwitcherLogger sets a custom logger.
func WithSwitcherLogger(log *slog.Logger) SwitcherOption {
	return func(s *RoleSwitcher) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSwitcherAuditSink sets the audit sink for role switch events.
func WithSwitcherAuditSink(sink audit.Sink) SwitcherOption {
	return func(s *RoleSwitcher) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// NewRoleSwitcher creates a RoleSwitcher.
func NewRoleSwitcher(sessions SessionStore, users UserStore, opts ...SwitcherOption) *RoleSwitcher {
	s := &RoleSwitcher{
		sessions: sessions,
		users:    users,
		ttl:      DefaultSessionTTL,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		sink:     audit.NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Switch validates the target against the principal's canonical role and
// replaces the current session with one stamped with the target role.
//
// Privilege rules: admins may assume any role; everyone else only their own
// canonical role. Switching to the role the session already holds is a
// short-circuit success that creates no new row.
//
// Terminate-and-create run in one transaction inside the store; on any
// failure the caller must not emit new cookies, and no half session exists.
func (s *RoleSwitcher) Switch(ctx context.Context, current *SessionContext, target roles.Role, fp fingerprint.Fingerprint) (*Session, bool, error) {
	if current == nil {
		return nil, false, ErrUnauthenticated
	}
	if !target.Valid() {
		return nil, false, ErrInvalidRole
	}

	user, err := s.users.UserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The account vanished under a live session; treat the caller as
			// unauthenticated rather than leaking account state.
			return nil, false, ErrUnauthenticated
		}
		return nil, false, errors.Join(ErrStoreUnavailable, err)
	}

	if !user.Role.CanAssume(target) {
		audit.Record(ctx, s.sink, "session.role_switch",
			audit.WithUser(user.ID.String()),
			audit.WithSession(current.SessionID.String()),
			audit.WithMetadata("target_role", string(target)),
			audit.WithError(ErrInsufficientPrivilege),
		)
		return nil, false, ErrInsufficientPrivilege
	}

	if current.Role == target {
		sess, err := s.sessions.GetSession(ctx, current.SessionID)
		if err != nil {
			return nil, false, errors.Join(ErrStoreUnavailable, err)
		}
		return sess, false, nil
	}

	now := time.Now()
	next := &Session{
		ID:             uuid.New(),
		UserID:         user.ID,
		UserRole:       target,
		DeviceID:       fp.DeviceID,
		DeviceInfo:     fp.DeviceInfo,
		IPAddress:      fp.IPAddress,
		UserAgent:      fp.UserAgent,
		IsActive:       true,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LastAccessedAt: now,
	}

	if err := s.sessions.ReplaceSession(ctx, current.SessionID, next); err != nil {
		return nil, false, errors.Join(ErrStoreUnavailable, err)
	}

	audit.Record(ctx, s.sink, "session.role_switch",
		audit.WithUser(user.ID.String()),
		audit.WithSession(next.ID.String()),
		audit.WithConnection(fp.IPAddress, fp.UserAgent),
		audit.WithMetadata("from_role", string(current.Role)),
		audit.WithMetadata("target_role", string(target)),
	)

	return next, true, nil
}
