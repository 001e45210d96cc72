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
	"github.com/stepstudio/stepstudio/pkg/logger"
	"github.com/stepstudio/stepstudio/pkg/roles"
)

// DefaultSessionTTL is the fixed validity window added to a session's
// creation time.
const DefaultSessionTTL = 24 * time.Hour

// Manager owns the session lifecycle: creation, validation, termination.
type Manager struct {
	sessions SessionStore
	ttl      time.Duration
	log      *slog.Logger
	sink     audit.Sink
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithSessionTTL overrides the default 24h session TTL.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithManagerLogger sets a custom logger.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithAuditSink sets the audit sink for login/logout events.
func WithAuditSink(sink audit.Sink) ManagerOption {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// NewManager creates a session Manager backed by the given store.
func NewManager(sessions SessionStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		sink:     audit.NopSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured session time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create inserts a new session for the principal under the given role,
// stamped with the request's device fingerprint. One durable write; no
// cookies or other side effects happen here.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, role roles.Role, fp fingerprint.Fingerprint) (*Session, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	now := time.Now()
	sess := &Session{
		ID:             uuid.New(),
		UserID:         userID,
		UserRole:       role,
		DeviceID:       fp.DeviceID,
		DeviceInfo:     fp.DeviceInfo,
		IPAddress:      fp.IPAddress,
		UserAgent:      fp.UserAgent,
		IsActive:       true,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
		LastAccessedAt: now,
	}

	if err := m.sessions.CreateSession(ctx, sess); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	audit.Record(ctx, m.sink, "session.created",
		audit.WithUser(userID.String()),
		audit.WithSession(sess.ID.String()),
		audit.WithConnection(fp.IPAddress, fp.UserAgent),
		audit.WithMetadata("role", string(role)),
	)

	return sess, nil
}

// Validate resolves the session handle and derives its validity. The checks
// run in a fixed order with distinct failure reasons: not found, expired,
// inactive, then role. Validity is never cached; a session being expired by
// the cleanup sweep concurrently is caught here by re-checking both flags.
//
// On success the session's last_accessed_at is touched best-effort: a failed
// touch is logged and dropped, never surfaced.
func (m *Manager) Validate(ctx context.Context, sessionID uuid.UUID, required roles.Role, fp fingerprint.Fingerprint) (*SessionContext, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		// Store unreachable or timed out: fail closed.
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	now := time.Now()
	if !sess.ExpiresAt.After(now) {
		return nil, ErrSessionExpired
	}
	if !sess.IsActive {
		return nil, ErrSessionInactive
	}
	if required != "" && !sess.UserRole.Satisfies(required) {
		return nil, ErrInsufficientPrivilege
	}

	sc := &SessionContext{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Role:      sess.UserRole,
	}

	if fp.DeviceID != "" && sess.DeviceID != "" && fp.DeviceID != sess.DeviceID {
		// Advisory signal only; the session stays valid.
		sc.FingerprintMismatch = true
		m.log.WarnContext(ctx, "session device fingerprint mismatch",
			logger.SessionID(sess.ID.String()),
			logger.UserID(sess.UserID.String()),
			logger.Component("session"),
		)
	}

	if err := m.sessions.TouchSession(ctx, sess.ID, now); err != nil {
		m.log.DebugContext(ctx, "failed to touch session activity",
			logger.SessionID(sess.ID.String()),
			logger.Error(err),
		)
	}

	return sc, nil
}

// Terminate deactivates the session. Terminating an already terminated
// session is a no-op success.
func (m *Manager) Terminate(ctx context.Context, sessionID uuid.UUID) error {
	if err := m.sessions.TerminateSession(ctx, sessionID); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	audit.Record(ctx, m.sink, "session.terminated",
		audit.WithSession(sessionID.String()),
	)
	return nil
}
