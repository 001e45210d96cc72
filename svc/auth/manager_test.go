package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stepstudio/stepstudio/pkg/fingerprint"
	"github.com/stepstudio/stepstudio/pkg/roles"
	"github.com/stepstudio/stepstudio/svc/auth"
)

func TestManagerCreate(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Fingerprint{
		DeviceID:   "abc123",
		DeviceInfo: "Chrome on macOS",
		IPAddress:  "203.0.113.7",
		UserAgent:  "Mozilla/5.0",
	}

	t.Run("stamps fixed validity window", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("CreateSession", mock.Anything, mock.MatchedBy(func(s *auth.Session) bool {
			return s.IsActive && s.DeviceID == "abc123"
		})).Return(nil)

		manager := auth.NewManager(store, auth.WithSessionTTL(2*time.Hour))
		userID := uuid.New()

		before := time.Now()
		sess, err := manager.Create(context.Background(), userID, roles.User, fp)
		require.NoError(t, err)

		assert.Equal(t, userID, sess.UserID)
		assert.Equal(t, roles.User, sess.UserRole)
		assert.True(t, sess.IsActive)
		// expires_at is exactly created_at plus the TTL.
		assert.Equal(t, sess.CreatedAt.Add(2*time.Hour), sess.ExpiresAt)
		assert.False(t, sess.CreatedAt.Before(before))
		store.AssertExpectations(t)
	})

	t.Run("default ttl is 24 hours", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("CreateSession", mock.Anything, mock.Anything).Return(nil)

		manager := auth.NewManager(store)
		sess, err := manager.Create(context.Background(), uuid.New(), roles.Instructor, fp)
		require.NoError(t, err)
		assert.Equal(t, sess.CreatedAt.Add(24*time.Hour), sess.ExpiresAt)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		manager := auth.NewManager(store)

		_, err := manager.Create(context.Background(), uuid.New(), roles.Role("SUPERUSER"), fp)
		require.ErrorIs(t, err, auth.ErrInvalidRole)
		store.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	})

	t.Run("fails closed on store error", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("CreateSession", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		manager := auth.NewManager(store)
		_, err := manager.Create(context.Background(), uuid.New(), roles.User, fp)
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	})
}

func TestManagerValidate(t *testing.T) {
	t.Parallel()

	fp := fingerprint.Fingerprint{DeviceID: "abc123", IPAddress: "203.0.113.7"}

	newSession := func(mutate func(*auth.Session)) *auth.Session {
		now := time.Now()
		sess := &auth.Session{
			ID:             uuid.New(),
			UserID:         uuid.New(),
			UserRole:       roles.User,
			DeviceID:       "abc123",
			IsActive:       true,
			CreatedAt:      now,
			ExpiresAt:      now.Add(24 * time.Hour),
			LastAccessedAt: now,
		}
		if mutate != nil {
			mutate(sess)
		}
		return sess
	}

	t.Run("valid session resolves", func(t *testing.T) {
		t.Parallel()

		sess := newSession(nil)
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)
		store.On("TouchSession", mock.Anything, sess.ID, mock.Anything).Return(nil)

		manager := auth.NewManager(store)
		sc, err := manager.Validate(context.Background(), sess.ID, "", fp)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, sc.SessionID)
		assert.Equal(t, sess.UserID, sc.UserID)
		assert.Equal(t, roles.User, sc.Role)
		assert.False(t, sc.FingerprintMismatch)
		store.AssertExpectations(t)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, mock.Anything).Return(nil, auth.ErrSessionNotFound)

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), uuid.New(), "", fp)
		require.ErrorIs(t, err, auth.ErrSessionNotFound)
	})

	t.Run("expired one second past the window", func(t *testing.T) {
		t.Parallel()

		// Created 24h ago, validated just past expiry.
		sess := newSession(func(s *auth.Session) {
			s.CreatedAt = time.Now().Add(-24*time.Hour - time.Second)
			s.ExpiresAt = s.CreatedAt.Add(24 * time.Hour)
		})
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), sess.ID, "", fp)
		require.ErrorIs(t, err, auth.ErrSessionExpired)
		store.AssertNotCalled(t, "TouchSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired takes precedence over inactive", func(t *testing.T) {
		t.Parallel()

		sess := newSession(func(s *auth.Session) {
			s.IsActive = false
			s.ExpiresAt = time.Now().Add(-time.Minute)
		})
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), sess.ID, "", fp)
		require.ErrorIs(t, err, auth.ErrSessionExpired)
	})

	t.Run("terminated session", func(t *testing.T) {
		t.Parallel()

		sess := newSession(func(s *auth.Session) { s.IsActive = false })
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), sess.ID, "", fp)
		require.ErrorIs(t, err, auth.ErrSessionInactive)
	})

	t.Run("insufficient role", func(t *testing.T) {
		t.Parallel()

		sess := newSession(nil)
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), sess.ID, roles.Admin, fp)
		require.ErrorIs(t, err, auth.ErrInsufficientPrivilege)
	})

	t.Run("admin satisfies any requirement", func(t *testing.T) {
		t.Parallel()

		sess := newSession(func(s *auth.Session) { s.UserRole = roles.Admin })
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)
		store.On("TouchSession", mock.Anything, sess.ID, mock.Anything).Return(nil)

		manager := auth.NewManager(store)
		sc, err := manager.Validate(context.Background(), sess.ID, roles.Instructor, fp)
		require.NoError(t, err)
		assert.Equal(t, roles.Admin, sc.Role)
	})

	t.Run("fingerprint mismatch is advisory", func(t *testing.T) {
		t.Parallel()

		sess := newSession(func(s *auth.Session) { s.DeviceID = "stored-device" })
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)
		store.On("TouchSession", mock.Anything, sess.ID, mock.Anything).Return(nil)

		manager := auth.NewManager(store)
		sc, err := manager.Validate(context.Background(), sess.ID, "", fp)
		require.NoError(t, err)
		assert.True(t, sc.FingerprintMismatch)
	})

	t.Run("touch failure does not fail validation", func(t *testing.T) {
		t.Parallel()

		sess := newSession(nil)
		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, sess.ID).Return(sess, nil)
		store.On("TouchSession", mock.Anything, sess.ID, mock.Anything).Return(errors.New("write timeout"))

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), sess.ID, "", fp)
		require.NoError(t, err)
	})

	t.Run("fails closed when the store is unreachable", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("GetSession", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: timeout"))

		manager := auth.NewManager(store)
		_, err := manager.Validate(context.Background(), uuid.New(), "", fp)
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	})
}

func TestManagerTerminate(t *testing.T) {
	t.Parallel()

	t.Run("idempotent success", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("TerminateSession", mock.Anything, mock.Anything).Return(nil).Twice()

		manager := auth.NewManager(store)
		id := uuid.New()
		require.NoError(t, manager.Terminate(context.Background(), id))
		require.NoError(t, manager.Terminate(context.Background(), id))
		store.AssertExpectations(t)
	})

	t.Run("surfaces store failure", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("TerminateSession", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

		manager := auth.NewManager(store)
		err := manager.Terminate(context.Background(), uuid.New())
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	})
}

func TestSessionValid(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name string
		sess *auth.Session
		want bool
	}{
		{
			name: "active and within window",
			sess: &auth.Session{IsActive: true, ExpiresAt: now.Add(time.Hour)},
			want: true,
		},
		{
			name: "active but past expiry",
			sess: &auth.Session{IsActive: true, ExpiresAt: now.Add(-time.Second)},
			want: false,
		},
		{
			name: "inactive within window",
			sess: &auth.Session{IsActive: false, ExpiresAt: now.Add(time.Hour)},
			want: false,
		},
		{
			name: "expiry boundary is exclusive",
			sess: &auth.Session{IsActive: true, ExpiresAt: now},
			want: false,
		},
		{
			name: "nil session",
			sess: nil,
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.sess.Valid(now))
		})
	}
}
