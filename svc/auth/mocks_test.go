package auth_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/stepstudio/stepstudio/svc/auth"
)

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) CreateSession(ctx context.Context, s *auth.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSessionStore) GetSession(ctx context.Context, id uuid.UUID) (*auth.Session, error) {
	args := m.Called(ctx, id)
	if sess := args.Get(0); sess != nil {
		return sess.(*auth.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionStore) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockSessionStore) TerminateSession(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionStore) ReplaceSession(ctx context.Context, oldID uuid.UUID, next *auth.Session) error {
	args := m.Called(ctx, oldID, next)
	return args.Error(0)
}

func (m *mockSessionStore) TerminateUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) ExpireDueSessions(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) PurgeInactiveSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) DeleteOrphanSessions(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) SessionStats(ctx context.Context) (*auth.SessionStats, error) {
	args := m.Called(ctx)
	if stats := args.Get(0); stats != nil {
		return stats.(*auth.SessionStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionStore) UserSessions(ctx context.Context, userID uuid.UUID) ([]auth.Session, error) {
	args := m.Called(ctx, userID)
	if sessions := args.Get(0); sessions != nil {
		return sessions.([]auth.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) CreateToken(ctx context.Context, t *auth.LoginToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockTokenStore) TokenByValue(ctx context.Context, value string) (*auth.LoginToken, error) {
	args := m.Called(ctx, value)
	if token := args.Get(0); token != nil {
		return token.(*auth.LoginToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokenStore) ListTokens(ctx context.Context, filter auth.TokenFilter) ([]auth.TokenWithUsage, int64, error) {
	args := m.Called(ctx, filter)
	if items := args.Get(0); items != nil {
		return items.([]auth.TokenWithUsage), args.Get(1).(int64), args.Error(2)
	}
	return nil, args.Get(1).(int64), args.Error(2)
}

func (m *mockTokenStore) DeleteToken(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTokenStore) RecordAttempt(ctx context.Context, attempt *auth.LoginAttempt, consumeUse bool) error {
	args := m.Called(ctx, attempt, consumeUse)
	return args.Error(0)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) UserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if user := args.Get(0); user != nil {
		return user.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}
