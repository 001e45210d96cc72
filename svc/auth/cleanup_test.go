package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stepstudio/stepstudio/svc/auth"
)

func TestCleanerRunOnce(t *testing.T) {
	t.Parallel()

	t.Run("reports per-phase counts", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("ExpireDueSessions", mock.Anything, mock.Anything).Return(int64(4), nil)
		store.On("PurgeInactiveSessions", mock.Anything, mock.Anything).Return(int64(2), nil)
		store.On("DeleteOrphanSessions", mock.Anything).Return(int64(1), nil)

		cleaner := auth.NewCleaner(store)
		report, err := cleaner.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, auth.CleanupReport{Expired: 4, Purged: 2, Orphans: 1}, report)
		store.AssertExpectations(t)
	})

	t.Run("second run with no activity changes nothing", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("ExpireDueSessions", mock.Anything, mock.Anything).Return(int64(3), nil).Once()
		store.On("PurgeInactiveSessions", mock.Anything, mock.Anything).Return(int64(1), nil).Once()
		store.On("DeleteOrphanSessions", mock.Anything).Return(int64(0), nil).Once()
		store.On("ExpireDueSessions", mock.Anything, mock.Anything).Return(int64(0), nil).Once()
		store.On("PurgeInactiveSessions", mock.Anything, mock.Anything).Return(int64(0), nil).Once()
		store.On("DeleteOrphanSessions", mock.Anything).Return(int64(0), nil).Once()

		cleaner := auth.NewCleaner(store)

		first, err := cleaner.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), first.Expired)

		second, err := cleaner.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, auth.CleanupReport{}, second)
	})

	t.Run("a failing phase does not stop the others", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("ExpireDueSessions", mock.Anything, mock.Anything).Return(int64(0), errors.New("lock timeout"))
		store.On("PurgeInactiveSessions", mock.Anything, mock.Anything).Return(int64(5), nil)
		store.On("DeleteOrphanSessions", mock.Anything).Return(int64(2), nil)

		cleaner := auth.NewCleaner(store)
		report, err := cleaner.RunOnce(context.Background())
		require.Error(t, err)
		assert.Equal(t, int64(5), report.Purged)
		assert.Equal(t, int64(2), report.Orphans)
		store.AssertExpectations(t)
	})
}

func TestCleanerExpireUserSessions(t *testing.T) {
	t.Parallel()

	t.Run("force logout across devices", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		store := new(mockSessionStore)
		store.On("TerminateUserSessions", mock.Anything, userID).Return(int64(3), nil)

		cleaner := auth.NewCleaner(store)
		n, err := cleaner.ExpireUserSessions(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		store := new(mockSessionStore)
		store.On("TerminateUserSessions", mock.Anything, mock.Anything).Return(int64(0), errors.New("down"))

		cleaner := auth.NewCleaner(store)
		_, err := cleaner.ExpireUserSessions(context.Background(), uuid.New())
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	})
}

func TestCleanerStats(t *testing.T) {
	t.Parallel()

	store := new(mockSessionStore)
	store.On("SessionStats", mock.Anything).Return(&auth.SessionStats{
		Total:    10,
		Active:   6,
		Expired:  1,
		Inactive: 3,
	}, nil)

	cleaner := auth.NewCleaner(store)
	stats, err := cleaner.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Active)
}
