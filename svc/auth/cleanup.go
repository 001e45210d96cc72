package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepstudio/stepstudio/pkg/logger"
)

// Default cadence and retention for the cleanup job.
const (
	DefaultCleanupInterval = time.Hour
	DefaultPurgeAfter      = 30 * 24 * time.Hour
)

// Cleaner sweeps the session table on a schedule, independent of request
// handling. Each phase operates on a disjoint predicate and is idempotent:
// a second run with no intervening activity reports zero changes.
type Cleaner struct {
	sessions   SessionStore
	interval   time.Duration
	purgeAfter time.Duration
	log        *slog.Logger
}

// CleanerOption configures the Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanupInterval overrides the sweep cadence.
func WithCleanupInterval(interval time.Duration) CleanerOption {
	return func(c *Cleaner) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithPurgeAfter overrides how long terminated sessions are retained.
func WithPurgeAfter(retention time.Duration) CleanerOption {
	return func(c *Cleaner) {
		if retention > 0 {
			c.purgeAfter = retention
		}
	}
}

// WithCleanerLogger sets a custom logger.
func WithCleanerLogger(log *slog.Logger) CleanerOption {
	return func(c *Cleaner) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCleaner creates a Cleaner.
func NewCleaner(sessions SessionStore, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		sessions:   sessions,
		interval:   DefaultCleanupInterval,
		purgeAfter: DefaultPurgeAfter,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the sweep immediately and then on every interval tick until
// the context is cancelled. Intended to run in its own goroutine.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if report, err := c.RunOnce(ctx); err != nil {
			c.log.ErrorContext(ctx, "session cleanup failed",
				logger.Component("cleanup"),
				logger.Error(err),
			)
		} else {
			c.log.InfoContext(ctx, "session cleanup completed",
				logger.Component("cleanup"),
				slog.Int64("expired", report.Expired),
				slog.Int64("purged", report.Purged),
				slog.Int64("orphans", report.Orphans),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one full sweep: expire due sessions, purge long-inactive
// ones, delete orphans. Phases are independent; a failing phase does not
// stop the others, and all failures are joined into the returned error.
func (c *Cleaner) RunOnce(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	var errs []error

	now := time.Now()

	expired, err := c.sessions.ExpireDueSessions(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	report.Expired = expired

	purged, err := c.sessions.PurgeInactiveSessions(ctx, now.Add(-c.purgeAfter))
	if err != nil {
		errs = append(errs, err)
	}
	report.Purged = purged

	orphans, err := c.sessions.DeleteOrphanSessions(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	report.Orphans = orphans

	return report, errors.Join(errs...)
}

// ExpireUserSessions force-terminates every active session of the user
// (administrative force-logout across devices).
func (c *Cleaner) ExpireUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := c.sessions.TerminateUserSessions(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}

	c.log.InfoContext(ctx, "force-terminated user sessions",
		logger.Component("cleanup"),
		logger.UserID(userID.String()),
		slog.Int64("terminated", n),
	)
	return n, nil
}

// Stats summarizes the session table.
func (c *Cleaner) Stats(ctx context.Context) (*SessionStats, error) {
	stats, err := c.sessions.SessionStats(ctx)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return stats, nil
}

// UserSessionDetails returns every session row of one user, newest first.
func (c *Cleaner) UserSessionDetails(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	sessions, err := c.sessions.UserSessions(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return sessions, nil
}
