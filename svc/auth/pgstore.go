package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stepstudio/stepstudio/pkg/pg"
	"github.com/stepstudio/stepstudio/pkg/roles"
)

// PGStore implements SessionStore, TokenStore and UserStore on PostgreSQL.
// Every call runs under a bounded deadline; on timeout the caller observes
// the same failure as unreachability and fails closed.
type PGStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPGStore creates a PGStore. queryTimeout bounds every datastore call;
// zero falls back to 5s.
func NewPGStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PGStore {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &PGStore{pool: pool, queryTimeout: queryTimeout}
}

func (s *PGStore) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

const sessionColumns = `id, user_id, user_role, device_id, device_info, ip_address, user_agent,
	is_active, created_at, expires_at, last_accessed_at`

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var role string
	err := row.Scan(
		&sess.ID, &sess.UserID, &role, &sess.DeviceID, &sess.DeviceInfo,
		&sess.IPAddress, &sess.UserAgent, &sess.IsActive,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.LastAccessedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.UserRole = roles.Role(role)
	return &sess, nil
}

func (s *PGStore) CreateSession(ctx context.Context, sess *Session) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sess.ID, sess.UserID, string(sess.UserRole), sess.DeviceID, sess.DeviceInfo,
		sess.IPAddress, sess.UserAgent, sess.IsActive,
		sess.CreatedAt, sess.ExpiresAt, sess.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PGStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PGStore) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_accessed_at = $2 WHERE id = $1 AND last_accessed_at < $2`, id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *PGStore) TerminateSession(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	// No row matched is still success: termination is idempotent.
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	return nil
}

func (s *PGStore) ReplaceSession(ctx context.Context, oldID uuid.UUID, next *Session) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace session: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, oldID); err != nil {
		return fmt.Errorf("replace session: terminate old: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		next.ID, next.UserID, string(next.UserRole), next.DeviceID, next.DeviceInfo,
		next.IPAddress, next.UserAgent, next.IsActive,
		next.CreatedAt, next.ExpiresAt, next.LastAccessedAt,
	); err != nil {
		return fmt.Errorf("replace session: insert new: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace session: commit: %w", err)
	}
	return nil
}

func (s *PGStore) TerminateUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return 0, fmt.Errorf("terminate user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) ExpireDueSessions(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE is_active AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire due sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) PurgeInactiveSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE NOT is_active AND last_accessed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge inactive sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) DeleteOrphanSessions(ctx context.Context) (int64, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions s WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = s.user_id)`)
	if err != nil {
		return 0, fmt.Errorf("delete orphan sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) SessionStats(ctx context.Context) (*SessionStats, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var stats SessionStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active AND expires_at > NOW()),
			COUNT(*) FILTER (WHERE is_active AND expires_at <= NOW()),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM sessions`).Scan(&stats.Total, &stats.Active, &stats.Expired, &stats.Inactive)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return &stats, nil
}

func (s *PGStore) UserSessions(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("user sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("user sessions: scan: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

const tokenColumns = `id, token, name, purpose, created_by_user_id, max_uses, used_count,
	expires_at, allowed_roles, is_active, metadata, last_used_at, last_used_ip, created_at`

func scanToken(row pgx.Row) (*LoginToken, error) {
	var t LoginToken
	var allowed []string
	var lastUsedIP *string
	err := row.Scan(
		&t.ID, &t.Token, &t.Name, &t.Purpose, &t.CreatedByUserID, &t.MaxUses, &t.UsedCount,
		&t.ExpiresAt, &allowed, &t.IsActive, &t.Metadata, &t.LastUsedAt, &lastUsedIP, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, r := range allowed {
		t.AllowedRoles = append(t.AllowedRoles, roles.Role(r))
	}
	if lastUsedIP != nil {
		t.LastUsedIP = *lastUsedIP
	}
	return &t, nil
}

func rolesToStrings(rs []roles.Role) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, string(r))
	}
	return out
}

func (s *PGStore) CreateToken(ctx context.Context, t *LoginToken) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO login_tokens (id, token, name, purpose, created_by_user_id, max_uses,
			used_count, expires_at, allowed_roles, is_active, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Token, t.Name, t.Purpose, t.CreatedByUserID, t.MaxUses,
		t.UsedCount, t.ExpiresAt, rolesToStrings(t.AllowedRoles), t.IsActive, t.Metadata, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *PGStore) TokenByValue(ctx context.Context, value string) (*LoginToken, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	t, err := scanToken(s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM login_tokens WHERE token = $1`, value))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("token by value: %w", err)
	}
	return t, nil
}

func (s *PGStore) ListTokens(ctx context.Context, filter TokenFilter) ([]TokenWithUsage, int64, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	where := ` WHERE ($1 = '' OR t.name ILIKE '%' || $1 || '%' OR t.purpose ILIKE '%' || $1 || '%')
		AND ($2 = '' OR t.purpose = $2)
		AND ($3::boolean IS NULL OR t.is_active = $3)`

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM login_tokens t`+where,
		filter.Search, filter.Purpose, filter.Active,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("list tokens: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.token, t.name, t.purpose, t.created_by_user_id, t.max_uses, t.used_count,
			t.expires_at, t.allowed_roles, t.is_active, t.metadata, t.last_used_at, t.last_used_ip,
			t.created_at,
			COUNT(a.id), COUNT(a.id) FILTER (WHERE a.success)
		FROM login_tokens t
		LEFT JOIN login_attempts a ON a.token_id = t.id`+where+`
		GROUP BY t.id
		ORDER BY t.created_at DESC
		LIMIT $4 OFFSET $5`,
		filter.Search, filter.Purpose, filter.Active, limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []TokenWithUsage
	for rows.Next() {
		var item TokenWithUsage
		var allowed []string
		var lastUsedIP *string
		if err := rows.Scan(
			&item.ID, &item.Token, &item.Name, &item.Purpose, &item.CreatedByUserID,
			&item.MaxUses, &item.UsedCount, &item.ExpiresAt, &allowed, &item.IsActive,
			&item.Metadata, &item.LastUsedAt, &lastUsedIP, &item.CreatedAt,
			&item.Usage.Attempts, &item.Usage.Successes,
		); err != nil {
			return nil, 0, fmt.Errorf("list tokens: scan: %w", err)
		}
		for _, r := range allowed {
			item.AllowedRoles = append(item.AllowedRoles, roles.Role(r))
		}
		if lastUsedIP != nil {
			item.LastUsedIP = *lastUsedIP
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

func (s *PGStore) DeleteToken(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	// Attempts cascade via the login_attempts.token_id foreign key.
	tag, err := s.pool.Exec(ctx, `DELETE FROM login_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *PGStore) RecordAttempt(ctx context.Context, attempt *LoginAttempt, consumeUse bool) error {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record attempt: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if consumeUse {
		// Conditional increment: the WHERE clause re-checks every
		// redeemability predicate so concurrent redemptions cannot both take
		// the last remaining use. A plain read-then-write here would race.
		tag, err := tx.Exec(ctx, `
			UPDATE login_tokens
			SET used_count = used_count + 1, last_used_at = $2, last_used_ip = $3
			WHERE id = $1
				AND is_active
				AND (expires_at IS NULL OR expires_at > $2)
				AND (max_uses IS NULL OR used_count < max_uses)`,
			attempt.TokenID, attempt.CreatedAt, attempt.IPAddress,
		)
		if err != nil {
			return fmt.Errorf("record attempt: consume use: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// The guard rejected the increment; re-read inside the same
			// transaction to report the precise reason.
			t, err := scanToken(tx.QueryRow(ctx,
				`SELECT `+tokenColumns+` FROM login_tokens WHERE id = $1`, attempt.TokenID))
			if err != nil {
				if pg.IsNotFoundError(err) {
					return ErrTokenNotFound
				}
				return fmt.Errorf("record attempt: reread token: %w", err)
			}
			if reason := t.RedeemableErr(attempt.CreatedAt); reason != nil {
				return reason
			}
			return errors.New("record attempt: consume rejected for unknown reason")
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO login_attempts (id, token_id, email, success, failure_reason, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		attempt.ID, attempt.TokenID, attempt.Email, attempt.Success,
		attempt.FailureReason, attempt.IPAddress, attempt.UserAgent, attempt.CreatedAt,
	); err != nil {
		return fmt.Errorf("record attempt: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("record attempt: commit: %w", err)
	}
	return nil
}

func (s *PGStore) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	var u User
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, role FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &role)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user by id: %w", err)
	}
	u.Role = roles.Role(role)
	return &u, nil
}
