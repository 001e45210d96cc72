package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stepstudio/stepstudio/core"
	"github.com/stepstudio/stepstudio/pkg/audit"
	"github.com/stepstudio/stepstudio/pkg/fingerprint"
	"github.com/stepstudio/stepstudio/pkg/logger"
	"github.com/stepstudio/stepstudio/pkg/roles"
)

// tokenEntropyBytes sizes the random token value; 32 bytes gives a 43-char
// base64url string.
const tokenEntropyBytes = 32

// TokenService issues, validates and tracks limited-use login tokens.
// Issuance is restricted to admins by the callers' session validation, not
// re-checked here.
type TokenService struct {
	tokens  TokenStore
	baseURL string
	log     *slog.Logger
	sink    audit.Sink
}

// TokenServiceOption configures the TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenLogger sets a custom logger.
func WithTokenLogger(log *slog.Logger) TokenServiceOption {
	return func(s *TokenService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTokenAuditSink sets the audit sink for issuance/redemption events.
func WithTokenAuditSink(sink audit.Sink) TokenServiceOption {
	return func(s *TokenService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// NewTokenService creates a TokenService. baseURL is the public origin used
// to build redemption links.
func NewTokenService(tokens TokenStore, baseURL string, opts ...TokenServiceOption) *TokenService {
	s := &TokenService{
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		sink:    audit.NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a high-entropy token value and persists the token row with
// used_count=0 and is_active=true. Returns the token plus its redemption URL.
func (s *TokenService) Issue(ctx context.Context, issuerID uuid.UUID, in IssueTokenInput) (*IssuedToken, error) {
	if err := validateIssueInput(in); err != nil {
		return nil, err
	}

	allowed := in.AllowedRoles
	if len(allowed) == 0 {
		allowed = []roles.Role{roles.User}
	}

	value, err := generateTokenValue()
	if err != nil {
		return nil, fmt.Errorf("generate token value: %w", err)
	}

	token := &LoginToken{
		ID:              uuid.New(),
		Token:           value,
		Name:            in.Name,
		Purpose:         in.Purpose,
		CreatedByUserID: issuerID,
		MaxUses:         in.MaxUses,
		UsedCount:       0,
		ExpiresAt:       in.ExpiresAt,
		AllowedRoles:    allowed,
		IsActive:        true,
		Metadata:        in.Metadata,
		CreatedAt:       time.Now(),
	}

	if err := s.tokens.CreateToken(ctx, token); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	audit.Record(ctx, s.sink, "login_token.issued",
		audit.WithUser(issuerID.String()),
		audit.WithMetadata("token_id", token.ID.String()),
		audit.WithMetadata("purpose", token.Purpose),
	)

	return &IssuedToken{
		LoginToken: *token,
		LoginURL:   s.baseURL + "/login/token/" + value,
	}, nil
}

// CheckRedeemable reports whether the token can currently be redeemed.
// Pure read, safe to call repeatedly (link previews poll it). Failure
// reasons follow a fixed precedence: not found, inactive, expired,
// exhausted.
func (s *TokenService) CheckRedeemable(ctx context.Context, value string) (*LoginToken, error) {
	token, err := s.tokens.TokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if reason := token.RedeemableErr(time.Now()); reason != nil {
		return nil, reason
	}
	return token, nil
}

// RecordAttempt appends an attempt row for the token, regardless of outcome.
// A successful redemption additionally consumes one use atomically with the
// attempt insert; if the consume is rejected (raced to exhaustion, expired
// meanwhile, deactivated) the attempt is recorded as failed with the precise
// reason and that reason is returned.
func (s *TokenService) RecordAttempt(ctx context.Context, value string, in AttemptInput, fp fingerprint.Fingerprint) (*LoginAttempt, error) {
	token, err := s.tokens.TokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	attempt := &LoginAttempt{
		ID:            uuid.New(),
		TokenID:       token.ID,
		Email:         in.Email,
		Success:       in.Success,
		FailureReason: in.FailureReason,
		IPAddress:     fp.IPAddress,
		UserAgent:     fp.UserAgent,
		CreatedAt:     time.Now(),
	}

	if in.Success {
		err := s.tokens.RecordAttempt(ctx, attempt, true)
		switch {
		case err == nil:
			s.auditAttempt(ctx, token, attempt, nil)
			return attempt, nil
		case isRedeemabilityErr(err):
			// Consume rejected: downgrade to a failed attempt so the trail
			// still shows what happened, then surface the reason.
			attempt.Success = false
			attempt.FailureReason = err.Error()
			if recErr := s.tokens.RecordAttempt(ctx, attempt, false); recErr != nil {
				s.log.ErrorContext(ctx, "failed to record downgraded login attempt",
					logger.TokenID(token.ID.String()),
					logger.Error(recErr),
				)
			}
			s.auditAttempt(ctx, token, attempt, err)
			return attempt, err
		default:
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	if err := s.tokens.RecordAttempt(ctx, attempt, false); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	s.auditAttempt(ctx, token, attempt, nil)
	return attempt, nil
}

// List returns a filtered page of tokens with usage statistics.
func (s *TokenService) List(ctx context.Context, filter TokenFilter) ([]TokenWithUsage, int64, error) {
	items, total, err := s.tokens.ListTokens(ctx, filter)
	if err != nil {
		return nil, 0, errors.Join(ErrStoreUnavailable, err)
	}
	return items, total, nil
}

// Delete removes a token and its attempt trail.
func (s *TokenService) Delete(ctx context.Context, adminID, tokenID uuid.UUID) error {
	if err := s.tokens.DeleteToken(ctx, tokenID); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrTokenNotFound
		}
		return errors.Join(ErrStoreUnavailable, err)
	}

	audit.Record(ctx, s.sink, "login_token.deleted",
		audit.WithUser(adminID.String()),
		audit.WithMetadata("token_id", tokenID.String()),
	)
	return nil
}

func (s *TokenService) auditAttempt(ctx context.Context, token *LoginToken, attempt *LoginAttempt, reason error) {
	opts := []audit.EventOption{
		audit.WithConnection(attempt.IPAddress, attempt.UserAgent),
		audit.WithMetadata("token_id", token.ID.String()),
		audit.WithMetadata("email", attempt.Email),
	}
	if reason != nil {
		opts = append(opts, audit.WithError(reason))
	} else if !attempt.Success {
		opts = append(opts, audit.WithError(errors.New(attempt.FailureReason)))
	}
	audit.Record(ctx, s.sink, "login_token.attempt", opts...)
}

func isRedeemabilityErr(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenInactive) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenExhausted)
}

func validateIssueInput(in IssueTokenInput) error {
	errs := core.ValidationError{}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		errs["max_uses"] = append(errs["max_uses"], "must be positive")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(time.Now()) {
		errs["expires_at"] = append(errs["expires_at"], "must be in the future")
	}
	for _, r := range in.AllowedRoles {
		if !r.Valid() {
			errs["allowed_roles"] = append(errs["allowed_roles"], fmt.Sprintf("unknown role %q", r))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func generateTokenValue() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
