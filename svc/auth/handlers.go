package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stepstudio/stepstudio/core"
	"github.com/stepstudio/stepstudio/pkg/clientip"
	"github.com/stepstudio/stepstudio/pkg/cookie"
	"github.com/stepstudio/stepstudio/pkg/fingerprint"
	"github.com/stepstudio/stepstudio/pkg/logger"
	"github.com/stepstudio/stepstudio/pkg/ratelimit"
	"github.com/stepstudio/stepstudio/pkg/roles"
)

// Handler wires the session core to its HTTP surface.
type Handler struct {
	manager       *Manager
	switcher      *RoleSwitcher
	tokens        *TokenService
	cleaner       *Cleaner
	cookies       *cookie.Manager
	limiter       *ratelimit.Limiter
	secureCookies bool
	log           *slog.Logger
}

// NewHandler creates the HTTP handler for the auth surface. limiter guards
// token redemption and may be nil to disable rate limiting.
func NewHandler(
	manager *Manager,
	switcher *RoleSwitcher,
	tokens *TokenService,
	cleaner *Cleaner,
	cookies *cookie.Manager,
	limiter *ratelimit.Limiter,
	cfg Config,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		manager:       manager,
		switcher:      switcher,
		tokens:        tokens,
		cleaner:       cleaner,
		cookies:       cookies,
		limiter:       limiter,
		secureCookies: cfg.SecureCookies,
		log:           log,
	}
}

// Router builds the chi router for mounting at /auth.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.WithSession)

	r.With(h.RequireAuth).Post("/switch-role", h.switchRole)
	r.Post("/logout", h.logout)

	r.Route("/login-tokens", func(r chi.Router) {
		admin := h.RequireRole(roles.Admin)
		r.With(admin).Post("/", h.createToken)
		r.With(admin).Get("/", h.listTokens)
		r.With(admin).Delete("/", h.deleteToken)
		r.Get("/{token}", h.previewToken)
		r.Post("/{token}", h.redeemToken)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Use(h.RequireRole(roles.Admin))
		r.Get("/stats", h.sessionStats)
		r.Get("/{userID}", h.userSessions)
		r.Delete("/{userID}", h.forceLogout)
	})

	return r
}

// mapError translates the domain taxonomy to transport errors. This is the
// only place domain errors meet status codes.
func mapError(err error) core.HTTPError {
	switch {
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrSessionInactive):
		return core.ErrUnauthorized
	case errors.Is(err, ErrInsufficientPrivilege):
		return core.ErrForbidden
	case errors.Is(err, ErrInvalidRole):
		return core.NewHTTPError(http.StatusBadRequest, "invalid_role")
	case errors.Is(err, ErrTokenNotFound):
		return core.NewHTTPError(http.StatusNotFound, "token_not_found")
	case errors.Is(err, ErrTokenInactive):
		return core.NewHTTPError(http.StatusForbidden, "token_inactive")
	case errors.Is(err, ErrTokenExpired):
		return core.NewHTTPError(http.StatusForbidden, "token_expired")
	case errors.Is(err, ErrTokenExhausted):
		return core.NewHTTPError(http.StatusForbidden, "token_exhausted")
	case errors.Is(err, ErrStoreUnavailable):
		return core.ErrServiceUnavailable
	default:
		return core.ErrInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var valErr core.ValidationError
	if errors.As(err, &valErr) {
		core.JSONError(w, valErr)
		return
	}
	core.JSONError(w, mapError(err))
}

// setSessionCookies emits the canonical session handle plus the
// informational mirrors. Called only after the session row is durably
// committed.
func (h *Handler) setSessionCookies(w http.ResponseWriter, sess *Session) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	opts := []cookie.Option{
		cookie.WithMaxAge(maxAge),
		cookie.WithSecure(h.secureCookies),
	}

	h.cookies.SetSigned(w, CookieSessionID, sess.ID.String(), opts...)
	h.cookies.Set(w, CookieUserID, sess.UserID.String(), opts...)
	h.cookies.Set(w, CookieUserRole, string(sess.UserRole), opts...)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.cookies.Delete(w, CookieSessionID)
	h.cookies.Delete(w, CookieUserID)
	h.cookies.Delete(w, CookieUserRole)
}

type switchRoleRequest struct {
	TargetRole string `json:"target_role"`
}

func (h *Handler) switchRole(w http.ResponseWriter, r *http.Request) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}

	var req switchRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	target, valid := roles.Parse(req.TargetRole)
	if !valid {
		h.respondError(w, ErrInvalidRole)
		return
	}

	sess, switched, err := h.switcher.Switch(r.Context(), sc, target, fingerprint.Compute(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	if switched {
		h.setSessionCookies(w, sess)
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID.String(),
		"role":       string(sess.UserRole),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sc, ok := SessionFromContext(r.Context()); ok {
		if err := h.manager.Terminate(r.Context(), sc.SessionID); err != nil {
			h.respondError(w, err)
			return
		}
	}

	// Cookies are cleared even for anonymous callers so a stale browser
	// state always resolves to logged out.
	h.clearSessionCookies(w)
	core.JSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

type createTokenRequest struct {
	Name         string         `json:"name"`
	Purpose      string         `json:"purpose"`
	MaxUses      *int32         `json:"max_uses"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	AllowedRoles []string       `json:"allowed_roles"`
	Metadata     map[string]any `json:"metadata"`
}

type tokenResponse struct {
	ID           uuid.UUID      `json:"id"`
	Token        string         `json:"token,omitempty"`
	LoginURL     string         `json:"login_url,omitempty"`
	Name         string         `json:"name"`
	Purpose      string         `json:"purpose"`
	MaxUses      *int32         `json:"max_uses"`
	UsedCount    int32          `json:"used_count"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	AllowedRoles []string       `json:"allowed_roles"`
	IsActive     bool           `json:"is_active"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	LastUsedAt   *time.Time     `json:"last_used_at"`
	LastUsedIP   string         `json:"last_used_ip,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

func toTokenResponse(t LoginToken) tokenResponse {
	return tokenResponse{
		ID:           t.ID,
		Name:         t.Name,
		Purpose:      t.Purpose,
		MaxUses:      t.MaxUses,
		UsedCount:    t.UsedCount,
		ExpiresAt:    t.ExpiresAt,
		AllowedRoles: roleStrings(t.AllowedRoles),
		IsActive:     t.IsActive,
		Metadata:     t.Metadata,
		LastUsedAt:   t.LastUsedAt,
		LastUsedIP:   t.LastUsedIP,
		CreatedAt:    t.CreatedAt,
	}
}

func roleStrings(rs []roles.Role) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, string(r))
	}
	return out
}

func (h *Handler) createToken(w http.ResponseWriter, r *http.Request) {
	sc, _ := SessionFromContext(r.Context())

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	in := IssueTokenInput{
		Name:      req.Name,
		Purpose:   req.Purpose,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Metadata:  req.Metadata,
	}
	for _, s := range req.AllowedRoles {
		role, valid := roles.Parse(s)
		if !valid {
			core.JSONError(w, core.ValidationError{"allowed_roles": {"unknown role " + s}})
			return
		}
		in.AllowedRoles = append(in.AllowedRoles, role)
	}

	issued, err := h.tokens.Issue(r.Context(), sc.UserID, in)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := toTokenResponse(issued.LoginToken)
	resp.Token = issued.Token
	resp.LoginURL = issued.LoginURL
	core.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := TokenFilter{
		Search:  q.Get("search"),
		Purpose: q.Get("purpose"),
		Limit:   parseIntDefault(q.Get("limit"), 50),
		Offset:  parseIntDefault(q.Get("offset"), 0),
	}
	if v := q.Get("active"); v != "" {
		active := v == "true" || v == "1"
		filter.Active = &active
	}

	items, total, err := h.tokens.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]tokenResponse, 0, len(items))
	for _, item := range items {
		resp := toTokenResponse(item.LoginToken)
		usage := item.Usage
		resp.Usage = &usage
		out = append(out, resp)
	}

	core.JSONWithMeta(w, http.StatusOK, out, map[string]any{
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

type deleteTokenRequest struct {
	TokenID uuid.UUID `json:"token_id"`
}

func (h *Handler) deleteToken(w http.ResponseWriter, r *http.Request) {
	sc, _ := SessionFromContext(r.Context())

	var req deleteTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TokenID == uuid.Nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	if err := h.tokens.Delete(r.Context(), sc.UserID, req.TokenID); err != nil {
		h.respondError(w, err)
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) previewToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokens.CheckRedeemable(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	// The capability string is never echoed back on preview.
	core.JSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"data":  toTokenResponse(*token),
	})
}

type redeemRequest struct {
	Email         string `json:"email"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason"`
}

func (h *Handler) redeemToken(w http.ResponseWriter, r *http.Request) {
	if !h.allowRedeem(r) {
		core.JSONError(w, core.ErrTooManyRequests)
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}
	if req.Email == "" {
		core.JSONError(w, core.ValidationError{"email": {"is required"}})
		return
	}

	attempt, err := h.tokens.RecordAttempt(r.Context(), chi.URLParam(r, "token"), AttemptInput{
		Email:         req.Email,
		Success:       req.Success,
		FailureReason: req.FailureReason,
	}, fingerprint.Compute(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{"attempt_id": attempt.ID.String()})
}

// allowRedeem applies the per-IP redemption rate limit. A failing limiter
// store fails open: rate limiting is advisory and must not take the login
// path down with it.
func (h *Handler) allowRedeem(r *http.Request) bool {
	if h.limiter == nil {
		return true
	}

	ok, err := h.limiter.Allow(r.Context(), "redeem:"+clientip.GetIP(r))
	if err != nil {
		h.log.WarnContext(r.Context(), "redemption rate limiter unavailable",
			logger.Component("auth"),
			logger.Error(err),
		)
		return true
	}
	return ok
}

type sessionResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	UserRole       string    `json:"user_role"`
	DeviceID       string    `json:"device_id"`
	DeviceInfo     string    `json:"device_info"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

func (h *Handler) sessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cleaner.Stats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	core.JSON(w, http.StatusOK, stats)
}

func (h *Handler) userSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	sessions, err := h.cleaner.UserSessionDetails(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:             s.ID,
			UserID:         s.UserID,
			UserRole:       string(s.UserRole),
			DeviceID:       s.DeviceID,
			DeviceInfo:     s.DeviceInfo,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			IsActive:       s.IsActive,
			CreatedAt:      s.CreatedAt,
			ExpiresAt:      s.ExpiresAt,
			LastAccessedAt: s.LastAccessedAt,
		})
	}
	core.JSON(w, http.StatusOK, out)
}

func (h *Handler) forceLogout(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	n, err := h.cleaner.ExpireUserSessions(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	core.JSON(w, http.StatusOK, map[string]any{"terminated": n})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
