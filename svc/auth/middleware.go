package auth

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stepstudio/stepstudio/core"
	"github.com/stepstudio/stepstudio/pkg/fingerprint"
	"github.com/stepstudio/stepstudio/pkg/roles"
)

// Cookie names. session_id is the single canonical session handle; user_id
// and user_role are informational mirrors for the frontend.
const (
	CookieSessionID = "session_id"
	CookieUserID    = "user_id"
	CookieUserRole  = "user_role"
)

// WithSession resolves the session cookie into a SessionContext and stores
// it on the request context. Resolution failures leave the request
// anonymous; enforcement belongs to RequireAuth/RequireRole so public
// routes share this middleware.
func (h *Handler) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, err := h.cookies.GetSigned(r, CookieSessionID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		sessionID, err := uuid.Parse(value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		sc, err := h.manager.Validate(r.Context(), sessionID, "", fingerprint.Compute(r))
		if err != nil {
			// Invalid, expired or unreachable store: fail closed into an
			// anonymous request.
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSessionContext(r.Context(), sc)))
	})
}

// RequireAuth rejects anonymous requests with 401.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			core.JSONError(w, core.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose session role does not satisfy the
// requirement: 401 when anonymous, 403 otherwise.
func (h *Handler) RequireRole(required roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc, ok := SessionFromContext(r.Context())
			if !ok {
				core.JSONError(w, core.ErrUnauthorized)
				return
			}
			if !sc.Role.Satisfies(required) {
				core.JSONError(w, core.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
