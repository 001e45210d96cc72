package auth

import "errors"

// Session and authorization errors
var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionExpired        = errors.New("session expired")
	ErrSessionInactive       = errors.New("session inactive")
	ErrInvalidRole           = errors.New("invalid role")
	ErrUserNotFound          = errors.New("user not found")
)

// Login token errors, ordered by check precedence
var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrTokenInactive  = errors.New("token inactive")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenExhausted = errors.New("token exhausted")
)

// Infrastructure errors. Store failures always fail closed: callers treat
// the operation as unauthenticated/invalid, never as allowed.
var ErrStoreUnavailable = errors.New("datastore unavailable")
