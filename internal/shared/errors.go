package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("already exists")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers every access-token failure. Callers are not told
	// whether the token never existed, expired, or was revoked.
	ErrInvalidToken = errors.New("invalid or expired credential")
	// ErrSessionInvalid indicates the session cannot be rotated or resolved.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrAuthRequired indicates the request carries no authenticated identity.
	ErrAuthRequired = errors.New("authentication required")
	// ErrPermissionDenied indicates the identity lacks the required permission.
	ErrPermissionDenied = errors.New("insufficient permissions")
)
