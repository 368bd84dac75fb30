package apperr

import "errors"

// Sentinel errors shared across the engine. Callers test with errors.Is.
var (
	ErrNetwork              = errors.New("network failure")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrEmptyMessage         = errors.New("message needs text or at least one attachment")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotFoundOrExpired    = errors.New("not found or expired")
	ErrEditWindowExceeded   = errors.New("edit window exceeded")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrAlreadyExpired       = errors.New("view-once payload already consumed")
	ErrConversationClosed   = errors.New("conversation closed")
)
