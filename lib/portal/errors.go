package portal

import (
	"context"
	"errors"
)

var (
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrSessionExpired        = errors.New("session expired")
	ErrPageShapeUnrecognized = errors.New("page shape unrecognized")
	ErrElementTimeout        = errors.New("element timeout")
	ErrDateParseFailure      = errors.New("date parse failure")
	ErrPersistenceConflict   = errors.New("persistence conflict")
)

// Category returns the reason category reported to callers for a failed crawl.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrElementTimeout):
		return "element_timeout"
	case errors.Is(err, ErrPageShapeUnrecognized):
		return "page_shape_unrecognized"
	case errors.Is(err, ErrDateParseFailure):
		return "date_parse_failure"
	case errors.Is(err, ErrPersistenceConflict):
		return "persistence_conflict"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}
	return "internal"
}

// IsSessionLevel reports whether err must abort a crawl rather than skip an item.
func IsSessionLevel(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
