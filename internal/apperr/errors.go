// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidPath   = errors.New("invalid path")

	// ErrInvalidDepth is returned for local graph depths outside 1..3.
	ErrInvalidDepth = errors.New("invalid depth")
	// ErrIndexInconsistent means the incoming and outgoing tables disagree.
	// The engine recovers from it with a full rebuild; it is never surfaced.
	ErrIndexInconsistent = errors.New("index inconsistent")
	ErrClosed            = errors.New("engine closed")
)

// IsClientError reports whether err is caused by the request itself rather
// than by the engine.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidDepth)
}
