// Package apperr defines the sentinel errors shared by the server and the
// client. Handlers map them to HTTP statuses; the client maps statuses back.
package apperr

import "errors"

var (
	// ErrNotFound reports a path absent from the note store.
	ErrNotFound = errors.New("not found")

	// ErrExists reports a create or rename whose destination already exists.
	ErrExists = errors.New("already exists")

	// ErrInvalidPath reports a path that escapes the notebook root or is
	// otherwise malformed.
	ErrInvalidPath = errors.New("invalid path")

	// ErrValidation reports a request body that failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrTooLarge reports an upload exceeding the configured size limit.
	ErrTooLarge = errors.New("too large")

	// ErrUnavailable reports that the note store could not be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrSaveRejected reports a write the store declined.
	ErrSaveRejected = errors.New("save rejected")
)
