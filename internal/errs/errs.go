// Package errs defines the error kinds shared across domains. Domain
// sentinels wrap one of these so transports can map an error to a response
// without knowing every domain.
package errs

import "errors"

var (
	// ErrValidation marks bad input: surfaced immediately, never retried.
	ErrValidation = errors.New("validation error")

	// ErrTransient marks a backend that failed in a way a retry may fix.
	ErrTransient = errors.New("transient backend error")

	// ErrStorageUnavailable marks a persistence failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTimeout marks a call that outlived its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConflict marks a request that clashes with current state.
	ErrConflict = errors.New("conflict")
)

// Storage wraps err as ErrStorageUnavailable unless it already is, or is nil.
func Storage(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return &kindError{kind: ErrStorageUnavailable, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}
