package internalerr

import "errors"

// Sentinel errors shared across packages. Wrap with fmt.Errorf("...: %w", err)
// and match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmptyQuery        = errors.New("empty query")
	ErrInvalidFilter     = errors.New("invalid metadata filter")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrDuplicateID       = errors.New("unit id already owned by another document")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoContent         = errors.New("no extractable content")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// IsCallerError reports whether err was caused by the caller's input rather
// than by a failing dependency.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidInput)
}
