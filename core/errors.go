package core

import "github.com/pkg/errors"

var (
	ErrNotFound = NewNotFoundError("not found")
	// ErrPermissionDenied is returned when the caller does not own the requested resource.
	ErrPermissionDenied = errors.New("permission denied")
)

type notFound struct {
	message string
}

// NewNotFoundError returns an "unknown identifier" error recognized by IsNotFound.
// Packages declare their own sentinels with it, eg. `ErrAttemptNotFound = core.NewNotFoundError("attempt not found")`.
func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (nf notFound) Error() string {
	return nf.message
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// IsNotFound reports whether the root cause of err is a not found error.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*notFound)
	return ok
}

// IsPermissionDenied reports whether the root cause of err is ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Cause(err) == ErrPermissionDenied
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
