package persistence

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned (possibly wrapped) by drivers when an operation
// uses a feature that the database product does not support.
//
// Operations that fail with this error are never retried.
var ErrUnsupported = errors.New("operation is not supported by this database")

// UnsupportedError wraps a native database error that indicates an
// unsupported feature, such that errors.Is(err, ErrUnsupported) is true.
type UnsupportedError struct {
	// Cause is the native error returned by the database driver.
	Cause error
}

func (e UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupported, e.Cause)
}

// Unwrap returns the native error.
func (e UnsupportedError) Unwrap() error {
	return e.Cause
}

// Is returns true if target is ErrUnsupported.
func (e UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}
