package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is a wrapper around system errno codes, with a customizable error message.
//
// Two errors are considered the same by [errors.Is] if they carry the same errno,
// regardless of their message. The message is diagnostic only.
//
// [errors.Is] also walks the causes added with Wrap, so an EIO error wrapping an
// EINVAL cause matches both. Use [ErrnoOf], [IsFormatInvalid] or
// [IsOperationalFailure] to classify an error by its outermost errno.
type DriverError interface {
	error
	Errno() Errno
	Unwrap() error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type driverError struct {
	errno         Errno
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return StrError(e.errno)
}

func (e driverError) Errno() Errno {
	return e.errno
}

func (e driverError) Unwrap() error {
	return e.originalError
}

// Is reports whether `target` is a [DriverError] with the same errno code. It
// only looks at this error; wrapped causes are checked separately by [errors.Is].
func (e driverError) Is(target error) bool {
	other, ok := target.(DriverError)
	if !ok {
		return false
	}
	return other.Errno() == e.errno
}

// WithMessage returns a copy of the error with `message` appended to the
// existing one. The errno is unchanged.
func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e.originalError,
	}
}

// Wrap returns a copy of the error that also has `err` as a cause, so that
// [errors.Is] and [errors.As] find both.
func (e driverError) Wrap(err error) DriverError {
	var causes error
	if e.originalError != nil {
		causes = multierror.Append(e.originalError, err)
	} else {
		causes = multierror.Append(nil, err)
	}

	return driverError{
		errno:         e.errno,
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: causes,
	}
}

// New creates a new [DriverError] with a default message derived from the
// system's error code.
func New(errnoCode Errno) DriverError {
	return driverError{
		errno:   errnoCode,
		message: StrError(errnoCode),
	}
}

func NewFromError(errnoCode Errno, originalError error) DriverError {
	return New(errnoCode).Wrap(originalError)
}

// NewWithMessage creates a new DriverError from a system error code with a
// custom message.
func NewWithMessage(errnoCode Errno, message string) DriverError {
	return driverError{
		errno:   errnoCode,
		message: fmt.Sprintf("%s: %s", StrError(errnoCode), message),
	}
}

// ErrnoOf returns the errno code of the first [DriverError] in `err`'s chain.
// Errors that aren't driver errors are reported as [EIO].
func ErrnoOf(err error) Errno {
	if err == nil {
		return EOK
	}

	var drvErr DriverError
	if stderrors.As(err, &drvErr) {
		return drvErr.Errno()
	}
	return EIO
}

// IsFormatInvalid reports whether `err` means the device doesn't hold a
// recognizable file system. This is an expected outcome when probing a device
// of the wrong type, not a malfunction.
func IsFormatInvalid(err error) bool {
	return err != nil && ErrnoOf(err) == EINVAL
}

// IsOperationalFailure reports whether `err` is an I/O or memory failure as
// opposed to a bad on-disk format.
func IsOperationalFailure(err error) bool {
	if err == nil {
		return false
	}
	switch ErrnoOf(err) {
	case EIO, ENOMEM:
		return true
	}
	return false
}
