// This is a compatibility shim for POSIX-defined errno codes across platforms.
// The syscall package doesn't define all the values we need on all systems,
// particularly things like EUCLEAN. Values match Linux so that codes printed
// in diagnostics line up with what the kernel driver reports.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK         Errno = 0
	EPERM       Errno = 1
	ENOENT      Errno = 2
	EIO         Errno = 5
	EBADF       Errno = 9
	EAGAIN      Errno = 11
	ENOMEM      Errno = 12
	EACCES      Errno = 13
	EBUSY       Errno = 16
	EEXIST      Errno = 17
	ENODEV      Errno = 19
	ENOTDIR     Errno = 20
	EISDIR      Errno = 21
	EINVAL      Errno = 22
	EFBIG       Errno = 27
	ENOSPC      Errno = 28
	EROFS       Errno = 30
	ERANGE      Errno = 34
	ENOSYS      Errno = 38
	EOVERFLOW   Errno = 75
	ENOTSUP     Errno = 95
	EALREADY    Errno = 114
	EUCLEAN     Errno = 117
	EMEDIUMTYPE Errno = 124
)

var errorMessagesByCode = map[Errno]string{
	EPERM:       "Operation not permitted",
	ENOENT:      "No such file or directory",
	EIO:         "Input/output error",
	EBADF:       "Bad file descriptor",
	EAGAIN:      "Resource temporarily unavailable",
	ENOMEM:      "Cannot allocate memory",
	EACCES:      "Permission denied",
	EBUSY:       "Device or resource busy",
	EEXIST:      "File exists",
	ENODEV:      "No such device",
	ENOTDIR:     "Not a directory",
	EISDIR:      "Is a directory",
	EINVAL:      "Invalid argument",
	EFBIG:       "File too large",
	ENOSPC:      "No space left on device",
	EROFS:       "Read-only file system",
	ERANGE:      "Numerical result out of range",
	ENOSYS:      "Function not implemented",
	EOVERFLOW:   "Value too large for defined data type",
	ENOTSUP:     "Operation not supported",
	EALREADY:    "Operation already in progress",
	EUCLEAN:     "Structure needs cleaning",
	EMEDIUMTYPE: "Wrong medium type",
}

var ErrNotPermitted = New(EPERM)
var ErrNotFound = New(ENOENT)
var ErrIOFailed = New(EIO)
var ErrNoMemory = New(ENOMEM)
var ErrBusy = New(EBUSY)
var ErrExists = New(EEXIST)
var ErrNoDevice = New(ENODEV)
var ErrNotADirectory = New(ENOTDIR)
var ErrIsADirectory = New(EISDIR)
var ErrInvalidArgument = New(EINVAL)
var ErrFileTooLarge = New(EFBIG)
var ErrNoSpaceOnDevice = New(ENOSPC)
var ErrReadOnlyFileSystem = New(EROFS)
var ErrResultOutOfRange = New(ERANGE)
var ErrNotImplemented = New(ENOSYS)
var ErrOverflow = New(EOVERFLOW)
var ErrNotSupported = New(ENOTSUP)
var ErrAlreadyInProgress = New(EALREADY)
var ErrFileSystemCorrupted = New(EUCLEAN)
var ErrInvalidFileSystem = New(EMEDIUMTYPE)

func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
