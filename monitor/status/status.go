// Package status carries host status numbers through Go errors.
//
// The print spooler reads failures from the thread's last-error slot, so
// every failure that reaches the host boundary must resolve to one of the
// Windows error numbers below.
package status

import (
	"errors"
	"fmt"
)

// Code is a Windows error number usable as an error value.
type Code uint32

const (
	Success            Code = 0
	FileNotFound       Code = 2
	AccessDenied       Code = 5
	InvalidHandle      Code = 6
	OutOfMemory        Code = 14
	NotSupported       Code = 50
	FileExists         Code = 80
	InvalidParameter   Code = 87
	InsufficientBuffer Code = 122
	BadArguments       Code = 160
	InvalidLevel       Code = 124
	AlreadyExists      Code = 183
	Directory          Code = 267
	CanNotComplete     Code = 1003
	FileInvalid        Code = 1006
	LogonFailure       Code = 1326
	InvalidData        Code = 13
)

// Sentinel values to wrap with fmt.Errorf("...: %w", ...).
var (
	ErrFileNotFound       error = FileNotFound
	ErrAccessDenied       error = AccessDenied
	ErrInvalidHandle      error = InvalidHandle
	ErrNotSupported       error = NotSupported
	ErrFileExists         error = FileExists
	ErrInvalidParameter   error = InvalidParameter
	ErrInsufficientBuffer error = InsufficientBuffer
	ErrInvalidLevel       error = InvalidLevel
	ErrAlreadyExists      error = AlreadyExists
	ErrDirectory          error = Directory
	ErrCanNotComplete     error = CanNotComplete
	ErrFileInvalid        error = FileInvalid
	ErrLogonFailure       error = LogonFailure
	ErrBadArguments       error = BadArguments
	ErrInvalidData        error = InvalidData
)

var names = map[Code]string{
	Success:            "success",
	FileNotFound:       "file not found",
	AccessDenied:       "access denied",
	InvalidHandle:      "invalid handle",
	OutOfMemory:        "out of memory",
	NotSupported:       "not supported",
	FileExists:         "file exists",
	InvalidParameter:   "invalid parameter",
	InsufficientBuffer: "insufficient buffer",
	InvalidLevel:       "invalid level",
	AlreadyExists:      "already exists",
	Directory:          "directory name is invalid",
	CanNotComplete:     "cannot complete this function",
	FileInvalid:        "file invalid",
	LogonFailure:       "unknown user name or bad password",
	BadArguments:       "bad arguments",
	InvalidData:        "invalid data",
}

func (c Code) Error() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("error %d", uint32(c))
}

// Of returns the host status number for err. Nil maps to Success and
// errors without a known number map to CanNotComplete.
func Of(err error) Code {
	if err == nil {
		return Success
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	if n, ok := native(err); ok {
		return Code(n)
	}
	return CanNotComplete
}
