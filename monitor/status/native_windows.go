//go:build windows
// +build windows

package status

import (
	"errors"
	"syscall"
)

// native extracts a Win32 error number from syscall failures.
func native(err error) (uint32, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno), true
	}
	return 0, false
}
