//go:build !windows
// +build !windows

package status

import (
	"errors"
	"io/fs"
)

// native maps the few POSIX failures that have a direct host equivalent.
func native(err error) (uint32, bool) {
	switch {
	case errors.Is(err, fs.ErrExist):
		return uint32(FileExists), true
	case errors.Is(err, fs.ErrNotExist):
		return uint32(FileNotFound), true
	case errors.Is(err, fs.ErrPermission):
		return uint32(AccessDenied), true
	}
	return 0, false
}
