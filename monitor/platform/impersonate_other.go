//go:build !linux && !windows
// +build !linux,!windows

package platform

import "fmt"

func impersonate(uid, gid int, fn func() error) error {
	return fmt.Errorf("run as uid %d: %w", uid, ErrUnsupported)
}
