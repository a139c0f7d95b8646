//go:build linux
// +build linux

package platform

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// fsids reports the filesystem uid and gid of the current thread. Passing
// -1 leaves them unchanged and returns the current values.
func fsids() (uid, gid int) {
	uid, _ = unix.SetfsuidRetUid(-1)
	gid, _ = unix.SetfsgidRetGid(-1)
	return uid, gid
}

// impersonate switches the filesystem identity of the current thread.
// Linux checks file access against fsuid/fsgid, which are per thread.
func impersonate(uid, gid int, fn func() error) error {
	runtime.LockOSThread()

	prevGid, _ := unix.SetfsgidRetGid(gid)
	prevUid, _ := unix.SetfsuidRetUid(uid)
	if cur, _ := fsids(); cur != uid {
		unix.SetfsuidRetUid(prevUid)
		unix.SetfsgidRetGid(prevGid)
		runtime.UnlockOSThread()
		return fmt.Errorf("switch filesystem uid to %d: %w", uid, unix.EPERM)
	}

	defer func() {
		unix.SetfsuidRetUid(prevUid)
		unix.SetfsgidRetGid(prevGid)
		if cur, _ := fsids(); cur != prevUid {
			// leave the thread locked; it is discarded with the goroutine
			return
		}
		runtime.UnlockOSThread()
	}()
	return fn()
}
