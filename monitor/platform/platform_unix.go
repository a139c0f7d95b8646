//go:build !windows
// +build !windows

package platform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"syscall"
)

type native struct{}

// unixCredential is a local account resolved by name. A supplied password
// is checked by checkPassword; without one, the ability to switch identity
// decides whether the account can be used.
type unixCredential struct {
	name string
	uid  int
	gid  int
}

func (native) Logon(name, domain, password string) (Credential, error) {
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("logon %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("logon %s: uid %q: %w", name, u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("logon %s: gid %q: %w", name, u.Gid, err)
	}
	if uid != os.Geteuid() && os.Geteuid() != 0 {
		return nil, fmt.Errorf("logon %s: %w", name, os.ErrPermission)
	}
	if password != "" {
		if err := checkPassword(name, password); err != nil {
			return nil, fmt.Errorf("logon %s: %w", name, err)
		}
	}
	return &unixCredential{name: name, uid: uid, gid: gid}, nil
}

func (c *unixCredential) Impersonate(fn func() error) error {
	if c.uid == os.Geteuid() {
		return fn()
	}
	return impersonate(c.uid, c.gid, fn)
}

func (c *unixCredential) Restricted() bool { return false }

func (c *unixCredential) String() string { return c.name }

func (c *unixCredential) Close() error { return nil }

func (native) Command(cmdline, dir string, hidden bool, cred Credential) (*exec.Cmd, error) {
	if strings.TrimSpace(cmdline) == "" {
		return nil, errors.New("empty command line")
	}
	cmd := exec.Command("/bin/sh", "-c", cmdline)
	cmd.Dir = dir
	if uc, ok := cred.(*unixCredential); ok && uc.uid != os.Geteuid() {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{Uid: uint32(uc.uid), Gid: uint32(uc.gid)},
		}
	}
	return cmd, nil
}

// Confirm has nobody to ask: a spooler backend runs without a terminal.
func (native) Confirm(title, text string) bool {
	return false
}

func (native) ComputerName() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}
