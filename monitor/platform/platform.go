// Package platform wraps the operating system services a port needs:
// logging a user on, running code under that user's identity, spawning
// commands and asking the interactive user a yes/no question.
package platform

import (
	"errors"
	"os/exec"
	"strings"
)

// Prompt strings shown when a consumer stops reading.
const (
	PromptTitle        = "Multi file port monitor"
	PromptCommandLocks = "User command is locking the spooler. Wait anyway?"
)

// ErrUnsupported is returned for services the platform cannot provide.
var ErrUnsupported = errors.New("not supported on this platform")

// Credential is a logged on user.
type Credential interface {
	// Impersonate runs fn on a locked OS thread under the user's identity
	// and reverts before returning, whatever fn does.
	Impersonate(fn func() error) error
	// Restricted reports that only a filtered token could be obtained.
	Restricted() bool
	// String describes the account, e.g. DOMAIN\user.
	String() string
	Close() error
}

// Platform is the set of OS services used by ports.
type Platform interface {
	Logon(user, domain, password string) (Credential, error)
	// Command prepares cmdline for execution in dir. cred may be nil.
	Command(cmdline, dir string, hidden bool, cred Credential) (*exec.Cmd, error)
	// Confirm asks the interactive user a yes/no question. It returns
	// false when nobody can answer.
	Confirm(title, text string) bool
	ComputerName() string
}

// Native returns the implementation for the running OS.
func Native() Platform {
	return native{}
}

// AccountName joins domain and user the way logs show it. UPN style names
// are returned unchanged.
func AccountName(user, domain string) string {
	if strings.Contains(user, "@") || domain == "" {
		return user
	}
	return domain + `\` + user
}

// splitProgram returns the program part of a command line: the leading
// quoted string, or everything up to the first blank.
func splitProgram(cmdline string) string {
	s := strings.TrimLeft(cmdline, " \t")
	if strings.HasPrefix(s, `"`) {
		if end := strings.IndexByte(s[1:], '"'); end >= 0 {
			return s[1 : end+1]
		}
		return s[1:]
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}
