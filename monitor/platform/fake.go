package platform

import (
	"os/exec"
	"sync"
)

// Fake is a scripted Platform for tests. Commands still run through the
// native implementation unless CommandFunc is set.
type Fake struct {
	mu sync.Mutex

	// Answers are returned by successive Confirm calls; once exhausted
	// Confirm returns Default.
	Answers []bool
	Default bool

	LogonErr    error
	Computer    string
	CommandFunc func(cmdline, dir string, hidden bool, cred Credential) (*exec.Cmd, error)

	prompts int
	logons  []string
}

// FakeCredential is the Credential handed out by Fake.
type FakeCredential struct {
	Account      string
	IsRestricted bool
	Impersonated int
	Closed       bool
}

func (c *FakeCredential) Impersonate(fn func() error) error {
	c.Impersonated++
	return fn()
}

func (c *FakeCredential) Restricted() bool { return c.IsRestricted }

func (c *FakeCredential) String() string { return c.Account }

func (c *FakeCredential) Close() error {
	c.Closed = true
	return nil
}

func (f *Fake) Logon(user, domain, password string) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logons = append(f.logons, AccountName(user, domain))
	if f.LogonErr != nil {
		return nil, f.LogonErr
	}
	return &FakeCredential{Account: AccountName(user, domain)}, nil
}

func (f *Fake) Command(cmdline, dir string, hidden bool, cred Credential) (*exec.Cmd, error) {
	if f.CommandFunc != nil {
		return f.CommandFunc(cmdline, dir, hidden, cred)
	}
	// the fake credential cannot switch identity
	if _, ok := cred.(*FakeCredential); ok {
		cred = nil
	}
	return Native().Command(cmdline, dir, hidden, cred)
}

func (f *Fake) Confirm(title, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts++
	if len(f.Answers) > 0 {
		a := f.Answers[0]
		f.Answers = f.Answers[1:]
		return a
	}
	return f.Default
}

func (f *Fake) ComputerName() string {
	if f.Computer == "" {
		return "TESTHOST"
	}
	return f.Computer
}

// Prompts returns how many times Confirm was called.
func (f *Fake) Prompts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

// Logons returns the accounts passed to Logon.
func (f *Fake) Logons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logons...)
}
