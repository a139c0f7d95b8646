package port

import (
	"fmt"
	"strings"

	"github.com/lomo74/mfilemon/monitor/pattern"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/status"
)

// MaxWaitTimeout is the largest wait timeout in seconds; a larger value
// would overflow a millisecond DWORD.
const MaxWaitTimeout = 4294967

// DefaultWaitTimeout is used when the stored configuration has none.
const DefaultWaitTimeout = 10

// Config is the configuration of one port.
type Config struct {
	Name            string `json:"name" toml:"name"`
	OutputPath      string `json:"output_path" toml:"output_path"`
	FilePattern     string `json:"file_pattern" toml:"file_pattern"`
	Overwrite       bool   `json:"overwrite" toml:"overwrite"`
	UserCommand     string `json:"user_command" toml:"user_command"`
	ExecPath        string `json:"exec_path" toml:"exec_path"`
	WaitTermination bool   `json:"wait_termination" toml:"wait_termination"`
	// WaitTimeout is in seconds; 0 waits forever.
	WaitTimeout uint32 `json:"wait_timeout" toml:"wait_timeout"`
	PipeData    bool   `json:"pipe_data" toml:"pipe_data"`
	HideProcess bool   `json:"hide_process" toml:"hide_process"`
	User        string `json:"user,omitempty" toml:"user"`
	Domain      string `json:"domain,omitempty" toml:"domain"`
	Password    string `json:"-" toml:"-"`
}

// DefaultConfig returns the configuration a freshly added port gets.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		FilePattern: pattern.DefaultFilePattern,
		UserCommand: pattern.DefaultUserCommand,
		WaitTimeout: DefaultWaitTimeout,
		HideProcess: true,
	}
}

// Normalize applies the same clean up the port does when it takes a
// configuration: trimmed credentials, a default domain, a default file
// pattern and a capped timeout.
func (c Config) Normalize() Config {
	c.User = strings.TrimSpace(c.User)
	c.Domain = strings.TrimSpace(c.Domain)
	if c.Domain == "" {
		c.Domain = "."
	}
	if c.FilePattern == "" {
		c.FilePattern = pattern.DefaultFilePattern
	}
	if c.WaitTimeout > MaxWaitTimeout {
		c.WaitTimeout = MaxWaitTimeout
	}
	return c
}

// Validate checks the port name and parses both patterns. An empty output
// path is accepted: a freshly added port has none until it is configured.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("port name is empty: %w", status.ErrInvalidParameter)
	}
	if strings.ContainsAny(c.Name, `\,`) {
		return fmt.Errorf("port name %q contains a reserved character: %w", c.Name, status.ErrInvalidParameter)
	}
	return c.ValidatePatterns()
}

// ValidatePatterns parses the file pattern and the user command.
func (c Config) ValidatePatterns() error {
	fp := c.FilePattern
	if fp == "" {
		fp = pattern.DefaultFilePattern
	}
	if _, err := pattern.Parse(fp, false, nil); err != nil {
		return fmt.Errorf("port %s: file pattern: %w (%w)", c.Name, err, status.ErrInvalidData)
	}
	if _, err := pattern.Parse(c.UserCommand, true, nil); err != nil {
		return fmt.Errorf("port %s: user command: %w (%w)", c.Name, err, status.ErrInvalidData)
	}
	return nil
}

// Account returns the configured run-as account, or "" when the port runs
// under the spooler's own identity.
func (c Config) Account() string {
	if c.User == "" {
		return ""
	}
	return platform.AccountName(c.User, c.Domain)
}
