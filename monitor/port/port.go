// Package port implements one configured output port and the life cycle
// of the jobs printed through it: choosing a file name, writing the data
// to a file or to a user command, and running the command afterwards.
package port

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/monitor/pattern"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/status"
)

// DefaultWriteTimeout is how long a write may block before the operator is
// asked whether to keep waiting.
const DefaultWriteTimeout = 10 * time.Second

// State is the job state of a port.
type State int

const (
	Idle State = iota
	LoggedOn
	JobActive
	FileOpen
	PipeActive
	JobEnding
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoggedOn:
		return "logged-on"
	case JobActive:
		return "job-active"
	case FileOpen:
		return "file-open"
	case PipeActive:
		return "pipe-active"
	case JobEnding:
		return "job-ending"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Env is what a port needs from its surroundings.
type Env struct {
	Spooler  spooler.Spooler
	Platform platform.Platform
	Log      logger.Sink
	// WriteTimeout defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
}

func (e Env) withDefaults() Env {
	if e.Spooler == nil {
		e.Spooler = spooler.NewQueue()
	}
	if e.Platform == nil {
		e.Platform = platform.Native()
	}
	if e.Log == nil {
		e.Log = logger.Discard
	}
	if e.WriteTimeout <= 0 {
		e.WriteTimeout = DefaultWriteTimeout
	}
	return e
}

// Port is one output port. All methods are safe for concurrent use; a
// job's calls are serialized by the port lock.
type Port struct {
	name string

	mu  sync.Mutex
	env Env
	log logger.Sink
	cfg Config

	filePattern *pattern.Pattern
	command     *pattern.Pattern

	state            State
	cred             platform.Credential
	logonInvalidated bool

	job    jobContext
	out    *os.File
	child  *exec.Cmd
	exited chan struct{}
	w      *writer
}

// New creates a port. The configuration is normalized and validated.
func New(cfg Config, env Env) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Port{
		name:             cfg.Name,
		env:              env.withDefaults(),
		logonInvalidated: true,
	}
	p.log = p.env.Log
	if err := p.apply(cfg.Normalize()); err != nil {
		return nil, err
	}
	return p, nil
}

// apply parses the patterns of cfg and installs it. Nothing changes when
// a pattern does not parse.
func (p *Port) apply(cfg Config) error {
	fp, err := pattern.Parse(cfg.FilePattern, false, &p.job)
	if err != nil {
		return fmt.Errorf("port %s: file pattern: %w (%w)", cfg.Name, err, status.ErrInvalidData)
	}
	cmd, err := pattern.Parse(cfg.UserCommand, true, &p.job)
	if err != nil {
		return fmt.Errorf("port %s: user command: %w (%w)", cfg.Name, err, status.ErrInvalidData)
	}
	p.cfg = cfg
	p.filePattern = fp
	p.command = cmd

	p.log.Debug("initializing port",
		"output_path", cfg.OutputPath,
		"file_pattern", cfg.FilePattern,
		"overwrite", cfg.Overwrite,
		"user_command", cfg.UserCommand,
		"exec_path", cfg.ExecPath,
		"wait_termination", cfg.WaitTermination,
		"wait_timeout", cfg.WaitTimeout,
		"pipe_data", cfg.PipeData,
		"run_as", cfg.Account())
	return nil
}

// Name returns the port name. It never changes and does not wait for a
// running job.
func (p *Port) Name() string {
	return p.name
}

// Config returns a copy of the current configuration.
func (p *Port) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// State returns the job state.
func (p *Port) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FileName returns the output file chosen for the current job.
func (p *Port) FileName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job.fileName
}

// Job returns the printer and id of the current job, if any.
func (p *Port) Job() (printer string, jobID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job.printer, p.job.jobID
}

// SetWriteTimeout changes how long a write may block before the operator
// is asked. Zero restores the default.
func (p *Port) SetWriteTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d <= 0 {
		d = DefaultWriteTimeout
	}
	p.env.WriteTimeout = d
}

// SetConfig replaces the configuration and logs the configured user on
// again. The port keeps its name. The configuration is installed even when
// the logon fails; the logon error is returned.
func (p *Port) SetConfig(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return status.ErrInvalidHandle
	}
	cfg.Name = p.name
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := p.apply(cfg.Normalize()); err != nil {
		return err
	}
	p.releaseCredential()
	p.logonInvalidated = true
	if err := p.logon(); err != nil {
		p.log.Error("can't logon user", "error", err)
		return err
	}
	return nil
}

// Logon obtains a token for the configured user. It does nothing while a
// previous logon is still valid or when no user is configured.
func (p *Port) Logon() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return status.ErrInvalidHandle
	}
	return p.logon()
}

func (p *Port) logon() error {
	if !p.logonInvalidated {
		return nil
	}
	p.releaseCredential()

	if p.cfg.User != "" {
		cred, err := p.env.Platform.Logon(p.cfg.User, p.cfg.Domain, p.cfg.Password)
		if err != nil {
			p.log.Error("logon failed", "user", p.cfg.User, "domain", p.cfg.Domain, "error", err)
			return err
		}
		if cred.Restricted() {
			p.log.Warn("only a restricted token is available", "account", cred.String())
		}
		p.log.Info("RunAs", "account", cred.String())
		p.cred = cred
	}

	p.logonInvalidated = false
	if p.state == Idle {
		p.state = LoggedOn
	}
	return nil
}

func (p *Port) releaseCredential() {
	if p.cred != nil {
		if err := p.cred.Close(); err != nil {
			p.log.Warn("release token", "error", err)
		}
		p.cred = nil
	}
}

// impersonate runs fn as the configured user, or as ourselves when no
// user is configured.
func (p *Port) impersonate(fn func() error) error {
	if p.cred == nil {
		return fn()
	}
	return p.cred.Impersonate(fn)
}

// CreateOutputPath creates the output directory and its missing parents.
func (p *Port) CreateOutputPath() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return status.ErrInvalidHandle
	}
	dir := p.cfg.OutputPath
	if dir == "" {
		p.log.Error("output path is not configured")
		return fmt.Errorf("port %s: no output path: %w", p.name, status.ErrDirectory)
	}
	return p.impersonate(func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			p.log.Error("can't create output directory", "path", dir, "error", err)
			return fmt.Errorf("create %s: %v: %w", dir, err, status.ErrDirectory)
		}
		return nil
	})
}

// StartJob records the job the spooler is about to send. Job details the
// spooler cannot provide are left empty.
func (p *Port) StartJob(printer string, jobID uint32, title string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return status.ErrInvalidHandle
	}
	if p.out != nil {
		p.log.Warn("previous job was not ended", "job", p.job.jobID)
		p.abortOutput()
	}

	p.job.reset()
	p.job.printer = printer
	p.job.jobID = jobID
	p.job.title = title
	p.job.started = time.Now()

	info, err := p.env.Spooler.Job(printer, jobID)
	switch {
	case err == nil:
		p.job.machine = info.MachineName
		p.job.user = info.UserName
		p.job.bin = info.Bin
		if info.Document != "" {
			p.job.title = info.Document
		}
	case errors.Is(err, spooler.ErrJobNotFound):
		p.log.Warn("job not known to the spooler", "printer", printer, "job", jobID)
	default:
		p.log.Error("can't read job details", "printer", printer, "job", jobID, "error", err)
	}
	p.job.local = isLocal(p.job.machine, p.env.Platform.ComputerName())

	p.filePattern.Reset()

	if p.w == nil {
		p.w = startWriter()
		p.log.Debug("writer started")
	}
	p.state = JobActive
	return nil
}

// isLocal reports whether a job submitted from machine comes from this
// computer. The spooler may prefix the name with two backslashes.
func isLocal(machine, computer string) bool {
	if machine == "" || computer == "" {
		return false
	}
	return strings.EqualFold(machine, computer) || strings.EqualFold(machine, `\\`+computer)
}

// CreateOutputFile finds the first usable file name and opens it, or
// starts the user command when the port pipes data. Names whose search
// value matches an existing file are skipped unless overwriting.
func (p *Port) CreateOutputFile() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != JobActive {
		return fmt.Errorf("create output in state %s: %w", p.state, status.ErrCanNotComplete)
	}
	if p.cfg.OutputPath == "" {
		p.log.Error("output path is not configured")
		return fmt.Errorf("port %s: no output path: %w", p.name, status.ErrDirectory)
	}
	return p.impersonate(p.createOutput)
}

func (p *Port) createOutput() error {
	for {
		name := filepath.Join(p.cfg.OutputPath, p.filePattern.Value())
		probe := filepath.Join(p.cfg.OutputPath, p.filePattern.SearchValue())
		p.job.fileName = name

		dir := filepath.Dir(name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			p.log.Error("can't create output directory", "path", dir, "error", err)
			return fmt.Errorf("create %s: %v: %w", dir, err, status.ErrDirectory)
		}

		if !p.cfg.Overwrite && matchExists(probe) {
			if !p.filePattern.NextValue() {
				break
			}
			continue
		}

		if p.cfg.PipeData {
			return p.startPipe()
		}

		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if p.cfg.Overwrite {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(name, flags, 0o644)
		if err != nil {
			// somebody created the file after the probe
			if !p.cfg.Overwrite && errors.Is(err, os.ErrExist) {
				if !p.filePattern.NextValue() {
					break
				}
				continue
			}
			p.log.Error("can't create output file", "path", name, "error", err)
			return fmt.Errorf("create %s: %v: %w", name, err, status.ErrFileInvalid)
		}
		p.out = f
		p.state = FileOpen
		p.log.Debug("output file created", "path", name)
		return nil
	}

	p.job.fileName = ""
	p.log.Error("can't get a valid filename", "pattern", p.cfg.FilePattern)
	return fmt.Errorf("no free file name for %q: %w", p.cfg.FilePattern, status.ErrFileExists)
}

// startPipe spawns the user command with its standard input connected to
// the port output. Whatever the command prints is discarded.
func (p *Port) startPipe() error {
	if strings.TrimSpace(p.cfg.UserCommand) == "" {
		p.log.Error("empty user command, can't continue")
		return fmt.Errorf("pipe mode without a user command: %w", status.ErrCanNotComplete)
	}
	cmdline := p.command.Value()
	cmd, err := p.env.Platform.Command(cmdline, p.cfg.ExecPath, p.cfg.HideProcess, p.cred)
	if err != nil {
		p.log.Error("can't prepare user command", "command", cmdline, "error", err)
		return fmt.Errorf("user command: %v: %w", err, status.ErrCanNotComplete)
	}

	r, w, err := os.Pipe()
	if err != nil {
		p.log.Error("can't create pipes", "error", err)
		return fmt.Errorf("create pipe: %v: %w", err, status.ErrFileInvalid)
	}
	cmd.Stdin = r
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		p.log.Error("can't start user command", "error", err)
		p.log.Info("user command details", "command", cmdline, "exec_path", p.cfg.ExecPath, "run_as", p.runAs())
		return fmt.Errorf("start %q: %v: %w", cmdline, err, status.ErrCanNotComplete)
	}
	r.Close()

	p.out = w
	p.child = cmd
	p.exited = p.reap(cmd)
	p.state = PipeActive
	p.log.Debug("user command started", "command", cmdline, "pid", cmd.Process.Pid)
	return nil
}

// reap waits for cmd in the background. The returned channel is closed
// when it has exited.
func (p *Port) reap(cmd *exec.Cmd) chan struct{} {
	exited := make(chan struct{})
	log := p.log
	go func() {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			log.Debug("user command ended", "error", err)
			return
		}
		log.Debug("user command ended")
	}()
	return exited
}

func (p *Port) runAs() string {
	if p.cred != nil {
		return p.cred.String()
	}
	return "spooler"
}

// WriteToFile writes p to the output. A write that does not complete in
// the write timeout fails unless the job is local and the operator chooses
// to keep waiting.
func (p *Port) WriteToFile(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if (p.state != FileOpen && p.state != PipeActive) || p.out == nil {
		return 0, fmt.Errorf("write in state %s: %w", p.state, status.ErrCanNotComplete)
	}
	if p.state == PipeActive {
		select {
		case <-p.exited:
			p.log.Error("user command is not running")
			return 0, fmt.Errorf("user command exited: %w", status.ErrCanNotComplete)
		default:
		}
	}

	done := p.w.submit(p.out, b)
	timer := time.NewTimer(p.env.WriteTimeout)
	defer timer.Stop()
	for {
		select {
		case res := <-done:
			if res.err != nil {
				p.log.Error("write failed", "error", res.err)
				return res.n, fmt.Errorf("write %s: %v: %w", p.job.fileName, res.err, status.ErrCanNotComplete)
			}
			return res.n, nil
		case <-timer.C:
			if p.job.local && p.env.Platform.Confirm(platform.PromptTitle, platform.PromptCommandLocks) {
				timer.Reset(p.env.WriteTimeout)
				continue
			}
			p.log.Error("write timed out, abandoning writer")
			p.abandonWriter()
			return 0, fmt.Errorf("write timed out: %w", status.ErrCanNotComplete)
		}
	}
}

// abandonWriter gives up on a blocked write. Closing the output and
// killing the consumer unblocks the goroutine, which then exits; the next
// job starts a fresh one.
func (p *Port) abandonWriter() {
	w := p.w
	p.w = nil
	p.abortOutput()
	if w != nil {
		w.stop()
	}
}

// abortOutput closes the output and kills a piped command.
func (p *Port) abortOutput() {
	if p.out != nil {
		p.out.Close()
		p.out = nil
	}
	if p.child != nil && p.child.Process != nil {
		select {
		case <-p.exited:
		default:
			p.child.Process.Kill()
		}
	}
	p.child = nil
	p.exited = nil
	if p.state == FileOpen || p.state == PipeActive {
		p.state = JobActive
	}
}

// EndJob closes the output, tells the spooler the job is done and runs the
// user command when one is configured and the data was not piped into it.
func (p *Port) EndJob() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return status.ErrInvalidHandle
	}
	p.state = JobEnding

	if p.out != nil {
		if p.child == nil {
			if err := p.out.Sync(); err != nil {
				p.log.Warn("flush output", "error", err)
			}
		}
		if err := p.out.Close(); err != nil {
			p.log.Warn("close output", "error", err)
		}
		p.out = nil
	}

	if p.job.printer != "" {
		if err := p.env.Spooler.Control(p.job.printer, p.job.jobID, spooler.ControlDelete); err != nil {
			p.log.Warn("can't notify spooler", "job", p.job.jobID, "error", err)
		}
	}

	if !p.cfg.PipeData && p.command.String() != "" {
		p.startCommand()
	}

	if p.exited != nil && p.cfg.WaitTermination {
		p.waitCommand()
	}

	p.child = nil
	p.exited = nil
	p.job.reset()
	p.state = Idle
	if !p.logonInvalidated {
		p.state = LoggedOn
	}
	return nil
}

// startCommand runs the user command after the output file is complete.
// A command that cannot be started does not fail the job.
func (p *Port) startCommand() {
	cmdline := p.command.Value()
	cmd, err := p.env.Platform.Command(cmdline, p.cfg.ExecPath, p.cfg.HideProcess, p.cred)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		p.log.Error("can't start user command", "command", cmdline, "error", err)
		return
	}
	p.log.Debug("user command started", "command", cmdline, "pid", cmd.Process.Pid)
	p.child = cmd
	p.exited = p.reap(cmd)
}

// waitCommand waits for the user command to exit, in steps of the
// configured timeout. A remote job, or a local one whose operator declines
// to wait, leaves the command running.
func (p *Port) waitCommand() {
	var tick <-chan time.Time
	if p.cfg.WaitTimeout > 0 {
		t := time.NewTicker(time.Duration(p.cfg.WaitTimeout) * time.Second)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-p.exited:
			return
		case <-tick:
			if p.job.local && p.env.Platform.Confirm(platform.PromptTitle, platform.PromptCommandLocks) {
				continue
			}
			p.log.Warn("stopped waiting for user command")
			return
		}
	}
}

// Close destroys the port: an active job is aborted, the writer stopped
// and the token released.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Closed {
		return nil
	}
	if p.out != nil {
		p.log.Warn("closing port with an active job", "job", p.job.jobID)
	}
	p.abortOutput()
	if p.w != nil {
		p.w.stop()
		p.w = nil
	}
	p.releaseCredential()
	p.state = Closed
	return nil
}
