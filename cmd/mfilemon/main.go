// Command mfilemon administers multi file ports and prints jobs through
// them. Installed in the CUPS backend directory it also acts as a CUPS
// backend.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lomo74/mfilemon/common/config"
	commonutil "github.com/lomo74/mfilemon/common/util"
	"github.com/lomo74/mfilemon/monitor"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/spooler"
)

// Version information (set at build time via -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	if cupsMode(os.Args[0], os.Getenv) {
		os.Exit(runBackend(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv))
	}
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// cli carries what every command needs.
type cli struct {
	configPath string
	stdin      io.Reader
	stdout     io.Writer
}

type command struct {
	name  string
	usage string
	run   func(c *cli, args []string) error
}

var commands = []command{
	{"add", "add NAME [set flags]", cmdAdd},
	{"delete", "delete NAME", cmdDelete},
	{"list", "list", cmdList},
	{"show", "show NAME", cmdShow},
	{"set", "set NAME [flags]", cmdSet},
	{"print", "print -port NAME [-printer P] [-title T] [-user U] [-job N] [-log] [file]", cmdPrint},
	{"rotate-log", "rotate-log", cmdRotateLog},
	{"generate-config", "generate-config [path]", cmdGenerateConfig},
	{"version", "version", cmdVersion},
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("mfilemon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "Settings file path")
	quiet := fs.Bool("quiet", false, "Suppress informational output (errors/warnings still shown)")
	fs.BoolVar(quiet, "q", false, "Shorthand for --quiet")
	silent := fs.Bool("silent", false, "Suppress ALL output (complete silence)")
	fs.BoolVar(silent, "s", false, "Shorthand for --silent")
	if err := fs.Parse(args); err != nil {
		commonutil.ShowError(err.Error())
		usage(stdout)
		return exitUsage
	}
	commonutil.SetQuietMode(*quiet)
	commonutil.SetSilentMode(*silent)

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stdout)
		return exitUsage
	}

	c := &cli{configPath: *configPath, stdin: stdin, stdout: stdout}
	for _, cmd := range commands {
		if cmd.name != rest[0] {
			continue
		}
		if err := cmd.run(c, rest[1:]); err != nil {
			if e, ok := err.(usageError); ok {
				commonutil.ShowError(e.Error())
				fmt.Fprintf(stdout, "usage: mfilemon %s\n", cmd.usage)
				return exitUsage
			}
			commonutil.ShowError(err.Error())
			return exitError
		}
		return exitOK
	}

	commonutil.ShowError(fmt.Sprintf("unknown command %q", rest[0]))
	usage(stdout)
	return exitUsage
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: mfilemon [-config path] [-q] [-s] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s\n", cmd.usage)
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

// openMonitor loads the settings and starts a monitor over their store.
// sp may be nil.
func (c *cli) openMonitor(sp spooler.Spooler) (*monitor.Monitor, error) {
	s, err := monitor.LoadSettings(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	st, err := monitor.OpenStore(s, false, nil)
	if err != nil {
		return nil, fmt.Errorf("open port store: %w", err)
	}
	m, err := monitor.Open(s, st, monitor.Env{Spooler: sp, Platform: platform.Native()})
	if err != nil {
		st.Close()
		return nil, err
	}
	return m, nil
}

func cmdGenerateConfig(c *cli, args []string) error {
	path := monitor.SettingsFileName
	switch {
	case len(args) == 1:
		path = args[0]
	case len(args) > 1:
		return usageError("too many arguments")
	case c.configPath != "":
		path = c.configPath
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.WriteDefaultTOML(path, monitor.DefaultSettings()); err != nil {
		return err
	}
	commonutil.ShowSuccess(fmt.Sprintf("Default settings written to %s", path))
	return nil
}

func cmdVersion(c *cli, args []string) error {
	fmt.Fprintf(c.stdout, "mfilemon %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	return nil
}

// cupsMode reports whether the program runs as a CUPS backend: CUPS sets
// DEVICE_URI for jobs and runs discovery from its backend directory.
func cupsMode(argv0 string, getenv func(string) string) bool {
	if getenv("DEVICE_URI") != "" {
		return true
	}
	return strings.EqualFold(filepath.Base(filepath.Dir(argv0)), "backend")
}
