package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lomo74/mfilemon/common/logger"
	commonutil "github.com/lomo74/mfilemon/common/util"
	"github.com/lomo74/mfilemon/monitor"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/portlist"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/status"
)

// portFlags are the configuration flags shared by add and set.
type portFlags struct {
	output, pattern, command, execPath string
	overwrite, wait, pipe, hide        bool
	timeout                            uint
	user, domain, password, logLevel   string
}

func newPortFlagSet(name string) (*flag.FlagSet, *portFlags) {
	pf := &portFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&pf.output, "output", "", "Output directory")
	fs.StringVar(&pf.pattern, "pattern", "", "File name pattern")
	fs.BoolVar(&pf.overwrite, "overwrite", false, "Overwrite existing files")
	fs.StringVar(&pf.command, "command", "", "User command run for each job")
	fs.StringVar(&pf.execPath, "exec-path", "", "Working directory of the user command")
	fs.BoolVar(&pf.wait, "wait", false, "Wait for the user command to terminate")
	fs.UintVar(&pf.timeout, "timeout", port.DefaultWaitTimeout, "Wait timeout in seconds, 0 waits forever")
	fs.BoolVar(&pf.pipe, "pipe", false, "Pipe job data to the user command")
	fs.BoolVar(&pf.hide, "hide", true, "Hide the user command's window")
	fs.StringVar(&pf.user, "user", "", "Run as this user")
	fs.StringVar(&pf.domain, "domain", "", "Domain of the run-as user")
	fs.StringVar(&pf.password, "password", "", "Password of the run-as user")
	fs.StringVar(&pf.logLevel, "log-level", "", "Monitor log level: none, errors, warnings, debug")
	return fs, pf
}

// apply copies the flags given on the command line onto cfg.
func (pf *portFlags) apply(fs *flag.FlagSet, cfg *port.Config, level *int32) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.OutputPath = pf.output
		case "pattern":
			cfg.FilePattern = pf.pattern
		case "overwrite":
			cfg.Overwrite = pf.overwrite
		case "command":
			cfg.UserCommand = pf.command
		case "exec-path":
			cfg.ExecPath = pf.execPath
		case "wait":
			cfg.WaitTermination = pf.wait
		case "timeout":
			if pf.timeout > port.MaxWaitTimeout {
				err = usageError(fmt.Sprintf("timeout above %d seconds", port.MaxWaitTimeout))
				return
			}
			cfg.WaitTimeout = uint32(pf.timeout)
		case "pipe":
			cfg.PipeData = pf.pipe
		case "hide":
			cfg.HideProcess = pf.hide
		case "user":
			cfg.User = pf.user
		case "domain":
			cfg.Domain = pf.domain
		case "password":
			cfg.Password = pf.password
		case "log-level":
			*level = int32(logger.LevelFromString(pf.logLevel))
		}
	})
	return err
}

// parseNamed splits "NAME [flags]" or "[flags] NAME".
func parseNamed(fs *flag.FlagSet, args []string) (string, error) {
	var name string
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		name, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", usageError(err.Error())
	}
	if name == "" && fs.NArg() > 0 {
		name = fs.Arg(0)
		if fs.NArg() > 1 {
			return "", usageError("unexpected arguments after port name")
		}
	} else if fs.NArg() > 0 {
		return "", usageError("unexpected arguments after flags")
	}
	if name == "" {
		return "", usageError("port name is required")
	}
	return name, nil
}

// getConfig reads a port's configuration record with the two call
// convention port UIs use.
func getConfig(m *monitor.Monitor, h *monitor.XcvHandle) (port.Config, int32, error) {
	needed, err := m.XcvDataPort(h, monitor.XcvGetConfig, nil, nil)
	if status.Of(err) != status.InsufficientBuffer {
		if err == nil {
			err = fmt.Errorf("get config: empty reply: %w", status.ErrInvalidData)
		}
		return port.Config{}, 0, err
	}
	out := make([]byte, needed)
	if _, err := m.XcvDataPort(h, monitor.XcvGetConfig, nil, out); err != nil {
		return port.Config{}, 0, err
	}
	return port.UnmarshalRecord(out)
}

func setConfig(m *monitor.Monitor, h *monitor.XcvHandle, fs *flag.FlagSet, pf *portFlags) error {
	cfg, level, err := getConfig(m, h)
	if err != nil {
		return err
	}
	if err := pf.apply(fs, &cfg, &level); err != nil {
		return err
	}
	_, err = m.XcvDataPort(h, monitor.XcvSetConfig, port.MarshalRecord(cfg, level), nil)
	if status.Of(err) == status.AccessDenied && cfg.User != "" {
		return fmt.Errorf("configuration saved, but user %s can't log on: %w", cfg.Account(), err)
	}
	return err
}

func cmdAdd(c *cli, args []string) error {
	fs, pf := newPortFlagSet("add")
	name, err := parseNamed(fs, args)
	if err != nil {
		return err
	}
	m, err := c.openMonitor(nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	h := m.XcvOpenPort("", monitor.ServerAccessAdminister)
	defer m.XcvClosePort(h)

	exists := make([]byte, 4)
	if _, err := m.XcvDataPort(h, monitor.XcvPortExists, portlist.EncodeString(name), exists); err == nil && exists[0] != 0 {
		return fmt.Errorf("port %s: %w", name, status.ErrAlreadyExists)
	}
	if _, err := m.XcvDataPort(h, monitor.XcvAddPort, portlist.EncodeString(name), nil); err != nil {
		return err
	}
	if fs.NFlag() > 0 {
		if err := setConfig(m, h, fs, pf); err != nil {
			return err
		}
	}
	commonutil.ShowSuccess(fmt.Sprintf("Port %s added", name))
	return nil
}

func cmdSet(c *cli, args []string) error {
	fs, pf := newPortFlagSet("set")
	name, err := parseNamed(fs, args)
	if err != nil {
		return err
	}
	if fs.NFlag() == 0 {
		return usageError("nothing to set")
	}
	m, err := c.openMonitor(nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	h := m.XcvOpenPort(name, monitor.ServerAccessAdminister)
	defer m.XcvClosePort(h)
	if err := setConfig(m, h, fs, pf); err != nil {
		return err
	}
	commonutil.ShowSuccess(fmt.Sprintf("Port %s updated", name))
	return nil
}

func cmdDelete(c *cli, args []string) error {
	if len(args) != 1 {
		return usageError("port name is required")
	}
	name := args[0]
	m, err := c.openMonitor(nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	h := m.XcvOpenPort(name, monitor.ServerAccessAdminister)
	if _, err := m.XcvDataPort(h, monitor.XcvDeletePort, nil, nil); err != nil {
		m.XcvClosePort(h)
		if status.Of(err) == status.BadArguments {
			return fmt.Errorf("port %s: %w", name, status.ErrFileNotFound)
		}
		return err
	}
	if m.XcvClosePort(h) {
		return fmt.Errorf("delete port %s: handle released early: %w", name, status.ErrCanNotComplete)
	}
	if _, err := m.XcvDataPort(h, monitor.XcvPortDeleted, nil, nil); err != nil {
		return err
	}
	m.XcvClosePort(h)
	commonutil.ShowSuccess(fmt.Sprintf("Port %s deleted", name))
	return nil
}

func cmdList(c *cli, args []string) error {
	if len(args) != 0 {
		return usageError("list takes no arguments")
	}
	m, err := c.openMonitor(nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	infos, err := enumPorts(m)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		commonutil.ShowInfo("No ports configured")
		return nil
	}
	var rows [][]string
	if !commonutil.IsQuietMode() {
		rows = append(rows, []string{"PORT", "MONITOR", "DESCRIPTION", "OUTPUT"})
	}
	for _, info := range infos {
		output := ""
		if p := m.Ports().FindPort(info.Name); p != nil {
			output = p.Config().OutputPath
		}
		rows = append(rows, []string{info.Name, info.Monitor, info.Description, output})
	}
	fmt.Fprint(c.stdout, commonutil.FormatTable(rows))
	return nil
}

// enumPorts lists the ports at level 2, sizing the buffer first.
func enumPorts(m *monitor.Monitor) ([]portlist.PortInfo, error) {
	for {
		needed, _, err := m.EnumPorts(2, nil, 0)
		if err != nil && status.Of(err) != status.InsufficientBuffer {
			return nil, err
		}
		buf := make([]byte, needed)
		_, returned, err := m.EnumPorts(2, buf, 0)
		if status.Of(err) == status.InsufficientBuffer {
			// a port was added in between
			continue
		}
		if err != nil {
			return nil, err
		}
		return portlist.DecodeListing(2, buf, 0, returned)
	}
}

func cmdShow(c *cli, args []string) error {
	if len(args) != 1 {
		return usageError("port name is required")
	}
	m, err := c.openMonitor(nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	h := m.XcvOpenPort(args[0], monitor.ServerAccessAdminister)
	defer m.XcvClosePort(h)
	cfg, level, err := getConfig(m, h)
	if status.Of(err) == status.BadArguments {
		return fmt.Errorf("port %s: %w", args[0], status.ErrFileNotFound)
	}
	if err != nil {
		return err
	}

	password := ""
	if cfg.Password != "" {
		password = "********"
	}
	rows := [][]string{
		{"name", cfg.Name},
		{"output", cfg.OutputPath},
		{"pattern", cfg.FilePattern},
		{"overwrite", strconv.FormatBool(cfg.Overwrite)},
		{"command", cfg.UserCommand},
		{"exec-path", cfg.ExecPath},
		{"wait", strconv.FormatBool(cfg.WaitTermination)},
		{"timeout", strconv.FormatUint(uint64(cfg.WaitTimeout), 10)},
		{"pipe", strconv.FormatBool(cfg.PipeData)},
		{"hide", strconv.FormatBool(cfg.HideProcess)},
		{"user", cfg.User},
		{"domain", cfg.Domain},
		{"password", password},
		{"log-level", logger.LevelToString(logger.ClampLevel(int(level)))},
	}
	fmt.Fprint(c.stdout, commonutil.FormatTable(rows))
	return nil
}

// printJob is one job handed to a port.
type printJob struct {
	port     string
	printer  string
	title    string
	user     string
	jobID    uint32
	datatype string
	data     io.Reader
}

// printThrough runs job through the monitor's port entry points like the
// spooler would, and returns the name of the file written.
func printThrough(m *monitor.Monitor, q *spooler.Queue, job printJob) (string, error) {
	q.Submit(spooler.JobInfo{
		JobID:       job.jobID,
		PrinterName: job.printer,
		MachineName: platform.Native().ComputerName(),
		UserName:    job.user,
		Document:    job.title,
		Datatype:    job.datatype,
		Submitted:   time.Now(),
	})

	h, err := m.OpenPort(job.port)
	if err != nil {
		return "", err
	}
	defer m.ClosePort(h)

	if err := m.StartDocPort(h, job.printer, job.jobID, monitor.DocInfo{DocName: job.title, Datatype: job.datatype}); err != nil {
		return "", err
	}
	file := h.Port().FileName()

	buf := make([]byte, 64*1024)
	for {
		n, rerr := job.data.Read(buf)
		if n > 0 {
			if _, err := m.WritePort(h, buf[:n]); err != nil {
				m.EndDocPort(h)
				return file, err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			m.EndDocPort(h)
			return file, fmt.Errorf("read job data: %w", rerr)
		}
	}
	return file, m.EndDocPort(h)
}

func currentUser() string {
	for _, k := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "unknown"
}

func cmdPrint(c *cli, args []string) error {
	fs := flag.NewFlagSet("print", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	portName := fs.String("port", "", "Port to print to")
	printer := fs.String("printer", "mfilemon", "Printer name")
	title := fs.String("title", "", "Document title")
	user := fs.String("user", currentUser(), "Submitting user")
	jobID := fs.Uint("job", 1, "Job id")
	datatype := fs.String("datatype", "RAW", "Data type")
	showLog := fs.Bool("log", false, "Print the monitor log of the job")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *portName == "" {
		return usageError("-port is required")
	}
	if fs.NArg() > 1 {
		return usageError("at most one input file")
	}

	job := printJob{
		port:     *portName,
		printer:  *printer,
		title:    *title,
		user:     *user,
		jobID:    uint32(*jobID),
		datatype: *datatype,
		data:     c.stdin,
	}
	if fs.NArg() == 1 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		job.data = f
		if job.title == "" {
			job.title = filepath.Base(fs.Arg(0))
		}
	}
	if job.title == "" {
		job.title = "stdin"
	}

	q := spooler.NewQueue()
	m, err := c.openMonitor(q)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	file, err := printThrough(m, q, job)
	if *showLog {
		if cerr := m.Log().Copy(c.stdout); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return err
	}
	if file != "" {
		commonutil.ShowSuccess(fmt.Sprintf("Job %d printed to %s", job.jobID, file))
	} else {
		commonutil.ShowSuccess(fmt.Sprintf("Job %d piped to the user command", job.jobID))
	}
	return nil
}

// cmdRotateLog moves the active log file to the first backup.
func cmdRotateLog(c *cli, args []string) error {
	if len(args) != 0 {
		return usageError("rotate-log takes no arguments")
	}
	m, err := c.openMonitor(nil)
	if err != nil {
		return err
	}
	m.Log().ForceRotate()
	m.Shutdown()
	if !commonutil.IsSilentMode() {
		fmt.Fprintln(c.stdout, "log rotated")
	}
	return nil
}
