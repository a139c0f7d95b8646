package monitor

import (
	"fmt"
	"sync/atomic"

	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/status"
)

// Handle is a port opened by the spooler.
type Handle struct {
	port   *port.Port
	closed atomic.Bool
}

// Port returns the port behind the handle.
func (h *Handle) Port() *port.Port { return h.port }

// DocInfo is the DOC_INFO_1 the spooler passes to StartDocPort.
type DocInfo struct {
	DocName    string
	OutputFile string
	Datatype   string
}

// resolve returns the port of a handle that is open and whose port still
// exists.
func (m *Monitor) resolve(h *Handle, call string) (*port.Port, error) {
	if h == nil || h.port == nil {
		m.log.Critical(call+": invalid parameter", "handle", "nil")
		return nil, fmt.Errorf("%s: no port handle: %w", call, status.ErrCanNotComplete)
	}
	if h.closed.Load() || m.ports.FindPort(h.port.Name()) != h.port {
		m.log.Critical(call+": port handle is stale", "port", h.port.Name())
		return nil, fmt.Errorf("%s: port %s is gone: %w", call, h.port.Name(), status.ErrCanNotComplete)
	}
	return h.port, nil
}

// EnumPorts fills buf with the port listing at level 1 or 2. base is the
// address of buf in the caller's memory.
func (m *Monitor) EnumPorts(level uint32, buf []byte, base uintptr) (needed, returned uint32, err error) {
	return m.ports.EnumPorts(level, buf, base)
}

// OpenPort opens a port for printing: the configured user is logged on
// and the output directory created.
func (m *Monitor) OpenPort(name string) (*Handle, error) {
	m.log.Debug("OpenPort called", "port", name)

	p := m.ports.FindPort(name)
	if p == nil {
		m.log.Critical("OpenPort: can't find port", "port", name)
		return nil, fmt.Errorf("open port %s: %w", name, status.ErrCanNotComplete)
	}
	if err := p.Logon(); err != nil {
		m.log.Critical("OpenPort: can't logon user", "port", name, "error", err)
		return nil, err
	}
	if err := p.CreateOutputPath(); err != nil {
		m.log.Critical("OpenPort: can't create output directory", "port", name, "error", err)
		return nil, fmt.Errorf("open port %s: %v: %w", name, err, status.ErrDirectory)
	}

	m.log.Debug("OpenPort returning", "port", name)
	return &Handle{port: p}, nil
}

// StartDocPort starts a job and opens its output.
func (m *Monitor) StartDocPort(h *Handle, printer string, jobID uint32, doc DocInfo) error {
	p, err := m.resolve(h, "StartDocPort")
	if err != nil {
		return err
	}
	m.log.Debug("StartDocPort called", "port", p.Name(), "printer", printer, "job", jobID)

	if err := p.StartJob(printer, jobID, doc.DocName); err != nil {
		m.log.Critical("StartDocPort: can't start print job", "port", p.Name(), "error", err)
		return fmt.Errorf("start job %d: %v: %w", jobID, err, status.ErrCanNotComplete)
	}
	if err := p.CreateOutputFile(); err != nil {
		m.log.Critical("StartDocPort: can't create output file", "port", p.Name(), "error", err)
		return err
	}

	m.log.Debug("StartDocPort returning", "port", p.Name(), "file", p.FileName())
	return nil
}

// WritePort writes job data. When the write fails the job is restarted
// and paused in the spooler so it is kept for the operator.
func (m *Monitor) WritePort(h *Handle, b []byte) (int, error) {
	p, err := m.resolve(h, "WritePort")
	if err != nil {
		return 0, err
	}

	n, err := p.WriteToFile(b)
	if err != nil {
		m.log.Error("WritePort: can't write to output file", "port", p.Name(), "error", err)
		m.holdJob(p)
		return n, err
	}
	return n, nil
}

// holdJob restarts and pauses the current job of p.
func (m *Monitor) holdJob(p *port.Port) {
	printer, jobID := p.Job()
	if printer == "" {
		m.log.Error("WritePort: no job to pause", "port", p.Name())
		return
	}
	m.log.Error("WritePort: pausing job", "job", jobID, "printer", printer)
	for _, c := range []spooler.JobControl{spooler.ControlRestart, spooler.ControlPause} {
		if err := m.spooler.Control(printer, jobID, c); err != nil {
			m.log.Error("WritePort: can't pause job", "job", jobID, "printer", printer, "control", c.String(), "error", err)
			return
		}
	}
}

// ReadPort is not supported.
func (m *Monitor) ReadPort(h *Handle, b []byte) (int, error) {
	return 0, status.ErrInvalidHandle
}

// EndDocPort finishes the job.
func (m *Monitor) EndDocPort(h *Handle) error {
	p, err := m.resolve(h, "EndDocPort")
	if err != nil {
		return err
	}
	m.log.Debug("EndDocPort called", "port", p.Name())
	err = p.EndJob()
	m.log.Debug("EndDocPort returning", "port", p.Name(), "ok", err == nil)
	return err
}

// ClosePort releases the handle. The port itself stays up.
func (m *Monitor) ClosePort(h *Handle) error {
	if h != nil {
		h.closed.Store(true)
	}
	return nil
}
