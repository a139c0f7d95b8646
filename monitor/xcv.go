package monitor

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/portlist"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/status"
)

// ServerAccessAdminister is the access right required to change ports.
const ServerAccessAdminister = 0x1

// Data names understood by XcvDataPort.
const (
	XcvAddPort     = "AddPort"
	XcvDeletePort  = "DeletePort"
	XcvPortDeleted = "PortDeleted"
	XcvPortExists  = "PortExists"
	XcvGetConfig   = "GetConfig"
	XcvSetConfig   = "SetConfig"
	XcvMonitorUI   = "MonitorUI"
)

// XcvHandle is a configuration channel opened by a port UI.
type XcvHandle struct {
	mu       sync.Mutex
	object   string
	port     *port.Port
	access   uint32
	deleting bool
}

func (h *XcvHandle) admin() bool {
	return h.access&ServerAccessAdminister != 0
}

func (h *XcvHandle) current() *port.Port {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.port
}

// XcvOpenPort opens a configuration channel for object, a port name or
// empty for the monitor itself.
func (m *Monitor) XcvOpenPort(object string, access uint32) *XcvHandle {
	m.log.Debug("XcvOpenPort called", "object", object, "access", access)
	h := &XcvHandle{object: object, access: access}
	if object != "" {
		h.port = m.ports.FindPort(object)
	}
	return h
}

// XcvDataPort runs the operation name. in and out follow the spooler's
// buffer convention: when out is too small, needed is set and the error
// is status.ErrInsufficientBuffer.
func (m *Monitor) XcvDataPort(h *XcvHandle, name string, in, out []byte) (needed uint32, err error) {
	m.log.Debug("XcvDataPort called", "data", name)

	switch name {
	case XcvAddPort:
		err = m.xcvAddPort(h, in)
	case XcvDeletePort:
		err = m.xcvDeletePort(h)
	case XcvPortDeleted:
		err = m.xcvPortDeleted(h)
	case XcvPortExists:
		needed, err = m.xcvPortExists(in, out)
	case XcvGetConfig:
		needed, err = m.xcvGetConfig(h, out)
	case XcvSetConfig:
		err = m.xcvSetConfig(h, in)
	case XcvMonitorUI:
		needed, err = m.xcvMonitorUI(out)
	default:
		err = fmt.Errorf("unknown data name %q: %w", name, status.ErrCanNotComplete)
	}

	switch {
	case err == nil:
		m.log.Debug("XcvDataPort returning success", "data", name)
	case status.Of(err) == status.InsufficientBuffer:
		m.log.Warn("XcvDataPort returning insufficient buffer", "data", name, "needed", needed)
	default:
		m.log.Error("XcvDataPort failed", "data", name, "error", err)
	}
	return needed, err
}

func (m *Monitor) denied(h *XcvHandle) error {
	m.log.Critical("XcvDataPort: access denied", "access", h.access)
	return fmt.Errorf("granted access %#x: %w", h.access, status.ErrAccessDenied)
}

func (m *Monitor) xcvAddPort(h *XcvHandle, in []byte) error {
	if h == nil || len(in) == 0 {
		return fmt.Errorf("add port: %w", status.ErrBadArguments)
	}
	if !h.admin() {
		return m.denied(h)
	}
	name := strings.TrimSpace(portlist.DecodeString(in))
	p, err := m.ports.AddPort(port.DefaultConfig(name), true)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.port = p
	h.mu.Unlock()
	return nil
}

// xcvDeletePort is the first half of a delete: the handle is marked so it
// survives the XcvClosePort that follows, until PortDeleted clears it.
func (m *Monitor) xcvDeletePort(h *XcvHandle) error {
	if h == nil || h.current() == nil {
		return fmt.Errorf("delete port: %w", status.ErrBadArguments)
	}
	if !h.admin() {
		return m.denied(h)
	}
	h.mu.Lock()
	h.deleting = true
	p := h.port
	h.mu.Unlock()
	return m.ports.DeletePort(p.Name())
}

func (m *Monitor) xcvPortDeleted(h *XcvHandle) error {
	if h == nil {
		return fmt.Errorf("port deleted: %w", status.ErrBadArguments)
	}
	if !h.admin() {
		return m.denied(h)
	}
	h.mu.Lock()
	h.deleting = false
	h.mu.Unlock()
	return nil
}

// xcvPortExists writes a 4 byte BOOL telling whether a port of this or,
// when the spooler can list them, any other monitor has the given name.
func (m *Monitor) xcvPortExists(in, out []byte) (uint32, error) {
	if len(out) < 4 {
		return 4, fmt.Errorf("port exists: %w", status.ErrInsufficientBuffer)
	}
	name := portlist.DecodeString(in)

	exists := m.ports.FindPort(name) != nil
	if !exists {
		if lister, ok := m.spooler.(spooler.PortLister); ok {
			names, err := lister.PortNames()
			if err != nil {
				m.log.Warn("can't list spooler ports", "error", err)
			}
			for _, n := range names {
				if strings.EqualFold(n, name) {
					exists = true
					break
				}
			}
		}
	}
	if exists {
		m.log.Debug("port already exists", "port", name)
		binary.LittleEndian.PutUint32(out, 1)
	} else {
		binary.LittleEndian.PutUint32(out, 0)
	}
	return 4, nil
}

func (m *Monitor) xcvGetConfig(h *XcvHandle, out []byte) (uint32, error) {
	needed := uint32(port.RecordSize)
	if len(out) < port.RecordSize {
		return needed, fmt.Errorf("get config: %w", status.ErrInsufficientBuffer)
	}
	if h == nil || h.current() == nil {
		return needed, fmt.Errorf("get config: %w", status.ErrBadArguments)
	}
	rec := port.MarshalRecord(h.current().Config(), int32(m.log.GetLevel()))
	copy(out, rec)
	return needed, nil
}

// xcvSetConfig applies a configuration record to the handle's port and
// persists it. An invalid record changes nothing. A logon failure is
// returned after the new configuration has been applied and saved.
func (m *Monitor) xcvSetConfig(h *XcvHandle, in []byte) error {
	if len(in) < port.RecordSize {
		return fmt.Errorf("set config: %w", status.ErrInsufficientBuffer)
	}
	if h == nil || h.current() == nil {
		return fmt.Errorf("set config: %w", status.ErrBadArguments)
	}
	if !h.admin() {
		return m.denied(h)
	}

	p := h.current()
	cfg, level, err := port.UnmarshalRecord(in)
	if err != nil {
		return err
	}
	cfg.Name = p.Name()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if m.ports.FindPort(p.Name()) != p {
		return fmt.Errorf("set config: port %s is gone: %w", p.Name(), status.ErrCanNotComplete)
	}

	logonErr := p.SetConfig(cfg)

	lvl := logger.ClampLevel(int(level))
	m.log.SetLevel(lvl)
	if err := m.ports.SaveLogLevel(lvl); err != nil {
		m.log.Error("can't save log level", "error", err)
	}
	if err := m.ports.SavePort(p.Name()); err != nil {
		return err
	}
	return logonErr
}

func (m *Monitor) xcvMonitorUI(out []byte) (uint32, error) {
	ui := portlist.EncodeString(m.settings.UIModule)
	needed := uint32(len(ui))
	if len(out) < len(ui) {
		return needed, fmt.Errorf("monitor UI: %w", status.ErrInsufficientBuffer)
	}
	copy(out, ui)
	return needed, nil
}

// XcvClosePort closes a configuration channel. It reports false while a
// delete started on the handle is waiting for PortDeleted; the caller must
// keep the handle until then.
func (m *Monitor) XcvClosePort(h *XcvHandle) (release bool) {
	m.log.Debug("XcvClosePort called")
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.deleting
}
