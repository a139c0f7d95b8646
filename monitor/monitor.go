// Package monitor is the print monitor the spooler loads: the port entry
// points called for every job and the XCV channel port UIs use to add,
// configure and delete ports.
package monitor

import (
	"fmt"
	"sync"

	"github.com/lomo74/mfilemon/common/config"
	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/common/util"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/portlist"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/store"
)

// Env is what the monitor needs from its host.
type Env struct {
	Spooler  spooler.Spooler
	Platform platform.Platform
	// Log replaces the logger built from the settings; only its level is
	// taken from them. The monitor does not close it.
	Log *logger.Logger
	// System selects the machine wide data and log directories.
	System bool
}

// Monitor is one loaded instance of the print monitor.
type Monitor struct {
	settings Settings
	log      *logger.Logger
	ownLog   bool
	store    store.Store
	ports    *portlist.Registry
	spooler  spooler.Spooler

	mu      sync.Mutex
	watcher *config.Watcher
	closed  bool
}

// Open starts the monitor: the logger, the port registry loaded from st
// and, when the settings came from a file, a watcher that re-applies them
// after the file changes. The monitor owns st from now on.
func Open(settings Settings, st store.Store, env Env) (*Monitor, error) {
	if settings.UIModule == "" {
		settings.UIModule = DefaultUIModule
	}
	log := env.Log
	ownLog := false
	if log == nil {
		log = logger.New(settings.LogLevel(), settings.logDirectory(env.System), 1000)
		log.SetConsoleOutput(settings.Logging.Console)
		ownLog = true
	} else {
		log.SetLevel(settings.LogLevel())
	}
	log.Always("*** MFILEMON log start ***")

	key := util.MonitorKey()
	if settings.Secret.KeyFile != "" {
		k, err := util.LoadOrCreateKey(settings.Secret.KeyFile)
		if err != nil {
			log.Critical("can't load password key", "path", settings.Secret.KeyFile, "error", err)
			if ownLog {
				log.Close()
			}
			return nil, fmt.Errorf("load password key: %w", err)
		}
		key = k
	}

	if env.Spooler == nil {
		env.Spooler = spooler.NewQueue()
	}
	if env.Platform == nil {
		env.Platform = platform.Native()
	}

	m := &Monitor{
		settings: settings,
		log:      log,
		ownLog:   ownLog,
		store:    st,
		spooler:  env.Spooler,
	}
	m.ports = portlist.New(st, port.Env{
		Spooler:      env.Spooler,
		Platform:     env.Platform,
		WriteTimeout: settings.WriteTimeoutDuration(),
	}, portlist.Options{
		MonitorName: settings.Name,
		Description: settings.Description,
		PasswordKey: key,
		Logger:      log,
	})

	if err := m.ports.LoadFromStore(); err != nil {
		log.Error("can't load ports", "error", err)
	}

	if settings.path != "" {
		m.watch()
	}

	log.Debug("monitor initialized", "ports", m.ports.Len(), "level", logger.LevelToString(log.GetLevel()))
	return m, nil
}

func (m *Monitor) watch() {
	w, err := config.Watch(m.settings.path, 0, func() {
		if err := m.Reload(); err != nil {
			m.log.Error("can't reload settings", "path", m.settings.path, "error", err)
		}
	}, func(err error) {
		m.log.Warn("settings watcher", "error", err)
	})
	if err != nil {
		m.log.Warn("can't watch settings", "path", m.settings.path, "error", err)
		return
	}
	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()
}

// Reload reads the settings file again and applies the log level and the
// write timeout. Identity and store settings take effect on the next
// start.
func (m *Monitor) Reload() error {
	if m.settings.path == "" {
		return nil
	}
	s, err := LoadSettings(m.settings.path)
	if err != nil {
		return err
	}
	m.log.SetLevel(s.LogLevel())
	m.ports.SetWriteTimeout(s.WriteTimeoutDuration())
	m.log.Info("settings reloaded",
		"level", logger.LevelToString(s.LogLevel()),
		"write_timeout", s.WriteTimeoutDuration().String())
	return nil
}

// Log returns the monitor's logger.
func (m *Monitor) Log() *logger.Logger { return m.log }

// Ports returns the port registry.
func (m *Monitor) Ports() *portlist.Registry { return m.ports }

// Settings returns the settings the monitor was opened with.
func (m *Monitor) Settings() Settings { return m.settings }

// Shutdown closes every port, stops the settings watcher and closes the
// store and the log. It is safe to call more than once.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	m.log.Debug("shutdown called")
	if err := w.Close(); err != nil {
		m.log.Warn("stop settings watcher", "error", err)
	}
	m.ports.Close()
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.log.Warn("close store", "error", err)
		}
	}
	m.log.Always("*** MFILEMON log end ***")
	if m.ownLog {
		m.log.Close()
	}
}
