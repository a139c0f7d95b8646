package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lomo74/mfilemon/common/config"
	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/monitor/portlist"
	"github.com/lomo74/mfilemon/monitor/store"
)

// SettingsFileName is the monitor wide settings file looked up in the
// config search paths.
const SettingsFileName = "mfilemon.toml"

// EnvPrefix prefixes the environment overrides, e.g. MFILEMON_LOG_LEVEL.
const EnvPrefix = "MFILEMON"

// DefaultUIModule is the configuration dialog the spooler loads for
// our ports.
const DefaultUIModule = "amfilemonui.dll"

// Store backends.
const (
	BackendRegistry = "registry"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Settings holds monitor wide settings. Port configuration is kept in the
// store, not here.
type Settings struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	UIModule    string `toml:"ui_module"`
	// WriteTimeout is in seconds.
	WriteTimeout int                  `toml:"write_timeout"`
	Logging      config.LoggingConfig `toml:"logging"`
	Store        StoreSettings        `toml:"store"`
	Secret       SecretSettings       `toml:"secret"`

	// path is the file the settings were read from, if any.
	path string
}

// StoreSettings selects where port configuration is persisted.
type StoreSettings struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// SecretSettings configures password encryption.
type SecretSettings struct {
	// KeyFile names a 32 byte key file, created when missing. The built-in
	// key is used when empty.
	KeyFile string `toml:"key_file"`
}

// DefaultSettings returns the settings used without a settings file.
func DefaultSettings() Settings {
	backend := BackendSQLite
	if runtime.GOOS == "windows" {
		backend = BackendRegistry
	}
	return Settings{
		Name:         portlist.DefaultMonitorName,
		Description:  portlist.DefaultDescription,
		UIModule:     DefaultUIModule,
		WriteTimeout: int(DefaultWriteTimeout / time.Second),
		Logging: config.LoggingConfig{
			Level: logger.LevelToString(logger.ERRORS),
		},
		Store: StoreSettings{Backend: backend},
	}
}

// DefaultWriteTimeout is the default write_timeout.
const DefaultWriteTimeout = 10 * time.Second

// LoadSettings reads path, or the first settings file found in the search
// paths when path is empty, then applies environment overrides. A missing
// file is not an error when path is empty.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	path = config.ResolveConfigPath(EnvPrefix, path)
	if path == "" {
		if found, _, err := config.FindConfigFile(SettingsFileName); err == nil {
			path = found
		}
	}
	if path != "" {
		if err := config.LoadTOML(path, &s); err != nil {
			return s, err
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		s.path = path
	}

	s.applyEnv()
	return s, s.Validate()
}

// Path returns the file the settings were loaded from.
func (s Settings) Path() string { return s.path }

func (s *Settings) applyEnv() {
	config.ApplyLoggingEnvOverrides(&s.Logging, EnvPrefix)

	db := config.DatabaseConfig{Path: s.Store.Path}
	config.ApplyDatabaseEnvOverrides(&db, EnvPrefix)
	s.Store.Path = db.Path

	if v := config.GetEnvPrefixed(EnvPrefix, "STORE"); v != "" {
		s.Store.Backend = v
	}
	if v := config.GetEnvPrefixed(EnvPrefix, "WRITE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.WriteTimeout = n
		}
	}
}

// Validate checks the values a monitor cannot start with.
func (s Settings) Validate() error {
	switch strings.ToLower(s.Store.Backend) {
	case BackendRegistry, BackendSQLite, BackendMemory, "":
	default:
		return fmt.Errorf("unknown store backend %q", s.Store.Backend)
	}
	if s.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative")
	}
	return nil
}

// LogLevel returns the configured logging level.
func (s Settings) LogLevel() logger.LogLevel {
	return logger.LevelFromString(s.Logging.Level)
}

// WriteTimeoutDuration returns write_timeout, or the default when unset.
func (s Settings) WriteTimeoutDuration() time.Duration {
	if s.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return time.Duration(s.WriteTimeout) * time.Second
}

// OpenStore opens the configured backend. system selects the data
// directory used for the SQLite file when no path is set.
func OpenStore(s Settings, system bool, log store.Logger) (store.Store, error) {
	switch strings.ToLower(s.Store.Backend) {
	case BackendMemory:
		return store.NewMemory(), nil
	case BackendRegistry:
		return openRegistryStore(s.Store.Path)
	default:
		path := s.Store.Path
		if path == "" {
			dir, err := config.GetDataDirectory(system)
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "ports.db")
		}
		db, err := store.OpenSQLite(path, log)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// logDirectory picks the log directory: the configured one, or the
// platform default. An empty result disables the log file.
func (s Settings) logDirectory(system bool) string {
	if s.Logging.Dir != "" {
		if err := os.MkdirAll(s.Logging.Dir, 0o755); err == nil {
			return s.Logging.Dir
		}
	}
	dir, err := config.GetLogDirectory(system)
	if err != nil {
		return ""
	}
	return dir
}
