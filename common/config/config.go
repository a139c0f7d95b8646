// Package config provides configuration file helpers for the monitor and
// its command line tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// AppName names the directories settings, data and logs live in.
const AppName = "mfilemon"

// FindConfigFile searches for a config file in multiple platform-appropriate locations
// Returns the path and data if found, or an error if not found in any location
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for config files
func GetConfigSearchPaths(filename string) []string {
	var searchPaths []string

	// 1. System directory
	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), AppName, filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", AppName, filename))
	default:
		searchPaths = append(searchPaths, filepath.Join("/etc", AppName, filename))
	}

	// 2. User-specific config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", AppName, filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", AppName, filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", AppName, filename))
		}
	}

	// 3. Executable directory
	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	// 4. Current working directory (lowest priority)
	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// ResolveConfigPath picks the settings file: <PREFIX>_CONFIG,
// <PREFIX>_CONFIG_PATH, CONFIG, CONFIG_PATH, then the flag value.
func ResolveConfigPath(prefix, flagValue string) string {
	for _, key := range []string{"CONFIG", "CONFIG_PATH"} {
		if v := GetEnvPrefixed(prefix, key); v != "" {
			return v
		}
	}
	return flagValue
}

// GetEnvPrefixed returns <PREFIX>_<KEY> when set, otherwise <KEY>.
func GetEnvPrefixed(prefix, key string) string {
	if prefix != "" {
		if v := os.Getenv(strings.ToUpper(prefix) + "_" + key); v != "" {
			return v
		}
	}
	return os.Getenv(key)
}

// GetDataDirectory returns the directory for persistent data. System mode
// is used when the monitor runs inside the spooler.
func GetDataDirectory(system bool) (string, error) {
	var dataDir string

	if system {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), AppName)
		default:
			dataDir = filepath.Join("/var/lib", AppName)
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}

		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", AppName)
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", AppName)
		default:
			dataDir = filepath.Join(homeDir, ".local", "share", AppName)
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// GetLogDirectory returns the directory for log files.
func GetLogDirectory(system bool) (string, error) {
	var logDir string

	if system {
		switch runtime.GOOS {
		case "windows":
			logDir = filepath.Join(os.Getenv("ProgramData"), AppName)
		default:
			logDir = filepath.Join("/var/log", AppName)
		}
	} else {
		dataDir, err := GetDataDirectory(false)
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(dataDir, "logs")
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return logDir, nil
}

// WriteDefaultTOML writes a TOML configuration file with the provided
// structure. It refuses to overwrite an existing file.
func WriteDefaultTOML(configPath string, config interface{}) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file %s already exists", configPath)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(configPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config file %s already exists", configPath)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadTOML loads a TOML configuration file into the provided structure
func LoadTOML(configPath string, config interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// DatabaseConfig holds the SQLite store location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `toml:"level"`
	Dir     string `toml:"dir"`
	Console bool   `toml:"console"`
}

// ApplyDatabaseEnvOverrides reads <PREFIX>_DB_PATH or DB_PATH.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig, prefix string) {
	if val := GetEnvPrefixed(prefix, "DB_PATH"); val != "" {
		cfg.Path = val
	}
}

// ApplyLoggingEnvOverrides reads <PREFIX>_LOG_LEVEL and <PREFIX>_LOG_DIR,
// falling back to the unprefixed names.
func ApplyLoggingEnvOverrides(cfg *LoggingConfig, prefix string) {
	if val := GetEnvPrefixed(prefix, "LOG_LEVEL"); val != "" {
		cfg.Level = val
	}
	if val := GetEnvPrefixed(prefix, "LOG_DIR"); val != "" {
		cfg.Dir = val
	}
}
