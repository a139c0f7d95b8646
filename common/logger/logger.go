package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLevel is the verbosity a logger is configured with. It matches the
// LogLevel value persisted with the port configuration.
type LogLevel int

const (
	NONE LogLevel = iota
	ERRORS
	WARNINGS
	DEBUG
)

var levelNames = map[LogLevel]string{
	NONE:     "none",
	ERRORS:   "errors",
	WARNINGS: "warnings",
	DEBUG:    "debug",
}

// Severity labels a single message.
type Severity int

const (
	ALWAYS Severity = iota
	CRITICAL
	ERROR
	INFO
	WARN
	TRACE
)

var severityNames = map[Severity]string{
	ALWAYS:   "ALWAYS",
	CRITICAL: "CRITICAL",
	ERROR:    "ERROR",
	INFO:     "INFO",
	WARN:     "WARN",
	TRACE:    "DEBUG",
}

// threshold is the lowest configured level at which a severity is written.
func (s Severity) threshold() LogLevel {
	switch s {
	case ALWAYS:
		return NONE
	case CRITICAL, ERROR, INFO:
		return ERRORS
	case WARN:
		return WARNINGS
	default:
		return DEBUG
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Severity  Severity
	Port      string
	Message   string
	Context   map[string]interface{}
}

// Sink is the logging surface the monitor packages depend on.
type Sink interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Logger writes leveled messages to a rotating file and keeps the most
// recent entries in memory.
type Logger struct {
	mu             sync.RWMutex
	level          LogLevel
	logDir         string
	fileName       string
	currentFile    *os.File
	currentSize    int64
	buffer         []LogEntry
	maxBufferSize  int
	rotationPolicy RotationPolicy
	consoleOutput  bool
	console        io.Writer
}

// RotationPolicy defines when the active file is rotated and how many
// numbered backups are kept.
type RotationPolicy struct {
	Enabled    bool
	MaxSizeMB  int
	MaxBackups int
}

// DefaultFileName is the name of the active log file.
const DefaultFileName = "mfilemon.log"

// New creates a new Logger instance
func New(level LogLevel, logDir string, maxBufferSize int) *Logger {
	return &Logger{
		level:         level,
		logDir:        logDir,
		fileName:      DefaultFileName,
		buffer:        make([]LogEntry, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		console:       os.Stderr,
		rotationPolicy: RotationPolicy{
			Enabled:    true,
			MaxSizeMB:  10,
			MaxBackups: 9,
		},
	}
}

// SetConsoleOutput enables or disables echoing entries to stderr.
func (l *Logger) SetConsoleOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consoleOutput = enabled
}

// SetLevel changes the current log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetRotationPolicy configures log rotation
func (l *Logger) SetRotationPolicy(policy RotationPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotationPolicy = policy
}

// Always logs a message regardless of the configured level.
func (l *Logger) Always(msg string, context ...interface{}) {
	l.log(ALWAYS, "", msg, context...)
}

// Critical logs a message that precedes a failure the host will see.
func (l *Logger) Critical(msg string, context ...interface{}) {
	l.log(CRITICAL, "", msg, context...)
}

// Error logs an error level message
func (l *Logger) Error(msg string, context ...interface{}) {
	l.log(ERROR, "", msg, context...)
}

// Warn logs a warning level message
func (l *Logger) Warn(msg string, context ...interface{}) {
	l.log(WARN, "", msg, context...)
}

// Info logs an informational message. It is written whenever errors are.
func (l *Logger) Info(msg string, context ...interface{}) {
	l.log(INFO, "", msg, context...)
}

// Debug logs a debug level message
func (l *Logger) Debug(msg string, context ...interface{}) {
	l.log(TRACE, "", msg, context...)
}

// ForPort returns a Sink that tags every message with a port name.
func (l *Logger) ForPort(name string) *PortLogger {
	return &PortLogger{l: l, port: name}
}

// PortLogger tags messages with the port they concern.
type PortLogger struct {
	l    *Logger
	port string
}

func (p *PortLogger) Error(msg string, context ...interface{}) {
	p.l.log(ERROR, p.port, msg, context...)
}

func (p *PortLogger) Warn(msg string, context ...interface{}) {
	p.l.log(WARN, p.port, msg, context...)
}

func (p *PortLogger) Info(msg string, context ...interface{}) {
	p.l.log(INFO, p.port, msg, context...)
}

func (p *PortLogger) Debug(msg string, context ...interface{}) {
	p.l.log(TRACE, p.port, msg, context...)
}

// log is the internal logging function
func (l *Logger) log(sev Severity, port, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sev.threshold() > l.level {
		return
	}

	ctx := make(map[string]interface{})
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			ctx[key] = context[i+1]
		}
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Severity:  sev,
		Port:      port,
		Message:   msg,
		Context:   ctx,
	}

	if l.maxBufferSize > 0 {
		if len(l.buffer) >= l.maxBufferSize {
			l.buffer = l.buffer[1:]
		}
		l.buffer = append(l.buffer, entry)
	}

	line := formatLogEntry(entry)
	if l.consoleOutput && l.console != nil {
		fmt.Fprintln(l.console, line)
	}
	l.writeToFile(line)
}

// writeToFile appends a formatted line to the active file. Failures are
// dropped; logging never fails the caller.
func (l *Logger) writeToFile(line string) {
	if l.logDir == "" {
		return
	}
	if l.currentFile == nil {
		if err := os.MkdirAll(l.logDir, 0755); err != nil {
			return
		}
		f, err := os.OpenFile(l.activePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		l.currentFile = f
		l.currentSize = 0
		if st, err := f.Stat(); err == nil {
			l.currentSize = st.Size()
		}
	}

	n, _ := l.currentFile.WriteString(line + "\n")
	l.currentSize += int64(n)

	if l.shouldRotate() {
		l.rotate()
	}
}

// formatLogEntry formats a log entry for file output
func formatLogEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05-07:00"))
	b.WriteString(" [")
	b.WriteString(severityNames[entry.Severity])
	b.WriteString("] ")
	if entry.Port != "" {
		b.WriteString(entry.Port)
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Context))
	for k := range entry.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Context[k])
	}
	return b.String()
}

func (l *Logger) activePath() string {
	return filepath.Join(l.logDir, l.fileName)
}

// backupPath returns mfilemon.<n>.log for mfilemon.log.
func (l *Logger) backupPath(n int) string {
	ext := filepath.Ext(l.fileName)
	base := strings.TrimSuffix(l.fileName, ext)
	return filepath.Join(l.logDir, base+"."+strconv.Itoa(n)+ext)
}

func (l *Logger) shouldRotate() bool {
	if !l.rotationPolicy.Enabled || l.currentFile == nil || l.rotationPolicy.MaxSizeMB <= 0 {
		return false
	}
	return l.currentSize >= int64(l.rotationPolicy.MaxSizeMB)*1024*1024
}

// rotate shifts mfilemon.log to mfilemon.1.log, mfilemon.1.log to
// mfilemon.2.log and so on, dropping the oldest backup.
func (l *Logger) rotate() {
	l.closeFile()

	max := l.rotationPolicy.MaxBackups
	if max <= 0 {
		os.Remove(l.activePath())
		return
	}
	os.Remove(l.backupPath(max))
	for i := max - 1; i >= 1; i-- {
		os.Rename(l.backupPath(i), l.backupPath(i+1))
	}
	os.Rename(l.activePath(), l.backupPath(1))
}

func (l *Logger) closeFile() {
	if l.currentFile != nil {
		l.currentFile.Close()
		l.currentFile = nil
		l.currentSize = 0
	}
}

// GetBuffer returns a copy of the in-memory log buffer
func (l *Logger) GetBuffer() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	buffer := make([]LogEntry, len(l.buffer))
	copy(buffer, l.buffer)
	return buffer
}

// ForceRotate immediately rotates the current log file
func (l *Logger) ForceRotate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotate()
}

// Close closes the current log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// LevelFromString converts a level name or number to a LogLevel.
// Unknown values map to ERRORS.
func LevelFromString(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return NONE
	case "errors", "error", "1":
		return ERRORS
	case "warnings", "warning", "warn", "2":
		return WARNINGS
	case "debug", "3":
		return DEBUG
	default:
		return ERRORS
	}
}

// LevelToString converts a LogLevel to a string
func LevelToString(level LogLevel) string {
	return levelNames[level]
}

// ClampLevel maps a persisted numeric level onto the known range.
func ClampLevel(n int) LogLevel {
	switch {
	case n < int(NONE):
		return NONE
	case n > int(DEBUG):
		return DEBUG
	default:
		return LogLevel(n)
	}
}

// Copy writes all buffered logs to a writer
func (l *Logger) Copy(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.buffer {
		if _, err := fmt.Fprintln(w, formatLogEntry(entry)); err != nil {
			return err
		}
	}
	return nil
}

// Discard is a Sink that drops everything.
var Discard Sink = nullLogger{}

type nullLogger struct{}

func (nullLogger) Error(string, ...interface{}) {}
func (nullLogger) Warn(string, ...interface{})  {}
func (nullLogger) Info(string, ...interface{})  {}
func (nullLogger) Debug(string, ...interface{}) {}
