package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level LogLevel
		want  []Severity
	}{
		{NONE, []Severity{ALWAYS}},
		{ERRORS, []Severity{ALWAYS, CRITICAL, ERROR, INFO}},
		{WARNINGS, []Severity{ALWAYS, CRITICAL, ERROR, INFO, WARN}},
		{DEBUG, []Severity{ALWAYS, CRITICAL, ERROR, INFO, WARN, TRACE}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(LevelToString(tt.level), func(t *testing.T) {
			t.Parallel()

			logger := New(tt.level, t.TempDir(), 100)
			defer logger.Close()

			logger.Always("always")
			logger.Critical("critical")
			logger.Error("error")
			logger.Info("info")
			logger.Warn("warn")
			logger.Debug("debug")

			buffer := logger.GetBuffer()
			if len(buffer) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(buffer))
			}
			for i, sev := range tt.want {
				if buffer[i].Severity != sev {
					t.Errorf("entry %d: expected %s, got %s", i, severityNames[sev], severityNames[buffer[i].Severity])
				}
			}
		})
	}
}

func TestLoggerContext(t *testing.T) {
	t.Parallel()

	logger := New(ERRORS, t.TempDir(), 100)
	defer logger.Close()

	logger.Info("test message", "key1", "value1", "key2", 42, "dangling")

	buffer := logger.GetBuffer()
	if len(buffer) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(buffer))
	}
	entry := buffer[0]
	if entry.Context["key1"] != "value1" {
		t.Errorf("expected context key1=value1, got %v", entry.Context["key1"])
	}
	if entry.Context["key2"] != 42 {
		t.Errorf("expected context key2=42, got %v", entry.Context["key2"])
	}
	if len(entry.Context) != 2 {
		t.Errorf("dangling key should be ignored, got %v", entry.Context)
	}
}

func TestLoggerSetLevel(t *testing.T) {
	t.Parallel()

	logger := New(ERRORS, t.TempDir(), 100)
	defer logger.Close()

	logger.Debug("hidden")
	logger.SetLevel(DEBUG)
	if logger.GetLevel() != DEBUG {
		t.Fatalf("expected DEBUG, got %v", logger.GetLevel())
	}
	logger.Debug("shown")

	buffer := logger.GetBuffer()
	if len(buffer) != 1 || buffer[0].Message != "shown" {
		t.Errorf("expected only the message logged after SetLevel, got %v", buffer)
	}
}

func TestLoggerCircularBuffer(t *testing.T) {
	t.Parallel()

	logger := New(ERRORS, t.TempDir(), 5)
	defer logger.Close()

	for i := 0; i < 10; i++ {
		logger.Error("message", "num", i)
	}

	buffer := logger.GetBuffer()
	if len(buffer) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(buffer))
	}
	if buffer[0].Context["num"] != 5 {
		t.Errorf("expected oldest entry num=5, got %v", buffer[0].Context["num"])
	}
	if buffer[4].Context["num"] != 9 {
		t.Errorf("expected newest entry num=9, got %v", buffer[4].Context["num"])
	}
}

func TestLoggerFileOutput(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(ERRORS, tmpDir, 100)

	logger.ForPort("PDF1").Error("cannot create file", "file", `C:\out\a.pdf`)
	logger.Close()

	content, err := os.ReadFile(filepath.Join(tmpDir, DefaultFileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "[ERROR] PDF1: cannot create file") {
		t.Errorf("log file should contain the tagged message, got: %s", contentStr)
	}
	if !strings.Contains(contentStr, `file=C:\out\a.pdf`) {
		t.Errorf("log file should contain context, got: %s", contentStr)
	}
}

func TestLoggerWithoutDirectory(t *testing.T) {
	t.Parallel()

	logger := New(DEBUG, "", 10)
	logger.Error("only in memory")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(logger.GetBuffer()) != 1 {
		t.Errorf("expected buffered entry")
	}
}

func TestLoggerConsoleOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger := New(WARNINGS, "", 10)
	logger.console = &out
	logger.SetConsoleOutput(true)

	logger.Warn("low disk")
	if !strings.Contains(out.String(), "[WARN] low disk") {
		t.Errorf("console should receive the entry, got %q", out.String())
	}
}

func TestLoggerRotation(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(ERRORS, tmpDir, 0)
	logger.SetRotationPolicy(RotationPolicy{Enabled: true, MaxSizeMB: 1, MaxBackups: 2})

	line := strings.Repeat("x", 200*1024)
	for i := 0; i < 20; i++ {
		logger.Error(line)
	}
	logger.Error("tail")
	logger.Close()

	for _, name := range []string{"mfilemon.log", "mfilemon.1.log", "mfilemon.2.log"} {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "mfilemon.3.log")); !os.IsNotExist(err) {
		t.Errorf("expected at most 2 backups, mfilemon.3.log stat err=%v", err)
	}

	st, err := os.Stat(filepath.Join(tmpDir, "mfilemon.1.log"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() < 1024*1024 {
		t.Errorf("rotated file should hold at least the threshold, got %d bytes", st.Size())
	}
}

func TestForceRotate(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	logger := New(ERRORS, tmpDir, 10)

	logger.Error("first")
	logger.ForceRotate()
	logger.Error("second")
	logger.Close()

	first, err := os.ReadFile(filepath.Join(tmpDir, "mfilemon.1.log"))
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if !strings.Contains(string(first), "first") {
		t.Errorf("backup should hold the first message, got %q", first)
	}
	second, err := os.ReadFile(filepath.Join(tmpDir, "mfilemon.log"))
	if err != nil {
		t.Fatalf("active file missing: %v", err)
	}
	if strings.Contains(string(second), "first") || !strings.Contains(string(second), "second") {
		t.Errorf("active file should hold only the second message, got %q", second)
	}
}

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"none", NONE},
		{"0", NONE},
		{"Errors", ERRORS},
		{"WARNINGS", WARNINGS},
		{"warn", WARNINGS},
		{"debug", DEBUG},
		{"3", DEBUG},
		{"invalid", ERRORS},
	}

	for _, tt := range tests {
		result := LevelFromString(tt.input)
		if result != tt.expected {
			t.Errorf("LevelFromString(%q) = %v, expected %v", tt.input, result, tt.expected)
		}
	}
}

func TestClampLevel(t *testing.T) {
	t.Parallel()

	if ClampLevel(-4) != NONE || ClampLevel(2) != WARNINGS || ClampLevel(17) != DEBUG {
		t.Errorf("ClampLevel did not clamp to the known range")
	}
}

func TestLoggerConcurrency(t *testing.T) {
	t.Parallel()

	logger := New(ERRORS, t.TempDir(), 1000)
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			port := logger.ForPort("P" + string(rune('0'+id)))
			for j := 0; j < 100; j++ {
				port.Info("concurrent message", "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	if n := len(logger.GetBuffer()); n != 1000 {
		t.Errorf("expected 1000 entries in buffer, got %d", n)
	}
}

func TestFormatLogEntry(t *testing.T) {
	t.Parallel()

	entry := LogEntry{
		Timestamp: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC),
		Severity:  WARN,
		Port:      "FILE1",
		Message:   "test message",
		Context: map[string]interface{}{
			"b": 2,
			"a": "one",
		},
	}

	formatted := formatLogEntry(entry)
	want := "2025-11-01T12:00:00+00:00 [WARN] FILE1: test message a=one b=2"
	if formatted != want {
		t.Errorf("formatLogEntry() = %q, want %q", formatted, want)
	}

	var buf bytes.Buffer
	logger := New(DEBUG, "", 10)
	logger.Debug("copied")
	if err := logger.Copy(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[DEBUG] copied") {
		t.Errorf("Copy output missing entry: %q", buf.String())
	}
}
