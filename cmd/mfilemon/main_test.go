package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The command runs share the terminal output mode, so these tests are not
// parallel.

type env struct {
	config string
	out    string
	db     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		config: filepath.Join(dir, "mfilemon.toml"),
		out:    filepath.Join(dir, "out"),
		db:     filepath.Join(dir, "ports.db"),
	}
	settings := fmt.Sprintf(`
[logging]
level = "errors"
dir = %q

[store]
backend = "sqlite"
path = %q
`, filepath.Join(dir, "logs"), e.db)
	require.NoError(t, os.WriteFile(e.config, []byte(settings), 0o644))
	return e
}

func (e *env) run(t *testing.T, stdin string, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(append([]string{"-config", e.config, "-s"}, args...), strings.NewReader(stdin), &out)
	return code, out.String()
}

func (e *env) getenv(vars map[string]string) func(string) string {
	return func(k string) string {
		if k == "MFILEMON_CONFIG" {
			return e.config
		}
		return vars[k]
	}
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"-s"}, nil, &out))
	assert.Contains(t, out.String(), "usage: mfilemon")

	out.Reset()
	assert.Equal(t, exitUsage, run([]string{"-s", "frobnicate"}, nil, &out))

	out.Reset()
	assert.Equal(t, exitUsage, run([]string{"-s", "-bogus"}, nil, &out))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, exitOK, run([]string{"-s", "version"}, nil, &out))
	assert.Contains(t, out.String(), "mfilemon dev")
}

func TestPortLifecycle(t *testing.T) {
	e := newEnv(t)

	code, _ := e.run(t, "", "add", "PDF:", "-output", e.out, "-pattern", "%u-%i.txt")
	require.Equal(t, exitOK, code)

	// duplicates are refused
	code, _ = e.run(t, "", "add", "pdf:")
	assert.Equal(t, exitError, code)

	code, out := e.run(t, "", "list")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "PDF:")
	assert.Contains(t, out, "Multi file port")
	assert.Contains(t, out, e.out)

	code, _ = e.run(t, "", "set", "PDF:", "-overwrite", "-timeout", "30", "-log-level", "warnings")
	require.Equal(t, exitOK, code)

	code, out = e.run(t, "", "show", "PDF:")
	require.Equal(t, exitOK, code)
	assert.Regexp(t, `overwrite\s+true`, out)
	assert.Regexp(t, `timeout\s+30`, out)
	assert.Regexp(t, `pattern\s+%u-%i.txt`, out)
	assert.Regexp(t, `log-level\s+warnings`, out)

	code, _ = e.run(t, "", "delete", "PDF:")
	require.Equal(t, exitOK, code)

	code, out = e.run(t, "", "list")
	require.Equal(t, exitOK, code)
	assert.NotContains(t, out, "PDF:")

	code, _ = e.run(t, "", "show", "PDF:")
	assert.Equal(t, exitError, code)
	code, _ = e.run(t, "", "delete", "PDF:")
	assert.Equal(t, exitError, code)
}

func TestSetValidation(t *testing.T) {
	e := newEnv(t)
	code, _ := e.run(t, "", "add", "P1:")
	require.Equal(t, exitOK, code)

	code, _ = e.run(t, "", "set", "P1:")
	assert.Equal(t, exitUsage, code)

	code, _ = e.run(t, "", "set", "P1:", "-timeout", "9999999")
	assert.Equal(t, exitUsage, code)

	// a bad pattern is rejected and the port keeps its pattern
	code, _ = e.run(t, "", "set", "P1:", "-pattern", "%q")
	assert.Equal(t, exitError, code)
	_, out := e.run(t, "", "show", "P1:")
	assert.Regexp(t, `pattern\s+%i\.prn`, out)
}

func TestPrint(t *testing.T) {
	e := newEnv(t)
	code, _ := e.run(t, "", "add", "OUT:", "-output", e.out, "-pattern", "%u-%i.txt")
	require.Equal(t, exitOK, code)

	code, _ = e.run(t, "hello from stdin", "print", "-port", "OUT:", "-user", "alice", "-job", "3")
	require.Equal(t, exitOK, code)
	data, err := os.ReadFile(filepath.Join(e.out, "alice-0001.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from stdin", string(data))

	in := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(in, []byte("file body"), 0o644))
	code, _ = e.run(t, "", "print", "-port", "OUT:", "-user", "alice", in)
	require.Equal(t, exitOK, code)
	data, err = os.ReadFile(filepath.Join(e.out, "alice-0002.txt"))
	require.NoError(t, err)
	assert.Equal(t, "file body", string(data))

	code, _ = e.run(t, "", "print", "-port", "NOPE:")
	assert.Equal(t, exitError, code)
	code, _ = e.run(t, "", "print")
	assert.Equal(t, exitUsage, code)
}

func TestListHeader(t *testing.T) {
	e := newEnv(t)
	code, _ := e.run(t, "", "add", "PDF:")
	require.Equal(t, exitOK, code)

	var out bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-config", e.config, "list"}, nil, &out))
	assert.Contains(t, out.String(), "DESCRIPTION")

	// quiet output is for scripts: rows only
	out.Reset()
	require.Equal(t, exitOK, run([]string{"-config", e.config, "-q", "list"}, nil, &out))
	assert.NotContains(t, out.String(), "DESCRIPTION")
	assert.Contains(t, out.String(), "PDF:")
}

func TestPrintLog(t *testing.T) {
	e := newEnv(t)
	code, _ := e.run(t, "", "add", "OUT:", "-output", e.out)
	require.Equal(t, exitOK, code)

	code, out := e.run(t, "data", "print", "-port", "OUT:", "-log")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "MFILEMON log start")
}

func TestRotateLog(t *testing.T) {
	e := newEnv(t)
	logs := filepath.Join(filepath.Dir(e.config), "logs")

	code, _ := e.run(t, "", "list")
	require.Equal(t, exitOK, code)
	assert.FileExists(t, filepath.Join(logs, "mfilemon.log"))

	code, _ = e.run(t, "", "rotate-log")
	require.Equal(t, exitOK, code)
	backup, err := os.ReadFile(filepath.Join(logs, "mfilemon.1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), "MFILEMON log start")

	code, _ = e.run(t, "", "rotate-log", "extra")
	assert.Equal(t, exitUsage, code)
}

func TestGenerateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.toml")
	var out bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-s", "generate-config", path}, nil, &out))
	assert.FileExists(t, path)

	// never overwritten
	assert.Equal(t, exitError, run([]string{"-s", "generate-config", path}, nil, &out))
}

func TestCupsMode(t *testing.T) {
	none := func(string) string { return "" }
	uri := func(k string) string {
		if k == "DEVICE_URI" {
			return "mfilemon:/PDF:"
		}
		return ""
	}
	assert.False(t, cupsMode("/usr/bin/mfilemon", none))
	assert.True(t, cupsMode("/usr/lib/cups/backend/mfilemon", none))
	assert.True(t, cupsMode("/usr/bin/mfilemon", uri))
}

func TestPortFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"mfilemon:/PDF:", "PDF:", false},
		{"mfilemon://PDF:", "PDF:", false},
		{"mfilemon:/My%20Port", "My Port", false},
		{"mfilemon:/", "", true},
		{"ipp://host/printers/x", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := portFromURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackendJob(t *testing.T) {
	e := newEnv(t)
	code, _ := e.run(t, "", "add", "CUPS:", "-output", e.out, "-pattern", "%u-%i.ps")
	require.Equal(t, exitOK, code)

	var stdout, stderr bytes.Buffer
	getenv := e.getenv(map[string]string{"DEVICE_URI": "mfilemon:/CUPS:", "PRINTER": "office"})
	code = runBackend([]string{"12", "bob", "Report", "1", ""}, strings.NewReader("%!PS\n"), &stdout, &stderr, getenv)
	require.Equal(t, cupsOK, code, stderr.String())

	data, err := os.ReadFile(filepath.Join(e.out, "bob-0001.ps"))
	require.NoError(t, err)
	assert.Equal(t, "%!PS\n", string(data))
	assert.Contains(t, stderr.String(), "INFO: printing job 12")

	code = runBackend([]string{"12", "bob"}, nil, &stdout, &stderr, getenv)
	assert.Equal(t, cupsFailed, code)

	stderr.Reset()
	code = runBackend([]string{"x", "bob", "Report", "1", ""}, nil, &stdout, &stderr, getenv)
	assert.Equal(t, cupsFailed, code)

	noURI := e.getenv(nil)
	code = runBackend([]string{"12", "bob", "Report", "1", ""}, nil, &stdout, &stderr, noURI)
	assert.Equal(t, cupsStop, code)
}

func TestBackendDiscovery(t *testing.T) {
	e := newEnv(t)

	var stdout, stderr bytes.Buffer
	require.Equal(t, cupsOK, runBackend(nil, nil, &stdout, &stderr, e.getenv(nil)))
	assert.Equal(t, "file mfilemon:/ \"Unknown\" \"Multi file port\"\n", stdout.String())

	code, _ := e.run(t, "", "add", "PDF:")
	require.Equal(t, exitOK, code)

	stdout.Reset()
	require.Equal(t, cupsOK, runBackend(nil, nil, &stdout, &stderr, e.getenv(nil)))
	assert.Equal(t, "file mfilemon:/PDF: \"Unknown\" \"Multi file port PDF:\"\n", stdout.String())
}
