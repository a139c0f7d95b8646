package util

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

var quietMode bool
var silentMode bool

// SetQuietMode turns informational output into timestamped log lines.
func SetQuietMode(quiet bool) {
	quietMode = quiet
}

// SetSilentMode suppresses all output, errors included.
func SetSilentMode(silent bool) {
	silentMode = silent
	if silent {
		quietMode = true
	}
}

func IsQuietMode() bool {
	return quietMode
}

func IsSilentMode() bool {
	return silentMode
}

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

const banner = `
   __  __ _____ ___ _     _____ __  __  ___  _   _
  |  \/  |  ___|_ _| |   | ____|  \/  |/ _ \| \ | |
  | |\/| | |_   | || |   |  _| | |\/| | | | |  \| |
  | |  | |  _|  | || |___| |___| |  | | |_| | |\  |
  |_|  |_|_|   |___|_____|_____|_|  |_|\___/|_| \_|
`

// ShowBanner prints the program banner with its build information.
func ShowBanner(version, gitCommit, buildDate, componentName string) {
	if quietMode {
		return
	}
	fmt.Print(ColorCyan + banner + ColorReset)
	fmt.Println()
	fmt.Printf("  %s%s%s\n", ColorBold, componentName, ColorReset)
	fmt.Printf("  Version %s%s%s | Build %s%s%s | %s\n",
		ColorGreen, version, ColorReset,
		ColorYellow, gitCommit, ColorReset,
		buildDate)
	host, _ := os.Hostname()
	fmt.Printf("  %sOS:%s %s/%s | %sHost:%s %s\n\n",
		ColorDim, ColorReset, runtime.GOOS, runtime.GOARCH,
		ColorDim, ColorReset, host)
}

// logLine is the quiet mode form of a message.
func logLine(color, level, message string) {
	fmt.Fprintf(os.Stderr, "%s%s%s %s[%s]%s %s\n",
		ColorDim, time.Now().Format(time.RFC3339), ColorReset,
		color, level, ColorReset, message)
}

func ShowSuccess(message string) {
	if silentMode {
		return
	}
	if quietMode {
		logLine(ColorBlue, "INFO", message)
		return
	}
	fmt.Fprintf(os.Stderr, "  %s✓%s %s\n", ColorGreen, ColorReset, message)
}

// ShowError is printed in quiet mode too.
func ShowError(message string) {
	if silentMode {
		return
	}
	if quietMode {
		logLine(ColorRed, "ERROR", message)
		return
	}
	fmt.Fprintf(os.Stderr, "  %s✗%s %s\n", ColorRed, ColorReset, message)
}

func ShowInfo(message string) {
	if silentMode {
		return
	}
	if quietMode {
		logLine(ColorBlue, "INFO", message)
		return
	}
	fmt.Fprintf(os.Stderr, "  %s•%s %s\n", ColorCyan, ColorReset, message)
}

// ShowWarning is printed in quiet mode too.
func ShowWarning(message string) {
	if silentMode {
		return
	}
	if quietMode {
		logLine(ColorYellow, "WARN", message)
		return
	}
	fmt.Fprintf(os.Stderr, "  %s⚠%s %s\n", ColorYellow, ColorReset, message)
}

// FormatTable lays rows out in left aligned columns separated by two
// spaces. The first row is the header.
func FormatTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}
	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(cell))+2))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
