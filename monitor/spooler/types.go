// Package spooler talks back to the print spooler that drives the monitor:
// it reads the details of the job being printed and issues job control
// commands. On Windows this goes through winspool.drv; elsewhere, and in
// tests, an in-memory Queue plays the spooler's part.
package spooler

import (
	"errors"
	"fmt"
	"time"
)

// JobControl is a SetJob command.
type JobControl uint32

const (
	ControlPause           JobControl = 1
	ControlResume          JobControl = 2
	ControlCancel          JobControl = 3
	ControlRestart         JobControl = 4
	ControlDelete          JobControl = 5
	ControlSentToPrinter   JobControl = 6
	ControlLastPageEjected JobControl = 7
)

func (c JobControl) String() string {
	switch c {
	case ControlPause:
		return "pause"
	case ControlResume:
		return "resume"
	case ControlCancel:
		return "cancel"
	case ControlRestart:
		return "restart"
	case ControlDelete:
		return "delete"
	case ControlSentToPrinter:
		return "sent-to-printer"
	case ControlLastPageEjected:
		return "last-page-ejected"
	default:
		return fmt.Sprintf("control(%d)", uint32(c))
	}
}

// JobInfo is the part of a spooled job the monitor cares about.
type JobInfo struct {
	JobID       uint32    `json:"job_id"`
	PrinterName string    `json:"printer_name"`
	MachineName string    `json:"machine_name"`
	UserName    string    `json:"user_name"`
	Document    string    `json:"document"`
	Datatype    string    `json:"datatype"`
	Bin         string    `json:"bin"`
	Submitted   time.Time `json:"submitted"`
}

// Spooler is the print spooler as seen from a port.
type Spooler interface {
	// Job returns the details of a queued job.
	Job(printer string, jobID uint32) (*JobInfo, error)
	// Control sends a job control command.
	Control(printer string, jobID uint32, c JobControl) error
}

// PortLister is implemented by spoolers that can list every port of the
// machine, including those of other monitors.
type PortLister interface {
	PortNames() ([]string, error)
}

// ErrJobNotFound is returned when the spooler does not know a job.
var ErrJobNotFound = errors.New("job not found")

// DEVMODE paper source codes.
const (
	DMBIN_UPPER         = 1
	DMBIN_LOWER         = 2
	DMBIN_MIDDLE        = 3
	DMBIN_MANUAL        = 4
	DMBIN_ENVELOPE      = 5
	DMBIN_ENVMANUAL     = 6
	DMBIN_AUTO          = 7
	DMBIN_TRACTOR       = 8
	DMBIN_SMALLFMT      = 9
	DMBIN_LARGEFMT      = 10
	DMBIN_LARGECAPACITY = 11
	DMBIN_CASSETTE      = 14
	DMBIN_FORMSOURCE    = 15
	DMBIN_USER          = 256
)

var binNames = map[int]string{
	DMBIN_AUTO:          "AUTO",
	DMBIN_CASSETTE:      "CASSETTE",
	DMBIN_ENVELOPE:      "ENVELOPE",
	DMBIN_ENVMANUAL:     "ENVMANUAL",
	DMBIN_FORMSOURCE:    "FORMSOURCE",
	DMBIN_LARGECAPACITY: "LARGECAPACITY",
	DMBIN_LARGEFMT:      "LARGEFMT",
	DMBIN_LOWER:         "LOWER",
	DMBIN_MANUAL:        "MANUAL",
	DMBIN_MIDDLE:        "MIDDLE",
	DMBIN_TRACTOR:       "TRACTOR",
	DMBIN_SMALLFMT:      "SMALLFMT",
	DMBIN_UPPER:         "UPPER",
}

// BinName renders a DEVMODE default source the way the %b field shows it.
func BinName(code int) string {
	if name, ok := binNames[code]; ok {
		return name
	}
	if code >= DMBIN_USER {
		return fmt.Sprintf("USER%d", code)
	}
	return fmt.Sprintf("%d", code)
}
