package port

import (
	"path/filepath"
	"time"
)

// jobContext is the data of the job being printed. The port's patterns
// render from it, always with the port lock held.
type jobContext struct {
	printer  string
	jobID    uint32
	title    string
	user     string
	machine  string
	bin      string
	started  time.Time
	local    bool
	fileName string
}

func (j *jobContext) reset() {
	*j = jobContext{}
}

func (j *jobContext) JobTime() time.Time {
	if j.started.IsZero() {
		return time.Now()
	}
	return j.started
}

func (j *jobContext) JobTitle() string     { return j.title }
func (j *jobContext) JobID() uint32        { return j.jobID }
func (j *jobContext) UserName() string     { return j.user }
func (j *jobContext) ComputerName() string { return j.machine }
func (j *jobContext) PrinterName() string  { return j.printer }
func (j *jobContext) Bin() string          { return j.bin }
func (j *jobContext) FileName() string     { return j.fileName }

func (j *jobContext) Path() string {
	if j.fileName == "" {
		return ""
	}
	return filepath.Dir(j.fileName)
}
