package spooler

import (
	"fmt"
	"strings"
	"sync"
)

// ControlCall records one Control request received by a Queue.
type ControlCall struct {
	Printer string
	JobID   uint32
	Control JobControl
}

// Queue is an in-memory spooler. The command line host submits the job it
// is about to print so the port can look it up like it would on Windows.
type Queue struct {
	mu       sync.Mutex
	jobs     map[string]map[uint32]*JobInfo
	controls []ControlCall
	failWith error
	ports    []string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{jobs: make(map[string]map[uint32]*JobInfo)}
}

// Submit adds or replaces a job.
func (q *Queue) Submit(job JobInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := strings.ToLower(job.PrinterName)
	if q.jobs[key] == nil {
		q.jobs[key] = make(map[uint32]*JobInfo)
	}
	j := job
	q.jobs[key][job.JobID] = &j
}

// FailControls makes every following Control call return err.
func (q *Queue) FailControls(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failWith = err
}

func (q *Queue) Job(printer string, jobID uint32) (*JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[strings.ToLower(printer)][jobID]
	if !ok {
		return nil, fmt.Errorf("printer %q job %d: %w", printer, jobID, ErrJobNotFound)
	}
	cp := *j
	return &cp, nil
}

func (q *Queue) Control(printer string, jobID uint32, c JobControl) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.controls = append(q.controls, ControlCall{Printer: printer, JobID: jobID, Control: c})
	if q.failWith != nil {
		return q.failWith
	}
	if c == ControlDelete {
		delete(q.jobs[strings.ToLower(printer)], jobID)
	}
	return nil
}

// Controls returns the Control calls received so far.
func (q *Queue) Controls() []ControlCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ControlCall(nil), q.controls...)
}

// AddPortName makes name show up in PortNames, as a port of another
// monitor would.
func (q *Queue) AddPortName(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ports = append(q.ports, name)
}

// PortNames returns the names added with AddPortName.
func (q *Queue) PortNames() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ports...), nil
}
