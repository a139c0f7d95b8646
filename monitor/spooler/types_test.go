package spooler

import (
	"errors"
	"testing"
	"time"
)

// ===== BinName Tests =====

func TestBinName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want string
	}{
		{DMBIN_UPPER, "UPPER"},
		{DMBIN_AUTO, "AUTO"},
		{DMBIN_CASSETTE, "CASSETTE"},
		{DMBIN_FORMSOURCE, "FORMSOURCE"},
		{DMBIN_USER, "USER256"},
		{DMBIN_USER + 3, "USER259"},
		{12, "12"},
		{0, "0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := BinName(tt.code); got != tt.want {
				t.Errorf("BinName(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestJobControlString(t *testing.T) {
	t.Parallel()

	if ControlRestart.String() != "restart" || ControlPause.String() != "pause" {
		t.Errorf("unexpected control names")
	}
	if JobControl(99).String() != "control(99)" {
		t.Errorf("unknown control should render its number, got %q", JobControl(99).String())
	}
}

// ===== Queue Tests =====

func TestQueueJobLookup(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Submit(JobInfo{
		JobID:       7,
		PrinterName: "PDF Writer",
		MachineName: `\\HOST`,
		UserName:    "alice",
		Document:    "report.docx",
		Submitted:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	job, err := q.Job("pdf writer", 7)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if job.UserName != "alice" || job.Document != "report.docx" {
		t.Errorf("unexpected job %+v", job)
	}

	job.UserName = "mallory"
	again, _ := q.Job("PDF Writer", 7)
	if again.UserName != "alice" {
		t.Errorf("Job should return a copy")
	}

	if _, err := q.Job("PDF Writer", 8); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestQueueControl(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Submit(JobInfo{JobID: 1, PrinterName: "P"})

	if err := q.Control("P", 1, ControlRestart); err != nil {
		t.Fatal(err)
	}
	if err := q.Control("P", 1, ControlDelete); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Job("P", 1); err == nil {
		t.Errorf("deleted job should be gone")
	}

	calls := q.Controls()
	if len(calls) != 2 || calls[0].Control != ControlRestart || calls[1].Control != ControlDelete {
		t.Errorf("unexpected control log %+v", calls)
	}

	boom := errors.New("spooler down")
	q.FailControls(boom)
	if err := q.Control("P", 1, ControlPause); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}
}
