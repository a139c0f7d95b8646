package config

import (
	"fmt"
	"time"

	"github.com/agilira/argus"
)

// Watcher reports changes to a settings file.
type Watcher struct {
	w *argus.Watcher
}

// Watch polls path and calls onChange after the file is modified or
// recreated. onError receives watch failures and may be nil.
func Watch(path string, interval time.Duration, onChange func(), onError func(error)) (*Watcher, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	w := argus.New(argus.Config{
		PollInterval:    interval,
		CacheTTL:        interval / 2,
		MaxWatchedFiles: 4,
		// a non-zero audit config keeps argus from enabling its default
		// SQLite audit trail
		Audit: argus.AuditConfig{Enabled: false, MinLevel: argus.AuditCritical},
		ErrorHandler: func(err error, file string) {
			if onError != nil {
				onError(fmt.Errorf("watch %s: %w", file, err))
			}
		},
	})

	err := w.Watch(path, func(ev argus.ChangeEvent) {
		if ev.IsDelete {
			return
		}
		onChange()
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	return &Watcher{w: w}, nil
}

// Close stops polling.
func (w *Watcher) Close() error {
	if w == nil || w.w == nil {
		return nil
	}
	return w.w.Close()
}
