//go:build !windows

package monitor

import (
	"fmt"

	"github.com/lomo74/mfilemon/monitor/status"
	"github.com/lomo74/mfilemon/monitor/store"
)

func openRegistryStore(string) (store.Store, error) {
	return nil, fmt.Errorf("registry store: %w", status.ErrNotSupported)
}
