package monitor

import "github.com/lomo74/mfilemon/monitor/store"

func openRegistryStore(path string) (store.Store, error) {
	if path == "" {
		path = store.MonitorKeyPath
	}
	r, err := store.OpenRegistry(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}
