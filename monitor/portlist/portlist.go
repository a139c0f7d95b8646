// Package portlist keeps the ports of the monitor: lookup by name, adding
// and deleting ports, the spooler's port enumeration and the round trip to
// the persistent store.
package portlist

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/common/util"
	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/status"
	"github.com/lomo74/mfilemon/monitor/store"
)

// Monitor identity shown in port listings.
const (
	DefaultMonitorName = "mfilemon"
	DefaultDescription = "Multi file port"
)

// Options configures a Registry.
type Options struct {
	MonitorName string
	Description string
	// PasswordKey encrypts stored passwords; the built-in monitor key when
	// nil.
	PasswordKey []byte
	Logger      *logger.Logger
}

// Registry owns every port. Lookups take the read lock; adding, deleting
// and enumerating are linearizable with respect to each other.
type Registry struct {
	mu    sync.RWMutex
	ports map[string]*port.Port
	order []string

	store store.Store
	env   port.Env
	opts  Options
	log   *logger.Logger
}

// New creates an empty registry persisting to st. env is the template
// for every port's environment; each port logs under its own name.
func New(st store.Store, env port.Env, opts Options) *Registry {
	if opts.MonitorName == "" {
		opts.MonitorName = DefaultMonitorName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}
	if opts.PasswordKey == nil {
		opts.PasswordKey = util.MonitorKey()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.NONE, "", 0)
	}
	return &Registry{
		ports: make(map[string]*port.Port),
		store: st,
		env:   env,
		opts:  opts,
		log:   opts.Logger,
	}
}

// MonitorName returns the monitor name used in listings.
func (r *Registry) MonitorName() string { return r.opts.MonitorName }

// Description returns the port description used in listings.
func (r *Registry) Description() string { return r.opts.Description }

// FindPort looks a port up by name, ignoring case.
func (r *Registry) FindPort(name string) *port.Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ports[strings.ToLower(name)]
}

// AddPort creates a port from cfg. With persist set the configuration is
// saved; a port that cannot be saved is not added.
func (r *Registry) AddPort(cfg port.Config, persist bool) (*port.Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(cfg.Name)
	if _, ok := r.ports[key]; ok {
		return nil, fmt.Errorf("port %s: %w", cfg.Name, status.ErrAlreadyExists)
	}

	env := r.env
	env.Log = r.log.ForPort(cfg.Name)
	p, err := port.New(cfg, env)
	if err != nil {
		return nil, err
	}
	if persist {
		if err := r.save(p.Config()); err != nil {
			p.Close()
			return nil, err
		}
	}

	r.ports[key] = p
	r.order = append(r.order, key)
	r.log.Info("port up and running", "port", cfg.Name)
	return p, nil
}

// DeletePort removes a port, deletes its stored configuration and closes
// it. The caller makes sure no job is running on it.
func (r *Registry) DeletePort(name string) error {
	p, err := r.unlink(name)
	if p != nil {
		p.Close()
	}
	return err
}

func (r *Registry) unlink(name string) (*port.Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	p, ok := r.ports[key]
	if !ok {
		return nil, fmt.Errorf("port %s: %w", name, status.ErrFileNotFound)
	}
	r.log.Debug("removing port", "port", p.Name())

	delete(r.ports, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.store != nil {
		if err := r.store.Delete(p.Name()); err != nil && !errors.Is(err, store.ErrNotExist) {
			r.log.Error("can't remove port from store", "port", p.Name(), "error", err)
			return p, err
		}
	}
	return p, nil
}

// Names returns the port names in the order they were added.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, k := range r.order {
		names = append(names, r.ports[k].Name())
	}
	return names
}

// Len returns the number of ports.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// SetWriteTimeout changes the write timeout of every port and of ports
// added later.
func (r *Registry) SetWriteTimeout(d time.Duration) {
	r.mu.Lock()
	r.env.WriteTimeout = d
	ports := make([]*port.Port, 0, len(r.order))
	for _, k := range r.order {
		ports = append(ports, r.ports[k])
	}
	r.mu.Unlock()

	for _, p := range ports {
		p.SetWriteTimeout(d)
	}
}

// Close closes every port.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.order {
		r.ports[k].Close()
	}
	r.ports = make(map[string]*port.Port)
	r.order = nil
}

// sortedNames is used where a stable order independent of insertion is
// wanted, e.g. when saving.
func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.ports))
	for _, p := range r.ports {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}
