package portlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lomo74/mfilemon/common/logger"
	"github.com/lomo74/mfilemon/common/util"
	"github.com/lomo74/mfilemon/monitor/port"
	"github.com/lomo74/mfilemon/monitor/status"
	"github.com/lomo74/mfilemon/monitor/store"
)

// Value names under each port key, and the monitor wide log level on the
// root key.
const (
	ValueOutputPath      = "OutputPath"
	ValueFilePattern     = "FilePattern"
	ValueOverwrite       = "Overwrite"
	ValueUserCommand     = "UserCommand"
	ValueExecPath        = "ExecPath"
	ValueWaitTermination = "WaitTermination"
	ValueWaitTimeout     = "WaitTimeout"
	ValuePipeData        = "PipeData"
	ValueHideProcess     = "HideProcess"
	ValueUser            = "User"
	ValueDomain          = "Domain"
	ValuePassword        = "Password"
	ValueLogLevel        = "LogLevel"
)

// LoadFromStore reads the log level and every stored port. Ports that
// cannot be read are skipped with a warning.
func (r *Registry) LoadFromStore() error {
	if r.store == nil {
		return nil
	}
	if root, err := r.store.Root(); err == nil {
		if lvl, err := root.DWord(ValueLogLevel); err == nil {
			r.log.SetLevel(logger.ClampLevel(int(lvl)))
		}
		root.Close()
	}

	names, err := r.store.Keys()
	if err != nil {
		return fmt.Errorf("list stored ports: %w", err)
	}
	for _, name := range names {
		cfg, err := r.readPort(name)
		if err != nil {
			r.log.Warn("skipping stored port", "port", name, "error", err)
			continue
		}
		if _, err := r.AddPort(cfg, false); err != nil {
			r.log.Warn("can't load port", "port", name, "error", err)
		}
	}
	return nil
}

func (r *Registry) readPort(name string) (port.Config, error) {
	k, err := r.store.Open(name)
	if err != nil {
		return port.Config{}, err
	}
	defer k.Close()

	cfg := port.DefaultConfig(name)
	if cfg.OutputPath, err = k.String(ValueOutputPath); err != nil {
		return cfg, fmt.Errorf("%s: %w", ValueOutputPath, err)
	}
	if cfg.FilePattern, err = k.String(ValueFilePattern); err != nil {
		return cfg, fmt.Errorf("%s: %w", ValueFilePattern, err)
	}
	if cfg.Overwrite, err = store.BoolValue(k, ValueOverwrite); err != nil {
		return cfg, fmt.Errorf("%s: %w", ValueOverwrite, err)
	}

	// the rest is optional
	if v, err := k.String(ValueUserCommand); err == nil {
		cfg.UserCommand = v
	}
	if v, err := k.String(ValueExecPath); err == nil {
		cfg.ExecPath = v
	}
	if v, err := store.BoolValue(k, ValueWaitTermination); err == nil {
		cfg.WaitTermination = v
	}
	if v, err := k.DWord(ValueWaitTimeout); err == nil {
		cfg.WaitTimeout = v
	}
	if v, err := store.BoolValue(k, ValuePipeData); err == nil {
		cfg.PipeData = v
	}
	if v, err := store.BoolValue(k, ValueHideProcess); err == nil {
		cfg.HideProcess = v
	}
	if v, err := k.String(ValueUser); err == nil {
		cfg.User = v
	}
	if v, err := k.String(ValueDomain); err == nil {
		cfg.Domain = v
	}
	if blob, err := k.Binary(ValuePassword); err == nil {
		cfg.Password = util.OpenPassword(r.opts.PasswordKey, blob)
	}
	return cfg, nil
}

// SaveToStore writes every port.
func (r *Registry) SaveToStore() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.sortedNames() {
		if err := r.save(r.ports[strings.ToLower(name)].Config()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SavePort writes one port.
func (r *Registry) SavePort(name string) error {
	p := r.FindPort(name)
	if p == nil {
		return fmt.Errorf("port %s: %w", name, status.ErrFileNotFound)
	}
	return r.save(p.Config())
}

// SaveLogLevel persists the monitor wide log level.
func (r *Registry) SaveLogLevel(level logger.LogLevel) error {
	if r.store == nil {
		return nil
	}
	root, err := r.store.Root()
	if err != nil {
		return err
	}
	defer root.Close()
	return root.SetDWord(ValueLogLevel, uint32(level))
}

func (r *Registry) save(cfg port.Config) error {
	if r.store == nil {
		return nil
	}
	k, err := r.store.Create(cfg.Name)
	if err != nil {
		r.log.Error("can't create port key", "port", cfg.Name, "error", err)
		return err
	}
	defer k.Close()

	blob, err := util.SealPassword(r.opts.PasswordKey, cfg.Password)
	if err != nil {
		return fmt.Errorf("seal password of %s: %w", cfg.Name, err)
	}

	writes := []func() error{
		func() error { return k.SetString(ValueOutputPath, cfg.OutputPath) },
		func() error { return k.SetString(ValueFilePattern, cfg.FilePattern) },
		func() error { return store.SetBoolValue(k, ValueOverwrite, cfg.Overwrite) },
		func() error { return k.SetString(ValueUserCommand, cfg.UserCommand) },
		func() error { return k.SetString(ValueExecPath, cfg.ExecPath) },
		func() error { return store.SetBoolValue(k, ValueWaitTermination, cfg.WaitTermination) },
		func() error { return k.SetDWord(ValueWaitTimeout, cfg.WaitTimeout) },
		func() error { return store.SetBoolValue(k, ValuePipeData, cfg.PipeData) },
		func() error { return store.SetBoolValue(k, ValueHideProcess, cfg.HideProcess) },
		func() error { return k.SetString(ValueUser, cfg.User) },
		func() error { return k.SetString(ValueDomain, cfg.Domain) },
		func() error { return k.SetBinary(ValuePassword, blob) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			r.log.Error("can't save port", "port", cfg.Name, "error", err)
			return err
		}
	}
	return nil
}
