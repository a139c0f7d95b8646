//go:build windows
// +build windows

package store

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// MonitorKeyPath is where the spooler keeps the monitor's settings under
// HKEY_LOCAL_MACHINE; port keys sit directly below it.
const MonitorKeyPath = `SYSTEM\CurrentControlSet\Control\Print\Monitors\mfilemon`

// Registry is a Store over a registry key. Each subkey is a port.
type Registry struct {
	root registry.Key
	path string
}

// OpenRegistry opens HKLM\path, creating it when missing.
func OpenRegistry(path string) (*Registry, error) {
	if path == "" {
		path = MonitorKeyPath
	}
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, path, registry.ALL_ACCESS)
	if err != nil {
		return nil, fmt.Errorf("open HKLM\\%s: %w", path, err)
	}
	return &Registry{root: k, path: path}, nil
}

func regErr(what string, err error) error {
	if errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("%s: %w", what, ErrNotExist)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r *Registry) Keys() ([]string, error) {
	names, err := r.root.ReadSubKeyNames(-1)
	if err != nil {
		return nil, regErr("list ports", err)
	}
	return names, nil
}

func (r *Registry) Open(name string) (Key, error) {
	k, err := registry.OpenKey(r.root, name, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return nil, regErr("key "+name, err)
	}
	return regKey{k}, nil
}

func (r *Registry) Create(name string) (Key, error) {
	k, _, err := registry.CreateKey(r.root, name, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return nil, regErr("create key "+name, err)
	}
	return regKey{k}, nil
}

func (r *Registry) Delete(name string) error {
	if err := registry.DeleteKey(r.root, name); err != nil {
		return regErr("delete key "+name, err)
	}
	return nil
}

// Root returns the monitor key itself. Closing the returned key is a
// no-op; the store owns it.
func (r *Registry) Root() (Key, error) {
	return rootKey{regKey{r.root}}, nil
}

func (r *Registry) Close() error {
	return r.root.Close()
}

type regKey struct {
	k registry.Key
}

type rootKey struct {
	regKey
}

func (rootKey) Close() error { return nil }

func (k regKey) String(name string) (string, error) {
	v, typ, err := k.k.GetStringValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrUnexpectedType) {
			return "", fmt.Errorf("value %q is type %d: %w", name, typ, ErrWrongType)
		}
		return "", regErr("value "+name, err)
	}
	return v, nil
}

func (k regKey) SetString(name, value string) error {
	return k.k.SetStringValue(name, value)
}

func (k regKey) DWord(name string) (uint32, error) {
	v, typ, err := k.k.GetIntegerValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrUnexpectedType) {
			return 0, fmt.Errorf("value %q is type %d: %w", name, typ, ErrWrongType)
		}
		return 0, regErr("value "+name, err)
	}
	if typ != registry.DWORD {
		return 0, fmt.Errorf("value %q is type %d: %w", name, typ, ErrWrongType)
	}
	return uint32(v), nil
}

func (k regKey) SetDWord(name string, value uint32) error {
	return k.k.SetDWordValue(name, value)
}

func (k regKey) Binary(name string) ([]byte, error) {
	v, typ, err := k.k.GetBinaryValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrUnexpectedType) {
			return nil, fmt.Errorf("value %q is type %d: %w", name, typ, ErrWrongType)
		}
		return nil, regErr("value "+name, err)
	}
	return v, nil
}

func (k regKey) SetBinary(name string, value []byte) error {
	return k.k.SetBinaryValue(name, value)
}

func (k regKey) Close() error {
	return k.k.Close()
}
