// Package store persists port configurations as a two level hierarchy:
// one key per port holding named values, plus monitor wide values on the
// root key. The layout mirrors the registry tree the print spooler hands
// to monitors, so the same code can run over the registry, over SQLite or
// in memory.
package store

import (
	"errors"
	"fmt"

	"github.com/lomo74/mfilemon/monitor/status"
)

var (
	// ErrNotExist is returned for missing keys and values.
	ErrNotExist = fmt.Errorf("not found: %w", status.ErrFileNotFound)
	// ErrWrongType is returned when a value exists with another type.
	ErrWrongType = errors.New("value has a different type")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// Store is a set of named keys. Key names compare case-insensitively.
type Store interface {
	// Keys lists the port keys.
	Keys() ([]string, error)
	// Open opens an existing key.
	Open(name string) (Key, error)
	// Create opens a key, creating it when missing.
	Create(name string) (Key, error)
	// Delete removes a key and its values.
	Delete(name string) error
	// Root returns the key holding monitor wide values.
	Root() (Key, error)
	Close() error
}

// Key is a set of typed named values.
type Key interface {
	String(name string) (string, error)
	SetString(name, value string) error
	DWord(name string) (uint32, error)
	SetDWord(name string, value uint32) error
	Binary(name string) ([]byte, error)
	SetBinary(name string, value []byte) error
	Close() error
}

// Kind is the type of a stored value, numbered like the registry types.
type Kind int

const (
	KindString Kind = 1
	KindBinary Kind = 3
	KindDWord  Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindDWord:
		return "dword"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BoolValue reads a DWORD as a boolean.
func BoolValue(k Key, name string) (bool, error) {
	v, err := k.DWord(name)
	return v != 0, err
}

// SetBoolValue stores a boolean as a DWORD 0 or 1.
func SetBoolValue(k Key, name string, v bool) error {
	var d uint32
	if v {
		d = 1
	}
	return k.SetDWord(name, d)
}
