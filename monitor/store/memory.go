package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memValue struct {
	kind Kind
	str  string
	num  uint32
	blob []byte
}

type memKey struct {
	name   string
	values map[string]memValue
}

// Memory is a Store kept in memory, used by tests and by the command line
// tool when asked not to persist anything.
type Memory struct {
	mu     sync.RWMutex
	keys   map[string]*memKey
	root   *memKey
	closed bool
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		keys: make(map[string]*memKey),
		root: &memKey{values: make(map[string]memValue)},
	}
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		names = append(names, k.name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Open(name string) (Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	k, ok := m.keys[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", name, ErrNotExist)
	}
	return &memHandle{m: m, k: k}, nil
}

func (m *Memory) Create(name string) (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	lower := strings.ToLower(name)
	k, ok := m.keys[lower]
	if !ok {
		k = &memKey{name: name, values: make(map[string]memValue)}
		m.keys[lower] = k
	}
	return &memHandle{m: m, k: k}, nil
}

func (m *Memory) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	lower := strings.ToLower(name)
	if _, ok := m.keys[lower]; !ok {
		return fmt.Errorf("key %q: %w", name, ErrNotExist)
	}
	delete(m.keys, lower)
	return nil
}

func (m *Memory) Root() (Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return &memHandle{m: m, k: m.root}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// memHandle shares the store lock; a deleted key's handle keeps working
// on the detached values.
type memHandle struct {
	m *Memory
	k *memKey
}

func (h *memHandle) get(name string, kind Kind) (memValue, error) {
	h.m.mu.RLock()
	defer h.m.mu.RUnlock()
	v, ok := h.k.values[strings.ToLower(name)]
	if !ok {
		return memValue{}, fmt.Errorf("value %q: %w", name, ErrNotExist)
	}
	if v.kind != kind {
		return memValue{}, fmt.Errorf("value %q is %s: %w", name, v.kind, ErrWrongType)
	}
	return v, nil
}

func (h *memHandle) set(name string, v memValue) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.m.closed {
		return ErrClosed
	}
	h.k.values[strings.ToLower(name)] = v
	return nil
}

func (h *memHandle) String(name string) (string, error) {
	v, err := h.get(name, KindString)
	return v.str, err
}

func (h *memHandle) SetString(name, value string) error {
	return h.set(name, memValue{kind: KindString, str: value})
}

func (h *memHandle) DWord(name string) (uint32, error) {
	v, err := h.get(name, KindDWord)
	return v.num, err
}

func (h *memHandle) SetDWord(name string, value uint32) error {
	return h.set(name, memValue{kind: KindDWord, num: value})
}

func (h *memHandle) Binary(name string) ([]byte, error) {
	v, err := h.get(name, KindBinary)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.blob...), nil
}

func (h *memHandle) SetBinary(name string, value []byte) error {
	return h.set(name, memValue{kind: KindBinary, blob: append([]byte(nil), value...)})
}

func (h *memHandle) Close() error { return nil }
