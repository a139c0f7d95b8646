//go:build windows && cgo

package main

/*
#include "mfilemon.h"
*/
import "C"

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/lomo74/mfilemon/monitor/store"
)

// monitorRegStore is a store.Store over the registry functions the
// spooler hands to the monitor. Keys live below the monitor's own key,
// which may be redirected on a cluster.
type monitorRegStore struct {
	init *C.mfm_MONITORINIT
	root C.HANDLE
}

func newMonitorRegStore(init *C.mfm_MONITORINIT) *monitorRegStore {
	return &monitorRegStore{init: init, root: init.hckRegistryRoot}
}

func regResult(what string, rc C.LONG) error {
	switch errno := syscall.Errno(rc); errno {
	case 0:
		return nil
	case windows.ERROR_FILE_NOT_FOUND:
		return fmt.Errorf("%s: %w", what, store.ErrNotExist)
	default:
		return fmt.Errorf("%s: %w", what, errno)
	}
}

func wstr(s string) (*C.WCHAR, error) {
	p, err := windows.UTF16PtrFromString(s)
	if err != nil {
		return nil, err
	}
	return (*C.WCHAR)(unsafe.Pointer(p)), nil
}

func (s *monitorRegStore) Keys() ([]string, error) {
	var count, maxChars C.DWORD
	if err := regResult("query monitor key", C.mfmRegQueryInfoKey(s.init, s.root, &count, &maxChars)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	buf := make([]uint16, maxChars+1)
	for i := C.DWORD(0); i < count; i++ {
		cch := C.DWORD(len(buf))
		rc := C.mfmRegEnumKey(s.init, s.root, i, (*C.WCHAR)(unsafe.Pointer(&buf[0])), &cch)
		if syscall.Errno(rc) == windows.ERROR_NO_MORE_ITEMS {
			break
		}
		if err := regResult("list ports", rc); err != nil {
			return nil, err
		}
		names = append(names, windows.UTF16ToString(buf[:cch]))
	}
	return names, nil
}

func (s *monitorRegStore) Open(name string) (store.Key, error) {
	sub, err := wstr(name)
	if err != nil {
		return nil, err
	}
	var h C.HANDLE
	if err := regResult("key "+name, C.mfmRegOpenKey(s.init, s.root, sub, &h)); err != nil {
		return nil, err
	}
	return &monitorRegKey{s: s, h: h}, nil
}

func (s *monitorRegStore) Create(name string) (store.Key, error) {
	sub, err := wstr(name)
	if err != nil {
		return nil, err
	}
	var h C.HANDLE
	if err := regResult("create key "+name, C.mfmRegCreateKey(s.init, s.root, sub, &h)); err != nil {
		return nil, err
	}
	return &monitorRegKey{s: s, h: h}, nil
}

func (s *monitorRegStore) Delete(name string) error {
	sub, err := wstr(name)
	if err != nil {
		return err
	}
	return regResult("delete key "+name, C.mfmRegDeleteKey(s.init, s.root, sub))
}

// Root returns the monitor key. The spooler owns it.
func (s *monitorRegStore) Root() (store.Key, error) {
	return &monitorRegKey{s: s, h: s.root, root: true}, nil
}

func (s *monitorRegStore) Close() error { return nil }

type monitorRegKey struct {
	s    *monitorRegStore
	h    C.HANDLE
	root bool
}

// query reads a value with a size probe first.
func (k *monitorRegKey) query(name string) (uint32, []byte, error) {
	pname, err := wstr(name)
	if err != nil {
		return 0, nil, err
	}
	var typ, cb C.DWORD
	rc := C.mfmRegQueryValue(k.s.init, k.h, pname, &typ, nil, &cb)
	if syscall.Errno(rc) != windows.ERROR_MORE_DATA {
		if err := regResult("value "+name, rc); err != nil {
			return 0, nil, err
		}
	}
	data := make([]byte, cb)
	if cb > 0 {
		rc = C.mfmRegQueryValue(k.s.init, k.h, pname, &typ, (*C.BYTE)(unsafe.Pointer(&data[0])), &cb)
		if err := regResult("value "+name, rc); err != nil {
			return 0, nil, err
		}
	}
	return uint32(typ), data[:cb], nil
}

func (k *monitorRegKey) set(name string, typ uint32, data []byte) error {
	pname, err := wstr(name)
	if err != nil {
		return err
	}
	var p *C.BYTE
	if len(data) > 0 {
		p = (*C.BYTE)(unsafe.Pointer(&data[0]))
	}
	return regResult("set value "+name, C.mfmRegSetValue(k.s.init, k.h, pname, C.DWORD(typ), p, C.DWORD(len(data))))
}

func wrongType(name string, typ uint32) error {
	return fmt.Errorf("value %q is type %d: %w", name, typ, store.ErrWrongType)
}

func (k *monitorRegKey) String(name string) (string, error) {
	typ, data, err := k.query(name)
	if err != nil {
		return "", err
	}
	if typ != registry.SZ && typ != registry.EXPAND_SZ {
		return "", wrongType(name, typ)
	}
	if len(data) < 2 {
		return "", nil
	}
	return windows.UTF16ToString(unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), len(data)/2)), nil
}

func (k *monitorRegKey) SetString(name, value string) error {
	u, err := windows.UTF16FromString(value)
	if err != nil {
		return err
	}
	return k.set(name, registry.SZ, unsafe.Slice((*byte)(unsafe.Pointer(&u[0])), 2*len(u)))
}

func (k *monitorRegKey) DWord(name string) (uint32, error) {
	typ, data, err := k.query(name)
	if err != nil {
		return 0, err
	}
	if typ != registry.DWORD || len(data) < 4 {
		return 0, wrongType(name, typ)
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (k *monitorRegKey) SetDWord(name string, value uint32) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, value)
	return k.set(name, registry.DWORD, b)
}

func (k *monitorRegKey) Binary(name string) ([]byte, error) {
	typ, data, err := k.query(name)
	if err != nil {
		return nil, err
	}
	if typ != registry.BINARY {
		return nil, wrongType(name, typ)
	}
	return data, nil
}

func (k *monitorRegKey) SetBinary(name string, value []byte) error {
	return k.set(name, registry.BINARY, value)
}

func (k *monitorRegKey) Close() error {
	if k.root || k.h == nil {
		return nil
	}
	err := regResult("close key", C.mfmRegCloseKey(k.s.init, k.h))
	k.h = nil
	return err
}
