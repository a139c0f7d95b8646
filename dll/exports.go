//go:build windows && cgo

package main

/*
#include "mfilemon.h"
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/lomo74/mfilemon/monitor"
	"github.com/lomo74/mfilemon/monitor/platform"
	"github.com/lomo74/mfilemon/monitor/spooler"
	"github.com/lomo74/mfilemon/monitor/status"
	"github.com/lomo74/mfilemon/monitor/store"
)

type openPort struct {
	m *monitor.Monitor
	h *monitor.Handle
}

type openXcv struct {
	m *monitor.Monitor
	h *monitor.XcvHandle
}

func code(err error) uint32 {
	return uint32(status.Of(err))
}

// value returns what a handle given to the spooler refers to.
func value[T any](h uintptr) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}
	v, ok := cgo.Handle(h).Value().(T)
	return v, ok
}

func setUint32(p *uint32, v uint32) {
	if p != nil {
		*p = v
	}
}

//export goInitialize
func goInitialize(init *C.mfm_MONITORINIT) uintptr {
	if init == nil {
		return 0
	}

	settings, settingsErr := monitor.LoadSettings("")
	if settingsErr != nil {
		settings = monitor.DefaultSettings()
	}

	var st store.Store
	var storeErr error
	if settings.Store.Backend == monitor.BackendRegistry {
		st = newMonitorRegStore(init)
	} else if st, storeErr = monitor.OpenStore(settings, true, nil); storeErr != nil {
		st = newMonitorRegStore(init)
	}

	m, err := monitor.Open(settings, st, monitor.Env{
		Spooler:  spooler.NewWinspool(),
		Platform: platform.Native(),
		System:   true,
	})
	if err != nil {
		st.Close()
		return 0
	}
	if settingsErr != nil {
		m.Log().Warn("can't load settings, using defaults", "error", settingsErr)
	}
	if storeErr != nil {
		m.Log().Error("can't open port store, using the spooler registry", "backend", settings.Store.Backend, "error", storeErr)
	}
	if init.bLocal == 0 {
		m.Log().Critical("InitializePrintMonitor2: can't work on clusters")
		m.Shutdown()
		return 0
	}

	m.Log().Debug("InitializePrintMonitor2 successfully initialized MFILEMON")
	return uintptr(cgo.NewHandle(m))
}

//export goShutdown
func goShutdown(hMonitor uintptr) {
	m, ok := value[*monitor.Monitor](hMonitor)
	if !ok {
		return
	}
	m.Shutdown()
	cgo.Handle(hMonitor).Delete()
}

//export goEnumPorts
func goEnumPorts(hMonitor uintptr, level uint32, buf unsafe.Pointer, cbBuf uint32, needed, returned *uint32) uint32 {
	m, ok := value[*monitor.Monitor](hMonitor)
	if !ok {
		return uint32(status.InvalidHandle)
	}
	var b []byte
	if buf != nil && cbBuf > 0 {
		b = unsafe.Slice((*byte)(buf), cbBuf)
	}
	n, r, err := m.EnumPorts(level, b, uintptr(buf))
	setUint32(needed, n)
	setUint32(returned, r)
	return code(err)
}

//export goOpenPort
func goOpenPort(hMonitor uintptr, name *uint16, out *uintptr) uint32 {
	m, ok := value[*monitor.Monitor](hMonitor)
	if !ok || out == nil {
		return uint32(status.InvalidHandle)
	}
	h, err := m.OpenPort(windows.UTF16PtrToString(name))
	if err != nil {
		return code(err)
	}
	*out = uintptr(cgo.NewHandle(&openPort{m: m, h: h}))
	return 0
}

//export goStartDocPort
func goStartDocPort(hPort uintptr, printer *uint16, jobID, level uint32, docInfo unsafe.Pointer) uint32 {
	p, ok := value[*openPort](hPort)
	if !ok {
		return uint32(status.CanNotComplete)
	}
	var doc monitor.DocInfo
	if level == 1 && docInfo != nil {
		di := (*C.mfm_DOC_INFO_1)(docInfo)
		doc.DocName = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(di.pDocName)))
		doc.OutputFile = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(di.pOutputFile)))
		doc.Datatype = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(di.pDatatype)))
	}
	return code(p.m.StartDocPort(p.h, windows.UTF16PtrToString(printer), jobID, doc))
}

//export goWritePort
func goWritePort(hPort uintptr, buf unsafe.Pointer, cbBuf uint32, written *uint32) uint32 {
	setUint32(written, 0)
	p, ok := value[*openPort](hPort)
	if !ok {
		return uint32(status.CanNotComplete)
	}
	// a timed out write keeps its buffer after we return
	data := C.GoBytes(buf, C.int(cbBuf))
	n, err := p.m.WritePort(p.h, data)
	setUint32(written, uint32(n))
	return code(err)
}

//export goReadPort
func goReadPort(hPort uintptr, buf unsafe.Pointer, cbBuf uint32, read *uint32) uint32 {
	setUint32(read, 0)
	p, ok := value[*openPort](hPort)
	if !ok {
		return uint32(status.InvalidHandle)
	}
	_, err := p.m.ReadPort(p.h, nil)
	return code(err)
}

//export goEndDocPort
func goEndDocPort(hPort uintptr) uint32 {
	p, ok := value[*openPort](hPort)
	if !ok {
		return uint32(status.CanNotComplete)
	}
	return code(p.m.EndDocPort(p.h))
}

//export goClosePort
func goClosePort(hPort uintptr) uint32 {
	p, ok := value[*openPort](hPort)
	if !ok {
		return uint32(status.InvalidHandle)
	}
	err := p.m.ClosePort(p.h)
	cgo.Handle(hPort).Delete()
	return code(err)
}

//export goXcvOpenPort
func goXcvOpenPort(hMonitor uintptr, object *uint16, access uint32, out *uintptr) uint32 {
	m, ok := value[*monitor.Monitor](hMonitor)
	if !ok || out == nil {
		return uint32(status.InvalidHandle)
	}
	h := m.XcvOpenPort(windows.UTF16PtrToString(object), access)
	*out = uintptr(cgo.NewHandle(&openXcv{m: m, h: h}))
	return 0
}

//export goXcvDataPort
func goXcvDataPort(hXcv uintptr, name *uint16, in unsafe.Pointer, cbIn uint32, out unsafe.Pointer, cbOut uint32, needed *uint32) uint32 {
	x, ok := value[*openXcv](hXcv)
	if !ok {
		return uint32(status.InvalidHandle)
	}
	var input, output []byte
	if in != nil && cbIn > 0 {
		input = C.GoBytes(in, C.int(cbIn))
	}
	if out != nil && cbOut > 0 {
		output = unsafe.Slice((*byte)(out), cbOut)
	}
	n, err := x.m.XcvDataPort(x.h, windows.UTF16PtrToString(name), input, output)
	setUint32(needed, n)
	return code(err)
}

//export goXcvClosePort
func goXcvClosePort(hXcv uintptr) uint32 {
	x, ok := value[*openXcv](hXcv)
	if !ok {
		return uint32(status.InvalidHandle)
	}
	// a handle with a delete in progress is used again for PortDeleted
	if x.m.XcvClosePort(x.h) {
		cgo.Handle(hXcv).Delete()
	}
	return 0
}
