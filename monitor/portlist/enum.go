package portlist

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
	"unsafe"

	"github.com/lomo74/mfilemon/monitor/status"
)

// PointerSize is the size of a pointer field in the listings.
const PointerSize = int(unsafe.Sizeof(uintptr(0)))

// Sizes of PORT_INFO_1W and PORT_INFO_2W.
const (
	portInfo1Size = PointerSize
	portInfo2Size = 3*PointerSize + 8
)

// EnumPorts writes the port listing the spooler asks for at level 1 or 2
// into buf. base is the address buf will have in the caller's memory;
// string pointers are written relative to it. Structures are packed from
// the start of buf, strings from its end.
//
// When buf is too small, needed is set and the error is
// status.ErrInsufficientBuffer.
func (r *Registry) EnumPorts(level uint32, buf []byte, base uintptr) (needed, returned uint32, err error) {
	if level != 1 && level != 2 {
		return 0, 0, fmt.Errorf("port info level %d: %w", level, status.ErrInvalidLevel)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, k := range r.order {
		names = append(names, r.ports[k].Name())
	}

	monitor := EncodeString(r.opts.MonitorName)
	desc := EncodeString(r.opts.Description)

	size := 0
	for _, name := range names {
		switch level {
		case 1:
			size += portInfo1Size + 2*(len(utf16.Encode([]rune(name)))+1)
		case 2:
			size += portInfo2Size + 2*(len(utf16.Encode([]rune(name)))+1) + len(monitor) + len(desc)
		}
	}
	needed = uint32(size)
	if len(buf) < size {
		return needed, 0, fmt.Errorf("need %d bytes, have %d: %w", size, len(buf), status.ErrInsufficientBuffer)
	}

	w := &listingWriter{buf: buf, base: base, end: len(buf)}
	for _, name := range names {
		switch level {
		case 1:
			w.putPointer(w.putString(EncodeString(name)))
		case 2:
			// strings go in the same order the spooler's own monitors use
			monitorAt := w.putString(monitor)
			descAt := w.putString(desc)
			nameAt := w.putString(EncodeString(name))
			w.putPointer(nameAt)
			w.putPointer(monitorAt)
			w.putPointer(descAt)
			w.putUint32(0) // fPortType
			w.putUint32(0) // Reserved
		}
		returned++
	}
	return needed, returned, nil
}

type listingWriter struct {
	buf  []byte
	base uintptr
	pos  int
	end  int
}

// putString copies s below the strings already written and returns its
// offset.
func (w *listingWriter) putString(s []byte) int {
	w.end -= len(s)
	copy(w.buf[w.end:], s)
	return w.end
}

func (w *listingWriter) putPointer(offset int) {
	addr := uint64(w.base) + uint64(offset)
	if PointerSize == 8 {
		binary.LittleEndian.PutUint64(w.buf[w.pos:], addr)
	} else {
		binary.LittleEndian.PutUint32(w.buf[w.pos:], uint32(addr))
	}
	w.pos += PointerSize
}

func (w *listingWriter) putUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

// EncodeString returns s as NUL terminated UTF-16LE.
func EncodeString(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, 2*(len(u)+1))
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[2*i:], c)
	}
	return b
}

// DecodeString reads a NUL terminated UTF-16LE string from b.
func DecodeString(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}

// PortInfo is one decoded entry of a port listing.
type PortInfo struct {
	Name        string
	Monitor     string
	Description string
}

// DecodeListing reads back the returned entries EnumPorts wrote into buf
// at the given level. base must be the value passed to EnumPorts.
func DecodeListing(level uint32, buf []byte, base uintptr, returned uint32) ([]PortInfo, error) {
	size := portInfo1Size
	switch level {
	case 1:
	case 2:
		size = portInfo2Size
	default:
		return nil, fmt.Errorf("port info level %d: %w", level, status.ErrInvalidLevel)
	}
	if int(returned)*size > len(buf) {
		return nil, fmt.Errorf("%d entries do not fit in %d bytes: %w", returned, len(buf), status.ErrInvalidData)
	}

	str := func(at int) (string, error) {
		var addr uint64
		if PointerSize == 8 {
			addr = binary.LittleEndian.Uint64(buf[at:])
		} else {
			addr = uint64(binary.LittleEndian.Uint32(buf[at:]))
		}
		off := addr - uint64(base)
		if addr < uint64(base) || off >= uint64(len(buf)) {
			return "", fmt.Errorf("string pointer %#x outside the buffer: %w", addr, status.ErrInvalidData)
		}
		return DecodeString(buf[off:]), nil
	}

	infos := make([]PortInfo, 0, returned)
	for i := 0; i < int(returned); i++ {
		at := i * size
		var info PortInfo
		var err error
		if info.Name, err = str(at); err != nil {
			return nil, err
		}
		if level == 2 {
			if info.Monitor, err = str(at + PointerSize); err != nil {
				return nil, err
			}
			if info.Description, err = str(at + 2*PointerSize); err != nil {
				return nil, err
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}
