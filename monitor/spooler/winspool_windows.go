//go:build windows
// +build windows

package spooler

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	winspool         = windows.NewLazySystemDLL("winspool.drv")
	procOpenPrinter  = winspool.NewProc("OpenPrinterW")
	procClosePrinter = winspool.NewProc("ClosePrinter")
	procGetJob       = winspool.NewProc("GetJobW")
	procSetJob       = winspool.NewProc("SetJobW")
	procEnumPorts    = winspool.NewProc("EnumPortsW")
)

// DEVMODE field flags
const (
	DM_DEFAULTSOURCE = 0x00000200
)

// JOB_INFO_2 structure (Windows)
type jobInfo2 struct {
	JobID              uint32
	PrinterName        *uint16
	MachineName        *uint16
	UserName           *uint16
	Document           *uint16
	NotifyName         *uint16
	Datatype           *uint16
	PrintProcessor     *uint16
	Parameters         *uint16
	DriverName         *uint16
	DevMode            *devMode
	Status             *uint16
	SecurityDescriptor uintptr
	StatusCode         uint32
	Priority           uint32
	Position           uint32
	StartTime          uint32
	UntilTime          uint32
	TotalPages         uint32
	Size               uint32
	Submitted          windows.Systemtime
	Time               uint32
	PagesPrinted       uint32
}

// DEVMODE structure, printer part only
type devMode struct {
	DeviceName    [32]uint16
	SpecVersion   uint16
	DriverVersion uint16
	Size          uint16
	DriverExtra   uint16
	Fields        uint32
	Orientation   int16
	PaperSize     int16
	PaperLength   int16
	PaperWidth    int16
	Scale         int16
	Copies        int16
	DefaultSource int16
	PrintQuality  int16
}

// Winspool is the Windows print spooler.
type Winspool struct{}

// NewWinspool returns the spooler of the local machine.
func NewWinspool() *Winspool {
	return &Winspool{}
}

func openPrinter(name string) (syscall.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var h syscall.Handle
	ret, _, callErr := procOpenPrinter.Call(
		uintptr(unsafe.Pointer(p)),
		uintptr(unsafe.Pointer(&h)),
		0,
	)
	if ret == 0 {
		return 0, fmt.Errorf("OpenPrinter %q: %w", name, callErr)
	}
	return h, nil
}

func (Winspool) Job(printer string, jobID uint32) (*JobInfo, error) {
	h, err := openPrinter(printer)
	if err != nil {
		return nil, err
	}
	defer procClosePrinter.Call(uintptr(h))

	// probe for the buffer size first
	var needed uint32
	procGetJob.Call(uintptr(h), uintptr(jobID), 2, 0, 0, uintptr(unsafe.Pointer(&needed)))
	if needed == 0 {
		return nil, fmt.Errorf("printer %q job %d: %w", printer, jobID, ErrJobNotFound)
	}

	buf := make([]byte, needed)
	ret, _, callErr := procGetJob.Call(
		uintptr(h),
		uintptr(jobID),
		2,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(needed),
		uintptr(unsafe.Pointer(&needed)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("GetJob %d: %w", jobID, callErr)
	}

	info := (*jobInfo2)(unsafe.Pointer(&buf[0]))
	job := &JobInfo{
		JobID:       info.JobID,
		PrinterName: windows.UTF16PtrToString(info.PrinterName),
		MachineName: windows.UTF16PtrToString(info.MachineName),
		UserName:    windows.UTF16PtrToString(info.UserName),
		Document:    windows.UTF16PtrToString(info.Document),
		Datatype:    windows.UTF16PtrToString(info.Datatype),
		Submitted:   systemtimeToTime(info.Submitted),
	}
	if info.DevMode != nil && info.DevMode.Fields&DM_DEFAULTSOURCE != 0 {
		job.Bin = BinName(int(info.DevMode.DefaultSource))
	}
	return job, nil
}

func (Winspool) Control(printer string, jobID uint32, c JobControl) error {
	h, err := openPrinter(printer)
	if err != nil {
		return err
	}
	defer procClosePrinter.Call(uintptr(h))

	ret, _, callErr := procSetJob.Call(uintptr(h), uintptr(jobID), 0, 0, uintptr(c))
	if ret == 0 {
		return fmt.Errorf("SetJob %d %s: %w", jobID, c, callErr)
	}
	return nil
}

// PortNames lists the ports of every monitor on the local machine.
func (Winspool) PortNames() ([]string, error) {
	var needed, returned uint32
	procEnumPorts.Call(0, 1, 0, 0, uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if needed == 0 {
		return nil, nil
	}

	buf := make([]byte, needed)
	ret, _, callErr := procEnumPorts.Call(
		0,
		1,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(needed),
		uintptr(unsafe.Pointer(&needed)),
		uintptr(unsafe.Pointer(&returned)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("EnumPorts: %w", callErr)
	}

	// PORT_INFO_1 is a single name pointer
	infos := unsafe.Slice((**uint16)(unsafe.Pointer(&buf[0])), returned)
	names := make([]string, 0, returned)
	for _, p := range infos {
		names = append(names, windows.UTF16PtrToString(p))
	}
	return names, nil
}

// systemtimeToTime converts the UTC submission time of a job.
func systemtimeToTime(st windows.Systemtime) time.Time {
	return time.Date(
		int(st.Year),
		time.Month(st.Month),
		int(st.Day),
		int(st.Hour),
		int(st.Minute),
		int(st.Second),
		int(st.Milliseconds)*1e6,
		time.UTC,
	).Local()
}
