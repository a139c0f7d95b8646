//go:build windows
// +build windows

package platform

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	advapi32                    = windows.NewLazySystemDLL("advapi32.dll")
	procLogonUserW              = advapi32.NewProc("LogonUserW")
	procImpersonateLoggedOnUser = advapi32.NewProc("ImpersonateLoggedOnUser")
	procAdjustTokenPrivileges   = advapi32.NewProc("AdjustTokenPrivileges")
)

const (
	LOGON32_LOGON_INTERACTIVE = 2
	LOGON32_LOGON_BATCH       = 4
	LOGON32_LOGON_SERVICE     = 5
	LOGON32_PROVIDER_DEFAULT  = 0

	ERROR_LOGON_NOT_GRANTED      syscall.Errno = 1380
	ERROR_LOGON_TYPE_NOT_GRANTED syscall.Errno = 1385
	ERROR_NO_SUCH_LOGON_SESSION  syscall.Errno = 1312
	ERROR_NOT_ALL_ASSIGNED       syscall.Errno = 1300

	MB_YESNO                = 0x00000004
	MB_ICONQUESTION         = 0x00000020
	MB_SERVICE_NOTIFICATION = 0x00200000
	IDYES                   = 6
)

type native struct{}

type winCredential struct {
	token      windows.Token
	restricted bool
	account    string
}

func (native) Logon(user, domain, password string) (Credential, error) {
	tok, restricted, err := logon(user, domain, password)
	if err != nil {
		return nil, fmt.Errorf("logon %s: %w", AccountName(user, domain), err)
	}
	return &winCredential{token: tok, restricted: restricted, account: AccountName(user, domain)}, nil
}

// logon tries batch, service and interactive logons in that order. Only a
// refused logon type moves on to the next one. An interactive token of a
// UAC split account is swapped for its linked full token when the trusted
// computing base privilege can be enabled.
func logon(user, domain, password string) (windows.Token, bool, error) {
	userp, err := windows.UTF16PtrFromString(user)
	if err != nil {
		return 0, false, err
	}
	passp, err := windows.UTF16PtrFromString(password)
	if err != nil {
		return 0, false, err
	}
	var domp *uint16
	if !strings.Contains(user, "@") {
		if domain == "" {
			domain = "."
		}
		if domp, err = windows.UTF16PtrFromString(domain); err != nil {
			return 0, false, err
		}
	}

	var lastErr error = ERROR_LOGON_TYPE_NOT_GRANTED
	for _, kind := range []uint32{LOGON32_LOGON_BATCH, LOGON32_LOGON_SERVICE, LOGON32_LOGON_INTERACTIVE} {
		var tok windows.Token
		ret, _, callErr := procLogonUserW.Call(
			uintptr(unsafe.Pointer(userp)),
			uintptr(unsafe.Pointer(domp)),
			uintptr(unsafe.Pointer(passp)),
			uintptr(kind),
			LOGON32_PROVIDER_DEFAULT,
			uintptr(unsafe.Pointer(&tok)),
		)
		if ret != 0 {
			if kind != LOGON32_LOGON_INTERACTIVE {
				return tok, false, nil
			}
			return linkedToken(tok)
		}
		lastErr = callErr
		if !errors.Is(callErr, ERROR_LOGON_TYPE_NOT_GRANTED) && !errors.Is(callErr, ERROR_LOGON_NOT_GRANTED) {
			break
		}
	}
	return 0, false, lastErr
}

func linkedToken(tok windows.Token) (windows.Token, bool, error) {
	disable, tcb := enablePrivilege("SeTcbPrivilege")
	defer disable()

	linked, err := tok.GetLinkedToken()
	if err != nil {
		if errors.Is(err, ERROR_NO_SUCH_LOGON_SESSION) {
			return tok, false, nil
		}
		tok.Close()
		return 0, false, fmt.Errorf("read linked token: %w", err)
	}
	if !tcb {
		// without TCB the linked token is an identification token only
		linked.Close()
		return tok, true, nil
	}
	tok.Close()
	return linked, false, nil
}

// enablePrivilege enables a privilege on the process token. The returned
// func restores the previous state.
func enablePrivilege(name string) (func(), bool) {
	var proc windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &proc); err != nil {
		return func() {}, false
	}
	var luid windows.LUID
	namep, _ := windows.UTF16PtrFromString(name)
	if err := windows.LookupPrivilegeValue(nil, namep, &luid); err != nil {
		proc.Close()
		return func() {}, false
	}

	tp := windows.Tokenprivileges{PrivilegeCount: 1}
	tp.Privileges[0] = windows.LUIDAndAttributes{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED}
	var prev windows.Tokenprivileges
	var retLen uint32
	// success with ERROR_NOT_ALL_ASSIGNED means the privilege is not held
	ret, _, callErr := procAdjustTokenPrivileges.Call(
		uintptr(proc),
		0,
		uintptr(unsafe.Pointer(&tp)),
		unsafe.Sizeof(prev),
		uintptr(unsafe.Pointer(&prev)),
		uintptr(unsafe.Pointer(&retLen)),
	)
	if ret == 0 || errors.Is(callErr, ERROR_NOT_ALL_ASSIGNED) {
		proc.Close()
		return func() {}, false
	}
	return func() {
		windows.AdjustTokenPrivileges(proc, false, &prev, 0, nil, nil)
		proc.Close()
	}, true
}

func (c *winCredential) Impersonate(fn func() error) error {
	runtime.LockOSThread()
	ret, _, callErr := procImpersonateLoggedOnUser.Call(uintptr(c.token))
	if ret == 0 {
		runtime.UnlockOSThread()
		return fmt.Errorf("ImpersonateLoggedOnUser: %w", callErr)
	}
	defer func() {
		if windows.RevertToSelf() != nil {
			// keep the thread locked so it is not reused while impersonating
			return
		}
		runtime.UnlockOSThread()
	}()
	return fn()
}

func (c *winCredential) Restricted() bool { return c.restricted }

func (c *winCredential) String() string { return c.account }

func (c *winCredential) Close() error {
	if c.token == 0 {
		return nil
	}
	err := c.token.Close()
	c.token = 0
	return err
}

func (native) Command(cmdline, dir string, hidden bool, cred Credential) (*exec.Cmd, error) {
	program := splitProgram(cmdline)
	if program == "" {
		return nil, errors.New("empty command line")
	}
	path, err := exec.LookPath(program)
	if err != nil {
		path = program
	}

	cmd := &exec.Cmd{
		Path: path,
		Dir:  dir,
		SysProcAttr: &syscall.SysProcAttr{
			CmdLine:    cmdline,
			HideWindow: hidden,
		},
	}
	if wc, ok := cred.(*winCredential); ok && wc.token != 0 {
		cmd.SysProcAttr.Token = syscall.Token(wc.token)
	}
	return cmd, nil
}

func (native) Confirm(title, text string) bool {
	titlep, _ := windows.UTF16PtrFromString(title)
	textp, _ := windows.UTF16PtrFromString(text)
	ret, _ := windows.MessageBox(0, textp, titlep, MB_YESNO|MB_ICONQUESTION|MB_SERVICE_NOTIFICATION)
	return ret == IDYES
}

func (native) ComputerName() string {
	name, err := windows.ComputerName()
	if err != nil {
		return ""
	}
	return name
}
