// File: loop/process_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows spawn: the command line is built with the documented quoting
// rules, the environment block is guaranteed to carry SYSTEMROOT,
// SYSTEMDRIVE and TEMP, and the child's CRT wires up fds 0..N from the
// inheritance payload passed through STARTUPINFO's reserved fields. Exit
// notification comes from a waiter goroutine that re-enters the loop via
// the completion queue.

package loop

import (
	"os"
	"strings"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/control"
)

// CRT descriptor flags understood by msvcrt's fd bootstrap.
const (
	crtFOpen byte = 0x01
	crtFPipe byte = 0x08
	crtFDev  byte = 0x40
)

var (
	kernel32           = windows.NewLazySystemDLL("kernel32.dll")
	procCreateProcessW = kernel32.NewProc("CreateProcessW")
)

// startupInfoW mirrors STARTUPINFOW with the reserved fields exposed; the
// x/sys struct hides lpReserved2, which carries the CRT payload.
type startupInfoW struct {
	cb            uint32
	lpReserved    *uint16
	lpDesktop     *uint16
	lpTitle       *uint16
	dwX           uint32
	dwY           uint32
	dwXSize       uint32
	dwYSize       uint32
	dwXCountChars uint32
	dwYCountChars uint32
	dwFillAttr    uint32
	dwFlags       uint32
	wShowWindow   uint16
	cbReserved2   uint16
	lpReserved2   *byte
	hStdInput     windows.Handle
	hStdOutput    windows.Handle
	hStdError     windows.Handle
}

// crtStdioPayload renders {int count; byte flags[count]; HANDLE h[count]}.
func crtStdioPayload(flags []byte, handles []windows.Handle) []byte {
	count := len(flags)
	size := 4 + count + count*int(unsafe.Sizeof(windows.Handle(0)))
	buf := make([]byte, size)
	*(*uint32)(unsafe.Pointer(&buf[0])) = uint32(count)
	copy(buf[4:], flags)
	base := 4 + count
	for i, h := range handles {
		*(*windows.Handle)(unsafe.Pointer(&buf[base+i*int(unsafe.Sizeof(h))])) = h
	}
	return buf
}

// envBlockUTF16 renders env as the contiguous double-NUL terminated block
// CreateProcessW expects, adding the required system variables.
func envBlockUTF16(env []string) (*uint16, error) {
	env = ensureRequiredEnv(env, os.Getenv)
	var b []uint16
	for _, kv := range env {
		u, err := windows.UTF16FromString(kv)
		if err != nil {
			return nil, api.EINVAL
		}
		b = append(b, u...) // includes the terminating NUL
	}
	b = append(b, 0)
	return &b[0], nil
}

type stdioPrep struct {
	crtFlags   []byte
	handles    []windows.Handle
	closeAfter []windows.Handle
	pipeOpens  []func() error
}

// createStdioPipePair builds one overlapped parent end and one inheritable
// synchronous child end of a fresh named pipe.
func createStdioPipePair(l *Loop, pipe *Pipe, childReads bool) (windows.Handle, error) {
	name := `\\.\pipe\hioload-loop.` + uuid.NewString()
	nameW, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return windows.InvalidHandle, api.EINVAL
	}
	server, err := windows.CreateNamedPipe(nameW,
		windows.PIPE_ACCESS_DUPLEX|windows.FILE_FLAG_OVERLAPPED|windows.FILE_FLAG_FIRST_PIPE_INSTANCE,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		1, 65536, 65536, 0, nil)
	if err != nil {
		return windows.InvalidHandle, api.FromOS(err)
	}
	var access uint32
	if childReads {
		access = windows.GENERIC_READ | windows.FILE_WRITE_ATTRIBUTES
	} else {
		access = windows.GENERIC_WRITE | windows.FILE_READ_ATTRIBUTES
	}
	sa := &windows.SecurityAttributes{Length: uint32(unsafe.Sizeof(windows.SecurityAttributes{})), InheritHandle: 1}
	child, err := windows.CreateFile(nameW, access, 0, sa, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		windows.CloseHandle(server)
		return windows.InvalidHandle, api.FromOS(err)
	}
	if oerr := pipe.Open(server); oerr != nil {
		windows.CloseHandle(server)
		windows.CloseHandle(child)
		return windows.InvalidHandle, oerr
	}
	return child, nil
}

func buildStdioWindows(l *Loop, entries []StdioEntry) (*stdioPrep, error) {
	if len(entries) == 0 {
		entries = []StdioEntry{{}, {}, {}}
	}
	st := &stdioPrep{}
	fail := func(err error) (*stdioPrep, error) {
		for _, h := range st.closeAfter {
			windows.CloseHandle(h)
		}
		return nil, err
	}
	for _, e := range entries {
		switch {
		case e.Flags&StdioCreatePipe != 0:
			if e.Pipe == nil {
				return fail(api.EINVAL)
			}
			child, err := createStdioPipePair(l, e.Pipe, e.Flags&StdioReadablePipe != 0)
			if err != nil {
				return fail(err)
			}
			st.crtFlags = append(st.crtFlags, crtFOpen|crtFPipe)
			st.handles = append(st.handles, child)
			st.closeAfter = append(st.closeAfter, child)
		case e.Flags&StdioInheritFD != 0:
			dup, err := dupInheritable(windows.Handle(e.FD))
			if err != nil {
				return fail(err)
			}
			st.crtFlags = append(st.crtFlags, crtFOpen|crtFDev)
			st.handles = append(st.handles, dup)
			st.closeAfter = append(st.closeAfter, dup)
		case e.Flags&StdioInheritStream != 0:
			if e.Stream == nil || e.Stream.h == windows.InvalidHandle {
				return fail(api.EBADF)
			}
			dup, err := dupInheritable(e.Stream.h)
			if err != nil {
				return fail(err)
			}
			st.crtFlags = append(st.crtFlags, crtFOpen|crtFPipe)
			st.handles = append(st.handles, dup)
			st.closeAfter = append(st.closeAfter, dup)
		default: // StdioIgnore
			nulW, _ := windows.UTF16PtrFromString("NUL")
			sa := &windows.SecurityAttributes{Length: uint32(unsafe.Sizeof(windows.SecurityAttributes{})), InheritHandle: 1}
			nul, err := windows.CreateFile(nulW, windows.GENERIC_READ|windows.GENERIC_WRITE,
				windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, sa, windows.OPEN_EXISTING, 0, 0)
			if err != nil {
				return fail(api.FromOS(err))
			}
			st.crtFlags = append(st.crtFlags, crtFOpen|crtFDev)
			st.handles = append(st.handles, nul)
			st.closeAfter = append(st.closeAfter, nul)
		}
	}
	return st, nil
}

func dupInheritable(h windows.Handle) (windows.Handle, error) {
	cur := windows.CurrentProcess()
	var dup windows.Handle
	err := windows.DuplicateHandle(cur, h, cur, &dup, 0, true, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return windows.InvalidHandle, api.FromOS(err)
	}
	return dup, nil
}

// Spawn starts a child process described by opts and registers it for exit
// notification.
func Spawn(l *Loop, opts *ProcessOptions) (*Process, error) {
	if opts == nil || opts.Path == "" {
		return nil, api.EINVAL
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{opts.Path}
	}
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}

	st, err := buildStdioWindows(l, opts.Stdio)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		for _, h := range st.closeAfter {
			windows.CloseHandle(h)
		}
	}

	cmdline := makeCommandLine(args, opts.Flags&ProcessWindowsVerbatimArgs != 0)
	cmdlineW, err := windows.UTF16PtrFromString(cmdline)
	if err != nil {
		cleanup()
		return nil, api.EINVAL
	}
	var appNameW *uint16
	if strings.ContainsAny(opts.Path, `/\`) {
		if appNameW, err = windows.UTF16PtrFromString(opts.Path); err != nil {
			cleanup()
			return nil, api.EINVAL
		}
	}
	envW, err := envBlockUTF16(env)
	if err != nil {
		cleanup()
		return nil, err
	}
	var cwdW *uint16
	if opts.Cwd != "" {
		if cwdW, err = windows.UTF16PtrFromString(opts.Cwd); err != nil {
			cleanup()
			return nil, api.EINVAL
		}
	}

	payload := crtStdioPayload(st.crtFlags, st.handles)
	si := &startupInfoW{
		cb:          uint32(unsafe.Sizeof(startupInfoW{})),
		dwFlags:     windows.STARTF_USESTDHANDLES,
		cbReserved2: uint16(len(payload)),
		lpReserved2: &payload[0],
	}
	if len(st.handles) > 0 {
		si.hStdInput = st.handles[0]
	}
	if len(st.handles) > 1 {
		si.hStdOutput = st.handles[1]
	}
	if len(st.handles) > 2 {
		si.hStdError = st.handles[2]
	}
	if opts.Flags&ProcessWindowsHide != 0 {
		si.dwFlags |= windows.STARTF_USESHOWWINDOW
		si.wShowWindow = uint16(windows.SW_HIDE)
	}

	creation := uint32(windows.CREATE_UNICODE_ENVIRONMENT)
	if opts.Flags&ProcessDetached != 0 {
		creation |= windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP
	}

	var pi windows.ProcessInformation
	r1, _, callErr := procCreateProcessW.Call(
		uintptr(unsafe.Pointer(appNameW)),
		uintptr(unsafe.Pointer(cmdlineW)),
		0, 0,
		1, // bInheritHandles
		uintptr(creation),
		uintptr(unsafe.Pointer(envW)),
		uintptr(unsafe.Pointer(cwdW)),
		uintptr(unsafe.Pointer(si)),
		uintptr(unsafe.Pointer(&pi)),
	)
	cleanup()
	if r1 == 0 {
		control.Logger().WithError(callErr).WithField("path", opts.Path).Debug("spawn failed")
		return nil, api.FromOS(callErr)
	}
	windows.CloseHandle(pi.Thread)

	p := &Process{pid: int(pi.ProcessId), exitCb: opts.Exit}
	p.Handle.init(l, KindProcess, p.teardown)
	l.processes[p.pid] = p
	p.start()

	// The waiter goroutine owns the process handle: closing it while a wait
	// is outstanding would let the kernel recycle the handle value under the
	// blocked waiter, so it is closed only after the wait returns.
	go func(ph windows.Handle) {
		windows.WaitForSingleObject(ph, windows.INFINITE)
		var code uint32
		windows.GetExitCodeProcess(ph, &code)
		windows.CloseHandle(ph)
		l.pushCompletion(func() {
			if l.processes[p.pid] != p {
				return // handle closed before exit
			}
			delete(l.processes, p.pid)
			p.stop()
			if p.exitCb != nil {
				p.exitCb(p, int64(code), 0)
			}
		})
	}(pi.Process)
	return p, nil
}

// teardown detaches the handle from exit notification; the exit callback is
// suppressed via the pid table and no OS resource is touched here, as the
// waiter goroutine still holds the process handle.
func (p *Process) teardown() {
	if l := p.loop; l != nil && l.processes[p.pid] == p {
		delete(l.processes, p.pid)
	}
}

// sweepProcesses is unused under the completion backend; exits arrive as
// loop completions from the waiter goroutines.
func (l *Loop) sweepProcesses() {}

// Kill sends sig to the process. Only TERM, KILL, INT and the liveness
// probe 0 translate; everything else reports ENOTSUP.
func (p *Process) Kill(sig int) error {
	return Kill(p.pid, sig)
}

// Kill sends sig to an arbitrary pid.
func Kill(pid int, sig int) error {
	const (
		sigINT  = 2
		sigKILL = 9
		sigTERM = 15
	)
	h, err := windows.OpenProcess(
		windows.PROCESS_TERMINATE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return api.ESRCH
	}
	defer windows.CloseHandle(h)
	switch sig {
	case sigTERM, sigKILL, sigINT:
		return api.FromOS(windows.TerminateProcess(h, 1))
	case 0:
		var code uint32
		if err := windows.GetExitCodeProcess(h, &code); err != nil {
			return api.FromOS(err)
		}
		if code == 259 { // STILL_ACTIVE
			return nil
		}
		return api.ESRCH
	default:
		return api.ENOTSUP
	}
}

