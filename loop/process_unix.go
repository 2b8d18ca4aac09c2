// File: loop/process_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unix spawn and reaping. The fork/exec dance (CLOEXEC errno pipe, signal
// mask discipline) is the runtime's ForkExec; exec failures surface
// synchronously as portable errors. Reaping is driven by one process-wide
// SIGCHLD watcher that flags each loop with children and kicks its poller;
// the loop goroutine then sweeps its pid table with non-blocking waits and
// dispatches exit callbacks only after the whole sweep completes.

package loop

import (
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/control"
)

var (
	sigchldOnce  sync.Once
	sigchldMu    sync.Mutex
	sigchldLoops = make(map[*Loop]struct{})
)

func sigchldWatch(l *Loop) {
	sigchldMu.Lock()
	sigchldLoops[l] = struct{}{}
	sigchldMu.Unlock()
	sigchldOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, unix.SIGCHLD)
		go func() {
			for range ch {
				sigchldMu.Lock()
				for wl := range sigchldLoops {
					atomic.StoreInt32(&wl.sigchldPending, 1)
					wl.poller.Wake()
				}
				sigchldMu.Unlock()
			}
		}()
	})
}

func sigchldUnwatch(l *Loop) {
	sigchldMu.Lock()
	delete(sigchldLoops, l)
	sigchldMu.Unlock()
}

// spawnStdio carries the child descriptor table plus the fds the parent
// must close once the child is running.
type spawnStdio struct {
	childFds  []uintptr
	closeFds  []int
	parentFds []int
	pipeOpens []func() error
}

func buildStdio(entries []StdioEntry) (*spawnStdio, error) {
	if len(entries) == 0 {
		entries = []StdioEntry{{}, {}, {}}
	}
	st := &spawnStdio{}
	fail := func(err error) (*spawnStdio, error) {
		for _, fd := range st.closeFds {
			unix.Close(fd)
		}
		for _, fd := range st.parentFds {
			unix.Close(fd)
		}
		return nil, err
	}
	for _, e := range entries {
		switch {
		case e.Flags&StdioCreatePipe != 0:
			if e.Pipe == nil {
				return fail(api.EINVAL)
			}
			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
			if err != nil {
				return fail(api.FromOS(err))
			}
			parentEnd, childEnd := fds[0], fds[1]
			st.childFds = append(st.childFds, uintptr(childEnd))
			st.closeFds = append(st.closeFds, childEnd)
			st.parentFds = append(st.parentFds, parentEnd)
			pipe := e.Pipe
			st.pipeOpens = append(st.pipeOpens, func() error {
				return pipe.Open(parentEnd)
			})
		case e.Flags&StdioInheritFD != 0:
			st.childFds = append(st.childFds, uintptr(e.FD))
		case e.Flags&StdioInheritStream != 0:
			if e.Stream == nil || e.Stream.fd < 0 {
				return fail(api.EBADF)
			}
			st.childFds = append(st.childFds, uintptr(e.Stream.fd))
		default: // StdioIgnore
			nul, err := unix.Open(os.DevNull, unix.O_RDWR, 0)
			if err != nil {
				return fail(api.FromOS(err))
			}
			st.childFds = append(st.childFds, uintptr(nul))
			st.closeFds = append(st.closeFds, nul)
		}
	}
	return st, nil
}

// Spawn starts a child process described by opts and registers it for exit
// notification. All spawn-path failures are reported as portable errors.
func Spawn(l *Loop, opts *ProcessOptions) (*Process, error) {
	if opts == nil || opts.Path == "" {
		return nil, api.EINVAL
	}
	path := opts.Path
	if !strings.ContainsRune(path, '/') {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return nil, api.ENOENT
		}
		path = resolved
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{opts.Path}
	}
	env := opts.Env
	if env == nil {
		env = os.Environ()
	}

	st, err := buildStdio(opts.Stdio)
	if err != nil {
		return nil, err
	}

	sys := &syscall.SysProcAttr{}
	if opts.Flags&ProcessDetached != 0 {
		sys.Setsid = true
	}
	if opts.Flags&(ProcessSetUID|ProcessSetGID) != 0 {
		cred := &syscall.Credential{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
		if opts.Flags&ProcessSetUID != 0 {
			cred.Uid = opts.UID
		}
		if opts.Flags&ProcessSetGID != 0 {
			cred.Gid = opts.GID
		}
		sys.Credential = cred
	}

	pid, err := syscall.ForkExec(path, args, &syscall.ProcAttr{
		Dir:   opts.Cwd,
		Env:   env,
		Files: st.childFds,
		Sys:   sys,
	})
	for _, fd := range st.closeFds {
		unix.Close(fd)
	}
	if err != nil {
		for _, fd := range st.parentFds {
			unix.Close(fd)
		}
		control.Logger().WithError(err).WithField("path", path).Debug("spawn failed")
		return nil, api.FromOS(err)
	}
	for _, open := range st.pipeOpens {
		if oerr := open(); oerr != nil {
			control.Logger().WithError(oerr).Debug("stdio pipe adopt failed")
		}
	}

	p := &Process{pid: pid, exitCb: opts.Exit}
	p.Handle.init(l, KindProcess, p.teardown)
	l.processes[pid] = p
	p.start()
	sigchldWatch(l)
	return p, nil
}

// teardown detaches the handle from exit notification; a close before the
// child exits means the exit callback never fires.
func (p *Process) teardown() {
	if l := p.loop; l != nil {
		if l.processes[p.pid] == p {
			delete(l.processes, p.pid)
		}
		if len(l.processes) == 0 {
			sigchldUnwatch(l)
		}
	}
}

// sweepProcesses collects every exited child with non-blocking waits, then
// dispatches exit callbacks after the sweep so a callback spawning children
// cannot re-enter it.
func (l *Loop) sweepProcesses() {
	type exit struct {
		p      *Process
		status unix.WaitStatus
	}
	var exited []exit
	for pid, p := range l.processes {
		var ws unix.WaitStatus
		var got int
		for {
			r, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
			if err == unix.EINTR {
				continue
			}
			if err != nil || r == 0 {
				got = 0
			} else {
				got = r
			}
			break
		}
		if got != pid {
			continue
		}
		delete(l.processes, pid)
		exited = append(exited, exit{p: p, status: ws})
	}
	for _, e := range exited {
		e.p.stop()
		var code int64
		var sig int
		if e.status.Exited() {
			code = int64(e.status.ExitStatus())
		}
		if e.status.Signaled() {
			sig = int(e.status.Signal())
		}
		if e.p.exitCb != nil {
			e.p.exitCb(e.p, code, sig)
		}
	}
	if len(l.processes) == 0 {
		sigchldUnwatch(l)
	}
}

// Kill sends sig to the process. sig 0 probes liveness.
func (p *Process) Kill(sig int) error {
	return Kill(p.pid, sig)
}

// Kill sends sig to an arbitrary pid, normalizing the error. A dead or
// unknown pid reports ESRCH.
func Kill(pid int, sig int) error {
	return api.FromOS(unix.Kill(pid, unix.Signal(sig)))
}
