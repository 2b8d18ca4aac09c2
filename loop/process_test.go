//go:build unix

package loop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/loop"
)

func TestSpawnCapturesStdoutAndExitStatus(t *testing.T) {
	l := newTestLoop(t)

	out, err := loop.NewPipe(l)
	require.NoError(t, err)

	var stdout []byte
	sawEOF := false
	exits := 0
	var exitStatus int64
	var termSignal int

	p, err := loop.Spawn(l, &loop.ProcessOptions{
		Path: "sh",
		Args: []string{"sh", "-c", "printf 'hi\\n'"},
		Stdio: []loop.StdioEntry{
			{Flags: loop.StdioIgnore},
			{Flags: loop.StdioCreatePipe | loop.StdioWritablePipe, Pipe: out},
			{Flags: loop.StdioIgnore},
		},
		Exit: func(p *loop.Process, status int64, sig int) {
			exits++
			exitStatus = status
			termSignal = sig
			p.Close(nil)
		},
	})
	require.NoError(t, err)
	require.Greater(t, p.Pid(), 0)

	require.NoError(t, out.ReadStart(nil, func(buf []byte, rerr error) {
		if rerr == api.EOF {
			sawEOF = true
			out.Close(nil)
			return
		}
		require.NoError(t, rerr)
		stdout = append(stdout, buf...)
	}))

	require.Equal(t, 0, l.Run(loop.RunDefault))
	require.Equal(t, "hi\n", string(stdout))
	require.True(t, sawEOF)
	require.Equal(t, 1, exits)
	require.EqualValues(t, 0, exitStatus)
	require.Zero(t, termSignal)
	require.NoError(t, l.Close())
}

func TestSpawnMissingProgramFailsSynchronously(t *testing.T) {
	l := newTestLoop(t)
	_, err := loop.Spawn(l, &loop.ProcessOptions{
		Path: "/definitely/not/a/real/binary",
		Args: []string{"nope"},
	})
	require.Equal(t, api.ENOENT, err)
	require.NoError(t, l.Close())
}

func TestSpawnPathLookupFails(t *testing.T) {
	l := newTestLoop(t)
	_, err := loop.Spawn(l, &loop.ProcessOptions{Path: "no-such-command-hioload"})
	require.Equal(t, api.ENOENT, err)
	require.NoError(t, l.Close())
}

func TestKillProbeAndTermination(t *testing.T) {
	l := newTestLoop(t)

	exited := make(chan struct{})
	var gotSignal int
	p, err := loop.Spawn(l, &loop.ProcessOptions{
		Path: "sleep",
		Args: []string{"sleep", "30"},
		Exit: func(p *loop.Process, status int64, sig int) {
			gotSignal = sig
			p.Close(nil)
			close(exited)
		},
	})
	require.NoError(t, err)
	pid := p.Pid()

	// live child answers the probe
	require.NoError(t, p.Kill(0))
	require.NoError(t, p.Kill(15)) // SIGTERM

	l.Run(loop.RunDefault)
	<-exited
	require.Equal(t, 15, gotSignal)

	// reaped child is gone
	require.Equal(t, api.ESRCH, loop.Kill(pid, 0))
	require.NoError(t, l.Close())
}

func TestProcessExitCode(t *testing.T) {
	l := newTestLoop(t)
	var status int64 = -1
	deadline := loop.NewTimer(l)
	_, err := loop.Spawn(l, &loop.ProcessOptions{
		Path: "sh",
		Args: []string{"sh", "-c", "exit 7"},
		Exit: func(p *loop.Process, st int64, sig int) {
			status = st
			p.Close(nil)
			deadline.Close(nil)
		},
	})
	require.NoError(t, err)

	// guard against a hung child keeping the test alive
	deadline.Start(5000, 0, func(tm *loop.Timer) { tm.Close(nil) })
	l.Run(loop.RunDefault)
	require.EqualValues(t, 7, status)
	require.NoError(t, l.Close())
}
