//go:build linux

package loop_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/loop"
)

type fsNote struct {
	name   string
	events loop.FsEventType
}

func TestFsEventReportsDirectoryCreate(t *testing.T) {
	l := newTestLoop(t)
	dir := t.TempDir()

	var notes []fsNote
	w, err := loop.NewFsEvent(l)
	require.NoError(t, err)
	require.NoError(t, w.Start(dir, func(name string, events loop.FsEventType, werr error) {
		require.NoError(t, werr)
		notes = append(notes, fsNote{name: name, events: events})
		w.Close(nil)
	}))
	require.Equal(t, dir, w.Path())

	trigger := loop.NewTimer(l)
	require.NoError(t, trigger.Start(10, 0, func(tm *loop.Timer) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "born.txt"), []byte("x"), 0o644))
		tm.Close(nil)
	}))

	l.Run(loop.RunDefault)
	require.NotEmpty(t, notes)
	require.Equal(t, "born.txt", notes[0].name)
	require.NotZero(t, notes[0].events&loop.FsEventRename, "creation reports as rename")
	require.NoError(t, l.Close())
}

func TestFsEventReportsFileModify(t *testing.T) {
	l := newTestLoop(t)
	path := filepath.Join(t.TempDir(), "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var notes []fsNote
	w, err := loop.NewFsEvent(l)
	require.NoError(t, err)
	require.NoError(t, w.Start(path, func(name string, events loop.FsEventType, werr error) {
		require.NoError(t, werr)
		notes = append(notes, fsNote{name: name, events: events})
		w.Close(nil)
	}))

	trigger := loop.NewTimer(l)
	require.NoError(t, trigger.Start(10, 0, func(tm *loop.Timer) {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
		tm.Close(nil)
	}))

	l.Run(loop.RunDefault)
	require.NotEmpty(t, notes)
	require.Equal(t, "watched.txt", notes[0].name, "single-file watch reports the base name")
	require.NotZero(t, notes[0].events&loop.FsEventChange)
	require.NoError(t, l.Close())
}

func TestFsEventStartValidation(t *testing.T) {
	l := newTestLoop(t)
	w, err := loop.NewFsEvent(l)
	require.NoError(t, err)
	require.Error(t, w.Start("", func(string, loop.FsEventType, error) {}))
	require.Error(t, w.Start("/tmp", nil))
	require.Error(t, w.Start(filepath.Join(t.TempDir(), "missing"), func(string, loop.FsEventType, error) {}))

	dir := t.TempDir()
	require.NoError(t, w.Start(dir, func(string, loop.FsEventType, error) {}))
	require.Error(t, w.Start(dir, func(string, loop.FsEventType, error) {}), "one watch per handle")
	require.NoError(t, w.Stop())
	require.Equal(t, "", w.Path())

	w.Close(nil)
	l.Run(loop.RunDefault)
	require.NoError(t, l.Close())
}
