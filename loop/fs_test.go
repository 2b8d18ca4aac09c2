package loop_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/loop"
)

func TestFsAsyncRoundTrip(t *testing.T) {
	l := newTestLoop(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")

	var steps []string
	_, err := l.FsOpen(path, os.O_CREATE|os.O_RDWR, 0o644, func(r *loop.FsReq) {
		require.NoError(t, r.Err)
		steps = append(steps, "open")
		f := r.File
		l.FsWrite(f, []byte("payload"), 0, func(r *loop.FsReq) {
			require.NoError(t, r.Err)
			require.Equal(t, 7, r.Size)
			steps = append(steps, "write")
			buf := make([]byte, 7)
			l.FsRead(f, buf, 0, func(r *loop.FsReq) {
				require.NoError(t, r.Err)
				require.Equal(t, "payload", string(buf[:r.Size]))
				steps = append(steps, "read")
				l.FsClose(f, func(r *loop.FsReq) {
					require.NoError(t, r.Err)
					steps = append(steps, "close")
				})
			})
		})
	})
	require.NoError(t, err)

	require.Equal(t, 0, l.Run(loop.RunDefault))
	require.Equal(t, []string{"open", "write", "read", "close"}, steps)
	require.NoError(t, l.Close())
}

func TestFsSyncForms(t *testing.T) {
	l := newTestLoop(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.txt")

	r, err := l.FsOpen(path, os.O_CREATE|os.O_WRONLY, 0o600, nil)
	require.NoError(t, err)
	f := r.File

	_, err = l.FsWrite(f, []byte("abc"), -1, nil)
	require.NoError(t, err)
	_, err = l.FsFsync(f, nil)
	require.NoError(t, err)
	_, err = l.FsClose(f, nil)
	require.NoError(t, err)

	r, err = l.FsStat(path, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, r.Stat.Size())

	newPath := filepath.Join(dir, "renamed.txt")
	_, err = l.FsRename(path, newPath, nil)
	require.NoError(t, err)

	_, err = l.FsStat(path, nil)
	require.Equal(t, api.ENOENT, err)

	sub := filepath.Join(dir, "sub")
	_, err = l.FsMkdir(sub, 0o755, nil)
	require.NoError(t, err)

	r, err = l.FsReadDir(dir, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"renamed.txt", "sub"}, names)

	_, err = l.FsRmdir(sub, nil)
	require.NoError(t, err)
	_, err = l.FsUnlink(newPath, nil)
	require.NoError(t, err)

	require.NoError(t, l.Close())
}

func TestFsReadReportsEOF(t *testing.T) {
	l := newTestLoop(t)
	path := filepath.Join(t.TempDir(), "eof.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r, err := l.FsOpen(path, os.O_RDONLY, 0, nil)
	require.NoError(t, err)
	buf := make([]byte, 8)
	rr, err := l.FsRead(r.File, buf, 1, nil)
	require.Equal(t, api.EOF, err)
	require.Equal(t, api.EOF, rr.Err)
	l.FsClose(r.File, nil)
	require.NoError(t, l.Close())
}
