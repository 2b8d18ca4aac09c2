package api_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

func TestErrnoStrings(t *testing.T) {
	require.Equal(t, "EOF", api.EOF.Name())
	require.Contains(t, api.ECONNRESET.Error(), "ECONNRESET")
	require.Contains(t, api.ECONNRESET.Error(), "connection reset")
	require.Equal(t, "errno(-1)", api.Errno(-1).Name())
}

func TestErrnoTemporary(t *testing.T) {
	require.True(t, api.EAGAIN.Temporary())
	require.True(t, api.EINTR.Temporary())
	require.False(t, api.ECONNRESET.Temporary())
	require.True(t, api.ETIMEDOUT.Timeout())
}

func TestFromOSMapsKnownErrnos(t *testing.T) {
	require.Equal(t, api.ENOENT, api.FromOS(unix.ENOENT))
	require.Equal(t, api.ECONNREFUSED, api.FromOS(unix.ECONNREFUSED))
	require.Equal(t, api.EPIPE, api.FromOS(unix.EPIPE))
	require.NoError(t, api.FromOS(nil))
}

func TestFromOSUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", unix.EACCES)
	require.Equal(t, api.EACCES, api.FromOS(wrapped))
}

func TestFromOSPassesPortableThrough(t *testing.T) {
	require.Equal(t, api.EOF, api.FromOS(api.EOF))
}

func TestFromOSCollapsesUnknown(t *testing.T) {
	err := api.FromOS(fmt.Errorf("something odd"))
	oserr, ok := err.(*api.OSError)
	require.True(t, ok)
	require.Equal(t, api.UNKNOWN, oserr.Errno)
	require.Contains(t, oserr.Error(), "something odd")
	require.ErrorIs(t, err, api.UNKNOWN)
}

func TestErrnoOf(t *testing.T) {
	require.Equal(t, api.ENOENT, api.ErrnoOf(unix.ENOENT))
	require.Equal(t, api.UNKNOWN, api.ErrnoOf(fmt.Errorf("opaque")))
}
