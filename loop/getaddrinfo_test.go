package loop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/loop"
)

func TestGetaddrinfoNumericLiteral(t *testing.T) {
	l := newTestLoop(t)
	var addrs int
	var port int
	_, err := l.Getaddrinfo("127.0.0.1", "8080", func(r *loop.AddrInfoReq) {
		require.NoError(t, r.Err)
		addrs = len(r.Addrs)
		port = r.Port
	})
	require.NoError(t, err)

	require.Equal(t, 0, l.Run(loop.RunDefault))
	require.Equal(t, 1, addrs)
	require.Equal(t, 8080, port)
	require.NoError(t, l.Close())
}

func TestGetaddrinfoRequiresCallback(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.Getaddrinfo("localhost", "80", nil)
	require.Error(t, err)
	require.NoError(t, l.Close())
}
