package loop_test

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/loop"
)

func loopbackAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func TestTCPPingPongRoundTrip(t *testing.T) {
	l := newTestLoop(t)

	server, err := loop.NewTCP(l)
	require.NoError(t, err)
	require.NoError(t, server.Bind(loopbackAddr()))

	var serverConn *loop.TCP
	var serverGot, clientGot []byte

	require.NoError(t, server.Listen(128, func(aerr error) {
		require.NoError(t, aerr)
		serverConn, _ = loop.NewTCP(l)
		require.NoError(t, server.Accept(serverConn))
		serverConn.ReadStart(nil, func(buf []byte, rerr error) {
			if rerr == api.EOF {
				serverConn.Close(nil)
				server.Close(nil)
				return
			}
			require.NoError(t, rerr)
			serverGot = append(serverGot, buf...)
			if string(serverGot) == "ping" {
				_, werr := serverConn.Write([][]byte{[]byte("pong")}, nil)
				require.NoError(t, werr)
			}
		})
	}))

	bound, err := server.Sockname()
	require.NoError(t, err)
	require.NotZero(t, bound.Port)

	client, err := loop.NewTCP(l)
	require.NoError(t, err)
	_, err = client.Connect(bound, func(cerr error) {
		require.NoError(t, cerr)
		_, werr := client.Write([][]byte{[]byte("ping")}, nil)
		require.NoError(t, werr)
		client.ReadStart(nil, func(buf []byte, rerr error) {
			require.NoError(t, rerr)
			clientGot = append(clientGot, buf...)
			if string(clientGot) == "pong" {
				client.Shutdown(func(serr error) {
					require.NoError(t, serr)
					client.Close(nil)
				})
			}
		})
	})
	require.NoError(t, err)

	require.Equal(t, 0, l.Run(loop.RunDefault))
	require.Equal(t, "ping", string(serverGot))
	require.Equal(t, "pong", string(clientGot))
	require.NoError(t, l.Close())
}

func TestWritesCompleteInSubmissionOrder(t *testing.T) {
	l := newTestLoop(t)

	server, _ := loop.NewTCP(l)
	require.NoError(t, server.Bind(loopbackAddr()))

	var received []byte
	require.NoError(t, server.Listen(16, func(aerr error) {
		require.NoError(t, aerr)
		conn, _ := loop.NewTCP(l)
		require.NoError(t, server.Accept(conn))
		conn.ReadStart(nil, func(buf []byte, rerr error) {
			if rerr == api.EOF {
				conn.Close(nil)
				server.Close(nil)
				return
			}
			require.NoError(t, rerr)
			received = append(received, buf...)
		})
	}))

	bound, _ := server.Sockname()
	client, _ := loop.NewTCP(l)
	var order []string
	client.Connect(bound, func(cerr error) {
		require.NoError(t, cerr)
		for _, part := range []string{"A", "B", "C"} {
			part := part
			_, werr := client.Write([][]byte{[]byte(part)}, func(e error) {
				require.NoError(t, e)
				order = append(order, part)
				if part == "C" {
					client.Shutdown(func(error) { client.Close(nil) })
				}
			})
			require.NoError(t, werr)
		}
	})

	l.Run(loop.RunDefault)
	require.Equal(t, []string{"A", "B", "C"}, order)
	require.Equal(t, "ABC", string(received))
	require.NoError(t, l.Close())
}

func TestReadStopInsideCallbackDeliversNothingFurther(t *testing.T) {
	l := newTestLoop(t)

	server, _ := loop.NewTCP(l)
	require.NoError(t, server.Bind(loopbackAddr()))

	deliveries := 0
	var conn *loop.TCP
	require.NoError(t, server.Listen(16, func(aerr error) {
		require.NoError(t, aerr)
		conn, _ = loop.NewTCP(l)
		require.NoError(t, server.Accept(conn))
		conn.ReadStart(nil, func(buf []byte, rerr error) {
			require.NoError(t, rerr)
			deliveries++
			conn.ReadStop()
		})
	}))

	bound, _ := server.Sockname()
	client, _ := loop.NewTCP(l)
	client.Connect(bound, func(cerr error) {
		require.NoError(t, cerr)
		client.Write([][]byte{[]byte("first")}, nil)
		client.Write([][]byte{[]byte("second")}, func(error) {
			// give the server a couple of iterations to (wrongly) deliver more
			settle := loop.NewTimer(l)
			settle.Start(50, 0, func(tm *loop.Timer) {
				tm.Close(nil)
				client.Close(nil)
				conn.Close(nil)
				server.Close(nil)
			})
		})
	})

	l.Run(loop.RunDefault)
	require.Equal(t, 1, deliveries)
	require.NoError(t, l.Close())
}

func TestWriteAfterShutdownFails(t *testing.T) {
	l := newTestLoop(t)

	server, _ := loop.NewTCP(l)
	require.NoError(t, server.Bind(loopbackAddr()))
	require.NoError(t, server.Listen(16, func(aerr error) {
		conn, _ := loop.NewTCP(l)
		require.NoError(t, server.Accept(conn))
		conn.Close(nil)
		server.Close(nil)
	}))

	bound, _ := server.Sockname()
	client, _ := loop.NewTCP(l)
	client.Connect(bound, func(cerr error) {
		require.NoError(t, cerr)
		client.Shutdown(func(serr error) {
			require.NoError(t, serr)
			_, werr := client.Write([][]byte{[]byte("late")}, nil)
			require.Equal(t, api.EPIPE, werr)
			client.Close(nil)
		})
	})

	l.Run(loop.RunDefault)
	require.NoError(t, l.Close())
}

func TestPipeRoundTrip(t *testing.T) {
	l := newTestLoop(t)
	path := filepath.Join(t.TempDir(), "hioload.sock")

	server, err := loop.NewPipe(l)
	require.NoError(t, err)
	require.NoError(t, server.Bind(path))

	var got []byte
	require.NoError(t, server.Listen(16, func(aerr error) {
		require.NoError(t, aerr)
		conn, _ := loop.NewPipe(l)
		require.NoError(t, server.Accept(conn))
		conn.ReadStart(nil, func(buf []byte, rerr error) {
			if rerr == api.EOF {
				conn.Close(nil)
				server.Close(nil)
				return
			}
			require.NoError(t, rerr)
			got = append(got, buf...)
		})
	}))

	client, err := loop.NewPipe(l)
	require.NoError(t, err)
	client.SetPendingInstances(8)
	_, err = client.Connect(path, func(cerr error) {
		require.NoError(t, cerr)
		client.Write([][]byte{[]byte("over the pipe")}, func(werr error) {
			require.NoError(t, werr)
			client.Shutdown(func(error) { client.Close(nil) })
		})
	})
	require.NoError(t, err)

	l.Run(loop.RunDefault)
	require.Equal(t, "over the pipe", string(got))
	require.NoError(t, l.Close())
}

func TestCloseListenerCancelsPendingPeer(t *testing.T) {
	l := newTestLoop(t)

	server, _ := loop.NewTCP(l)
	require.NoError(t, server.Bind(loopbackAddr()))

	var connErrs []error
	require.NoError(t, server.Listen(16, func(aerr error) {
		connErrs = append(connErrs, aerr)
		if aerr == nil {
			// do not accept; close with the peer still pending
			server.Close(nil)
		}
	}))

	bound, _ := server.Sockname()
	client, _ := loop.NewTCP(l)
	client.Connect(bound, func(cerr error) {
		require.NoError(t, cerr)
		client.Close(nil)
	})

	l.Run(loop.RunDefault)
	require.GreaterOrEqual(t, len(connErrs), 2)
	require.NoError(t, connErrs[0])
	require.Equal(t, api.ECANCELED, connErrs[1])
	require.NoError(t, l.Close())
}

func TestTryWriteAndQueueSize(t *testing.T) {
	l := newTestLoop(t)

	server, _ := loop.NewTCP(l)
	require.NoError(t, server.Bind(loopbackAddr()))
	require.NoError(t, server.Listen(16, func(aerr error) {
		conn, _ := loop.NewTCP(l)
		require.NoError(t, server.Accept(conn))
		conn.ReadStart(nil, func(buf []byte, rerr error) {
			if rerr != nil {
				conn.Close(nil)
				server.Close(nil)
			}
		})
	}))

	bound, _ := server.Sockname()
	client, _ := loop.NewTCP(l)
	client.Connect(bound, func(cerr error) {
		require.NoError(t, cerr)
		n, terr := client.TryWrite([]byte("direct"))
		require.NoError(t, terr)
		require.Equal(t, 6, n)
		require.Zero(t, client.WriteQueueSize())
		client.Shutdown(func(error) { client.Close(nil) })
	})

	l.Run(loop.RunDefault)
	require.NoError(t, l.Close())
}
