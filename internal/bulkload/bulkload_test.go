package bulkload

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scslab/mutated/internal/memcwire"
	"github.com/scslab/mutated/internal/reactor"
	"github.com/scslab/mutated/internal/sock"
)

// fakeMemcached reads SETQ/SET requests off conn until stop fires, replying
// only to loud SETs (the quiet SETQ stream never gets a response, mirroring
// the real protocol this loader is built against).
func fakeMemcached(t *testing.T, conn net.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		hdr := make([]byte, memcwire.HeaderSize)
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		parsed := memcwire.ParseHeader(hdr)
		body := make([]byte, parsed.BodyLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		if parsed.Opcode != memcwire.OpSet {
			continue
		}
		resp := make([]byte, memcwire.HeaderSize)
		memcwire.PutHeader(resp, memcwire.OpSet, 0, 0, 0, parsed.Opaque)
		resp[0] = memcwire.MagicResponse
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func TestLoaderSendsNotifyWindowedLoudSets(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	stop := make(chan struct{})
	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connCh <- conn
		fakeMemcached(t, conn, stop)
	}()

	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s, err := sock.Dial(r, host, port)
	require.NoError(t, err)

	loader := New(s, Config{KeyCount: 10, ValueSize: 8, StartSeq: 1, Batch: 3, Notify: 5})
	require.NoError(t, loader.Start())

	deadline := time.Now().Add(2 * time.Second)
	events := make([]reactor.Event, 4)
	for !loader.Done() {
		require.False(t, time.Now().After(deadline), "timed out waiting for the loader to finish")
		n, err := r.Wait(events, 200)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			sk := sock.FromUdata(events[i].Udata)
			require.NoError(t, sk.RunIO(events[i].Events))
		}
	}

	require.Equal(t, 10, loader.sent, "every key must be sent, quiet or loud")

	close(stop)
	conn := <-connCh
	conn.Close()
}
