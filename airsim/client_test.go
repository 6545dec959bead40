package airsim

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// fakeServer answers msgpack-rpc calls like an AirSim instance with a single
// working camera named "3".
type fakeServer struct {
	ln    net.Listener
	mu    sync.Mutex
	calls []request
	// stale sends a reply with a wrong id before every real reply.
	stale bool
	// hang never replies.
	hang bool
}

func startServer(t *testing.T, configure ...func(*fakeServer)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{ln: ln}
	for _, f := range configure {
		f(s)
	}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	dec := msgpack.NewDecoder(bufio.NewReader(conn))
	w := bufio.NewWriter(conn)
	enc := msgpack.NewEncoder(w)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, req)
		s.mu.Unlock()
		if s.hang {
			continue
		}
		if s.stale {
			enc.Encode([]interface{}{msgResponse, req.ID + 100, nil, "stale"})
		}
		var rpcErr, result interface{}
		switch req.Method {
		case "ping":
			result = true
		case "simGetImage":
			switch req.Params[0] {
			case "3":
				result = []byte{0x89, 'P', 'N', 'G'}
			case "nul":
				result = "\x00"
			default:
				result = ""
			}
		default:
			rpcErr = "rpclib: server could not find function '" + req.Method + "'"
		}
		enc.Encode([]interface{}{msgResponse, req.ID, rpcErr, result})
		w.Flush()
	}
}

func (s *fakeServer) recorded() []request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request(nil), s.calls...)
}

func dial(t *testing.T, s *fakeServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), s.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPing(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	require.NoError(t, c.Ping(context.Background()))
}

func TestSimGetImage(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	c.Vehicle = "Drone1"

	data, err := c.SimGetImage(context.Background(), "3", ImageTypeScene)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	calls := s.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "simGetImage", calls[0].Method)
	require.Len(t, calls[0].Params, 4)
	assert.Equal(t, "Drone1", calls[0].Params[2])
	assert.Equal(t, false, calls[0].Params[3])
}

func TestSimGetImageNoImage(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	for _, camera := range []string{"missing", "nul"} {
		data, err := c.SimGetImage(context.Background(), camera, ImageTypeScene)
		require.NoError(t, err)
		assert.Nil(t, data, camera)
	}
}

func TestCallSkipsStaleReplies(t *testing.T) {
	s := startServer(t, func(s *fakeServer) { s.stale = true })
	c := dial(t, s)

	data, err := c.SimGetImage(context.Background(), "3", ImageTypeScene)
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestRPCError(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	err := c.Call(context.Background(), "armDisarm", nil, true, "")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "armDisarm", rpcErr.Method)

	// The connection stays usable after a server-side error.
	require.NoError(t, c.Ping(context.Background()))
}

func TestCallHonoursContext(t *testing.T) {
	s := startServer(t, func(s *fakeServer) { s.hang = true })
	c := dial(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.SimGetImage(ctx, "3", ImageTypeScene)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedClient(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestDialFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}
