package electrum

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type handlerFunc func(params []json.RawMessage) (any, *errorObject)

// fakeServer is an in-process Electrum server on a loopback listener.
type fakeServer struct {
	t        *testing.T
	ln       net.Listener
	handlers map[string]handlerFunc

	// closeAfter drops the connection after that many replies (0 = never).
	closeAfter int
	// silent makes the server read requests but never answer.
	silent bool

	mu    sync.Mutex
	conns int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{t: t, ln: ln, handlers: make(map[string]handlerFunc)}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) handle(method string, h handlerFunc) { s.handlers[method] = h }

func (s *fakeServer) endpoint() Endpoint {
	addr := s.ln.Addr().(*net.TCPAddr)
	return Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

func (s *fakeServer) serveConn(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	replied := 0
	for sc.Scan() {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			return
		}
		if s.silent {
			continue
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		h, ok := s.handlers[req.Method]
		if !ok {
			resp["error"] = errorObject{Code: -32601, Message: "unknown method " + req.Method}
		} else if result, rpcErr := h(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		b, _ := json.Marshal(resp)
		if _, err := conn.Write(append(b, '\n')); err != nil {
			return
		}
		replied++
		if s.closeAfter > 0 && replied >= s.closeAfter {
			// Half-close so the client sees EOF after the replies already sent.
			_ = conn.(*net.TCPConn).CloseWrite()
			_, _ = io.Copy(io.Discard, conn)
			return
		}
	}
}

// countingDialer counts connection setups.
type countingDialer struct {
	inner Dialer
	dials atomic.Int32
}

func newCountingDialer() *countingDialer {
	return &countingDialer{inner: &NetDialer{Timeout: time.Second}}
}

func (d *countingDialer) Dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	d.dials.Add(1)
	return d.inner.Dial(ctx, ep)
}

// deadEndpoint returns a loopback endpoint with nothing listening.
func deadEndpoint(t *testing.T) Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return Endpoint{Host: "127.0.0.1", Port: port}
}

func (s *fakeServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func stringParam(t *testing.T, params []json.RawMessage, i int) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(params[i], &s))
	return s
}
