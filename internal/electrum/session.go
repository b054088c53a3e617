package electrum

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// maxLineSize bounds a single response line (listunspent on busy addresses
// can be large).
const maxLineSize = 16 << 20

// Request is one call of a pipelined batch.
type Request struct {
	Method string
	Params []any
}

// Reply is the answer to one Request. Exactly one of Result and Err is set.
type Reply struct {
	Result json.RawMessage
	Err    error
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type response struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type errorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Session is one established connection to an Electrum server. Calls on a
// session are serialized; a batch is written in full before any reply is
// read, and replies are matched by id.
type Session struct {
	ep   Endpoint
	conn net.Conn
	r    *bufio.Reader

	mu     sync.Mutex
	nextID uint64
}

func newSession(ep Endpoint, conn net.Conn) *Session {
	return &Session{ep: ep, conn: conn, r: bufio.NewReaderSize(conn, 64<<10)}
}

// Endpoint returns the server this session is connected to.
func (s *Session) Endpoint() Endpoint { return s.ep }

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// Call issues a single request and decodes the result into result.
func (s *Session) Call(ctx context.Context, method string, params []any, result any) error {
	replies, _, err := s.Batch(ctx, []Request{{Method: method, Params: params}})
	if err != nil {
		return err
	}
	if replies[0].Err != nil {
		return replies[0].Err
	}
	return decodeResult(method, replies[0].Result, result)
}

// Batch pipelines reqs over the session. It returns one reply per request
// in request order and the number of replies received. If the connection
// breaks, the error is returned and also set on every unanswered reply.
func (s *Session) Batch(ctx context.Context, reqs []Request) ([]Reply, int, error) {
	if len(reqs) == 0 {
		return nil, 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := s.watch(ctx)
	defer stop()

	replies := make([]Reply, len(reqs))
	answered := make([]bool, len(reqs))
	index := make(map[uint64]int, len(reqs))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range reqs {
		s.nextID++
		index[s.nextID] = i
		params := r.Params
		if params == nil {
			params = []any{}
		}
		if err := enc.Encode(request{JSONRPC: "2.0", Method: r.Method, Params: params, ID: s.nextID}); err != nil {
			return nil, 0, fmt.Errorf("encode %s: %w", r.Method, err)
		}
	}

	method := reqs[0].Method
	fail := func(err error) error {
		for i := range replies {
			if !answered[i] {
				replies[i].Err = err
			}
		}
		return err
	}

	if _, err := s.conn.Write(buf.Bytes()); err != nil {
		return replies, 0, fail(s.wrap(ctx, method, err))
	}

	got := 0
	for got < len(reqs) {
		line, err := s.readLine()
		if err != nil {
			return replies, got, fail(s.wrap(ctx, method, err))
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return replies, got, fail(&ConnectionError{Endpoint: s.ep.String(), Err: fmt.Errorf("decode response: %w", err)})
		}
		if resp.ID == nil {
			continue // subscription notification
		}
		i, ok := index[*resp.ID]
		if !ok || answered[i] {
			continue
		}
		answered[i] = true
		got++
		if rpcErr := decodeError(reqs[i].Method, resp.Error); rpcErr != nil {
			replies[i].Err = rpcErr
			continue
		}
		replies[i].Result = resp.Result
	}
	return replies, got, nil
}

func (s *Session) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := s.r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			return bytes.TrimSpace(line), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("response line exceeds %d bytes", maxLineSize)
		}
	}
}

// watch maps the context deadline and cancellation onto the connection.
func (s *Session) watch(ctx context.Context) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		_ = s.conn.SetDeadline(time.Time{})
	}
}

func (s *Session) wrap(ctx context.Context, method string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
	return classify(s.ep.String(), method, err)
}

func decodeError(method string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var obj errorObject
	if err := json.Unmarshal(raw, &obj); err == nil {
		return &RPCError{Method: method, Code: obj.Code, Message: obj.Message}
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &RPCError{Method: method, Message: msg}
	}
	return &RPCError{Method: method, Message: string(raw)}
}

func decodeResult(method string, raw json.RawMessage, result any) error {
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
