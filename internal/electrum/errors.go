package electrum

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// ConnectionError means no endpoint could be reached, or an established
// connection broke before the call completed.
type ConnectionError struct {
	Endpoint string // empty when no endpoint was reachable
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("electrum: no endpoint reachable: %v", e.Err)
	}
	return fmt.Sprintf("electrum: connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the endpoint was reachable but did not answer in time.
// For calls with side effects the outcome is unknown.
type TimeoutError struct {
	Endpoint string
	Method   string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("electrum: %s on %s timed out: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RPCError is an error object returned by the server.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("electrum: %s rejected (%d): %s", e.Method, e.Code, e.Message)
}

// classify turns an I/O error on an established connection into a
// TimeoutError or ConnectionError.
func classify(endpoint, method string, err error) error {
	if isTimeout(err) {
		return &TimeoutError{Endpoint: endpoint, Method: method, Err: err}
	}
	return &ConnectionError{Endpoint: endpoint, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
