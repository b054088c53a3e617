package payment

import (
	"context"
	"errors"

	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/internal/gate"
	"github.com/Klingon-tech/lashd/internal/wallet"
	"github.com/Klingon-tech/lashd/pkg/tx"
)

// Kind classifies payment errors for callers and the API.
type Kind string

const (
	KindNone              Kind = ""
	KindInvalidRequest    Kind = "invalid_request"
	KindConnection        Kind = "connection_error"
	KindTimeout           Kind = "timeout"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindProtocolRejection Kind = "protocol_rejection"
	KindRateLimited       Kind = "rate_limited"
	KindInternal          Kind = "internal"
)

var (
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInsufficientFunds is returned before signing when inputs cannot
	// cover the outputs plus fee.
	ErrInsufficientFunds = wallet.ErrInsufficientFunds
	// ErrKeyMismatch means the key material does not control the sender address.
	ErrKeyMismatch = errors.New("key material does not control sender address")
)

// ErrorKind returns the kind of err.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		rateErr    *gate.RateLimitedError
		timeoutErr *electrum.TimeoutError
		connErr    *electrum.ConnectionError
		rpcErr     *electrum.RPCError
	)
	switch {
	case errors.As(err, &rateErr):
		return KindRateLimited
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, wallet.ErrNoUTXOs):
		return KindInsufficientFunds
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &connErr):
		return KindConnection
	case errors.As(err, &rpcErr):
		return KindProtocolRejection
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrKeyMismatch),
		errors.Is(err, wallet.ErrInvalidKeyMaterial),
		errors.Is(err, tx.ErrInvalidAddress),
		errors.Is(err, tx.ErrNoOutputs),
		errors.Is(err, tx.ErrZeroOutput),
		errors.Is(err, tx.ErrOutputOverflow),
		errors.Is(err, tx.ErrTooManyOutputs):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}
