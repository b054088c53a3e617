package rpc

import (
	"errors"

	"github.com/Klingon-tech/lashd/internal/gate"
	"github.com/Klingon-tech/lashd/internal/payment"
	"github.com/Klingon-tech/lashd/internal/queue"
	"github.com/Klingon-tech/lashd/internal/store"
)

// kindCodes maps payment error kinds to JSON-RPC codes.
var kindCodes = map[payment.Kind]int{
	payment.KindInvalidRequest:    CodeInvalidParams,
	payment.KindConnection:        CodeConnection,
	payment.KindTimeout:           CodeTimeout,
	payment.KindInsufficientFunds: CodeInsufficientFunds,
	payment.KindProtocolRejection: CodeProtocolRejection,
	payment.KindRateLimited:       CodeRateLimited,
	payment.KindInternal:          CodeInternalError,
}

// toError converts a service error into a JSON-RPC error. result, when
// non-nil, is attached as data.
func toError(err error, result interface{}) *Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, queue.ErrOwnerMismatch):
		return &Error{Code: CodeOwnerMismatch, Message: err.Error()}
	case errors.Is(err, queue.ErrAlreadyPublished):
		return &Error{Code: CodeAlreadyPublished, Message: err.Error()}
	case errors.Is(err, queue.ErrInvalidEvent):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	kind := payment.ErrorKind(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = CodeInternalError
	}
	data := &ErrorData{Kind: kind, Result: result}

	var rateErr *gate.RateLimitedError
	if errors.As(err, &rateErr) {
		current, last := rateErr.CurrentHeight, rateErr.LastUsedHeight
		data.CurrentHeight = &current
		data.LastUsedHeight = &last
	}
	return &Error{Code: code, Message: err.Error(), Data: data}
}
