package rpc

import (
	"encoding/json"
	"time"

	"github.com/Klingon-tech/lashd/internal/payment"
	"github.com/Klingon-tech/lashd/internal/store"
	"github.com/Klingon-tech/lashd/pkg/nostr"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000

	// Application codes, one per error kind.
	CodeConnection        = -32010
	CodeTimeout           = -32011
	CodeInsufficientFunds = -32012
	CodeProtocolRejection = -32013
	CodeRateLimited       = -32014
	CodeOwnerMismatch     = -32015
	CodeAlreadyPublished  = -32016
	CodeUnavailable       = -32017
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData is attached to application errors.
type ErrorData struct {
	Kind payment.Kind `json:"kind"`
	// Set on rate_limited.
	CurrentHeight  *int64 `json:"current_height,omitempty"`
	LastUsedHeight *int64 `json:"last_used_height,omitempty"`
	// Result carries the full send outcome, e.g. the tx hash of an
	// unknown-outcome broadcast.
	Result interface{} `json:"result,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// SendParam is used by payment_send.
type SendParam struct {
	SenderAddress string              `json:"sender_address"`
	SenderPubkey  string              `json:"sender_pubkey"`
	Recipients    []payment.Recipient `json:"recipients"`
	KeyMaterial   string              `json:"key_material"`
	Endpoints     []string            `json:"endpoints,omitempty"`
}

// SendBatchParam is used by payment_sendBatch.
type SendBatchParam struct {
	SenderAddress string                  `json:"sender_address"`
	SenderPubkey  string                  `json:"sender_pubkey"`
	Intents       []payment.PaymentIntent `json:"intents"`
	KeyMaterial   string                  `json:"key_material"`
	Endpoints     []string                `json:"endpoints,omitempty"`
}

// ReceiptParam is used by payment_getReceipt.
type ReceiptParam struct {
	TxHash   string `json:"tx_hash"`
	IntentID string `json:"intent_id"`
}

// BalancesParam is used by wallet_getBalances.
type BalancesParam struct {
	Addresses []string `json:"addresses"`
	Endpoints []string `json:"endpoints,omitempty"`
}

// SenderParam is used by gate_checkEligibility.
type SenderParam struct {
	SenderPubkey string `json:"sender_pubkey"`
}

// EndpointsParam is used by chain_getHeight. Params may be omitted.
type EndpointsParam struct {
	Endpoints []string `json:"endpoints,omitempty"`
}

// EventParam is used by relay_publish and relay_queueEvent.
type EventParam struct {
	Event    *nostr.Event `json:"event"`
	OwnerKey string       `json:"owner_key"`
}

// OwnerParam is used by relay_getPending.
type OwnerParam struct {
	OwnerKey string `json:"owner_key"`
}

// RetryParam is used by relay_retryEvent.
type RetryParam struct {
	OldEventID string       `json:"old_event_id"`
	Event      *nostr.Event `json:"event"`
	OwnerKey   string       `json:"owner_key"`
}

// ResolveParam is used by relay_resolveEvent.
type ResolveParam struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// ── Result types ────────────────────────────────────────────────────────

// HeightResult is returned by chain_getHeight.
type HeightResult struct {
	Height    int64     `json:"height"`
	BlockTime time.Time `json:"block_time"`
}

// PendingResult is returned by relay_getPending.
type PendingResult struct {
	OwnerKey string                `json:"owner_key"`
	Count    int                   `json:"count"`
	Events   []*store.PendingEvent `json:"events"`
}

// ResolveResult is returned by relay_resolveEvent.
type ResolveResult struct {
	EventID string            `json:"event_id"`
	Status  store.EventStatus `json:"status"`
}
