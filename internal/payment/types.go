// Package payment builds, signs and broadcasts payments, and settles
// batches of payment intents into single transactions with a traceable
// ledger record.
package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/internal/store"
)

// Recipient is one requested output.
type Recipient struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// TransactionRequest asks for one transaction paying every recipient.
type TransactionRequest struct {
	SenderAddress string      `json:"sender_address"`
	SenderPubkey  string      `json:"sender_pubkey"`
	Recipients    []Recipient `json:"recipients"`
	// KeyMaterial is a WIF, 64-hex key or mnemonic. Used for one call only.
	KeyMaterial string              `json:"-"`
	Endpoints   []electrum.Endpoint `json:"endpoints,omitempty"`
}

// gateKey identifies the sender for the rate gate. It is the sender
// pubkey only, so one sender never has two gate records.
func gateKey(senderPubkey string) (string, error) {
	if strings.TrimSpace(senderPubkey) == "" {
		return "", fmt.Errorf("%w: sender pubkey is required", ErrInvalidRequest)
	}
	return senderPubkey, nil
}

// TransactionResult is the terminal outcome of a send.
type TransactionResult struct {
	Success     bool
	TxHash      string
	TotalAmount uint64
	Fee         uint64
	Change      uint64
	Inputs      int
	Outputs     int
	BlockHeight int64
	// Unknown is set when the broadcast timed out: the transaction may
	// still have been accepted.
	Unknown bool
	// UsedInputs are the spent outpoints, "txid:vout".
	UsedInputs []string
	Err        error
}

// Kind returns the error kind of the result.
func (r *TransactionResult) Kind() Kind { return ErrorKind(r.Err) }

type resultJSON struct {
	Success     bool     `json:"success"`
	TxHash      string   `json:"tx_hash,omitempty"`
	TotalAmount uint64   `json:"total_amount"`
	Fee         uint64   `json:"fee"`
	Change      uint64   `json:"change"`
	Inputs      int      `json:"inputs"`
	Outputs     int      `json:"outputs"`
	BlockHeight int64    `json:"block_height,omitempty"`
	Unknown     bool     `json:"outcome_unknown,omitempty"`
	UsedInputs  []string `json:"used_inputs,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   Kind     `json:"error_kind,omitempty"`
}

// MarshalJSON renders Err as a message and its kind.
func (r *TransactionResult) MarshalJSON() ([]byte, error) {
	v := resultJSON{
		Success:     r.Success,
		TxHash:      r.TxHash,
		TotalAmount: r.TotalAmount,
		Fee:         r.Fee,
		Change:      r.Change,
		Inputs:      r.Inputs,
		Outputs:     r.Outputs,
		BlockHeight: r.BlockHeight,
		Unknown:     r.Unknown,
		UsedInputs:  r.UsedInputs,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
		v.ErrorKind = ErrorKind(r.Err)
	}
	return json.Marshal(v)
}

// PaymentIntent is one small payment destined for consolidation.
type PaymentIntent struct {
	IntentID           string `json:"intent_id"`
	EventID            string `json:"event_id"`
	RecipientPubkey    string `json:"recipient_pubkey"`
	DestinationAddress string `json:"destination_address"`
	Amount             uint64 `json:"amount"`
}

// AggregatedOutput is one output of a settled batch.
type AggregatedOutput struct {
	Address     string `json:"address"`
	TotalAmount uint64 `json:"total_amount"`
	OutputIndex int    `json:"output_index"`
}

// IntentReceipt links an intent to the output that paid it.
type IntentReceipt = store.IntentReceipt

// BatchRequest settles intents in one transaction from one sender.
type BatchRequest struct {
	SenderAddress string              `json:"sender_address"`
	SenderPubkey  string              `json:"sender_pubkey"`
	KeyMaterial   string              `json:"-"`
	Intents       []PaymentIntent     `json:"intents"`
	Endpoints     []electrum.Endpoint `json:"endpoints,omitempty"`
}

// BatchResult is the outcome of SendBatch. Outputs and Receipts are set
// whenever aggregation succeeded.
type BatchResult struct {
	Result   *TransactionResult `json:"result"`
	Outputs  []AggregatedOutput `json:"outputs,omitempty"`
	Receipts []IntentReceipt    `json:"receipts,omitempty"`
	LedgerID string             `json:"ledger_id,omitempty"`
}
