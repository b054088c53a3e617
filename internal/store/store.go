// Package store defines the persisted records of lashd and the storage
// interfaces the services depend on. Implementations live in kvstore
// (embedded Badger) and pgstore (PostgreSQL).
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("record conflict")
)

// EventStatus is the delivery state of a pending event.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusPublished EventStatus = "published"
	StatusFailed    EventStatus = "failed"
)

// EligibilityRecord is the last block height at which a sender broadcast.
type EligibilityRecord struct {
	SenderPubkey        string    `json:"sender_pubkey"`
	LastUsedBlockHeight int64     `json:"last_used_block_height"`
	BlockTime           time.Time `json:"block_time"`
	UsedInputs          []string  `json:"used_inputs"`
	TxHash              string    `json:"tx_hash"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PendingEvent is a signed protocol event awaiting delivery to at least one
// relay.
type PendingEvent struct {
	ID            string      `json:"id"`
	EventID       string      `json:"event_id"`
	OwnerKey      string      `json:"owner_key"`
	Kind          int         `json:"kind"`
	SignedPayload []byte      `json:"signed_payload"`
	RetryCount    int         `json:"retry_count"`
	MaxRetries    int         `json:"max_retries"`
	Status        EventStatus `json:"status"`
	LastError     string      `json:"last_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	LastAttemptAt *time.Time  `json:"last_attempt_at,omitempty"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
}

// Retryable reports whether the sweep may attempt this row.
func (e *PendingEvent) Retryable() bool {
	return e.Status == StatusPending && e.RetryCount < e.MaxRetries
}

// IntentReceipt links one payment intent to the transaction output that paid it.
type IntentReceipt struct {
	IntentID        string `json:"intent_id"`
	EventID         string `json:"event_id"`
	RecipientPubkey string `json:"recipient_pubkey"`
	OutputIndex     int    `json:"output_index"`
	FromWallet      string `json:"from_wallet"`
	ToWallet        string `json:"to_wallet"`
	Amount          uint64 `json:"amount"`
}

// LedgerRecord is the persisted outcome of one broadcast batch transaction.
type LedgerRecord struct {
	ID           string          `json:"id"`
	TxHash       string          `json:"tx_hash"`
	SenderPubkey string          `json:"sender_pubkey"`
	FromWallet   string          `json:"from_wallet"`
	TotalAmount  uint64          `json:"total_amount"`
	Fee          uint64          `json:"fee"`
	OutputCount  int             `json:"output_count"`
	IntentCount  int             `json:"intent_count"`
	Receipts     []IntentReceipt `json:"receipts"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Receipt returns the receipt of intentID, if the record contains it.
func (r *LedgerRecord) Receipt(intentID string) (IntentReceipt, bool) {
	for _, rc := range r.Receipts {
		if rc.IntentID == intentID {
			return rc, true
		}
	}
	return IntentReceipt{}, false
}

// EligibilityStore persists one eligibility record per sender.
type EligibilityStore interface {
	// GetEligibility returns ErrNotFound when the sender has no record.
	GetEligibility(ctx context.Context, sender string) (*EligibilityRecord, error)
	// PutEligibility inserts or replaces the sender's record.
	PutEligibility(ctx context.Context, rec *EligibilityRecord) error
}

// EventStore persists pending events.
type EventStore interface {
	// InsertEvent stores ev unless a row with the same EventID exists.
	// It reports whether a row was inserted.
	InsertEvent(ctx context.Context, ev *PendingEvent) (bool, error)
	// GetEvent looks a row up by its current EventID.
	GetEvent(ctx context.Context, eventID string) (*PendingEvent, error)
	// ListPending returns the owner's pending rows, oldest first.
	ListPending(ctx context.Context, owner string) ([]*PendingEvent, error)
	// ListRetryable returns up to limit pending rows with RetryCount <
	// MaxRetries, oldest first.
	ListRetryable(ctx context.Context, limit int) ([]*PendingEvent, error)
	// CountPending returns the number of rows in pending status.
	CountPending(ctx context.Context) (int, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	// MarkAttemptFailed increments RetryCount and records the error.
	MarkAttemptFailed(ctx context.Context, id string, at time.Time, lastErr string) error
	// ReplaceEvent swaps the stored event for a re-signed one. Returns
	// ErrConflict if newEventID already belongs to another row.
	ReplaceEvent(ctx context.Context, id, newEventID string, kind int, payload []byte) error
	// MarkFailed moves a row to failed status.
	MarkFailed(ctx context.Context, id string, reason string) error
}

// LedgerStore persists one ledger record per broadcast transaction.
type LedgerStore interface {
	// PutLedger stores rec unless a record with the same TxHash exists.
	// It reports whether a record was inserted.
	PutLedger(ctx context.Context, rec *LedgerRecord) (bool, error)
	GetLedger(ctx context.Context, txHash string) (*LedgerRecord, error)
}

// Store is the full persistence surface used by the node.
type Store interface {
	EligibilityStore
	EventStore
	LedgerStore
	Close() error
}
