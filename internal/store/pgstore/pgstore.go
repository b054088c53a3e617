// Package pgstore implements the store interfaces on PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Klingon-tech/lashd/internal/store"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), nil
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- EligibilityStore -------------------------------------------------------

type eligibilityRow struct {
	SenderPubkey        string         `db:"sender_pubkey"`
	LastUsedBlockHeight int64          `db:"last_used_block_height"`
	BlockTime           time.Time      `db:"block_time"`
	UsedInputs          pq.StringArray `db:"used_inputs"`
	TxHash              string         `db:"tx_hash"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (s *Store) GetEligibility(ctx context.Context, sender string) (*store.EligibilityRecord, error) {
	var row eligibilityRow
	err := s.db.GetContext(ctx, &row, `
		SELECT sender_pubkey, last_used_block_height, block_time, used_inputs, tx_hash, updated_at
		FROM sender_eligibility
		WHERE sender_pubkey = $1
	`, sender)
	if err != nil {
		return nil, notFound(err)
	}
	return &store.EligibilityRecord{
		SenderPubkey:        row.SenderPubkey,
		LastUsedBlockHeight: row.LastUsedBlockHeight,
		BlockTime:           row.BlockTime,
		UsedInputs:          []string(row.UsedInputs),
		TxHash:              row.TxHash,
		UpdatedAt:           row.UpdatedAt,
	}, nil
}

func (s *Store) PutEligibility(ctx context.Context, rec *store.EligibilityRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sender_eligibility (sender_pubkey, last_used_block_height, block_time, used_inputs, tx_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sender_pubkey) DO UPDATE
		SET last_used_block_height = EXCLUDED.last_used_block_height,
		    block_time = EXCLUDED.block_time,
		    used_inputs = EXCLUDED.used_inputs,
		    tx_hash = EXCLUDED.tx_hash,
		    updated_at = EXCLUDED.updated_at
	`, rec.SenderPubkey, rec.LastUsedBlockHeight, rec.BlockTime, pq.StringArray(rec.UsedInputs), rec.TxHash, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put eligibility: %w", err)
	}
	return nil
}

// --- EventStore -------------------------------------------------------------

const eventColumns = `id, event_id, owner_key, kind, signed_payload, retry_count, max_retries,
		status, last_error, created_at, last_attempt_at, published_at`

type eventRow struct {
	ID            string       `db:"id"`
	EventID       string       `db:"event_id"`
	OwnerKey      string       `db:"owner_key"`
	Kind          int          `db:"kind"`
	SignedPayload []byte       `db:"signed_payload"`
	RetryCount    int          `db:"retry_count"`
	MaxRetries    int          `db:"max_retries"`
	Status        string       `db:"status"`
	LastError     string       `db:"last_error"`
	CreatedAt     time.Time    `db:"created_at"`
	LastAttemptAt sql.NullTime `db:"last_attempt_at"`
	PublishedAt   sql.NullTime `db:"published_at"`
}

func (r *eventRow) record() *store.PendingEvent {
	ev := &store.PendingEvent{
		ID:            r.ID,
		EventID:       r.EventID,
		OwnerKey:      r.OwnerKey,
		Kind:          r.Kind,
		SignedPayload: r.SignedPayload,
		RetryCount:    r.RetryCount,
		MaxRetries:    r.MaxRetries,
		Status:        store.EventStatus(r.Status),
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt,
	}
	if r.LastAttemptAt.Valid {
		t := r.LastAttemptAt.Time
		ev.LastAttemptAt = &t
	}
	if r.PublishedAt.Valid {
		t := r.PublishedAt.Time
		ev.PublishedAt = &t
	}
	return ev
}

func (s *Store) InsertEvent(ctx context.Context, ev *store.PendingEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_relay_events (id, event_id, owner_key, kind, signed_payload, retry_count, max_retries, status, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.ID, ev.EventID, ev.OwnerKey, ev.Kind, ev.SignedPayload, ev.RetryCount, ev.MaxRetries,
		string(ev.Status), ev.LastError, ev.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*store.PendingEvent, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `SELECT `+eventColumns+`
		FROM pending_relay_events
		WHERE event_id = $1
	`, eventID)
	if err != nil {
		return nil, notFound(err)
	}
	return row.record(), nil
}

func (s *Store) ListPending(ctx context.Context, owner string) ([]*store.PendingEvent, error) {
	return s.selectEvents(ctx, `SELECT `+eventColumns+`
		FROM pending_relay_events
		WHERE owner_key = $1 AND status = 'pending'
		ORDER BY created_at, id
	`, owner)
}

func (s *Store) ListRetryable(ctx context.Context, limit int) ([]*store.PendingEvent, error) {
	return s.selectEvents(ctx, `SELECT `+eventColumns+`
		FROM pending_relay_events
		WHERE status = 'pending' AND retry_count < max_retries
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
}

func (s *Store) selectEvents(ctx context.Context, query string, args ...any) ([]*store.PendingEvent, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	out := make([]*store.PendingEvent, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM pending_relay_events WHERE status = 'pending'`); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `
		UPDATE pending_relay_events
		SET status = 'published', published_at = $2, last_attempt_at = $2, last_error = ''
		WHERE id = $1
	`, id, at)
}

func (s *Store) MarkAttemptFailed(ctx context.Context, id string, at time.Time, lastErr string) error {
	return s.execOne(ctx, `
		UPDATE pending_relay_events
		SET retry_count = retry_count + 1, last_attempt_at = $2, last_error = $3
		WHERE id = $1
	`, id, at, lastErr)
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.execOne(ctx, `
		UPDATE pending_relay_events
		SET status = 'failed', last_error = CASE WHEN $2::text = '' THEN last_error ELSE $2::text END
		WHERE id = $1
	`, id, reason)
}

func (s *Store) ReplaceEvent(ctx context.Context, id, newEventID string, kind int, payload []byte) error {
	err := s.execOne(ctx, `
		UPDATE pending_relay_events
		SET event_id = $2, kind = $3, signed_payload = $4
		WHERE id = $1
	`, id, newEventID, kind, payload)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("event %s: %w", newEventID, store.ErrConflict)
	}
	return err
}

// execOne runs an UPDATE that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- LedgerStore ------------------------------------------------------------

type ledgerRow struct {
	ID           string    `db:"id"`
	TxHash       string    `db:"tx_hash"`
	SenderPubkey string    `db:"sender_pubkey"`
	FromWallet   string    `db:"from_wallet"`
	TotalAmount  int64     `db:"total_amount"`
	Fee          int64     `db:"fee"`
	OutputCount  int       `db:"output_count"`
	IntentCount  int       `db:"intent_count"`
	Receipts     []byte    `db:"receipts"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *Store) PutLedger(ctx context.Context, rec *store.LedgerRecord) (bool, error) {
	receipts, err := json.Marshal(rec.Receipts)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_ledger (id, tx_hash, sender_pubkey, from_wallet, total_amount, fee, output_count, intent_count, receipts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_hash) DO NOTHING
	`, rec.ID, rec.TxHash, rec.SenderPubkey, rec.FromWallet, int64(rec.TotalAmount), int64(rec.Fee),
		rec.OutputCount, rec.IntentCount, receipts, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetLedger(ctx context.Context, txHash string) (*store.LedgerRecord, error) {
	var row ledgerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tx_hash, sender_pubkey, from_wallet, total_amount, fee, output_count, intent_count, receipts, created_at
		FROM payment_ledger
		WHERE tx_hash = $1
	`, txHash)
	if err != nil {
		return nil, notFound(err)
	}
	rec := &store.LedgerRecord{
		ID:           row.ID,
		TxHash:       row.TxHash,
		SenderPubkey: row.SenderPubkey,
		FromWallet:   row.FromWallet,
		TotalAmount:  uint64(row.TotalAmount),
		Fee:          uint64(row.Fee),
		OutputCount:  row.OutputCount,
		IntentCount:  row.IntentCount,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.Receipts) > 0 {
		if err := json.Unmarshal(row.Receipts, &rec.Receipts); err != nil {
			return nil, fmt.Errorf("decode receipts: %w", err)
		}
	}
	return rec, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
