// Package kvstore implements the store interfaces on the embedded key-value
// database.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/lashd/internal/storage"
	"github.com/Klingon-tech/lashd/internal/store"
)

// Key prefixes.
var (
	prefixEligibility = []byte("e/") // e/<sender> -> EligibilityRecord
	prefixEvent       = []byte("q/") // q/<row id> -> PendingEvent
	prefixEventIndex  = []byte("i/") // i/<event id> -> row id
	prefixLedger      = []byte("l/") // l/<tx hash> -> LedgerRecord
	prefixPending     = []byte("p/") // p/<created>/<row id> -> row id, pending rows only
)

// createdLayout sorts lexically in time order.
const createdLayout = "20060102T150405.000000000"

// errStopScan ends a ForEach early.
var errStopScan = errors.New("stop scan")

// Store implements store.Store on a storage.DB.
type Store struct {
	db   storage.DB
	root *storage.PrefixDB // unprefixed view, for cross-namespace batches

	elig   *storage.PrefixDB
	events *storage.PrefixDB
	index   *storage.PrefixDB
	ledger  *storage.PrefixDB
	pending *storage.PrefixDB

	// mu serializes read-modify-write sequences.
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// New wraps db. The Store takes ownership and closes db on Close.
func New(db storage.DB) *Store {
	return &Store{
		db:     db,
		root:   storage.NewPrefixDB(db, nil),
		elig:   storage.NewPrefixDB(db, prefixEligibility),
		events: storage.NewPrefixDB(db, prefixEvent),
		index:  storage.NewPrefixDB(db, prefixEventIndex),
		ledger:  storage.NewPrefixDB(db, prefixLedger),
		pending: storage.NewPrefixDB(db, prefixPending),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ── Eligibility ─────────────────────────────────────────────────────────

// GetEligibility implements store.EligibilityStore.
func (s *Store) GetEligibility(_ context.Context, sender string) (*store.EligibilityRecord, error) {
	var rec store.EligibilityRecord
	if err := getJSON(s.elig, []byte(sender), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutEligibility implements store.EligibilityStore.
func (s *Store) PutEligibility(_ context.Context, rec *store.EligibilityRecord) error {
	if rec.SenderPubkey == "" {
		return fmt.Errorf("eligibility record: empty sender")
	}
	return putJSON(s.elig, []byte(rec.SenderPubkey), rec)
}

// ── Events ──────────────────────────────────────────────────────────────

// InsertEvent implements store.EventStore.
func (s *Store) InsertEvent(_ context.Context, ev *store.PendingEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.index.Has([]byte(ev.EventID))
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.writeEvent(ev, ""); err != nil {
		return false, err
	}
	return true, nil
}

// GetEvent implements store.EventStore.
func (s *Store) GetEvent(_ context.Context, eventID string) (*store.PendingEvent, error) {
	id, err := s.index.Get([]byte(eventID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.loadEvent(string(id))
}

// ListPending implements store.EventStore.
func (s *Store) ListPending(_ context.Context, owner string) ([]*store.PendingEvent, error) {
	return s.scanPending(func(ev *store.PendingEvent) bool {
		return ev.OwnerKey == owner
	}, 0)
}

// ListRetryable implements store.EventStore.
func (s *Store) ListRetryable(_ context.Context, limit int) ([]*store.PendingEvent, error) {
	return s.scanPending((*store.PendingEvent).Retryable, limit)
}

// CountPending implements store.EventStore. It reads only the pending index.
func (s *Store) CountPending(_ context.Context) (int, error) {
	var n int
	err := s.pending.ForEach(nil, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// MarkPublished implements store.EventStore.
func (s *Store) MarkPublished(_ context.Context, id string, at time.Time) error {
	return s.updateEvent(id, func(ev *store.PendingEvent) {
		ev.Status = store.StatusPublished
		ev.PublishedAt = &at
		ev.LastAttemptAt = &at
		ev.LastError = ""
	})
}

// MarkAttemptFailed implements store.EventStore.
func (s *Store) MarkAttemptFailed(_ context.Context, id string, at time.Time, lastErr string) error {
	return s.updateEvent(id, func(ev *store.PendingEvent) {
		ev.RetryCount++
		ev.LastAttemptAt = &at
		ev.LastError = lastErr
	})
}

// MarkFailed implements store.EventStore.
func (s *Store) MarkFailed(_ context.Context, id string, reason string) error {
	return s.updateEvent(id, func(ev *store.PendingEvent) {
		ev.Status = store.StatusFailed
		if reason != "" {
			ev.LastError = reason
		}
	})
}

// ReplaceEvent implements store.EventStore.
func (s *Store) ReplaceEvent(_ context.Context, id, newEventID string, kind int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.loadEvent(id)
	if err != nil {
		return err
	}
	if newEventID != ev.EventID {
		owner, err := s.index.Get([]byte(newEventID))
		switch {
		case err == nil && string(owner) != id:
			return fmt.Errorf("event %s: %w", newEventID, store.ErrConflict)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return err
		}
	}
	oldEventID := ev.EventID
	ev.EventID = newEventID
	ev.Kind = kind
	ev.SignedPayload = payload
	return s.writeEvent(ev, oldEventID)
}

// writeEvent stores ev with its index entries in one batch. The event id
// entry of oldEventID is dropped when the id changed, and the pending entry
// exists only while the row is pending.
func (s *Store) writeEvent(ev *store.PendingEvent, oldEventID string) error {
	buf, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	b := s.root.NewBatch()
	if oldEventID != "" && oldEventID != ev.EventID {
		b.Delete(key(prefixEventIndex, oldEventID))
	}
	b.Put(key(prefixEventIndex, ev.EventID), []byte(ev.ID))
	b.Put(key(prefixEvent, ev.ID), buf)
	if ev.Status == store.StatusPending {
		b.Put(pendingKey(ev), []byte(ev.ID))
	} else {
		b.Delete(pendingKey(ev))
	}
	return b.Commit()
}

func (s *Store) loadEvent(id string) (*store.PendingEvent, error) {
	var ev store.PendingEvent
	if err := getJSON(s.events, []byte(id), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Store) updateEvent(id string, fn func(*store.PendingEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.loadEvent(id)
	if err != nil {
		return err
	}
	fn(ev)
	return s.writeEvent(ev, "")
}

// scanPending walks the pending index oldest first and returns the rows
// matching keep, stopping after limit rows when limit > 0.
func (s *Store) scanPending(keep func(*store.PendingEvent) bool, limit int) ([]*store.PendingEvent, error) {
	var out []*store.PendingEvent
	err := s.pending.ForEach(nil, func(_, id []byte) error {
		ev, err := s.loadEvent(string(id))
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Status != store.StatusPending || !keep(ev) {
			return nil
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	return out, nil
}

func pendingKey(ev *store.PendingEvent) []byte {
	return key(prefixPending, ev.CreatedAt.UTC().Format(createdLayout)+"/"+ev.ID)
}

// ── Ledger ──────────────────────────────────────────────────────────────

// PutLedger implements store.LedgerStore.
func (s *Store) PutLedger(_ context.Context, rec *store.LedgerRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.ledger.Has([]byte(rec.TxHash))
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := putJSON(s.ledger, []byte(rec.TxHash), rec); err != nil {
		return false, err
	}
	return true, nil
}

// GetLedger implements store.LedgerStore.
func (s *Store) GetLedger(_ context.Context, txHash string) (*store.LedgerRecord, error) {
	var rec store.LedgerRecord
	if err := getJSON(s.ledger, []byte(txHash), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func key(prefix []byte, id string) []byte {
	out := make([]byte, 0, len(prefix)+len(id))
	out = append(out, prefix...)
	return append(out, id...)
}

func getJSON(db storage.DB, key []byte, v any) error {
	buf, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func putJSON(db storage.DB, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return db.Put(key, buf)
}
