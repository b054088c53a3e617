// Package storetest holds the behavioral contract every store.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/lashd/internal/store"
)

// NewEvent returns a pending row for eventID created at t.
func NewEvent(eventID, owner string, t time.Time, maxRetries int) *store.PendingEvent {
	return &store.PendingEvent{
		ID:            "row-" + eventID,
		EventID:       eventID,
		OwnerKey:      owner,
		Kind:          1,
		SignedPayload: []byte(fmt.Sprintf(`{"id":%q}`, eventID)),
		MaxRetries:    maxRetries,
		Status:        store.StatusPending,
		CreatedAt:     t,
	}
}

// Run executes the contract against a fresh store from newStore per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("EligibilityMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetEligibility(ctx, "alice")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("EligibilityUpsert", func(t *testing.T) {
		s := newStore(t)
		rec := &store.EligibilityRecord{
			SenderPubkey:        "alice",
			LastUsedBlockHeight: 100,
			BlockTime:           base,
			UsedInputs:          []string{"aa:0"},
			TxHash:              "tx1",
			UpdatedAt:           base,
		}
		require.NoError(t, s.PutEligibility(ctx, rec))

		rec2 := *rec
		rec2.LastUsedBlockHeight = 101
		rec2.TxHash = "tx2"
		require.NoError(t, s.PutEligibility(ctx, &rec2))

		got, err := s.GetEligibility(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(101), got.LastUsedBlockHeight)
		assert.Equal(t, "tx2", got.TxHash)
		assert.Equal(t, []string{"aa:0"}, got.UsedInputs)
	})

	t.Run("InsertEventIdempotent", func(t *testing.T) {
		s := newStore(t)
		ins, err := s.InsertEvent(ctx, NewEvent("ev1", "bob", base, 5))
		require.NoError(t, err)
		assert.True(t, ins)

		dup := NewEvent("ev1", "bob", base.Add(time.Second), 5)
		dup.ID = "another-row"
		ins, err = s.InsertEvent(ctx, dup)
		require.NoError(t, err)
		assert.False(t, ins)

		pending, err := s.ListPending(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "row-ev1", pending[0].ID)
	})

	t.Run("ListRetryableOldestFirst", func(t *testing.T) {
		s := newStore(t)
		for i, id := range []string{"c", "a", "b"} {
			_, err := s.InsertEvent(ctx, NewEvent(id, "o", base.Add(time.Duration(2-i)*time.Minute), 3))
			require.NoError(t, err)
		}
		exhausted := NewEvent("x", "o", base.Add(-time.Hour), 0)
		_, err := s.InsertEvent(ctx, exhausted)
		require.NoError(t, err)

		rows, err := s.ListRetryable(ctx, 2)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "b", rows[0].EventID)
		assert.Equal(t, "a", rows[1].EventID)

		n, err := s.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("AttemptAndPublish", func(t *testing.T) {
		s := newStore(t)
		ev := NewEvent("ev", "o", base, 3)
		_, err := s.InsertEvent(ctx, ev)
		require.NoError(t, err)

		require.NoError(t, s.MarkAttemptFailed(ctx, ev.ID, base.Add(time.Minute), "no relay"))
		got, err := s.GetEvent(ctx, "ev")
		require.NoError(t, err)
		assert.Equal(t, 1, got.RetryCount)
		assert.Equal(t, "no relay", got.LastError)
		assert.Equal(t, store.StatusPending, got.Status)
		require.NotNil(t, got.LastAttemptAt)

		require.NoError(t, s.MarkPublished(ctx, ev.ID, base.Add(2*time.Minute)))
		got, err = s.GetEvent(ctx, "ev")
		require.NoError(t, err)
		assert.Equal(t, store.StatusPublished, got.Status)
		require.NotNil(t, got.PublishedAt)

		pending, err := s.ListPending(ctx, "o")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("ReplaceEvent", func(t *testing.T) {
		s := newStore(t)
		ev := NewEvent("old", "o", base, 3)
		other := NewEvent("taken", "o", base, 3)
		for _, e := range []*store.PendingEvent{ev, other} {
			_, err := s.InsertEvent(ctx, e)
			require.NoError(t, err)
		}

		err := s.ReplaceEvent(ctx, ev.ID, "taken", 7, []byte("x"))
		require.ErrorIs(t, err, store.ErrConflict)

		require.NoError(t, s.ReplaceEvent(ctx, ev.ID, "new", 7, []byte(`{"id":"new"}`)))
		_, err = s.GetEvent(ctx, "old")
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.GetEvent(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, 7, got.Kind)
		assert.Equal(t, `{"id":"new"}`, string(got.SignedPayload))
	})

	t.Run("MarkFailed", func(t *testing.T) {
		s := newStore(t)
		ev := NewEvent("ev", "o", base, 3)
		_, err := s.InsertEvent(ctx, ev)
		require.NoError(t, err)
		require.NoError(t, s.MarkFailed(ctx, ev.ID, "operator"))

		got, err := s.GetEvent(ctx, "ev")
		require.NoError(t, err)
		assert.Equal(t, store.StatusFailed, got.Status)
		assert.False(t, got.Retryable())
	})

	t.Run("UpdateMissingRow", func(t *testing.T) {
		s := newStore(t)
		err := s.MarkPublished(ctx, "nope", base)
		assert.True(t, errors.Is(err, store.ErrNotFound), "err = %v", err)
	})

	t.Run("LedgerIdempotent", func(t *testing.T) {
		s := newStore(t)
		rec := &store.LedgerRecord{
			ID:           "l1",
			TxHash:       "tx",
			SenderPubkey: "alice",
			FromWallet:   "1From",
			TotalAmount:  10,
			Fee:          1,
			OutputCount:  2,
			IntentCount:  3,
			Receipts: []store.IntentReceipt{
				{IntentID: "i1", OutputIndex: 0, ToWallet: "1A", Amount: 5},
				{IntentID: "i2", OutputIndex: 1, ToWallet: "1B", Amount: 3},
				{IntentID: "i3", OutputIndex: 0, ToWallet: "1A", Amount: 2},
			},
			CreatedAt: base,
		}
		ins, err := s.PutLedger(ctx, rec)
		require.NoError(t, err)
		assert.True(t, ins)

		again := *rec
		again.ID = "l2"
		ins, err = s.PutLedger(ctx, &again)
		require.NoError(t, err)
		assert.False(t, ins)

		got, err := s.GetLedger(ctx, "tx")
		require.NoError(t, err)
		assert.Equal(t, "l1", got.ID)
		rc, ok := got.Receipt("i3")
		require.True(t, ok)
		assert.Equal(t, 0, rc.OutputIndex)

		_, err = s.GetLedger(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
