// Package gate limits each sender to one accepted transaction per block
// height.
//
// A sender is eligible when it has no record or the chain tip is above the
// height of its last broadcast. If the tip cannot be fetched the gate fails
// open: the sender is treated as eligible and the decision is marked
// Degraded.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/lashd/internal/electrum"
	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/metrics"
	"github.com/Klingon-tech/lashd/internal/store"
)

// DefaultHeightTimeout bounds the tip lookup.
const DefaultHeightTimeout = 5 * time.Second

// HeightSource reports the chain tip.
type HeightSource interface {
	Tip(ctx context.Context, eps []electrum.Endpoint) (*electrum.Header, error)
}

// Eligibility is the result of a gate check.
type Eligibility struct {
	Eligible       bool      `json:"eligible"`
	CurrentHeight  int64     `json:"current_height"`
	LastUsedHeight int64     `json:"last_used_height"`
	HasRecord      bool      `json:"has_record"`
	Degraded       bool      `json:"degraded"`
	BlockTime      time.Time `json:"block_time,omitempty"`
}

// RateLimitedError is returned by Run when the sender already broadcast at
// the current height.
type RateLimitedError struct {
	Sender         string
	CurrentHeight  int64
	LastUsedHeight int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("sender already sent a transaction at block %d (current block %d): try again next block",
		e.LastUsedHeight, e.CurrentHeight)
}

// Outcome is what the guarded function reports back to Run.
type Outcome struct {
	// Broadcast is true when the transaction was accepted by the node or
	// may have been (the broadcast timed out).
	Broadcast  bool
	TxHash     string
	UsedInputs []string
}

// Options configures a Gate.
type Options struct {
	HeightTimeout time.Duration
	// Disabled makes every check eligible. Records are still written.
	Disabled bool
}

// Gate is the block-height rate gate.
type Gate struct {
	heights HeightSource
	records store.EligibilityStore
	locks   *keyedMutex
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a gate.
func New(heights HeightSource, records store.EligibilityStore, opts Options) *Gate {
	if opts.HeightTimeout <= 0 {
		opts.HeightTimeout = DefaultHeightTimeout
	}
	return &Gate{
		heights: heights,
		records: records,
		locks:   newKeyedMutex(),
		opts:    opts,
		logger:  klog.WithComponent("gate"),
		now:     time.Now,
	}
}

// Check reports whether sender may broadcast at the current height. Only a
// store failure is returned as an error.
func (g *Gate) Check(ctx context.Context, sender string) (*Eligibility, error) {
	e := &Eligibility{}

	hctx, cancel := context.WithTimeout(ctx, g.opts.HeightTimeout)
	tip, herr := g.heights.Tip(hctx, nil)
	cancel()
	if herr != nil {
		e.Degraded = true
		g.logger.Warn().Err(herr).Str("sender", sender).
			Msg("Height lookup failed, gate in degraded mode (fail open)")
	} else {
		e.CurrentHeight = tip.Height
		e.BlockTime = tip.Time
	}

	rec, err := g.records.GetEligibility(ctx, sender)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load eligibility: %w", err)
	default:
		e.HasRecord = true
		e.LastUsedHeight = rec.LastUsedBlockHeight
	}

	e.Eligible = g.opts.Disabled || e.Degraded || !e.HasRecord || e.CurrentHeight > e.LastUsedHeight

	decision := "eligible"
	switch {
	case e.Degraded:
		decision = "degraded"
	case !e.Eligible:
		decision = "limited"
	}
	metrics.GateDecisions.WithLabelValues(decision).Inc()
	return e, nil
}

// Run serializes work per sender: it checks eligibility, calls fn with the
// decision, and records fn's broadcast at the checked height. Concurrent
// calls for the same sender never both pass the check for one height.
//
// The record is skipped in degraded mode, where the height is unknown.
func (g *Gate) Run(ctx context.Context, sender string, fn func(context.Context, *Eligibility) (*Outcome, error)) error {
	unlock, err := g.locks.Lock(ctx, sender)
	if err != nil {
		return err
	}
	defer unlock()

	e, err := g.Check(ctx, sender)
	if err != nil {
		return err
	}
	if !e.Eligible {
		return &RateLimitedError{
			Sender:         sender,
			CurrentHeight:  e.CurrentHeight,
			LastUsedHeight: e.LastUsedHeight,
		}
	}

	out, fnErr := fn(ctx, e)
	if out == nil || !out.Broadcast {
		return fnErr
	}
	if e.Degraded {
		g.logger.Warn().Str("sender", sender).Str("tx", out.TxHash).
			Msg("Broadcast in degraded mode, eligibility not recorded")
		return fnErr
	}

	now := g.now()
	rec := &store.EligibilityRecord{
		SenderPubkey:        sender,
		LastUsedBlockHeight: e.CurrentHeight,
		BlockTime:           e.BlockTime,
		UsedInputs:          out.UsedInputs,
		TxHash:              out.TxHash,
		UpdatedAt:           now,
	}
	// Use a context that survives caller cancellation: the transaction is
	// already on the network.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.records.PutEligibility(wctx, rec); err != nil {
		g.logger.Error().Err(err).Str("sender", sender).Str("tx", out.TxHash).
			Msg("Failed to record eligibility after broadcast")
	}
	return fnErr
}
