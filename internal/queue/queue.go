// Package queue keeps signed events that no relay accepted and retries
// them until they are published.
//
// Rows move pending -> published on the first relay acceptance. A failed
// attempt leaves a row pending with RetryCount incremented. MaxRetries only
// removes a row from the automatic sweep: rows are never deleted and stay
// available for manual retry, or for an operator to Resolve them as failed.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/metrics"
	"github.com/Klingon-tech/lashd/internal/relay"
	"github.com/Klingon-tech/lashd/internal/store"
	"github.com/Klingon-tech/lashd/pkg/nostr"
)

var (
	// ErrOwnerMismatch is returned when a caller acts on another owner's row.
	ErrOwnerMismatch = errors.New("event belongs to another owner")
	// ErrAlreadyPublished is returned when retrying or resolving a published row.
	ErrAlreadyPublished = errors.New("event already published")
	// ErrInvalidEvent wraps id and signature verification failures.
	ErrInvalidEvent = errors.New("invalid event")
)

// Publisher is the relay fan-out used by the queue.
type Publisher interface {
	Publish(ctx context.Context, relays []string, ev *nostr.Event, timeout time.Duration) *relay.PublishResult
}

// Options configures a Queue.
type Options struct {
	BatchSize   int
	MaxRetries  int
	Concurrency int
	// Rate limits sweep publishes per second. Zero means unlimited.
	Rate           float64
	PublishTimeout time.Duration
	// Relays returns the current relay list.
	Relays func() []string
}

// Delivery is the result of a synchronous publish.
type Delivery struct {
	EventID     string          `json:"event_id"`
	PublishedTo int             `json:"published_to"`
	Queued      bool            `json:"queued"`
	Outcomes    []relay.Outcome `json:"outcomes"`
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Attempted int `json:"attempted"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
	// Pending is the number of rows still pending after the sweep, or -1
	// if it could not be counted.
	Pending int `json:"pending"`
}

// Queue is the pending event queue.
type Queue struct {
	events  store.EventStore
	pub     Publisher
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a queue.
func New(events store.EventStore, pub Publisher, opts Options) *Queue {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = relay.DefaultTimeout
	}
	if opts.Relays == nil {
		opts.Relays = func() []string { return nil }
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Queue{
		events:  events,
		pub:     pub,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
		logger:  klog.WithComponent("queue"),
		now:     time.Now,
	}
}

// Enqueue stores ev for later delivery. Enqueuing an event id that is
// already stored is a no-op returning the existing row.
func (q *Queue) Enqueue(ctx context.Context, ev *nostr.Event, owner string) (*store.PendingEvent, error) {
	if err := ev.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	payload, err := ev.Marshal()
	if err != nil {
		return nil, err
	}
	row := &store.PendingEvent{
		ID:            uuid.NewString(),
		EventID:       ev.ID,
		OwnerKey:      owner,
		Kind:          ev.Kind,
		SignedPayload: payload,
		MaxRetries:    q.opts.MaxRetries,
		Status:        store.StatusPending,
		CreatedAt:     q.now().UTC(),
	}
	inserted, err := q.events.InsertEvent(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", ev.ID, err)
	}
	if !inserted {
		return q.events.GetEvent(ctx, ev.ID)
	}
	q.logger.Info().Str("event", ev.ID).Int("kind", ev.Kind).Str("owner", owner).Msg("Event queued")
	return row, nil
}

// PublishOrEnqueue publishes ev and queues it when no relay accepts it.
func (q *Queue) PublishOrEnqueue(ctx context.Context, ev *nostr.Event, owner string) (*Delivery, error) {
	if err := ev.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	res := q.pub.Publish(ctx, q.opts.Relays(), ev, q.opts.PublishTimeout)
	d := &Delivery{EventID: ev.ID, PublishedTo: res.PublishedTo(), Outcomes: res.Outcomes()}
	if res.Success() {
		return d, nil
	}
	if _, err := q.Enqueue(ctx, ev, owner); err != nil {
		return d, err
	}
	d.Queued = true
	return d, nil
}

// Pending returns the owner's pending rows, oldest first.
func (q *Queue) Pending(ctx context.Context, owner string) ([]*store.PendingEvent, error) {
	return q.events.ListPending(ctx, owner)
}

// Sweep attempts one bounded batch of retryable rows, oldest first.
// Rows are independent: each is published and updated on its own.
func (q *Queue) Sweep(ctx context.Context) (*SweepReport, error) {
	rows, err := q.events.ListRetryable(ctx, q.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list retryable: %w", err)
	}
	report := &SweepReport{Pending: -1}
	relays := q.opts.Relays()

	var published, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.opts.Concurrency)
	for _, row := range rows {
		if err := q.limiter.Wait(ctx); err != nil {
			break
		}
		report.Attempted++
		row := row
		g.Go(func() error {
			if q.attempt(gctx, row, relays) {
				published.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Published = int(published.Load())
	report.Failed = int(failed.Load())
	if n, err := q.events.CountPending(ctx); err == nil {
		report.Pending = n
		metrics.QueueDepth.Set(float64(n))
	}
	metrics.QueueSweeps.Inc()

	if report.Attempted > 0 {
		q.logger.Info().
			Int("attempted", report.Attempted).
			Int("published", report.Published).
			Int("failed", report.Failed).
			Int("pending", report.Pending).
			Msg("Sweep finished")
	}
	return report, nil
}

// attempt publishes one row and records the result. It reports success.
func (q *Queue) attempt(ctx context.Context, row *store.PendingEvent, relays []string) bool {
	ev, err := nostr.Parse(row.SignedPayload)
	var lastErr string
	if err == nil {
		res := q.pub.Publish(ctx, relays, ev, q.opts.PublishTimeout)
		if res.Success() {
			metrics.QueueAttempts.WithLabelValues(metrics.ResultOK).Inc()
			if err := q.events.MarkPublished(ctx, row.ID, q.now().UTC()); err != nil {
				q.logger.Error().Err(err).Str("event", row.EventID).Msg("Failed to mark event published")
			}
			return true
		}
		lastErr = failureReason(res, relays)
	} else {
		lastErr = err.Error()
	}

	metrics.QueueAttempts.WithLabelValues(metrics.ResultError).Inc()
	if err := q.events.MarkAttemptFailed(ctx, row.ID, q.now().UTC(), lastErr); err != nil {
		q.logger.Error().Err(err).Str("event", row.EventID).Msg("Failed to record attempt")
	}
	q.logger.Debug().Str("event", row.EventID).Int("retry", row.RetryCount+1).Str("error", lastErr).Msg("Retry failed")
	return false
}

// Retry replaces the stored event oldEventID with a re-signed version and
// publishes it. The replacement is kept whatever the publish outcome, so
// later sweeps use the newest signature.
func (q *Queue) Retry(ctx context.Context, oldEventID string, ev *nostr.Event, owner string) (*Delivery, error) {
	if err := ev.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	row, err := q.events.GetEvent(ctx, oldEventID)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", oldEventID, err)
	}
	if row.OwnerKey != owner {
		return nil, ErrOwnerMismatch
	}
	if row.Status == store.StatusPublished {
		return nil, ErrAlreadyPublished
	}

	payload, err := ev.Marshal()
	if err != nil {
		return nil, err
	}
	if err := q.events.ReplaceEvent(ctx, row.ID, ev.ID, ev.Kind, payload); err != nil {
		return nil, fmt.Errorf("replace %s: %w", oldEventID, err)
	}

	res := q.pub.Publish(ctx, q.opts.Relays(), ev, q.opts.PublishTimeout)
	d := &Delivery{EventID: ev.ID, PublishedTo: res.PublishedTo(), Outcomes: res.Outcomes(), Queued: true}
	if res.Success() {
		d.Queued = false
		if err := q.events.MarkPublished(ctx, row.ID, q.now().UTC()); err != nil {
			return d, fmt.Errorf("mark published: %w", err)
		}
	}
	q.logger.Info().Str("old", oldEventID).Str("new", ev.ID).Int("published_to", d.PublishedTo).Msg("Manual retry")
	return d, nil
}

// Resolve marks a row failed, taking it out of the sweep for good.
func (q *Queue) Resolve(ctx context.Context, eventID, reason string) error {
	row, err := q.events.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("event %s: %w", eventID, err)
	}
	if row.Status == store.StatusPublished {
		return ErrAlreadyPublished
	}
	if err := q.events.MarkFailed(ctx, row.ID, reason); err != nil {
		return err
	}
	q.logger.Info().Str("event", eventID).Str("reason", reason).Msg("Event resolved as failed")
	return nil
}

func failureReason(res *relay.PublishResult, relays []string) string {
	if len(relays) == 0 {
		return "no relays configured"
	}
	if err := res.FirstError(); err != nil {
		return err.Error()
	}
	return "no relay accepted the event in time"
}
