// Package relay delivers signed events to Nostr relays.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/metrics"
	"github.com/Klingon-tech/lashd/pkg/nostr"
)

// DefaultTimeout bounds a publish when the caller passes zero.
const DefaultTimeout = 5 * time.Second

// Transport delivers one event to one relay and waits for its verdict.
type Transport interface {
	Publish(ctx context.Context, relay string, ev *nostr.Event) error
}

// Outcome is the answer of one relay.
type Outcome struct {
	Relay   string
	Success bool
	Err     error
	Latency time.Duration
}

// MarshalJSON renders Err as a string.
func (o Outcome) MarshalJSON() ([]byte, error) {
	v := struct {
		Relay     string `json:"relay"`
		Success   bool   `json:"success"`
		Error     string `json:"error,omitempty"`
		LatencyMS int64  `json:"latency_ms"`
	}{Relay: o.Relay, Success: o.Success, LatencyMS: o.Latency.Milliseconds()}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var v struct {
		Relay     string `json:"relay"`
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		LatencyMS int64  `json:"latency_ms"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Outcome{Relay: v.Relay, Success: v.Success, Latency: time.Duration(v.LatencyMS) * time.Millisecond}
	if v.Error != "" {
		o.Err = errors.New(v.Error)
	}
	return nil
}

// PublishResult is returned as soon as one relay accepted the event or
// the publish gave up. Relays still in flight keep running and their late
// answers are reflected by PublishedTo and Outcomes.
type PublishResult struct {
	EventID string

	published atomic.Int32
	done      chan struct{}

	mu       sync.Mutex
	outcomes []Outcome
}

// PublishedTo returns the number of relays that accepted the event so far.
func (r *PublishResult) PublishedTo() int { return int(r.published.Load()) }

// Success reports whether at least one relay accepted the event.
func (r *PublishResult) Success() bool { return r.PublishedTo() > 0 }

// Outcomes returns the answers received so far.
func (r *PublishResult) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

// FirstError returns the first failure received, if any.
func (r *PublishResult) FirstError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

// Wait blocks until every relay has answered or ctx ends.
func (r *PublishResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *PublishResult) record(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	if o.Success {
		r.published.Add(1)
	}
}

// Publisher fans events out to relays.
type Publisher struct {
	transport Transport
	logger    zerolog.Logger
}

// NewPublisher creates a publisher. A nil transport uses WSTransport.
func NewPublisher(t Transport) *Publisher {
	if t == nil {
		t = NewWSTransport()
	}
	return &Publisher{transport: t, logger: klog.WithComponent("relay")}
}

// Publish sends ev to every relay concurrently. It returns at the first
// acceptance, when all relays have answered, or when timeout elapses,
// whichever comes first. Each relay attempt is bounded by timeout and
// is not cancelled by the caller's context.
func (p *Publisher) Publish(ctx context.Context, relays []string, ev *nostr.Event, timeout time.Duration) *PublishResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	res := &PublishResult{EventID: ev.ID, done: make(chan struct{})}
	if len(relays) == 0 {
		close(res.done)
		metrics.RelayPublishes.WithLabelValues("unpublished").Inc()
		return res
	}

	first := make(chan struct{}, 1)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	var wg sync.WaitGroup
	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			start := time.Now()
			err := p.transport.Publish(rctx, url, ev)
			o := Outcome{Relay: url, Success: err == nil, Err: err, Latency: time.Since(start)}
			res.record(o)
			if err != nil {
				p.logger.Debug().Err(err).Str("relay", url).Str("event", ev.ID).Msg("Relay did not accept event")
				return
			}
			metrics.RelayLatency.Observe(o.Latency.Seconds())
			select {
			case first <- struct{}{}:
			default:
			}
		}(url)
	}
	go func() {
		wg.Wait()
		cancel()
		close(res.done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-first:
	case <-res.done:
	case <-timer.C:
	case <-ctx.Done():
	}

	result := "published"
	if !res.Success() {
		result = "unpublished"
	}
	metrics.RelayPublishes.WithLabelValues(result).Inc()
	p.logger.Debug().Str("event", ev.ID).Int("relays", len(relays)).
		Int("published_to", res.PublishedTo()).Msg("Publish resolved")
	return res
}
