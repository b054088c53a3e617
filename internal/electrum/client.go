package electrum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/metrics"
)

// DefaultCallTimeout bounds a logical call when Options.CallTimeout is unset.
const DefaultCallTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	// CallTimeout bounds each logical call, dial included. A shorter
	// deadline on the caller's context wins.
	CallTimeout time.Duration
	// Servers supplies the ranked endpoint list used when a call passes none.
	Servers func() []Endpoint
}

// Client issues Electrum calls. Each logical call dials the supplied
// endpoints in order until one connects, runs on that connection only, and
// closes it.
type Client struct {
	dialer Dialer
	opts   Options
	logger zerolog.Logger
}

// New creates a client. A nil dialer uses NetDialer.
func New(dialer Dialer, opts Options) *Client {
	if dialer == nil {
		dialer = &NetDialer{Timeout: 5 * time.Second}
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Client{
		dialer: dialer,
		opts:   opts,
		logger: klog.WithComponent("electrum"),
	}
}

// CallTimeout returns the configured per-call timeout.
func (c *Client) CallTimeout() time.Duration { return c.opts.CallTimeout }

// Open connects to the first reachable endpoint. When eps is empty the
// configured server list is used.
func (c *Client) Open(ctx context.Context, eps []Endpoint) (*Session, error) {
	if len(eps) == 0 && c.opts.Servers != nil {
		eps = c.opts.Servers()
	}
	if len(eps) == 0 {
		return nil, &ConnectionError{Err: errors.New("no endpoints configured")}
	}

	var errs []error
	for _, ep := range eps {
		conn, err := c.dialer.Dial(ctx, ep)
		if err == nil {
			return newSession(ep, conn), nil
		}
		c.logger.Debug().Err(err).Str("endpoint", ep.String()).Msg("Dial failed")
		errs = append(errs, fmt.Errorf("%s: %w", ep, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ConnectionError{Err: errors.Join(errs...)}
}

// Call performs one logical call and decodes the result into result.
func (c *Client) Call(ctx context.Context, eps []Endpoint, method string, params []any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	s, err := c.Open(ctx, eps)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	err = s.Call(ctx, method, params, result)
	metrics.ElectrumCalls.WithLabelValues(method, metrics.Result(err)).Inc()
	metrics.ElectrumDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	c.logger.Trace().
		Str("endpoint", s.ep.String()).
		Str("method", method).
		Dur("took", time.Since(start)).
		Err(err).
		Msg("Call")
	return err
}
