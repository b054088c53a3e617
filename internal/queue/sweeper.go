package queue

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/lashd/internal/log"
)

// DefaultSchedule runs the sweep every 30 seconds.
const DefaultSchedule = "@every 30s"

// Sweeper runs Queue.Sweep on a cron schedule. A run that is still going
// when the next one is due causes that run to be skipped.
type Sweeper struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper schedules q's sweep.
func NewSweeper(q *Queue, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	logger := cronLogger{l: klog.WithComponent("queue")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{cron: c, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(schedule, func() {
		if _, err := q.Sweep(s.ctx); err != nil {
			logger.l.Error().Err(err).Msg("Sweep failed")
		}
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("queue schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop cancels a running sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Trace().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
