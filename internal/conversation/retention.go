package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/locallm/internal/logger"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration returns the duration from now until the next fire time of
// expr. Returns 0 on parse error.
func nextCronDuration(expr string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Sweeper deletes conversations that have been idle longer than MaxAge on a
// cron schedule.
type Sweeper struct {
	store    *Store
	schedule string
	maxAge   time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// SweeperOpts holds parameters for creating a Sweeper.
type SweeperOpts struct {
	Store    *Store
	Schedule string        // 5-field cron expression
	MaxAge   time.Duration // conversations idle longer than this are removed
	Clock    func() time.Time
	Logger   *logger.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(opts SweeperOpts) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("conversation: sweeper: store is required")
	}
	if _, err := cronParser.Parse(opts.Schedule); err != nil {
		return nil, fmt.Errorf("conversation: sweeper: schedule %q: %w", opts.Schedule, err)
	}
	if opts.MaxAge <= 0 {
		return nil, fmt.Errorf("conversation: sweeper: max age must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		store:    opts.Store,
		schedule: opts.Schedule,
		maxAge:   opts.MaxAge,
		now:      opts.Clock,
		log:      log.With("service", "retention"),
	}, nil
}

// SweepOnce removes every conversation idle longer than the max age.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired conversations removed", "count", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

// Run sweeps on every schedule tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	d := nextCronDuration(s.schedule, s.now())
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	s.log.Info("retention sweeper started", "schedule", s.schedule, "max_age", s.maxAge.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("retention sweep failed", "error", err)
			}
			if d := nextCronDuration(s.schedule, s.now()); d > 0 {
				timer.Reset(d)
			}
		}
	}
}
