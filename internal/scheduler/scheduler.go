package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval      time.Duration
	AlignToBucket bool
	StartupDelay  time.Duration
	// Immediate runs one tick as soon as the startup delay has elapsed.
	Immediate bool
	// Location anchors bucket alignment to local wall-clock time so that an
	// hourly or daily interval starts at local midnight. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Scheduler drives aligned execution of refresh jobs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each aligned interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.Immediate {
		s.execute(ctx, tick, s.opts.Now().In(s.opts.Location))
	}

	next := s.nextTick(s.opts.Now())
	for {
		delay := next.Sub(s.opts.Now())
		if delay < 0 {
			next = s.nextTick(s.opts.Now())
			delay = next.Sub(s.opts.Now())
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.bucketStart(next))
		next = s.nextTick(next)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")
	if err := tick(ctx, bucket); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToBucket {
		return now.Add(s.opts.Interval)
	}
	bucket := s.bucketStart(now)
	for !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

// bucketStart truncates t to the interval measured from local midnight of t's day.
func (s *Scheduler) bucketStart(t time.Time) time.Time {
	local := t.In(s.opts.Location)
	if !s.opts.AlignToBucket {
		return local
	}
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.opts.Location)
	elapsed := local.Sub(midnight)
	if s.opts.Interval >= 24*time.Hour {
		return midnight
	}
	return midnight.Add(elapsed - elapsed%s.opts.Interval)
}
