// Package scheduler runs the daily purchase-counter reset.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Resetter zeroes the per-user daily purchase counters.
type Resetter interface {
	ResetDailyPurchases(ctx context.Context) (int64, error)
}

// DailyReset calls Resetter once a day at Hour:00 in Location.
type DailyReset struct {
	resetter Resetter
	hour     int
	location *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDailyReset(resetter Resetter, hour int, location *time.Location, logger zerolog.Logger) *DailyReset {
	if hour < 0 || hour > 23 {
		logger.Warn().Int("hour", hour).Msg("Invalid reset hour, using midnight")
		hour = 0
	}
	if location == nil {
		location = time.UTC
	}
	return &DailyReset{
		resetter: resetter,
		hour:     hour,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// NextReset returns the first reset boundary strictly after t.
func (d *DailyReset) NextReset(t time.Time) time.Time {
	local := t.In(d.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, 0, 0, 0, d.location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.hour, 0, 0, 0, d.location)
	}
	return next
}

// RunOnce performs a single reset.
func (d *DailyReset) RunOnce(ctx context.Context) error {
	start := d.now()
	n, err := d.resetter.ResetDailyPurchases(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("Daily reset failed")
		return err
	}
	d.logger.Info().Int64("users_reset", n).Dur("duration", d.now().Sub(start)).Msg("Daily reset completed")
	return nil
}

// Run blocks until ctx is cancelled, resetting at each boundary. A failed
// reset is logged and retried at the next boundary.
func (d *DailyReset) Run(ctx context.Context) error {
	for {
		next := d.NextReset(d.now())
		d.logger.Info().Time("next_reset", next).Msg("Daily reset scheduled")

		timer := time.NewTimer(next.Sub(d.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info().Msg("Daily reset scheduler stopped")
			return nil
		case <-timer.C:
			_ = d.RunOnce(ctx)
		}
	}
}
