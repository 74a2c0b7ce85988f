package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/window"
)

// deltaLoopConfig generalizes the observation/QC/flash loop shape
// described in spec.md §4.7(a)-(c): they differ only in table name,
// period, retention, catch-up cadence, and catch-up delta size.
type deltaLoopConfig[T any] struct {
	name string

	interval  time.Duration
	retention time.Duration

	// catchUpEvery is the pass-count divisor ("every Nth pass") that
	// triggers the longer catch-up delta instead of the normal one.
	catchUpEvery int
	normalDelta  time.Duration
	catchUpDelta time.Duration

	latest  func(ctx context.Context) (time.Time, bool, error)
	fetch   func(ctx context.Context, since time.Time) ([]T, error)
	fill    func(ctx context.Context, items []T) error
	clean   func(ctx context.Context, keepFrom time.Time) error
	publish func(interval window.Interval)
}

// runDeltaLoop drives cfg to completion passes until shutdown fires,
// sleeping cfg.interval (in interruptible steps) between passes.
func runDeltaLoop[T any](ctx context.Context, cfg deltaLoopConfig[T], shutdown <-chan struct{}, logger *zap.Logger) {
	pass := 0
	for {
		select {
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		pass++
		if err := runDeltaPass(ctx, cfg, pass, logger); err != nil {
			// Failure policy (spec.md §4.7): log with the method name and
			// swallow; the loop continues on its normal schedule.
			logger.Error("reconciliation pass failed",
				zap.String("loop", cfg.name), zap.Int("pass", pass), zap.Error(err))
		}

		if !sleepInterruptible(ctx, cfg.interval, shutdown) {
			return
		}
	}
}

func runDeltaPass[T any](ctx context.Context, cfg deltaLoopConfig[T], pass int, logger *zap.Logger) error {
	now := time.Now().UTC()

	last, ok, err := cfg.latest(ctx)
	if err != nil {
		return err
	}

	if !ok {
		last = now.Add(-24 * time.Hour)
	} else {
		floor := now.Add(-cfg.retention)
		if last.Before(floor) {
			last = floor
		}
		if pass%cfg.catchUpEvery == 0 {
			last = last.Add(-cfg.catchUpDelta)
		} else {
			last = last.Add(-cfg.normalDelta)
		}
	}

	rows, err := cfg.fetch(ctx, last)
	if err != nil {
		return err
	}
	if err := cfg.fill(ctx, rows); err != nil {
		return err
	}

	keepFrom := last.Add(-cfg.retention)
	if err := cfg.clean(ctx, keepFrom); err != nil {
		return err
	}

	cfg.publish(window.Interval{Begin: keepFrom, End: last})

	logger.Info("reconciliation pass complete",
		zap.String("loop", cfg.name),
		zap.Int("pass", pass),
		zap.Int("rows", len(rows)),
		zap.Time("window_begin", keepFrom),
		zap.Time("window_end", last))
	return nil
}
