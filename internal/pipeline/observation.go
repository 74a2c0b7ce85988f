package pipeline

import (
	"context"
	"time"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

// catchUpEvery10 is the "every 10th pass" cadence spec.md §4.7(a)/(b)
// use for the long catch-up refresh.
const catchUpEvery10 = 10

func (r *Runner) runObservationLoop(ctx context.Context) {
	defer func() { r.done <- struct{}{} }()

	cfg := deltaLoopConfig[models.ObservationRow]{
		name:         "observation-data",
		interval:     r.intervals.Observation,
		retention:    r.retentions.Observation,
		catchUpEvery: catchUpEvery10,
		normalDelta:  3 * time.Minute,
		catchUpDelta: 3 * time.Hour,
		latest:       r.cache.LatestObservationTime,
		fetch: func(ctx context.Context, since time.Time) ([]models.ObservationRow, error) {
			var rows []models.ObservationRow
			err := r.withSession(ctx, func(sess *authstore.Session) error {
				var fetchErr error
				rows, fetchErr = sess.ReadObservationsSince(ctx, since)
				return fetchErr
			})
			return rows, err
		},
		fill: r.cache.FillData,
		clean: func(ctx context.Context, keepFrom time.Time) error {
			return r.cache.Clean(ctx, "observation_data", "data_time_utc", keepFrom)
		},
		publish: r.windows.Observation.Store,
	}

	runDeltaLoop(ctx, cfg, r.shutdown, r.logger)
}
