package pipeline

import (
	"context"
	"time"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

func (r *Runner) runQCLoop(ctx context.Context) {
	defer func() { r.done <- struct{}{} }()

	cfg := deltaLoopConfig[models.QCRow]{
		name:         "weather-data-qc",
		interval:     r.intervals.QC,
		retention:    r.retentions.QC,
		catchUpEvery: catchUpEvery10,
		normalDelta:  10 * time.Minute,
		catchUpDelta: 3 * time.Hour,
		latest:       r.cache.LatestQCTime,
		fetch: func(ctx context.Context, since time.Time) ([]models.QCRow, error) {
			var rows []models.QCRow
			err := r.withSession(ctx, func(sess *authstore.Session) error {
				var fetchErr error
				rows, fetchErr = sess.ReadQCSince(ctx, since)
				return fetchErr
			})
			return rows, err
		},
		fill: r.cache.FillQC,
		clean: func(ctx context.Context, keepFrom time.Time) error {
			return r.cache.Clean(ctx, "weather_data_qc", "obstime_utc", keepFrom)
		},
		publish: r.windows.WeatherQC.Store,
	}

	runDeltaLoop(ctx, cfg, r.shutdown, r.logger)
}
