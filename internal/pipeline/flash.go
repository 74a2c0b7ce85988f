package pipeline

import (
	"context"
	"time"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/models"
)

// catchUpEvery5 is the flash loop's "every 5th pass" catch-up cadence,
// shorter than the other two loops' every-10th since flash data changes
// far faster and a long gap is comparatively cheap to re-pull.
const catchUpEvery5 = 5

func (r *Runner) runFlashLoop(ctx context.Context) {
	defer func() { r.done <- struct{}{} }()

	cfg := deltaLoopConfig[models.FlashRow]{
		name:         "flash-data",
		interval:     r.intervals.Flash,
		retention:    r.retentions.Flash,
		catchUpEvery: catchUpEvery5,
		normalDelta:  2 * time.Minute,
		catchUpDelta: 10 * time.Minute,
		latest:       r.cache.LatestFlashTime,
		fetch: func(ctx context.Context, since time.Time) ([]models.FlashRow, error) {
			var rows []models.FlashRow
			err := r.withSession(ctx, func(sess *authstore.Session) error {
				var fetchErr error
				rows, fetchErr = sess.ReadFlashesSince(ctx, since)
				return fetchErr
			})
			return rows, err
		},
		fill: r.cache.FillFlash,
		clean: func(ctx context.Context, keepFrom time.Time) error {
			return r.cache.Clean(ctx, "flash_data", "stroke_time_utc", keepFrom)
		},
		publish: r.windows.Flash.Store,
	}

	runDeltaLoop(ctx, cfg, r.shutdown, r.logger)
}
