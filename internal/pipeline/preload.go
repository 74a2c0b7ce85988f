package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/catalog"
	"github.com/fmiobs/obsengine/internal/models"
)

// runPreloaderLoop runs one preloader pass at startup, then blocks until
// shutdown. Subsequent passes only happen via an explicit Reload call
// (spec.md §4.7(d): "one-shot, can be re-triggered via reload").
func (r *Runner) runPreloaderLoop(ctx context.Context) {
	defer func() { r.done <- struct{}{} }()

	if err := r.runPreloaderPass(ctx); err != nil {
		r.logger.Error("preloader pass failed", zap.Error(err))
	}

	select {
	case <-r.shutdown:
	case <-ctx.Done():
	}
}

// runPreloaderPass executes the four-step preload sequence: pull every
// station from the authoritative store, backfill secondary identifiers,
// classify and enrich each station, then persist and publish the new
// catalog snapshot plus the local store's stations/groups tables.
func (r *Runner) runPreloaderPass(ctx context.Context) error {
	passID := uuid.New().String()

	var stations []models.Station
	err := r.withSession(ctx, func(sess *authstore.Session) error {
		var fetchErr error
		stations, fetchErr = sess.ReadAllStations(ctx)
		if fetchErr != nil {
			return fetchErr
		}
		if backfillErr := sess.BackfillWMO(ctx, stations); backfillErr != nil {
			return backfillErr
		}
		if backfillErr := sess.BackfillLPNN(ctx, stations); backfillErr != nil {
			return backfillErr
		}
		return sess.BackfillRWSID(ctx, stations)
	})
	if err != nil {
		return err
	}

	for i := range stations {
		r.enrich(ctx, &stations[i])
	}

	snapshot := catalog.NewSnapshot(stations)
	if r.stationsFile != "" {
		if err := catalog.Persist(snapshot, r.stationsFile); err != nil {
			// Persistence is best-effort: the in-memory catalog is still
			// correct even if the on-disk snapshot could not be written,
			// so this failure is logged, not returned.
			r.logger.Warn("failed to persist station snapshot", zap.Error(err))
		}
	}
	r.catalog.Replace(snapshot)

	if err := r.cache.ReplaceStations(ctx, stations); err != nil {
		return err
	}

	r.logger.Info("preloader pass complete", zap.String("pass_id", passID), zap.Int("stations", len(stations)))
	return nil
}

// enrich resolves st's country/region/ISO2 metadata via the name
// resolver, trying each lookup in order and keeping the first hit. The
// class booleans are not touched here; the authoritative-store client
// sets them on read.
func (r *Runner) enrich(ctx context.Context, st *models.Station) {
	if r.names == nil {
		return
	}

	if country, region, iso2, ok := r.names.ByFMISID(ctx, st.FMISID); ok {
		st.Country, st.Region, st.ISO2 = country, region, iso2
		return
	}
	if country, region, iso2, ok := r.names.ByGeoID(ctx, -st.FMISID); ok {
		st.Country, st.Region, st.ISO2 = country, region, iso2
		return
	}
	if country, region, iso2, ok := r.names.ByLatLon(ctx, st.Latitude, st.Longitude, 0.05); ok {
		st.Country, st.Region, st.ISO2 = country, region, iso2
		return
	}
	if country, region, iso2, ok := r.names.ByLatLon(ctx, st.Latitude, st.Longitude, populationPlaceTolerance); ok {
		st.Country, st.Region, st.ISO2 = country, region, iso2
	}
}
