package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fmiobs/obsengine/internal/authstore"
	"github.com/fmiobs/obsengine/internal/config"
	"github.com/fmiobs/obsengine/internal/dispatcher"
	"github.com/fmiobs/obsengine/internal/lru"
	"github.com/fmiobs/obsengine/internal/pool"
	"github.com/fmiobs/obsengine/internal/registry"
)

// registryFromConfig builds the immutable parameter registry from the
// configuration document's stationtypes/parameters declarations.
func registryFromConfig(cfg *config.Config) (*registry.Registry, error) {
	classes := make([]registry.ClassDecl, 0, len(cfg.StationTypes))
	for _, st := range cfg.StationTypes {
		groupCodes := make(map[string]struct{}, len(st.StationGroups))
		for _, g := range st.StationGroups {
			groupCodes[g] = struct{}{}
		}
		producerIDs := make(map[int]struct{}, len(st.ProducerIDs))
		for _, id := range st.ProducerIDs {
			producerIDs[id] = struct{}{}
		}
		classes = append(classes, registry.ClassDecl{
			Name: st.Name,
			Attrs: registry.ClassAttributes{
				UsesCommonQueryMethod: st.UseCommonQueryMethod,
				Cached:                st.Cached,
				GroupCodes:            groupCodes,
				ProducerIDs:           producerIDs,
				DatabaseTableName:     st.DatabaseTableName,
			},
		})
	}

	aliases := make([]registry.AliasDecl, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		aliases = append(aliases, registry.AliasDecl{
			Alias:    p.Alias,
			Classify: registry.Data,
			PerClass: p.PerClass,
		})
	}

	return registry.Load(aliases, classes)
}

// sizesFromConfig maps the configuration document's cache-capacity knobs
// onto the LRU constellation's Sizes. Configuration carries one combined
// bounding-box/station/location size group rather than nine distinct
// knobs, so the station and numeric id-translation caches share
// stationCacheSize, the two spatial station searches share
// boundingBoxCacheSize, and the generic IDTranslation and FMISIDToLatLon
// caches share locationCacheSize.
func sizesFromConfig(cfg *config.Config) lru.Sizes {
	return lru.Sizes{
		StationByID:        cfg.Cache.StationCacheSize,
		StationsInBBox:     cfg.Cache.BoundingBoxCacheSize,
		StationsNearLatLon: cfg.Cache.BoundingBoxCacheSize,
		WMOToLPNN:          cfg.Cache.StationCacheSize,
		IDTranslation:      cfg.Cache.LocationCacheSize,
		LPNNToFMISID:       cfg.Cache.StationCacheSize,
		RWSIDToFMISID:      cfg.Cache.StationCacheSize,
		WMOToFMISID:        cfg.Cache.StationCacheSize,
		FMISIDToLatLon:     cfg.Cache.LocationCacheSize,
	}
}

// resultCacheTTL derives the result cache's freshness window from the
// shorter of the two spatialite cache durations, since a cached result
// table is only as fresh as the rows it was assembled from.
func resultCacheTTL(cfg *config.Config) time.Duration {
	d := cfg.Cache.SpatialiteCacheDuration
	if cfg.Cache.SpatialiteFlashCacheDuration > 0 && cfg.Cache.SpatialiteFlashCacheDuration < d {
		d = cfg.Cache.SpatialiteFlashCacheDuration
	}
	return time.Duration(d) * time.Second
}

// cachedClassesFromConfig derives the per-operation cache-eligible class
// sets from the registry's own cached/table declarations: a class
// pointed at weather_data_qc is a QC class, a class named "flash" is the
// flash class, anything else cached is an observation class. Classes not
// marked cached in configuration are absent from all three sets, which
// is harmless since dispatcher.classEligibleForCache re-checks the
// registry directly.
func cachedClassesFromConfig(cfg *config.Config) dispatcher.CachedClasses {
	classes := dispatcher.CachedClasses{
		Observation: map[string]struct{}{},
		QC:          map[string]struct{}{},
		Flash:       map[string]struct{}{},
	}
	for _, st := range cfg.StationTypes {
		if !st.Cached {
			continue
		}
		switch {
		case st.DatabaseTableName == "weather_data_qc":
			classes.QC[st.Name] = struct{}{}
		case st.Name == "flash":
			classes.Flash[st.Name] = struct{}{}
		default:
			classes.Observation[st.Name] = struct{}{}
		}
	}
	return classes
}

// dialFactory builds the pool.Factory that opens one authoritative-store
// session per slot. Every slot dials the same service; idx selects
// nothing but is threaded through so a future per-slot routing policy
// (read replicas, sharding) has a seam to use.
func dialFactory(cfg *config.Config) pool.Factory {
	connString := connStringFor(cfg)
	dial := func(ctx context.Context, cs string) (authstore.Conn, error) {
		return pgx.Connect(ctx, cs)
	}
	return func(ctx context.Context, idx int) (pool.Session, error) {
		return authstore.NewSession(ctx, connString, dial)
	}
}

// connStringFor renders the authoritative-store credentials as a libpq
// keyword/value connection string; nls_lang maps onto the client_encoding
// parameter, the closest Postgres equivalent to Oracle's locale setting.
func connStringFor(cfg *config.Config) string {
	db := cfg.Database
	cs := fmt.Sprintf("dbname=%s user=%s password=%s", db.Service, db.Username, db.Password)
	if db.NLSLang != "" {
		cs += fmt.Sprintf(" client_encoding=%s", db.NLSLang)
	}
	return cs
}
