// Package lru implements the in-memory LRU constellation (C8): a small
// set of process-lifetime caches protecting the pure id-translation and
// spatial lookups the authoritative store client exposes, plus an
// optional short-TTL observation result cache.
package lru

import (
	"fmt"
	"time"

	golru "github.com/hashicorp/golang-lru/v2"
)

// Sizes configures the capacity of each named cache. Zero disables a
// cache (Get always misses, Add is a no-op).
type Sizes struct {
	StationByID      int
	StationsInBBox   int
	StationsNearLatLon int
	WMOToLPNN        int
	IDTranslation    int
	LPNNToFMISID     int
	RWSIDToFMISID    int
	WMOToFMISID      int
	FMISIDToLatLon   int
}

// DefaultSizes returns the recommended capacities from spec.md §4.8
// (10k-100k range), scaled to a mid-sized deployment.
func DefaultSizes() Sizes {
	return Sizes{
		StationByID:        50_000,
		StationsInBBox:     10_000,
		StationsNearLatLon: 10_000,
		WMOToLPNN:          20_000,
		IDTranslation:      20_000,
		LPNNToFMISID:       20_000,
		RWSIDToFMISID:      20_000,
		WMOToFMISID:        20_000,
		FMISIDToLatLon:     50_000,
	}
}

// cache[K,V] wraps the hashicorp LRU so a zero-size configuration
// degrades to an always-miss cache rather than panicking (the
// underlying library rejects size <= 0).
type cache[K comparable, V any] struct {
	inner *golru.Cache[K, V]
}

func newCache[K comparable, V any](size int) (*cache[K, V], error) {
	if size <= 0 {
		return &cache[K, V]{}, nil
	}
	inner, err := golru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("lru: construct cache of size %d: %w", size, err)
	}
	return &cache[K, V]{inner: inner}, nil
}

func (c *cache[K, V]) Get(key K) (V, bool) {
	if c.inner == nil {
		var zero V
		return zero, false
	}
	return c.inner.Get(key)
}

func (c *cache[K, V]) Add(key K, value V) {
	if c.inner == nil {
		return
	}
	c.inner.Add(key, value)
}

// LatLon is an immutable (lat,lon) pair, the value type of FMISIDToLatLon.
type LatLon struct {
	Lat, Lon float64
}

// Caches bundles the nine pure-lookup caches C8 names, each keyed by a
// canonical string or int and holding an immutable value.
type Caches struct {
	stationByID        *cache[int, any]
	stationsInBBox     *cache[string, any]
	stationsNearLatLon *cache[string, any]
	wmoToLPNN          *cache[int, int]
	idTranslation      *cache[string, any]
	lpnnToFMISID       *cache[int, int]
	rwsidToFMISID      *cache[int, int]
	wmoToFMISID        *cache[int, int]
	fmisidToLatLon     *cache[int, LatLon]
}

// New builds the cache constellation with the given capacities.
func New(sizes Sizes) (*Caches, error) {
	c := &Caches{}
	var err error
	if c.stationByID, err = newCache[int, any](sizes.StationByID); err != nil {
		return nil, err
	}
	if c.stationsInBBox, err = newCache[string, any](sizes.StationsInBBox); err != nil {
		return nil, err
	}
	if c.stationsNearLatLon, err = newCache[string, any](sizes.StationsNearLatLon); err != nil {
		return nil, err
	}
	if c.wmoToLPNN, err = newCache[int, int](sizes.WMOToLPNN); err != nil {
		return nil, err
	}
	if c.idTranslation, err = newCache[string, any](sizes.IDTranslation); err != nil {
		return nil, err
	}
	if c.lpnnToFMISID, err = newCache[int, int](sizes.LPNNToFMISID); err != nil {
		return nil, err
	}
	if c.rwsidToFMISID, err = newCache[int, int](sizes.RWSIDToFMISID); err != nil {
		return nil, err
	}
	if c.wmoToFMISID, err = newCache[int, int](sizes.WMOToFMISID); err != nil {
		return nil, err
	}
	if c.fmisidToLatLon, err = newCache[int, LatLon](sizes.FMISIDToLatLon); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Caches) StationByID() *cache[int, any]          { return c.stationByID }
func (c *Caches) StationsInBBox() *cache[string, any]     { return c.stationsInBBox }
func (c *Caches) StationsNearLatLon() *cache[string, any] { return c.stationsNearLatLon }
func (c *Caches) WMOToLPNN() *cache[int, int]             { return c.wmoToLPNN }
func (c *Caches) IDTranslation() *cache[string, any]      { return c.idTranslation }
func (c *Caches) LPNNToFMISID() *cache[int, int]          { return c.lpnnToFMISID }
func (c *Caches) RWSIDToFMISID() *cache[int, int]         { return c.rwsidToFMISID }
func (c *Caches) WMOToFMISID() *cache[int, int]           { return c.wmoToFMISID }
func (c *Caches) FMISIDToLatLon() *cache[int, LatLon]     { return c.fmisidToLatLon }

// ResultCache is the optional short-TTL observation-table result cache.
// Entries are treated as stale after ttl and behave as a miss; a
// disabled cache (ttl <= 0) always misses.
type ResultCache struct {
	ttl   time.Duration
	inner *golru.Cache[string, resultEntry]
}

type resultEntry struct {
	value    any
	storedAt time.Time
}

// NewResultCache builds a result cache of the given capacity and TTL.
// A non-positive ttl disables the cache entirely.
func NewResultCache(capacity int, ttl time.Duration) (*ResultCache, error) {
	if ttl <= 0 || capacity <= 0 {
		return &ResultCache{}, nil
	}
	inner, err := golru.New[string, resultEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("lru: construct result cache of size %d: %w", capacity, err)
	}
	return &ResultCache{ttl: ttl, inner: inner}, nil
}

// Get returns the cached value for key if present and not yet expired.
func (r *ResultCache) Get(key string) (any, bool) {
	if r.inner == nil {
		return nil, false
	}
	entry, ok := r.inner.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > r.ttl {
		r.inner.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Add stores value under key with the current time as its freshness mark.
func (r *ResultCache) Add(key string, value any) {
	if r.inner == nil {
		return
	}
	r.inner.Add(key, resultEntry{value: value, storedAt: time.Now()})
}
