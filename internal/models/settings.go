package models

import "time"

// BoundingBox is a plain lat/lon rectangle used by the bounding-box
// station resolution path.
type BoundingBox struct {
	MinX, MaxX, MinY, MaxY float64
}

// Coordinate is a bare (lat,lon) pair, used by the "coordinates"
// resolution path.
type Coordinate struct {
	Lat, Lon float64
}

// Settings is the per-request parameter bag every public engine
// operation takes. It is built and validated by the caller; the engine
// never parses a raw request document itself.
type Settings struct {
	StationType string
	StartTime   time.Time
	EndTime     time.Time
	Timestep    int // minutes; 0 means "every observation", as-is
	TimeFormat  string
	Timezone    string // "localtime" selects each station's own zone
	TimeString  string
	Language    string
	LocaleName  string
	MissingText string

	Latest      bool
	AllPlaces   bool
	UseDataCache bool

	Parameters []string

	TaggedLocations []string
	Locations       []string
	Coordinates     []Coordinate
	FMISIDs         []int
	WMOs            []int
	LPNNs           []int
	GeoIDs          []int
	Hours           []int
	Weekdays        []int

	BoundingBox      BoundingBox
	BoundingBoxIsGiven bool

	NumberOfStations int
	MaxDistance      float64

	ProducerIDs        []int
	StationGroupCodes  []string
}

// TimeseriesOptions configures the `values(settings, timeseries_options)`
// overload: how many timesteps to produce and whether to fill gaps with
// the missing marker rather than omitting them.
type TimeseriesOptions struct {
	StartTimeIsNow bool
	MaxAgeMinutes  int
	FillGaps       bool
}
