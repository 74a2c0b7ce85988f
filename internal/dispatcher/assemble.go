package dispatcher

import (
	"sort"
	"time"

	"github.com/fmiobs/obsengine/internal/geo"
	"github.com/fmiobs/obsengine/internal/models"
	"github.com/fmiobs/obsengine/internal/valuetype"
)

// Derived-parameter names recognized by isDerivedParameter, and the
// underlying data aliases they read from the already-fetched cell set.
// These names mirror the FMI open-data parameter vocabulary the
// registry itself is configured with.
const (
	aliasTemperature   = "t2m"
	aliasWindSpeed     = "ws_10min"
	aliasWindDirection = "wd_10min"
	aliasHumidity      = "rh"
)

// stationFrame is one station's fully-keyed cell lookup plus its sorted
// time axis, the intermediate shape both Table and TimeSeriesVector
// assembly build from.
type stationFrame struct {
	station models.Station
	times   []time.Time
	byTime  map[int64]map[string]rawCell
}

func buildFrames(stations []models.Station, cells []rawCell) []*stationFrame {
	byFMISID := make(map[int]*stationFrame, len(stations))
	order := make([]*stationFrame, 0, len(stations))
	for i := range stations {
		f := &stationFrame{station: stations[i], byTime: make(map[int64]map[string]rawCell)}
		byFMISID[stations[i].FMISID] = f
		order = append(order, f)
	}

	for _, c := range cells {
		f, ok := byFMISID[c.fmisid]
		if !ok {
			continue
		}
		key := c.obstime.Unix()
		m, ok := f.byTime[key]
		if !ok {
			m = make(map[string]rawCell)
			f.byTime[key] = m
		}
		m[c.alias] = c
	}

	for _, f := range order {
		for k := range f.byTime {
			f.times = append(f.times, time.Unix(k, 0).UTC())
		}
		sort.Slice(f.times, func(i, j int) bool { return f.times[i].Before(f.times[j]) })
	}
	return order
}

// filterTimes applies settings.Hours/Weekdays (if set) to a frame's time
// axis, per spec.md §4.9's row-level hour/weekday filter.
func filterTimes(times []time.Time, hours, weekdays []int) []time.Time {
	if len(hours) == 0 && len(weekdays) == 0 {
		return times
	}
	hourSet := toIntSet(hours)
	daySet := toIntSet(weekdays)
	var out []time.Time
	for _, t := range times {
		if len(hours) > 0 {
			if _, ok := hourSet[t.Hour()]; !ok {
				continue
			}
		}
		if len(weekdays) > 0 {
			if _, ok := daySet[int(t.Weekday())]; !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func toIntSet(vals []int) map[int]struct{} {
	m := make(map[int]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// localTimeFor resolves the render-time zone for a row: settings.Timezone
// == "localtime" selects the station's own zone, a named zone is loaded
// directly, and an unset/unrecognized zone falls back to UTC.
func localTimeFor(t time.Time, settings models.Settings, station models.Station) time.Time {
	zoneName := settings.Timezone
	if zoneName == "localtime" {
		zoneName = station.TimezoneName
	}
	if zoneName == "" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// valueFor resolves one requested column (special, derived, or plain
// data parameter) for one (station, time) cell.
func valueFor(name string, t time.Time, settings models.Settings, station models.Station, row map[string]rawCell) valuetype.Value {
	switch name {
	case "fmisid":
		return valuetype.Int32(int32(station.FMISID))
	case "time", "utctime":
		return valuetype.TimestampUTC(t)
	case "localtime":
		return valuetype.TimestampUTC(localTimeFor(t, settings, station).UTC())
	case "stationname":
		return valuetype.String(station.Name)
	case "lat":
		return valuetype.Double(station.Latitude)
	case "lon":
		return valuetype.Double(station.Longitude)
	case "distance":
		return valuetype.Double(station.DistanceKm)
	case "windcompass8":
		return compassValue(row, geo.WindCompass8)
	case "windcompass16":
		return compassValue(row, geo.WindCompass16)
	case "windcompass32":
		return compassValue(row, geo.WindCompass32)
	case "stationdirection":
		return valuetype.Double(station.BearingDeg)
	case "feelslike":
		return feelsLikeValue(row)
	case "solarelevation":
		return solarValue(row, t, station, true)
	case "solarazimuth":
		return solarValue(row, t, station, false)
	case "sunrise":
		return solarTimeValue(t, station, func(s geo.SolarTimes) time.Time { return s.Sunrise })
	case "sunset":
		return solarTimeValue(t, station, func(s geo.SolarTimes) time.Time { return s.Sunset })
	case "solarnoon":
		return solarTimeValue(t, station, func(s geo.SolarTimes) time.Time { return s.Noon })
	case "epochtime":
		return valuetype.Int64(geo.EpochTime(t))
	default:
		c, ok := row[name]
		if !ok || !c.ok {
			return valuetype.None()
		}
		return valuetype.Double(c.value)
	}
}

func compassValue(row map[string]rawCell, bucket func(float64) string) valuetype.Value {
	c, ok := row[aliasWindDirection]
	if !ok || !c.ok || c.value < 0 {
		return valuetype.None()
	}
	return valuetype.String(bucket(c.value))
}

func feelsLikeValue(row map[string]rawCell) valuetype.Value {
	temp, ok1 := row[aliasTemperature]
	wind, ok2 := row[aliasWindSpeed]
	humid, ok3 := row[aliasHumidity]
	if !ok1 || !ok2 || !ok3 || !temp.ok || !wind.ok || !humid.ok {
		return valuetype.None()
	}
	return valuetype.Double(geo.FeelsLike(temp.value, wind.value, humid.value))
}

func solarValue(row map[string]rawCell, t time.Time, station models.Station, elevation bool) valuetype.Value {
	pos := geo.ComputeSolarPosition(station.Latitude, station.Longitude, t)
	if elevation {
		return valuetype.Double(pos.ElevationDeg)
	}
	return valuetype.Double(pos.AzimuthDeg)
}

func solarTimeValue(t time.Time, station models.Station, pick func(geo.SolarTimes) time.Time) valuetype.Value {
	st := geo.SolarTime(t, station.Latitude, station.Longitude)
	if st.PolarDayOrNight {
		return valuetype.None()
	}
	return valuetype.TimestampUTC(pick(st))
}

// buildTable assembles the row-oriented Table shape for MakeQuery: one
// row per (station, time), columns in requested order.
func buildTable(frames []*stationFrame, settings models.Settings) *models.Table {
	table := models.NewTable(settings.Parameters)
	for _, f := range frames {
		times := filterTimes(f.times, settings.Hours, settings.Weekdays)
		for _, t := range times {
			row := f.byTime[t.Unix()]
			rowValues := make([]valuetype.Value, len(settings.Parameters))
			for i, col := range settings.Parameters {
				rowValues[i] = valueFor(col, t, settings, f.station, row)
			}
			table.AddRow(rowValues)
		}
	}
	return table
}

// buildTimeSeriesVector assembles the TimeSeriesVector shape for Values:
// one TimeSeries per (station, parameter) pair, grouped by station in
// frame order.
func buildTimeSeriesVector(frames []*stationFrame, settings models.Settings) *models.TimeSeriesVector {
	vec := &models.TimeSeriesVector{}
	for _, f := range frames {
		times := filterTimes(f.times, settings.Hours, settings.Weekdays)
		for _, param := range settings.Parameters {
			series := models.TimeSeries{FMISID: f.station.FMISID, Parameter: param}
			for _, t := range times {
				row := f.byTime[t.Unix()]
				series.ObsTimes = append(series.ObsTimes, t)
				series.Values = append(series.Values, valueFor(param, t, settings, f.station, row))
			}
			vec.Append(series)
		}
	}
	return vec
}
