package models

import (
	"time"

	"github.com/fmiobs/obsengine/internal/valuetype"
)

// Table is the row-oriented result shape returned by makeQuery: a header
// naming each column and rows of equal width. Column 0 is conventionally
// fmisid, column 1 obstime, the rest the requested parameters in
// request order.
type Table struct {
	Columns []string
	Rows    [][]valuetype.Value
}

// NewTable returns an empty table with the given column names.
func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// AddRow appends row to the table. It panics if row's width does not
// match the column count, since a malformed row indicates a dispatcher
// bug rather than bad input.
func (t *Table) AddRow(row []valuetype.Value) {
	if len(row) != len(t.Columns) {
		panic("models: row width does not match table column count")
	}
	t.Rows = append(t.Rows, row)
}

// TimeSeries is one parameter's values across a station's timesteps,
// strictly ordered by ObsTime ascending within the station.
type TimeSeries struct {
	FMISID    int
	Parameter string
	ObsTimes  []time.Time
	Values    []valuetype.Value
}

// TimeSeriesVector groups one TimeSeries per (station, parameter) pair.
// Across fmisids, entries are grouped by fmisid; the fmisid ordering is
// determined by whichever station resolution path produced the request
// (nearest-K yields distance-ascending, bbox/group yields
// fmisid-ascending) and is not re-sorted here.
type TimeSeriesVector struct {
	Series []TimeSeries
}

// ForStation returns the subslice of Series belonging to fmisid, in the
// order they were appended.
func (v *TimeSeriesVector) ForStation(fmisid int) []TimeSeries {
	var out []TimeSeries
	for _, s := range v.Series {
		if s.FMISID == fmisid {
			out = append(out, s)
		}
	}
	return out
}

// Append adds a fully-built series to the vector.
func (v *TimeSeriesVector) Append(s TimeSeries) {
	v.Series = append(v.Series, s)
}
