package authstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TimestepMode selects one of the three timestep shapes spec.md §4.3
// step 2 describes.
type TimestepMode int

const (
	// NoTimestep returns every row in the window, unfiltered.
	NoTimestep TimestepMode = iota
	// FixedTimestep keeps only rows whose UTC minute count since the
	// epoch is a multiple of the configured step (an outer join to a generated minute grid
	// in the original Oracle shape; here expressed as a modulo filter
	// in the WHERE clause, which Postgres optimizes equivalently over
	// an indexed time column).
	FixedTimestep
	// ExplicitTimeseries keeps only rows whose local_date_time matches
	// one of an explicit list of target timestamps.
	ExplicitTimeseries
)

// PivotQuery builds one query for a station class marked
// uses_common_query: a pivot over measurand ids, one column per
// requested parameter, using an ordered, filtered array_agg as the
// Postgres equivalent of the Oracle source's
// `MAX(CASE WHEN measurand_id = X THEN value END) KEEP DENSE_RANK FIRST
// ORDER BY sensor_no`.
type PivotQuery struct {
	Table         string
	FMISIDs       []int
	MeasurandIDs  []string // requested, in result-column order
	ProducerIDs   []int
	Start, End    time.Time
	Mode          TimestepMode
	TimestepMin   int
	ExplicitTimes []time.Time
	Latest        bool
}

// Build renders the SQL text and positional args for q. The shape:
// one pivoted column per requested measurand, holding the first non-null
// value ordered by sensor number (measurand_no) ascending (the
// "KEEP DENSE_RANK FIRST ORDER BY sensor_no" equivalent), grouped by
// fmisid and data_time_utc, joined to locations for validity, filtered by the time
// window, producer-id set, and timestep mode.
func (q PivotQuery) Build() (sql string, args []any) {
	var cols []string
	for _, mid := range q.MeasurandIDs {
		col := fmt.Sprintf(
			`(array_agg(od.data_value ORDER BY od.measurand_no) FILTER (WHERE od.measurand_id = %s AND od.data_value IS NOT NULL))[1] AS m_%s`,
			mid, sanitizeColumnSuffix(mid))
		cols = append(cols, col)
	}

	var b strings.Builder
	b.WriteString("SELECT od.fmisid, od.data_time_utc")
	if len(cols) > 0 {
		b.WriteString(", ")
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(` FROM observation_data od JOIN locations loc ON loc.fmisid = od.fmisid AND now() BETWEEN loc.location_start AND loc.location_end WHERE od.data_time_utc >= $1 AND od.data_time_utc <= $2`)
	args = append(args, q.Start.UTC(), q.End.UTC())

	if len(q.FMISIDs) > 0 {
		placeholders := make([]string, len(q.FMISIDs))
		for i, id := range q.FMISIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&b, " AND od.fmisid IN (%s)", strings.Join(placeholders, ","))
	}

	if len(q.ProducerIDs) > 0 {
		placeholders := make([]string, len(q.ProducerIDs))
		for i, id := range q.ProducerIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&b, " AND od.producer_id IN (%s)", strings.Join(placeholders, ","))
	}

	switch q.Mode {
	case FixedTimestep:
		if q.TimestepMin > 0 {
			fmt.Fprintf(&b, " AND (extract(epoch from od.data_time_utc)::bigint / 60) %% %d = 0", q.TimestepMin)
		}
	case ExplicitTimeseries:
		if len(q.ExplicitTimes) > 0 {
			placeholders := make([]string, len(q.ExplicitTimes))
			for i, tt := range q.ExplicitTimes {
				args = append(args, tt.UTC())
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			fmt.Fprintf(&b, " AND od.data_time_utc IN (%s)", strings.Join(placeholders, ","))
		}
	}

	b.WriteString(" GROUP BY od.fmisid, od.data_time_utc")

	if q.Latest {
		// keep, per fmisid, only the rows whose obstime equals that
		// station's max(obstime), found by a correlated subquery over the
		// same pivot, per spec.md §4.3 step 3.
		return fmt.Sprintf(
			"SELECT * FROM (%s) pivoted WHERE data_time_utc = (SELECT max(data_time_utc) FROM (%s) inner_pivoted WHERE inner_pivoted.fmisid = pivoted.fmisid) ORDER BY fmisid, data_time_utc",
			b.String(), b.String()), args
	}

	b.WriteString(" ORDER BY od.fmisid, od.data_time_utc")
	return b.String(), args
}

func sanitizeColumnSuffix(measurandID string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return '_'
	}, measurandID)
}

// PivotRow is one decoded result row from RunPivotQuery: fmisid,
// obstime, and one value per requested measurand in request order
// (nil for a measurand with no value at that obstime).
type PivotRow struct {
	FMISID  int
	ObsTime time.Time
	Values  []any
}

// RunPivotQuery executes q's rendered SQL and decodes each row
// positionally: column 0 is fmisid, column 1 is data_time_utc, and the
// rest are the pivoted measurand columns in q.MeasurandIDs order. The
// pivoted column set is only known at request time, so rows are decoded
// via pgx's untyped Values() rather than a fixed Scan destination list.
func (s *Session) RunPivotQuery(ctx context.Context, q PivotQuery) ([]PivotRow, error) {
	query, args := q.Build()

	var out []PivotRow
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return err
			}
			if len(vals) < 2 {
				return fmt.Errorf("authstore: pivot row has fewer than 2 columns")
			}
			fmisid, _ := vals[0].(int32)
			obstime, _ := vals[1].(time.Time)
			out = append(out, PivotRow{
				FMISID:  int(fmisid),
				ObsTime: obstime,
				Values:  vals[2:],
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("authstore: run pivot query: %w", err)
	}
	return out, nil
}

// RainParameterCase builds the CASE expression for the rain-gauge
// fallback rule (spec.md §4.3 step 4): R_1H/R_12H/R_24H select from
// multiple gauge tables, preferring the 50-series gauge and falling back
// to the 60-series one.
func RainParameterCase(column50, column60 string) string {
	return fmt.Sprintf("CASE WHEN %s IS NOT NULL THEN %s ELSE %s END", column50, column50, column60)
}
