package authstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fmiobs/obsengine/internal/models"
)

// QCQuery builds an ad-hoc range query over weather_data_qc for the
// road/foreign/SYKE station classes, which key parameters by string
// code rather than numeric measurand id and so cannot share
// PivotQuery's CASE-pivot shape without a second, string-keyed variant.
type QCQuery struct {
	FMISIDs        []int
	ParameterCodes []string
	Start, End     time.Time
	TimestepMin    int
	Latest         bool
}

// Build renders the SQL text and positional args for q.
func (q QCQuery) Build() (sql string, args []any) {
	var b strings.Builder
	b.WriteString(`SELECT fmisid, obstime_utc, parameter_code, sensor_no, value, flag FROM weather_data_qc WHERE obstime_utc >= $1 AND obstime_utc <= $2 AND value IS NOT NULL`)
	args = append(args, q.Start.UTC(), q.End.UTC())

	if len(q.FMISIDs) > 0 {
		placeholders := make([]string, len(q.FMISIDs))
		for i, id := range q.FMISIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&b, " AND fmisid IN (%s)", strings.Join(placeholders, ","))
	}
	if len(q.ParameterCodes) > 0 {
		placeholders := make([]string, len(q.ParameterCodes))
		for i, code := range q.ParameterCodes {
			args = append(args, code)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&b, " AND parameter_code IN (%s)", strings.Join(placeholders, ","))
	}
	if q.TimestepMin > 0 {
		fmt.Fprintf(&b, " AND (extract(epoch from obstime_utc)::bigint / 60) %% %d = 0", q.TimestepMin)
	}

	if q.Latest {
		return fmt.Sprintf(
			"SELECT * FROM (%s) qc WHERE obstime_utc = (SELECT max(obstime_utc) FROM (%s) inner_qc WHERE inner_qc.fmisid = qc.fmisid) ORDER BY fmisid, obstime_utc",
			b.String(), b.String()), args
	}

	b.WriteString(" ORDER BY fmisid, obstime_utc")
	return b.String(), args
}

// RunQCQuery executes q and decodes its fixed five-column result
// directly into models.QCRow, unlike RunPivotQuery's dynamic column
// count.
func (s *Session) RunQCQuery(ctx context.Context, q QCQuery) ([]models.QCRow, error) {
	query, args := q.Build()

	var out []models.QCRow
	err := s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var r models.QCRow
			if err := rows.Scan(&r.FMISID, &r.ObsTimeUTC, &r.ParameterCode, &r.SensorNo, &r.Value, &r.Flag); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("authstore: run qc query: %w", err)
	}
	return out, nil
}
