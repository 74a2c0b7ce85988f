package authstore

import (
	"context"
	"fmt"

	"github.com/fmiobs/obsengine/internal/models"
)

// BackfillWMO, BackfillLPNN and BackfillRWSID are the three batch
// id-translation calls the preloader makes after pulling the raw
// station rows (spec.md §4.9 step 2): the stations table itself only
// carries the identifier that was current when the row was last
// written, so stations missing one of wmo/lpnn/rwsid are resolved
// against the id_translation table, keyed by fmisid.
func (s *Session) BackfillWMO(ctx context.Context, stations []models.Station) error {
	return s.backfillIdentifier(ctx, stations, "wmo", func(st *models.Station) *int { return &st.WMO })
}

func (s *Session) BackfillLPNN(ctx context.Context, stations []models.Station) error {
	return s.backfillIdentifier(ctx, stations, "lpnn", func(st *models.Station) *int { return &st.LPNN })
}

func (s *Session) BackfillRWSID(ctx context.Context, stations []models.Station) error {
	return s.backfillIdentifier(ctx, stations, "rwsid", func(st *models.Station) *int { return &st.RWSID })
}

func (s *Session) backfillIdentifier(ctx context.Context, stations []models.Station, column string, field func(*models.Station) *int) error {
	var missing []int
	index := make(map[int]int, len(stations))
	for i := range stations {
		f := field(&stations[i])
		if *f == models.NoID {
			missing = append(missing, stations[i].FMISID)
			index[stations[i].FMISID] = i
		}
	}
	if len(missing) == 0 {
		return nil
	}

	query := fmt.Sprintf(`SELECT fmisid, %s FROM id_translation WHERE fmisid = ANY($1) AND %s IS NOT NULL`, column, column)
	return s.withRetry(ctx, func(conn Conn) error {
		rows, err := conn.Query(ctx, query, missing)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var fmisid, value int
			if err := rows.Scan(&fmisid, &value); err != nil {
				return err
			}
			if i, ok := index[fmisid]; ok {
				*field(&stations[i]) = value
			}
		}
		return rows.Err()
	})
}
