package authstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPivotQueryBuildIncludesRequestedMeasurands(t *testing.T) {
	q := PivotQuery{
		Table:        "observation_data",
		FMISIDs:      []int{100971},
		MeasurandIDs: []string{"4", "21"},
		Start:        time.Date(2015, 10, 8, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2015, 10, 8, 1, 0, 0, 0, time.UTC),
	}
	sql, args := q.Build()

	assert.Contains(t, sql, "measurand_id = 4")
	assert.Contains(t, sql, "measurand_id = 21")
	assert.Contains(t, sql, "fmisid IN")
	assert.Len(t, args, 3) // start, end, fmisid
}

func TestPivotQueryFixedTimestepAppliesModuloFilter(t *testing.T) {
	q := PivotQuery{
		MeasurandIDs: []string{"4"},
		Start:        time.Now(),
		End:          time.Now(),
		Mode:         FixedTimestep,
		TimestepMin:  20,
	}
	sql, _ := q.Build()
	assert.Contains(t, sql, "% 20 = 0")
}

func TestPivotQueryLatestWrapsWithMaxSubquery(t *testing.T) {
	q := PivotQuery{
		MeasurandIDs: []string{"4"},
		Start:        time.Now(),
		End:          time.Now(),
		Latest:       true,
	}
	sql, _ := q.Build()
	assert.Contains(t, sql, "max(data_time_utc)")
}

func TestRainParameterCasePrefers50Series(t *testing.T) {
	expr := RainParameterCase("r1h50", "r1h60")
	assert.Contains(t, expr, "r1h50 IS NOT NULL THEN r1h50 ELSE r1h60")
}

func TestIsFatalMatchesDocumentedCodeSet(t *testing.T) {
	assert.True(t, IsFatal("3135"))
	assert.True(t, IsFatal("3113"))
	assert.True(t, IsFatal("3114"))
	assert.False(t, IsFatal("00000"))
}
