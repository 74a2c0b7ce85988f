package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeSolarPositionNoonIsHigherThanMidnight(t *testing.T) {
	noon := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)

	noonPos := ComputeSolarPosition(60.17, 24.94, noon)
	midnightPos := ComputeSolarPosition(60.17, 24.94, midnight)

	assert.Greater(t, noonPos.ElevationDeg, midnightPos.ElevationDeg)
}

func TestEpochTimeMatchesUnix(t *testing.T) {
	tm := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, tm.Unix(), EpochTime(tm))
}
