package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasIdentifierHelpers(t *testing.T) {
	s := Station{WMO: 2974, LPNN: NoID, RWSID: NoID}

	assert.True(t, s.HasWMO())
	assert.False(t, s.HasLPNN())
	assert.False(t, s.HasRWSID())
}

func TestBypassesStatusFilter(t *testing.T) {
	cases := []struct {
		name     string
		station  Station
		expected bool
	}{
		{"operative fmi station", Station{IsFMIStation: true}, false},
		{"foreign station", Station{IsForeignStation: true}, true},
		{"research station", Station{IsResearchStation: true}, true},
		{"syke station", Station{IsSYKEStation: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.station.BypassesStatusFilter())
		})
	}
}

func TestExistedInIntervalRoadAlwaysExists(t *testing.T) {
	s := Station{IsRoadStation: true, StationStart: 0, StationEnd: 1}
	assert.True(t, s.ExistedInInterval(1000, 2000))
}

func TestExistedInIntervalOverlapCheck(t *testing.T) {
	s := Station{StationStart: 100, StationEnd: 200}

	assert.True(t, s.ExistedInInterval(150, 250))
	assert.False(t, s.ExistedInInterval(300, 400))
}

func TestInAnyGroupEmptyMatchesAll(t *testing.T) {
	s := Station{GroupCodes: []string{"opendata"}}
	assert.True(t, s.InAnyGroup(nil))
	assert.True(t, s.InAnyGroup([]string{"opendata", "fmi"}))
	assert.False(t, s.InAnyGroup([]string{"road"}))
}
