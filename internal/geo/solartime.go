package geo

import (
	"math"
	"time"
)

// sunriseSunsetZenith is the standard 90.833-degree zenith angle used
// for sunrise/sunset (accounts for atmospheric refraction and the
// sun's apparent radius), not the geometric 90 degrees.
const sunriseSunsetZenith = 90.833

// SolarTimes is the sunrise/sunset/solar-noon answer for one
// observer/date pair, matching the solar_time derived parameter.
type SolarTimes struct {
	Sunrise time.Time
	Sunset  time.Time
	Noon    time.Time
	// PolarDayOrNight is true when the sun never crosses the horizon on
	// this date at this latitude; Sunrise/Sunset are then both zero.
	PolarDayOrNight bool
}

// SolarTime computes sunrise, sunset and solar noon, in UTC, for the
// calendar date localTime falls on at (lat,lon). localTime's own
// location is used only to pick the date; the zone of the returned
// times is always UTC, consistent with the rest of this package.
func SolarTime(localTime time.Time, lat, lon float64) SolarTimes {
	noonLocal := time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 12, 0, 0, 0, localTime.Location())
	jd := julianDay(noonLocal.UTC())
	jc := (jd - 2451545.0) / 36525.0
	declRad, eqTime := solarDeclinationAndEquationOfTime(jc)

	latRad := lat * math.Pi / 180.0
	cosHourAngle := (math.Cos(sunriseSunsetZenith*math.Pi/180.0) - math.Sin(latRad)*math.Sin(declRad)) /
		(math.Cos(latRad) * math.Cos(declRad))

	if cosHourAngle < -1 || cosHourAngle > 1 {
		return SolarTimes{PolarDayOrNight: true}
	}
	hourAngleDeg := math.Acos(cosHourAngle) * 180.0 / math.Pi

	solarNoonMin := 720.0 - 4*lon - eqTime
	sunriseMin := solarNoonMin - hourAngleDeg*4
	sunsetMin := solarNoonMin + hourAngleDeg*4

	dayStartUTC := time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, time.UTC)
	return SolarTimes{
		Sunrise: dayStartUTC.Add(time.Duration(sunriseMin * float64(time.Minute))),
		Sunset:  dayStartUTC.Add(time.Duration(sunsetMin * float64(time.Minute))),
		Noon:    dayStartUTC.Add(time.Duration(solarNoonMin * float64(time.Minute))),
	}
}
