package geo

import (
	"math"
	"time"
)

// SolarPosition is the sun's apparent position for an observer at a given
// coordinate and instant, computed with the low-precision NOAA solar
// position algorithm (adequate for derived-parameter display purposes;
// not ephemeris-grade).
type SolarPosition struct {
	ElevationDeg float64
	AzimuthDeg   float64
}

// ComputeSolarPosition returns the sun's elevation and azimuth as seen
// from (lat,lon) at instant t (which is converted to UTC internally).
func ComputeSolarPosition(lat, lon float64, t time.Time) SolarPosition {
	t = t.UTC()

	jd := julianDay(t)
	jc := (jd - 2451545.0) / 36525.0
	declRad, eqTime := solarDeclinationAndEquationOfTime(jc)

	trueSolarTimeMin := math.Mod(float64(t.Hour()*60+t.Minute())+float64(t.Second())/60.0+eqTime+4*lon, 1440.0)
	if trueSolarTimeMin < 0 {
		trueSolarTimeMin += 1440.0
	}

	hourAngleDeg := trueSolarTimeMin/4.0 - 180.0

	latRad := lat * math.Pi / 180.0
	hourAngleRad := hourAngleDeg * math.Pi / 180.0

	cosZenith := math.Sin(latRad)*math.Sin(declRad) + math.Cos(latRad)*math.Cos(declRad)*math.Cos(hourAngleRad)
	cosZenith = math.Max(-1.0, math.Min(1.0, cosZenith))
	zenithRad := math.Acos(cosZenith)

	elevation := 90.0 - zenithRad*180.0/math.Pi

	azDenom := math.Cos(latRad) * math.Sin(zenithRad)
	var azimuth float64
	if math.Abs(azDenom) > 1e-9 {
		cosAz := (math.Sin(latRad)*cosZenith - math.Sin(declRad)) / azDenom
		cosAz = math.Max(-1.0, math.Min(1.0, cosAz))
		azimuth = math.Acos(cosAz) * 180.0 / math.Pi
		if hourAngleDeg > 0 {
			azimuth = 360.0 - azimuth
		}
	}

	return SolarPosition{ElevationDeg: elevation, AzimuthDeg: azimuth}
}

// solarDeclinationAndEquationOfTime computes the solar declination (in
// radians) and the equation of time (in minutes) for Julian century jc,
// the shared core of the low-precision NOAA solar position algorithm
// used by both ComputeSolarPosition and SolarTime.
func solarDeclinationAndEquationOfTime(jc float64) (declRad, eqTimeMin float64) {
	meanLong := math.Mod(280.46646+jc*(36000.76983+jc*0.0003032), 360.0)
	meanAnom := 357.52911 + jc*(35999.05029-0.0001537*jc)
	eccent := 0.016708634 - jc*(0.000042037+0.0000001267*jc)

	meanAnomRad := meanAnom * math.Pi / 180.0
	eqOfCenter := math.Sin(meanAnomRad)*(1.914602-jc*(0.004817+0.000014*jc)) +
		math.Sin(2*meanAnomRad)*(0.019993-0.000101*jc) +
		math.Sin(3*meanAnomRad)*0.000289

	trueLong := meanLong + eqOfCenter
	obliqCorr := 23.439291 - jc*0.0130042

	apparentLong := trueLong - 0.00569 - 0.00478*math.Sin((125.04-1934.136*jc)*math.Pi/180.0)
	declRad = math.Asin(math.Sin(obliqCorr*math.Pi/180.0) * math.Sin(apparentLong*math.Pi/180.0))

	y := math.Tan(obliqCorr / 2 * math.Pi / 180.0)
	y *= y
	eqTimeMin = 4 * (y*math.Sin(2*meanLong*math.Pi/180.0) -
		2*eccent*math.Sin(meanAnomRad) +
		4*eccent*y*math.Sin(meanAnomRad)*math.Cos(2*meanLong*math.Pi/180.0) -
		0.5*y*y*math.Sin(4*meanLong*math.Pi/180.0) -
		1.25*eccent*eccent*math.Sin(2*meanAnomRad)) * 180.0 / math.Pi
	return declRad, eqTimeMin
}

func julianDay(t time.Time) float64 {
	const unixEpochJulianDay = 2440587.5
	return unixEpochJulianDay + float64(t.Unix())/86400.0
}

// EpochTime returns t as whole seconds since the Unix epoch, matching
// the epoch_time derived parameter.
func EpochTime(t time.Time) int64 {
	return t.Unix()
}
