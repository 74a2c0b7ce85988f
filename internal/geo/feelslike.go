package geo

import "math"

// FeelsLike composes an apparent-temperature estimate from dry-bulb air
// temperature (celsius), wind speed (m/s) and relative humidity
// (percent), switching between a wind-chill model in cold, windy
// conditions and a heat-index model in hot, humid ones. Callers that
// lack wind or humidity should pass 0; both branches degrade to the raw
// temperature when their driving inputs are weak.
func FeelsLike(temperatureC, windMS, humidityPct float64) float64 {
	if temperatureC <= 10.0 && windMS >= 1.34 {
		return windChill(temperatureC, windMS)
	}
	if temperatureC >= 20.0 && humidityPct > 0 {
		return heatIndex(temperatureC, humidityPct)
	}
	return temperatureC
}

// windChill applies the North American wind chill formula (wind speed in km/h).
func windChill(temperatureC, windMS float64) float64 {
	windKmh := windMS * 3.6
	return 13.12 + 0.6215*temperatureC - 11.37*math.Pow(windKmh, 0.16) +
		0.3965*temperatureC*math.Pow(windKmh, 0.16)
}

// heatIndex applies the Rothfusz regression (temperature in fahrenheit internally).
func heatIndex(temperatureC, humidityPct float64) float64 {
	t := temperatureC*9.0/5.0 + 32.0
	r := humidityPct

	hi := -42.379 + 2.04901523*t + 10.14333127*r -
		0.22475541*t*r - 0.00683783*t*t - 0.05481717*r*r +
		0.00122874*t*t*r + 0.00085282*t*r*r - 0.00000199*t*t*r*r

	return (hi - 32.0) * 5.0 / 9.0
}
