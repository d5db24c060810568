package airquality

import (
	"math"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// Category names an AQI band
type Category string

const (
	Good               Category = "GOOD"
	Moderate           Category = "MODERATE"
	UnhealthySensitive Category = "UNHEALTHY_SENSITIVE"
	Unhealthy          Category = "UNHEALTHY"
	VeryUnhealthy      Category = "VERY_UNHEALTHY"
	Hazardous          Category = "HAZARDOUS"
)

// Band is the inclusive AQI range of a category
type Band struct {
	Category Category `json:"category"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Label    string   `json:"label"`
	Color    string   `json:"color"`
}

// Bands are checked in order; the first containing range wins
var Bands = []Band{
	{Good, 0, 50, "Good", "green"},
	{Moderate, 51, 100, "Moderate", "yellow"},
	{UnhealthySensitive, 101, 150, "Unhealthy for Sensitive Groups", "orange"},
	{Unhealthy, 151, 200, "Unhealthy", "red"},
	{VeryUnhealthy, 201, 300, "Very Unhealthy", "purple"},
	{Hazardous, 301, 500, "Hazardous", "maroon"},
}

// Normal operating limits
const (
	MinTemperature = 15.0
	MaxTemperature = 35.0
	MinHumidity    = 30.0
	MaxHumidity    = 70.0
	SensitiveAQI   = 100.0
	UnhealthyAQI   = 150.0
	MaxGas         = 300.0
)

// Categorize returns the band for an AQI value. Values outside every band,
// including fractional values between two bands, resolve to Hazardous.
func Categorize(aqi float64) Band {
	for _, b := range Bands {
		if aqi >= b.Min && aqi <= b.Max {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

// Alerts lists the human readable warnings raised by a reading
func Alerts(r aqmmodels.Reading) []string {
	alerts := make([]string, 0)

	if r.Temperature > MaxTemperature {
		alerts = append(alerts, "High temperature detected")
	} else if r.Temperature < MinTemperature {
		alerts = append(alerts, "Low temperature detected")
	}

	if r.Humidity > MaxHumidity {
		alerts = append(alerts, "High humidity levels")
	} else if r.Humidity < MinHumidity {
		alerts = append(alerts, "Low humidity levels")
	}

	if r.AQI > UnhealthyAQI {
		alerts = append(alerts, "Unhealthy air quality")
	} else if r.AQI > SensitiveAQI {
		alerts = append(alerts, "Air quality concern for sensitive groups")
	}

	if r.GasConcentration > MaxGas {
		alerts = append(alerts, "High gas concentration detected")
	}

	return alerts
}

// IsNormal reports whether every metric is inside its normal range
func IsNormal(r aqmmodels.Reading) bool {
	return r.Temperature >= MinTemperature && r.Temperature <= MaxTemperature &&
		r.Humidity >= MinHumidity && r.Humidity <= MaxHumidity &&
		r.AQI <= SensitiveAQI &&
		r.GasConcentration <= MaxGas
}

// CelsiusToFahrenheit converts and rounds to one decimal
func CelsiusToFahrenheit(c float64) float64 {
	return math.Floor((c*9/5+32)*10+0.5) / 10
}
