package aqmmodels

// HourlyBucket holds the averages of the readings sharing one hour label
type HourlyBucket struct {
	Hour                string  `json:"hour"`
	AvgTemperature      float64 `json:"avgTemperature"`
	AvgHumidity         float64 `json:"avgHumidity"`
	AvgAQI              float64 `json:"avgAQI"`
	AvgGasConcentration float64 `json:"avgGasConcentration"`
	Count               int     `json:"count"`
}
