package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// Generator produces plausible sensor readings for demos and the mock store
type Generator struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	deviceID string
}

func NewGenerator(deviceID string, seed int64) *Generator {
	return &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		deviceID: deviceID,
	}
}

// Reading returns a reading stamped with ts. Ranges: temperature 15-35 °C at
// one decimal, humidity 30-80 %, AQI 10-160, gas 50-250 ppm.
func (g *Generator) Reading(ts time.Time) aqmmodels.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	return aqmmodels.Reading{
		Timestamp:        ts.UTC().Truncate(time.Millisecond),
		Temperature:      math.Round((g.rnd.Float64()*20+15)*10) / 10,
		Humidity:         math.Round(g.rnd.Float64()*50 + 30),
		AQI:              math.Round(g.rnd.Float64()*150 + 10),
		GasConcentration: math.Round(g.rnd.Float64()*200 + 50),
		Status:           aqmmodels.StatusOnline,
		DeviceID:         g.deviceID,
		Metadata: aqmmodels.ReadingMetadata{
			IPAddress: "127.0.0.1",
			UserAgent: "aqm-simulator",
		},
	}
}

// Payload returns a reading in the shape a device posts to the ingest endpoint
func (g *Generator) Payload() map[string]interface{} {
	r := g.Reading(time.Now())
	return map[string]interface{}{
		"temperature":      r.Temperature,
		"humidity":         r.Humidity,
		"aqi":              r.AQI,
		"gasConcentration": r.GasConcentration,
		"deviceId":         r.DeviceID,
	}
}

// Series returns n readings spaced evenly and ending at end, oldest first
func (g *Generator) Series(n int, step time.Duration, end time.Time) []aqmmodels.Reading {
	out := make([]aqmmodels.Reading, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, g.Reading(end.Add(-time.Duration(i)*step)))
	}
	return out
}
