package aggregation

import (
	"math"
	"sort"
	"time"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// Mode selects how readings are keyed into hour buckets
type Mode string

const (
	// HourOfDay keys buckets by the local hour "00".."23". Readings from the
	// same hour on different days share a bucket.
	HourOfDay Mode = "hour-of-day"
	// AbsoluteHour keys buckets by calendar hour, "2006-01-02T15"
	AbsoluteHour Mode = "absolute-hour"
)

const absoluteHourLayout = "2006-01-02T15"

// Aggregator rolls readings up into per-hour averages
type Aggregator struct {
	mode Mode
	loc  *time.Location
}

// NewAggregator returns an aggregator for the given mode and zone. A nil
// location means time.Local and an unknown mode falls back to HourOfDay.
func NewAggregator(mode Mode, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if mode != AbsoluteHour {
		mode = HourOfDay
	}
	return &Aggregator{mode: mode, loc: loc}
}

func (a *Aggregator) Mode() Mode {
	return a.mode
}

type sums struct {
	temperature float64
	humidity    float64
	aqi         float64
	gas         float64
	count       int
}

// Aggregate groups readings by hour label and averages each group. Only
// non-empty buckets are returned, sorted ascending by label.
func (a *Aggregator) Aggregate(readings []aqmmodels.Reading) []aqmmodels.HourlyBucket {
	groups := make(map[string]*sums)
	for _, r := range readings {
		label := a.Label(r.Timestamp)
		s, ok := groups[label]
		if !ok {
			s = &sums{}
			groups[label] = s
		}
		s.temperature += r.Temperature
		s.humidity += r.Humidity
		s.aqi += r.AQI
		s.gas += r.GasConcentration
		s.count++
	}

	buckets := make([]aqmmodels.HourlyBucket, 0, len(groups))
	for label, s := range groups {
		n := float64(s.count)
		buckets = append(buckets, aqmmodels.HourlyBucket{
			Hour:                label,
			AvgTemperature:      roundHalfUp(s.temperature/n, 1),
			AvgHumidity:         roundHalfUp(s.humidity/n, 0),
			AvgAQI:              roundHalfUp(s.aqi/n, 0),
			AvgGasConcentration: roundHalfUp(s.gas/n, 0),
			Count:               s.count,
		})
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour < buckets[j].Hour })
	return buckets
}

// Label returns the bucket key for a timestamp
func (a *Aggregator) Label(ts time.Time) string {
	local := ts.In(a.loc)
	if a.mode == AbsoluteHour {
		return local.Format(absoluteHourLayout)
	}
	return local.Format("15")
}

// roundHalfUp rounds to the given number of decimals with ties going up
func roundHalfUp(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(x*p+0.5) / p
}
