package api_models

import (
	"time"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// ErrorResponse is the envelope returned by every failed request
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// IngestResponse is returned after a reading was stored
type IngestResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// CurrentReading is a reading enriched with its AQI category
type CurrentReading struct {
	aqmmodels.Reading
	AQICategory string `json:"aqiCategory,omitempty"`
}

// CurrentResponse wraps the most recent reading
type CurrentResponse struct {
	Success bool            `json:"success"`
	Data    *CurrentReading `json:"data,omitempty"`
	Message string          `json:"message"`
}

// HistoricalMeta describes the window a historical query covered
type HistoricalMeta struct {
	Count     int       `json:"count"`
	Hours     int       `json:"hours"`
	Limit     int       `json:"limit"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// HistoricalResponse wraps readings from a time window, oldest first
type HistoricalResponse struct {
	Success bool                `json:"success"`
	Data    []aqmmodels.Reading `json:"data"`
	Meta    HistoricalMeta      `json:"meta"`
	Message string              `json:"message"`
}

// HourlyMeta describes an hourly rollup
type HourlyMeta struct {
	HistoricalMeta
	Buckets int    `json:"buckets"`
	Mode    string `json:"mode"`
}

// HourlyResponse wraps hourly averages sorted by hour label
type HourlyResponse struct {
	Success bool                     `json:"success"`
	Data    []aqmmodels.HourlyBucket `json:"data"`
	Meta    HourlyMeta               `json:"meta"`
	Message string                   `json:"message"`
}

// FleetStatus is the liveness of the fleet plus an air quality summary of the latest reading
type FleetStatus struct {
	Liveness          aqmmodels.LivenessState `json:"liveness"`
	LastReadingAt     *time.Time              `json:"lastReadingAt,omitempty"`
	StaleAfterSeconds float64                 `json:"staleAfterSeconds"`
	AQICategory       string                  `json:"aqiCategory,omitempty"`
	AQILabel          string                  `json:"aqiLabel,omitempty"`
	Alerts            []string                `json:"alerts"`
	Normal            *bool                   `json:"normal,omitempty"`
}

// StatusResponse wraps the fleet status
type StatusResponse struct {
	Success bool        `json:"success"`
	Data    FleetStatus `json:"data"`
	Message string      `json:"message"`
}

// StoreCheckResponse reports store connectivity and the collections it holds
type StoreCheckResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Backend     string   `json:"backend"`
	Database    string   `json:"database,omitempty"`
	Collections []string `json:"collections"`
	Timestamp   string   `json:"timestamp"`
}

// MockSensorResponse wraps a synthetic reading
type MockSensorResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Message string                 `json:"message"`
}
