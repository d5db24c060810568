package aqmmodels

import "time"

// ReadingStatus is the device status recorded with a reading
type ReadingStatus string

const (
	StatusOnline  ReadingStatus = "online"
	StatusOffline ReadingStatus = "offline"
)

// ReadingMetadata carries best-effort network diagnostics captured at ingestion
type ReadingMetadata struct {
	IPAddress string `bson:"ipAddress" json:"ipAddress"`
	UserAgent string `bson:"userAgent" json:"userAgent"`
}

// Reading is one timestamped sample of the four sensor metrics from one device.
// Readings are written once and never updated.
type Reading struct {
	ID               string          `bson:"-" json:"id,omitempty"`
	Timestamp        time.Time       `bson:"timestamp" json:"timestamp"`
	Temperature      float64         `bson:"temperature" json:"temperature"`           // °C
	Humidity         float64         `bson:"humidity" json:"humidity"`                 // %
	AQI              float64         `bson:"aqi" json:"aqi"`                           // 0-500 nominal
	GasConcentration float64         `bson:"gasConcentration" json:"gasConcentration"` // ppm
	Status           ReadingStatus   `bson:"status" json:"status"`
	DeviceID         string          `bson:"deviceId" json:"deviceId"`
	Metadata         ReadingMetadata `bson:"metadata" json:"-"`
}
