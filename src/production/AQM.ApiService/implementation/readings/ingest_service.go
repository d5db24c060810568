package readings

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/liveness"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

// ErrStorage wraps any failure reported by the reading store
var ErrStorage = errors.New("storage failure")

// IngestResult describes a stored reading
type IngestResult struct {
	ID      string
	Reading aqmmodels.Reading
}

// IngestService validates device payloads and persists accepted readings
type IngestService struct {
	validator *validation.Validator
	repo      interfaces.ReadingRepository
	tracker   *liveness.Tracker
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewIngestService creates a new ingest service. tracker and m may be nil.
func NewIngestService(validator *validation.Validator, repo interfaces.ReadingRepository, tracker *liveness.Tracker, m *metrics.Metrics, log *logger.Logger) *IngestService {
	return &IngestService{
		validator: validator,
		repo:      repo,
		tracker:   tracker,
		metrics:   m,
		logger:    log.WithComponent("ingest"),
	}
}

// Ingest validates the payload and writes exactly one reading. Nothing is
// written when validation fails.
func (s *IngestService) Ingest(ctx context.Context, payload map[string]interface{}, apiKey string, meta validation.RequestMeta) (*IngestResult, error) {
	reading, err := s.validator.Validate(payload, apiKey, meta)
	if err != nil {
		s.recordRejection(err, meta)
		return nil, err
	}

	start := time.Now()
	id, err := s.repo.Insert(ctx, reading)
	s.metrics.StoreOperation("insert", time.Since(start))
	if err != nil {
		s.metrics.IngestResult(metrics.ResultStorageError)
		s.logger.Logger.Error().Err(err).Str("device_id", reading.DeviceID).Msg("Failed to store sensor reading")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	reading.ID = id

	s.metrics.IngestResult(metrics.ResultAccepted)
	if s.tracker != nil {
		s.tracker.Observe(reading.Timestamp)
	}

	s.logger.Logger.Debug().
		Str("id", id).
		Str("device_id", reading.DeviceID).
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Float64("aqi", reading.AQI).
		Float64("gas_concentration", reading.GasConcentration).
		Msg("Sensor reading stored")

	return &IngestResult{ID: id, Reading: reading}, nil
}

func (s *IngestService) recordRejection(err error, meta validation.RequestMeta) {
	result := metrics.ResultInvalid
	if errors.Is(err, validation.ErrUnauthorized) {
		result = metrics.ResultUnauthorized
	}
	s.metrics.IngestResult(result)
	s.logger.Logger.Warn().Err(err).Str("ip", meta.IPAddress).Msg("Rejected sensor payload")
}
