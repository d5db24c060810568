package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

func mockConfig(seed int) *config.Config {
	return &config.Config{
		Store:       config.StoreConfig{Backend: config.BackendMock, MockSeed: seed},
		Ingest:      config.IngestConfig{APIKey: "k", DefaultDeviceID: "ESP32_001"},
		Liveness:    config.LivenessConfig{StaleAfter: 2 * time.Minute, CheckInterval: time.Hour},
		Aggregation: config.AggregationConfig{Mode: config.AggregationHourOfDay, TimeZone: "UTC"},
		Query:       config.QueryConfig{DefaultHours: 24, DefaultLimit: 1000},
	}
}

func TestGettersFailBeforeOpen(t *testing.T) {
	c := NewContainer(mockConfig(0), logger.NewNopLogger())

	_, err := c.GetIngestService()
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = c.GetRepository()
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Equal(t, "error", c.HealthCheck(context.Background())["status"])
}

func TestOpenMockBackendSeedsLiveness(t *testing.T) {
	c := NewContainer(mockConfig(10), logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	defer c.Shutdown(ctx)

	assert.Equal(t, aqmmodels.LivenessOnline, c.LivenessState())

	q, err := c.GetQueryService()
	require.NoError(t, err)
	rr, err := q.Range(ctx, 1, 100)
	require.NoError(t, err)
	assert.Len(t, rr.Readings, 10)
	assert.Equal(t, "ok", c.HealthCheck(ctx)["status"])
}

func TestOpenIngestShutdown(t *testing.T) {
	c := NewContainer(mockConfig(0), logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Open(ctx))
	assert.Equal(t, aqmmodels.LivenessUnknown, c.LivenessState())

	ingest, err := c.GetIngestService()
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, map[string]interface{}{
		"temperature": 21.5, "humidity": 40.0, "aqi": 12.0, "gasConcentration": 90.0,
	}, "k", validation.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, aqmmodels.LivenessOnline, c.LivenessState())

	cleaned := false
	c.AddCleanupFunc(func(context.Context) error { cleaned = true; return nil })

	require.NoError(t, c.Shutdown(ctx))
	assert.True(t, cleaned)
	_, err = c.GetQueryService()
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := mockConfig(0)
	cfg.Store.Backend = "sqlite"

	err := NewContainer(cfg, logger.NewNopLogger()).Open(context.Background())
	assert.Error(t, err)
}
