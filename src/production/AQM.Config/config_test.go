package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithMockBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mock")
	t.Setenv("ESP32_API_KEY", "secret")
	t.Setenv("QUERY_DEFAULT_HOURS", "")
	t.Setenv("QUERY_DEFAULT_LIMIT", "")
	t.Setenv("LIVENESS_STALE_AFTER", "")
	t.Setenv("AGGREGATION_MODE", "")
	t.Setenv("AGGREGATION_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMock, cfg.Store.Backend)
	assert.Equal(t, "secret", cfg.Ingest.APIKey)
	assert.Equal(t, "ESP32_001", cfg.Ingest.DefaultDeviceID)
	assert.Equal(t, 24, cfg.Query.DefaultHours)
	assert.Equal(t, 1000, cfg.Query.DefaultLimit)
	assert.Equal(t, 2*time.Minute, cfg.Liveness.StaleAfter)
	assert.Equal(t, AggregationHourOfDay, cfg.Aggregation.Mode)
	assert.Equal(t, "aqi_monitoring", cfg.Store.MongoDB)
	assert.Equal(t, "sensor_readings", cfg.Store.Collection)
}

func TestLoadRequiresMongoURIForMongoBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGODB_URI")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestValidatePostgresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = BackendPostgres

	require.Error(t, cfg.Validate())

	cfg.Store.Postgres.User = "aqm"
	cfg.Store.Postgres.Password = "pw"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "host=localhost port=5432 user=aqm password=pw dbname=aqi_monitoring sslmode=disable", cfg.GetDatabaseDSN())
}

func TestValidateAggregationSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Aggregation.Mode = "per-minute"
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Aggregation.TimeZone = "Mars/Olympus_Mons"
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Aggregation.Mode = AggregationAbsoluteHour
	cfg.Aggregation.TimeZone = "Europe/Berlin"
	require.NoError(t, cfg.Validate())
}

func TestGetStringSliceTrimsEntries(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, getStringSlice("TEST_SLICE", nil))
}

func TestMQTTBrokerURL(t *testing.T) {
	m := MQTTConfig{BrokerHost: "broker", BrokerPort: 8883, UseTLS: true}
	assert.Equal(t, "tcps://broker:8883", m.GetMQTTBrokerURL())
	m.UseTLS = false
	assert.Equal(t, "tcp://broker:8883", m.GetMQTTBrokerURL())
}

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendMock,
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				DBName:  "aqi_monitoring",
				SSLMode: "disable",
			},
		},
		Ingest:      IngestConfig{APIKey: "k", DefaultDeviceID: "ESP32_001"},
		Liveness:    LivenessConfig{StaleAfter: time.Minute, CheckInterval: time.Second},
		Aggregation: AggregationConfig{Mode: AggregationHourOfDay, TimeZone: "UTC"},
		Query:       QueryConfig{DefaultHours: 24, DefaultLimit: 1000},
	}
}
