package readings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/aggregation"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/liveness"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	implementation "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

const apiKey = "test-key"

var now = time.Date(2025, 7, 4, 15, 30, 0, 0, time.UTC)

// countingRepo wraps a repository and counts writes, optionally failing them
type countingRepo struct {
	interfaces.ReadingRepository
	inserts   int
	insertErr error
	sinceErr  error
}

func (c *countingRepo) Insert(ctx context.Context, r aqmmodels.Reading) (string, error) {
	c.inserts++
	if c.insertErr != nil {
		return "", c.insertErr
	}
	return c.ReadingRepository.Insert(ctx, r)
}

func (c *countingRepo) Since(ctx context.Context, since time.Time, limit int) ([]aqmmodels.Reading, error) {
	if c.sinceErr != nil {
		return nil, c.sinceErr
	}
	return c.ReadingRepository.Since(ctx, since, limit)
}

type fixture struct {
	repo    *countingRepo
	tracker *liveness.Tracker
	ingest  *IngestService
	query   *QueryService
}

func newFixture() *fixture {
	log := logger.NewNopLogger()
	repo := &countingRepo{ReadingRepository: implementation.NewMemoryReadingRepository()}
	clock := func() time.Time { return now }
	tracker := liveness.NewTracker(2*time.Minute, time.Hour, log).WithClock(clock)
	m := metrics.NewMetrics()

	v := validation.NewValidator(apiKey, "ESP32_001").WithClock(clock)
	return &fixture{
		repo:    repo,
		tracker: tracker,
		ingest:  NewIngestService(v, repo, tracker, m, log),
		query: NewQueryService(repo, aggregation.NewAggregator(aggregation.HourOfDay, time.UTC), tracker,
			QueryDefaults{Hours: 24, Limit: 1000}, m, log).WithClock(clock),
	}
}

func payload() map[string]interface{} {
	return map[string]interface{}{
		"temperature":      25.3,
		"humidity":         55.0,
		"aqi":              42.0,
		"gasConcentration": 120.0,
	}
}

func seed(t *testing.T, repo interfaces.ReadingRepository, ts time.Time, aqi float64) {
	t.Helper()
	_, err := repo.Insert(context.Background(), aqmmodels.Reading{
		Timestamp: ts, Temperature: 20, Humidity: 40, AQI: aqi, GasConcentration: 100,
		Status: aqmmodels.StatusOnline, DeviceID: "ESP32_001",
	})
	require.NoError(t, err)
}

func TestIngestThenLatestRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.ingest.Ingest(ctx, payload(), apiKey, validation.RequestMeta{IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	assert.Equal(t, 1, f.repo.inserts)

	latest, err := f.query.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)
	assert.True(t, latest.Timestamp.Equal(res.Reading.Timestamp))
	assert.Equal(t, 25.3, latest.Temperature)
	assert.Equal(t, 55.0, latest.Humidity)
	assert.Equal(t, 42.0, latest.AQI)
	assert.Equal(t, 120.0, latest.GasConcentration)
	assert.Equal(t, aqmmodels.StatusOnline, latest.Status)
	assert.Equal(t, "ESP32_001", latest.DeviceID)

	assert.Equal(t, aqmmodels.LivenessOnline, f.tracker.State())
}

func TestIngestDoesNotWriteOnValidationFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.ingest.Ingest(ctx, payload(), "wrong", validation.RequestMeta{})
	assert.ErrorIs(t, err, validation.ErrUnauthorized)

	p := payload()
	delete(p, "aqi")
	_, err = f.ingest.Ingest(ctx, p, apiKey, validation.RequestMeta{})
	assert.ErrorIs(t, err, validation.ErrMissingFields)

	p = payload()
	p["aqi"] = "abc"
	_, err = f.ingest.Ingest(ctx, p, apiKey, validation.RequestMeta{})
	assert.ErrorIs(t, err, validation.ErrInvalidType)

	assert.Equal(t, 0, f.repo.inserts)
	assert.Equal(t, aqmmodels.LivenessUnknown, f.tracker.State())
}

func TestIngestWrapsStorageFailure(t *testing.T) {
	f := newFixture()
	f.repo.insertErr = errors.New("connection reset")

	_, err := f.ingest.Ingest(context.Background(), payload(), apiKey, validation.RequestMeta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, f.repo.inserts)
}

func TestLatestOnEmptyStore(t *testing.T) {
	f := newFixture()
	_, err := f.query.Latest(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRangeFiltersWindowAndCaps(t *testing.T) {
	f := newFixture()
	for i := 1; i <= 5; i++ {
		seed(t, f.repo, now.Add(-time.Duration(i)*time.Minute), float64(i))
	}
	for i := 1; i <= 3; i++ {
		seed(t, f.repo, now.Add(-30*time.Hour-time.Duration(i)*time.Minute), 999)
	}

	rr, err := f.query.Range(context.Background(), 24, 1000)
	require.NoError(t, err)
	require.Len(t, rr.Readings, 5)
	for i := 1; i < len(rr.Readings); i++ {
		assert.False(t, rr.Readings[i].Timestamp.Before(rr.Readings[i-1].Timestamp))
	}
	assert.True(t, rr.StartTime.Equal(now.Add(-24*time.Hour)))
	assert.True(t, rr.EndTime.Equal(now))

	rr, err = f.query.Range(context.Background(), 24, 2)
	require.NoError(t, err)
	assert.Len(t, rr.Readings, 2)
}

func TestRangeLastHourExcludesOlderReadings(t *testing.T) {
	f := newFixture()
	for i := 1; i <= 5; i++ {
		seed(t, f.repo, now.Add(-time.Duration(i*10)*time.Minute), float64(i))
	}
	for i := 1; i <= 3; i++ {
		seed(t, f.repo, now.Add(-time.Duration(i)*5*time.Hour), 999)
	}

	rr, err := f.query.Range(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, rr.Readings, 5)
	for _, r := range rr.Readings {
		assert.NotEqual(t, 999.0, r.AQI)
	}
	assert.Equal(t, []float64{5, 4, 3, 2, 1}, []float64{
		rr.Readings[0].AQI, rr.Readings[1].AQI, rr.Readings[2].AQI, rr.Readings[3].AQI, rr.Readings[4].AQI,
	})
}

func TestRangeWithHugeHoursReturnsEverything(t *testing.T) {
	f := newFixture()
	seed(t, f.repo, now.Add(-30*time.Minute), 1)
	seed(t, f.repo, now.Add(-48*time.Hour), 2)

	hours, limit := f.query.ParseRangeParams("3000000", "")
	rr, err := f.query.Range(context.Background(), hours, limit)
	require.NoError(t, err)
	assert.Len(t, rr.Readings, 2)
	assert.True(t, rr.StartTime.Before(now))

	rr, err = f.query.Range(context.Background(), 3000000, 10)
	require.NoError(t, err)
	assert.Len(t, rr.Readings, 2)
	assert.Equal(t, MaxHours, rr.Hours)
}

func TestRangeOnEmptyStoreIsEmptyNotNil(t *testing.T) {
	f := newFixture()
	rr, err := f.query.Range(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, rr.Readings)
	assert.Empty(t, rr.Readings)
}

func TestRangeWrapsStorageFailure(t *testing.T) {
	f := newFixture()
	f.repo.sinceErr = errors.New("boom")

	_, err := f.query.Range(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestParseRangeParams(t *testing.T) {
	f := newFixture()
	cases := []struct {
		hours, limit         string
		wantHours, wantLimit int
	}{
		{"", "", 24, 1000},
		{"6", "50", 6, 50},
		{"abc", "x", 24, 1000},
		{"0", "-3", 24, 1000},
		{" 12 ", "1.5", 12, 1000},
		{"3000000", "", MaxHours, 1000},
		{"9999999999999", "", MaxHours, 1000},
	}

	for _, tc := range cases {
		h, l := f.query.ParseRangeParams(tc.hours, tc.limit)
		assert.Equal(t, tc.wantHours, h, "hours %q", tc.hours)
		assert.Equal(t, tc.wantLimit, l, "limit %q", tc.limit)
	}
}

func TestHourlyAggregatesRange(t *testing.T) {
	f := newFixture()
	seed(t, f.repo, time.Date(2025, 7, 4, 14, 5, 0, 0, time.UTC), 50)
	seed(t, f.repo, time.Date(2025, 7, 4, 14, 35, 0, 0, time.UTC), 60)
	seed(t, f.repo, time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC), 10)

	hr, err := f.query.Hourly(context.Background(), 24, 1000)
	require.NoError(t, err)
	require.Len(t, hr.Buckets, 2)
	assert.Equal(t, "09", hr.Buckets[0].Hour)
	assert.Equal(t, "14", hr.Buckets[1].Hour)
	assert.Equal(t, 55.0, hr.Buckets[1].AvgAQI)
	assert.Equal(t, aggregation.HourOfDay, hr.Mode)
}

func TestStatusUsesNewestStoredReading(t *testing.T) {
	f := newFixture()

	st, err := f.query.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, aqmmodels.LivenessUnknown, st.Liveness)
	assert.Nil(t, st.Latest)

	seed(t, f.repo, now.Add(-5*time.Minute), 80)
	st, err = f.query.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, aqmmodels.LivenessOffline, st.Liveness)
	require.NotNil(t, st.LastReadingAt)
	assert.True(t, st.LastReadingAt.Equal(now.Add(-5*time.Minute)))
	assert.Equal(t, 2*time.Minute, st.StaleAfter)
}
