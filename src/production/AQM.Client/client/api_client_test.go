package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
)

func newClient(url string, retries int) *APIClient {
	return NewAPIClient(config.ClientConfig{
		BaseURL:    url,
		APIKey:     "default-key",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
	})
}

func TestIngestSendsKeyAndPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sensor-data/ingest", r.URL.Path)
		assert.Equal(t, "default-key", r.Header.Get("x-api-key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 42.0, body["aqi"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","id":"abc","timestamp":"2025-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	res, err := newClient(srv.URL, 0).Ingest(context.Background(), map[string]interface{}{"aqi": 42}, "")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.ID)
}

func TestIngestDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"Missing required fields: aqi","fields":["aqi"]}`))
	}))
	defer srv.Close()

	c := newClient(srv.URL, 3)
	_, err := c.Ingest(context.Background(), map[string]interface{}{}, "k")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"aqi"}, apiErr.Response.Fields)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, StateClosed, c.CircuitState())
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"1","timestamp":"2025-01-01T00:00:00Z","aqi":12,"status":"online"},"message":"ok"}`))
	}))
	defer srv.Close()

	r, err := newClient(srv.URL, 3).Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.0, r.AQI)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCurrentMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"No data available"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, 2).Current(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestHistoricalSendsRangeParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "6", r.URL.Query().Get("hours"))
		assert.Equal(t, "", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[],"meta":{"count":0,"hours":6,"limit":1000},"message":"ok"}`))
	}))
	defer srv.Close()

	res, err := newClient(srv.URL, 0).Historical(context.Background(), 6, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Meta.Hours)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(srv.URL, 4)
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateOpen, c.CircuitState())

	_, err = c.Status(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "open", c.GetCircuitBreakerStatus()["state"])
}

func TestCircuitBreakerHalfOpenAdmitsOneTrialCall(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.onFailure()
	assert.False(t, cb.canExecute())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.canExecute())
	assert.Equal(t, StateHalfOpen, cb.State())
	// a single trial call at a time while half-open
	assert.False(t, cb.canExecute())
	assert.False(t, cb.canExecute())

	cb.onFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	require.True(t, cb.canExecute())
	assert.False(t, cb.canExecute())
	cb.onSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.canExecute())
	assert.True(t, cb.canExecute())
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/live", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	assert.NoError(t, newClient(srv.URL, 0).Health(context.Background()))
}
