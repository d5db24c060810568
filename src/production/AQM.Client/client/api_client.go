package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
)

var (
	// ErrCircuitOpen is returned without calling the API while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrNoData is returned by Current before the first reading was stored
	ErrNoData = errors.New("no sensor readings yet")
)

// APIError is a non-2xx answer from the dashboard API
type APIError struct {
	StatusCode int
	Response   api_models.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Message != "" {
		return fmt.Sprintf("API returned status %d: %s (%s)", e.StatusCode, e.Response.Error, e.Response.Message)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Response.Error)
}

// Permanent reports whether retrying the same request cannot succeed
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// APIClient handles communication with the dashboard API
type APIClient struct {
	http           *resty.Client
	apiKey         string
	circuitBreaker *CircuitBreaker
	maxRetries     int
	retryDelay     time.Duration
}

// NewAPIClient creates a new API client
func NewAPIClient(cfg config.ClientConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &APIClient{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "aqm-client"),
		apiKey:         cfg.APIKey,
		circuitBreaker: NewCircuitBreaker(5, 30*time.Second),
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}
}

// retryWithBackoff executes a function with exponential backoff retry logic.
// Permanent API errors are returned immediately and do not count as failures.
func (c *APIClient) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if !c.circuitBreaker.canExecute() {
			return ErrCircuitOpen
		}

		err := operation()
		if err == nil {
			c.circuitBreaker.onSuccess()
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Permanent() {
			c.circuitBreaker.onSuccess()
			return err
		}

		lastErr = err
		c.circuitBreaker.onFailure()

		if attempt == c.maxRetries {
			break
		}

		delay := time.Duration(float64(c.retryDelay) * math.Pow(2, float64(attempt)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// do runs a request and decodes a 2xx body into out, or an error envelope into APIError
func (c *APIClient) do(req *resty.Request, method, path string, out interface{}) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		_ = json.Unmarshal(resp.Body(), &apiErr.Response)
		if apiErr.Response.Error == "" {
			apiErr.Response.Error = http.StatusText(resp.StatusCode())
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ingest posts one sensor payload. An empty apiKey uses the configured key.
func (c *APIClient) Ingest(ctx context.Context, payload map[string]interface{}, apiKey string) (*api_models.IngestResponse, error) {
	if apiKey == "" {
		apiKey = c.apiKey
	}

	var result api_models.IngestResponse
	err := c.retryWithBackoff(ctx, func() error {
		req := c.http.R().
			SetContext(ctx).
			SetHeader("x-api-key", apiKey).
			SetBody(payload)
		return c.do(req, resty.MethodPost, "/api/sensor-data/ingest", &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Current returns the newest reading or ErrNoData
func (c *APIClient) Current(ctx context.Context) (*api_models.CurrentReading, error) {
	var result api_models.CurrentResponse
	err := c.retryWithBackoff(ctx, func() error {
		return c.do(c.http.R().SetContext(ctx), resty.MethodGet, "/api/sensor-data/current", &result)
	})

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, ErrNoData
	}
	return result.Data, nil
}

// Historical returns readings from the last hours, oldest first. Zero values use server defaults.
func (c *APIClient) Historical(ctx context.Context, hours, limit int) (*api_models.HistoricalResponse, error) {
	var result api_models.HistoricalResponse
	err := c.retryWithBackoff(ctx, func() error {
		return c.do(c.rangeRequest(ctx, hours, limit), resty.MethodGet, "/api/sensor-data/historical", &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Hourly returns the hourly rollup of the last hours
func (c *APIClient) Hourly(ctx context.Context, hours, limit int) (*api_models.HourlyResponse, error) {
	var result api_models.HourlyResponse
	err := c.retryWithBackoff(ctx, func() error {
		return c.do(c.rangeRequest(ctx, hours, limit), resty.MethodGet, "/api/sensor-data/hourly", &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns fleet liveness and the air quality summary
func (c *APIClient) Status(ctx context.Context) (*api_models.FleetStatus, error) {
	var result api_models.StatusResponse
	err := c.retryWithBackoff(ctx, func() error {
		return c.do(c.http.R().SetContext(ctx), resty.MethodGet, "/api/sensor-data/status", &result)
	})
	if err != nil {
		return nil, err
	}
	return &result.Data, nil
}

func (c *APIClient) rangeRequest(ctx context.Context, hours, limit int) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if hours > 0 {
		req.SetQueryParam("hours", strconv.Itoa(hours))
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	return req
}

// Health checks if the API Service is healthy
func (c *APIClient) Health(ctx context.Context) error {
	if err := c.do(c.http.R().SetContext(ctx), resty.MethodGet, "/health/live", nil); err != nil {
		return fmt.Errorf("failed to check API health: %w", err)
	}
	return nil
}

// CircuitState returns the breaker state
func (c *APIClient) CircuitState() CircuitBreakerState {
	return c.circuitBreaker.State()
}

// GetCircuitBreakerStatus returns the current circuit breaker status for monitoring
func (c *APIClient) GetCircuitBreakerStatus() map[string]interface{} {
	cb := c.circuitBreaker
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return map[string]interface{}{
		"state":          cb.state.String(),
		"failure_count":  cb.failureCount,
		"last_fail_time": cb.lastFailTime,
		"max_failures":   cb.maxFailures,
		"reset_timeout":  cb.resetTimeout.String(),
	}
}
