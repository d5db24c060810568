package validation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

const testKey = "k-123"

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(testKey, "ESP32_001").WithClock(func() time.Time { return fixedNow })
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"temperature":      25.3,
		"humidity":         float64(55),
		"aqi":              float64(42),
		"gasConcentration": float64(120),
	}
}

func TestValidateAcceptsWellFormedPayload(t *testing.T) {
	v := newTestValidator()

	r, err := v.Validate(validPayload(), testKey, RequestMeta{IPAddress: "10.0.0.7", UserAgent: "curl/8"})
	require.NoError(t, err)

	assert.Equal(t, 25.3, r.Temperature)
	assert.Equal(t, 55.0, r.Humidity)
	assert.Equal(t, 42.0, r.AQI)
	assert.Equal(t, 120.0, r.GasConcentration)
	assert.Equal(t, aqmmodels.StatusOnline, r.Status)
	assert.Equal(t, "ESP32_001", r.DeviceID)
	assert.Equal(t, "10.0.0.7", r.Metadata.IPAddress)
	assert.Equal(t, "curl/8", r.Metadata.UserAgent)
	assert.True(t, r.Timestamp.Equal(fixedNow.Truncate(time.Millisecond)))
}

func TestValidateUsesPayloadDeviceID(t *testing.T) {
	p := validPayload()
	p["deviceId"] = "ESP32_042"

	r, err := newTestValidator().Validate(p, testKey, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "ESP32_042", r.DeviceID)
	assert.Equal(t, "unknown", r.Metadata.IPAddress)
	assert.Equal(t, "ESP32", r.Metadata.UserAgent)
}

func TestValidateFalsyDeviceIDUsesDefault(t *testing.T) {
	cases := map[string]interface{}{
		"json zero":   json.Number("0"),
		"float zero":  float64(0),
		"blank":       "   ",
		"null":        nil,
		"json number": json.Number("17"),
	}
	want := map[string]string{
		"json zero":   "ESP32_001",
		"float zero":  "ESP32_001",
		"blank":       "ESP32_001",
		"null":        "ESP32_001",
		"json number": "17",
	}

	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPayload()
			p["deviceId"] = id
			r, err := newTestValidator().Validate(p, testKey, RequestMeta{})
			require.NoError(t, err)
			assert.Equal(t, want[name], r.DeviceID)
		})
	}
}

func TestValidateAcceptsNumericStrings(t *testing.T) {
	p := map[string]interface{}{
		"temperature":      "25.3",
		"humidity":         json.Number("55"),
		"aqi":              " 42 ",
		"gasConcentration": "1.2e2",
	}

	r, err := newTestValidator().Validate(p, testKey, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 25.3, r.Temperature)
	assert.Equal(t, 55.0, r.Humidity)
	assert.Equal(t, 42.0, r.AQI)
	assert.Equal(t, 120.0, r.GasConcentration)
}

func TestValidateDoesNotClampRanges(t *testing.T) {
	p := validPayload()
	p["aqi"] = float64(900)
	p["humidity"] = float64(-5)

	r, err := newTestValidator().Validate(p, testKey, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 900.0, r.AQI)
	assert.Equal(t, -5.0, r.Humidity)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	_, err := newTestValidator().Validate(validPayload(), "nope", RequestMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Unauthorized - Invalid API key", err.Error())
}

func TestValidateChecksKeyBeforePayload(t *testing.T) {
	_, err := newTestValidator().Validate(map[string]interface{}{"aqi": "x"}, "", RequestMeta{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateFailsClosedWithoutConfiguredKey(t *testing.T) {
	v := NewValidator("", "ESP32_001")
	_, err := v.Validate(validPayload(), "", RequestMeta{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidateListsEveryMissingField(t *testing.T) {
	_, err := newTestValidator().Validate(map[string]interface{}{"humidity": 40}, testKey, RequestMeta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFields)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"temperature", "aqi", "gasConcentration"}, verr.Fields)
	assert.Equal(t, "Missing required fields: temperature, aqi, gasConcentration", err.Error())
}

func TestValidateMissingTakesPrecedenceOverInvalid(t *testing.T) {
	p := validPayload()
	delete(p, "aqi")
	p["temperature"] = "warm"

	_, err := newTestValidator().Validate(p, testKey, RequestMeta{})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestValidateRejectsNonNumericValues(t *testing.T) {
	cases := map[string]interface{}{
		"word":   "abc",
		"empty":  "",
		"null":   nil,
		"bool":   true,
		"object": map[string]interface{}{"v": 1},
		"array":  []interface{}{1.0},
		"nan":    math.NaN(),
		"inf":    "Infinity",
	}

	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPayload()
			p["humidity"] = value

			_, err := newTestValidator().Validate(p, testKey, RequestMeta{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidType)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{"humidity"}, verr.Fields)
			assert.Contains(t, err.Error(), "all values must be numbers")
		})
	}
}

func TestValidateReportsEveryInvalidField(t *testing.T) {
	p := validPayload()
	p["temperature"] = "abc"
	p["gasConcentration"] = false

	_, err := newTestValidator().Validate(p, testKey, RequestMeta{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"temperature", "gasConcentration"}, verr.Fields)
}

func TestParseNumber(t *testing.T) {
	f, ok := ParseNumber(7)
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = ParseNumber("12abc")
	assert.False(t, ok)

	// no prefix parsing: unit suffixes are rejected
	_, ok = ParseNumber("25.5C")
	assert.False(t, ok)

	_, ok = ParseNumber(math.Inf(1))
	assert.False(t, ok)
}
