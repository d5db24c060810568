package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidType   = errors.New("invalid data types")
)

// RequiredFields lists the payload keys every reading must carry, in reporting order
var RequiredFields = []string{"temperature", "humidity", "aqi", "gasConcentration"}

const (
	unknownIP        = "unknown"
	defaultUserAgent = "ESP32"
)

// ValidationError is returned for every rejected payload. Kind is one of the
// package sentinels so callers can match with errors.Is.
type ValidationError struct {
	Kind   error
	Fields []string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrUnauthorized:
		return "Unauthorized - Invalid API key"
	case ErrMissingFields:
		return "Missing required fields: " + strings.Join(e.Fields, ", ")
	case ErrInvalidType:
		return fmt.Sprintf("Invalid data types - all values must be numbers (invalid: %s)", strings.Join(e.Fields, ", "))
	default:
		return e.Kind.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// RequestMeta is the network information captured alongside a payload
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Validator authenticates device payloads and turns them into readings
type Validator struct {
	apiKey          string
	defaultDeviceID string
	now             func() time.Time
}

func NewValidator(apiKey, defaultDeviceID string) *Validator {
	return &Validator{
		apiKey:          apiKey,
		defaultDeviceID: defaultDeviceID,
		now:             time.Now,
	}
}

// WithClock replaces the clock used to stamp readings
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Authenticate compares the presented key with the shared secret. An unset
// secret rejects everything.
func (v *Validator) Authenticate(apiKey string) error {
	if v.apiKey == "" || apiKey != v.apiKey {
		return &ValidationError{Kind: ErrUnauthorized}
	}
	return nil
}

// Validate authenticates the caller first, then checks presence and type of
// every required field. No range checks are applied.
func (v *Validator) Validate(payload map[string]interface{}, apiKey string, meta RequestMeta) (aqmmodels.Reading, error) {
	if err := v.Authenticate(apiKey); err != nil {
		return aqmmodels.Reading{}, err
	}

	var missing []string
	for _, field := range RequiredFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return aqmmodels.Reading{}, &ValidationError{Kind: ErrMissingFields, Fields: missing}
	}

	values := make(map[string]float64, len(RequiredFields))
	var invalid []string
	for _, field := range RequiredFields {
		f, ok := ParseNumber(payload[field])
		if !ok {
			invalid = append(invalid, field)
			continue
		}
		values[field] = f
	}
	if len(invalid) > 0 {
		return aqmmodels.Reading{}, &ValidationError{Kind: ErrInvalidType, Fields: invalid}
	}

	return aqmmodels.Reading{
		Timestamp:        v.now().UTC().Truncate(time.Millisecond),
		Temperature:      values["temperature"],
		Humidity:         values["humidity"],
		AQI:              values["aqi"],
		GasConcentration: values["gasConcentration"],
		Status:           aqmmodels.StatusOnline,
		DeviceID:         v.deviceID(payload["deviceId"]),
		Metadata: aqmmodels.ReadingMetadata{
			IPAddress: orDefault(meta.IPAddress, unknownIP),
			UserAgent: orDefault(meta.UserAgent, defaultUserAgent),
		},
	}, nil
}

// ParseNumber accepts JSON numbers and numeric strings. Non-finite results are rejected.
func ParseNumber(v interface{}) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, err = strconv.ParseFloat(n.String(), 64)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (v *Validator) deviceID(raw interface{}) string {
	switch id := raw.(type) {
	case string:
		if s := strings.TrimSpace(id); s != "" {
			return s
		}
	case json.Number:
		if f, err := id.Float64(); err != nil || f != 0 {
			return id.String()
		}
	case float64:
		if id != 0 {
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	return v.defaultDeviceID
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
