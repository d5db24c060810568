package readings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/aggregation"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/liveness"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

// defaultStaleAfter applies when no liveness tracker is wired
const defaultStaleAfter = 2 * time.Minute

// QueryDefaults are applied when range parameters are absent or unusable
type QueryDefaults struct {
	Hours int
	Limit int
}

// RangeResult is a window of readings, oldest first
type RangeResult struct {
	Readings  []aqmmodels.Reading
	Hours     int
	Limit     int
	StartTime time.Time
	EndTime   time.Time
}

// HourlyResult is a window of readings rolled up per hour
type HourlyResult struct {
	RangeResult
	Buckets []aqmmodels.HourlyBucket
	Mode    aggregation.Mode
}

// StatusReport summarises fleet liveness together with the newest reading
type StatusReport struct {
	Liveness      aqmmodels.LivenessState
	LastReadingAt *time.Time
	StaleAfter    time.Duration
	Latest        *aqmmodels.Reading
}

// QueryService answers the read side of the dashboard
type QueryService struct {
	repo       interfaces.ReadingRepository
	aggregator *aggregation.Aggregator
	tracker    *liveness.Tracker
	defaults   QueryDefaults
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewQueryService(repo interfaces.ReadingRepository, aggregator *aggregation.Aggregator, tracker *liveness.Tracker, defaults QueryDefaults, m *metrics.Metrics, log *logger.Logger) *QueryService {
	if defaults.Hours <= 0 {
		defaults.Hours = 24
	}
	if defaults.Limit <= 0 {
		defaults.Limit = 1000
	}
	return &QueryService{
		repo:       repo,
		aggregator: aggregator,
		tracker:    tracker,
		defaults:   defaults,
		now:        time.Now,
		metrics:    m,
		logger:     log.WithComponent("query"),
	}
}

// WithClock replaces the clock used to compute query windows
func (s *QueryService) WithClock(now func() time.Time) *QueryService {
	s.now = now
	return s
}

// Latest returns the newest reading. interfaces.ErrNotFound is passed through.
func (s *QueryService) Latest(ctx context.Context) (*aqmmodels.Reading, error) {
	start := time.Now()
	r, err := s.repo.Latest(ctx)
	s.metrics.StoreOperation("latest", time.Since(start))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return r, nil
}

// MaxHours is the widest window a time.Duration can express. Larger requests are clamped to it.
const MaxHours = int(math.MaxInt64 / int64(time.Hour))

// ParseRangeParams turns raw query values into hours and limit. Missing,
// unparsable and non-positive values fall back to the defaults.
func (s *QueryService) ParseRangeParams(hoursRaw, limitRaw string) (hours, limit int) {
	hours = positiveOr(hoursRaw, s.defaults.Hours)
	if hours > MaxHours {
		hours = MaxHours
	}
	return hours, positiveOr(limitRaw, s.defaults.Limit)
}

// Range returns readings with timestamp >= now - hours, ascending, at most limit
func (s *QueryService) Range(ctx context.Context, hours, limit int) (*RangeResult, error) {
	if hours <= 0 {
		hours = s.defaults.Hours
	}
	if hours > MaxHours {
		hours = MaxHours
	}
	if limit <= 0 {
		limit = s.defaults.Limit
	}

	end := s.now()
	since := end.Add(-time.Duration(hours) * time.Hour)

	start := time.Now()
	rs, err := s.repo.Since(ctx, since, limit)
	s.metrics.StoreOperation("since", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if rs == nil {
		rs = []aqmmodels.Reading{}
	}

	return &RangeResult{
		Readings:  rs,
		Hours:     hours,
		Limit:     limit,
		StartTime: since,
		EndTime:   end,
	}, nil
}

// Hourly runs Range and aggregates the result per hour label
func (s *QueryService) Hourly(ctx context.Context, hours, limit int) (*HourlyResult, error) {
	rr, err := s.Range(ctx, hours, limit)
	if err != nil {
		return nil, err
	}
	return &HourlyResult{
		RangeResult: *rr,
		Buckets:     s.aggregator.Aggregate(rr.Readings),
		Mode:        s.aggregator.Mode(),
	}, nil
}

// Status reports liveness from the tracker and attaches the newest reading if any
func (s *QueryService) Status(ctx context.Context) (*StatusReport, error) {
	latest, err := s.Latest(ctx)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	report := &StatusReport{Latest: latest}
	if s.tracker != nil {
		if latest != nil {
			s.tracker.Observe(latest.Timestamp)
		}
		report.Liveness = s.tracker.Evaluate()
		report.LastReadingAt = s.tracker.LastSeen()
		report.StaleAfter = s.tracker.Threshold()
		return report, nil
	}

	if latest != nil {
		ts := latest.Timestamp
		report.LastReadingAt = &ts
	}
	report.StaleAfter = defaultStaleAfter
	report.Liveness = liveness.Status(report.LastReadingAt, s.now(), defaultStaleAfter)
	return report, nil
}

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
