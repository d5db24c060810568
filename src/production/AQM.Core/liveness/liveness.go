package liveness

import (
	"context"
	"sync"
	"time"

	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// Status derives fleet liveness from the newest reading timestamp.
// A gap exactly equal to the threshold still counts as online.
func Status(last *time.Time, now time.Time, threshold time.Duration) aqmmodels.LivenessState {
	if last == nil {
		return aqmmodels.LivenessUnknown
	}
	if now.Sub(*last) > threshold {
		return aqmmodels.LivenessOffline
	}
	return aqmmodels.LivenessOnline
}

// Tracker keeps the last-seen reading time and re-evaluates liveness on a
// fixed interval and on every observed reading.
type Tracker struct {
	mu        sync.RWMutex
	last      *time.Time
	state     aqmmodels.LivenessState
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
	onEvaluate  []func(aqmmodels.LivenessState)
	logger    *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewTracker(threshold, interval time.Duration, log *logger.Logger) *Tracker {
	return &Tracker{
		state:     aqmmodels.LivenessUnknown,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
		logger:    log.WithComponent("liveness"),
		stopCh:    make(chan struct{}),
	}
}

// WithClock replaces the clock, used by tests
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// OnEvaluate registers a callback invoked after every evaluation with the current state
func (t *Tracker) OnEvaluate(fn func(aqmmodels.LivenessState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvaluate = append(t.onEvaluate, fn)
}

// Observe records a reading timestamp. Older timestamps never move last-seen backwards.
func (t *Tracker) Observe(ts time.Time) aqmmodels.LivenessState {
	t.mu.Lock()
	if t.last == nil || ts.After(*t.last) {
		seen := ts
		t.last = &seen
	}
	t.mu.Unlock()
	return t.Evaluate()
}

// Evaluate recomputes the state, logging transitions
func (t *Tracker) Evaluate() aqmmodels.LivenessState {
	t.mu.Lock()
	prev := t.state
	next := Status(t.last, t.now(), t.threshold)
	t.state = next
	var last time.Time
	if t.last != nil {
		last = *t.last
	}
	callbacks := append([]func(aqmmodels.LivenessState){}, t.onEvaluate...)
	t.mu.Unlock()

	if prev != next {
		ev := t.logger.Logger.Info()
		if next == aqmmodels.LivenessOffline {
			ev = t.logger.Logger.Warn()
		}
		if !last.IsZero() {
			ev = ev.Time("last_reading_at", last)
		}
		ev.Str("from", string(prev)).Str("to", string(next)).Msg("Sensor liveness changed")
	}
	for _, fn := range callbacks {
		fn(next)
	}
	return next
}

func (t *Tracker) State() aqmmodels.LivenessState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// LastSeen returns a copy of the last observed timestamp, nil when nothing was seen
func (t *Tracker) LastSeen() *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil
	}
	ts := *t.last
	return &ts
}

func (t *Tracker) Threshold() time.Duration {
	return t.threshold
}

// Start evaluates immediately and then on every interval until ctx is done or Stop is called
func (t *Tracker) Start(ctx context.Context) {
	t.Evaluate()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.Evaluate()
			}
		}
	}()
}

// Stop halts the ticker goroutine and waits for it to exit
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}
