package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Client/client"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
)

// Source fetches the newest reading
type Source interface {
	Current(ctx context.Context) (*api_models.CurrentReading, error)
}

// Snapshot is what a dashboard renders: the last applied reading plus connection state
type Snapshot struct {
	Reading   *api_models.CurrentReading
	Connected bool
	Awaiting  bool // the server has no readings yet
	LastError error
	UpdatedAt time.Time
}

// Poller polls a Source on a fixed interval from a single goroutine. A
// response older than the applied reading is dropped. On failure the cached
// reading is kept and the connection is marked offline.
type Poller struct {
	src      Source
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger

	mu       sync.RWMutex
	snap     Snapshot
	onUpdate func(Snapshot)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(src Source, interval time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		src:      src,
		interval: interval,
		timeout:  interval,
		logger:   log.WithComponent("poller"),
		stopCh:   make(chan struct{}),
	}
}

// OnUpdate registers a callback run after every poll
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Snapshot returns the current state
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// PollOnce fetches and applies one response
func (p *Poller) PollOnce(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	r, err := p.src.Current(ctx)
	return p.apply(r, err, time.Now())
}

func (p *Poller) apply(r *api_models.CurrentReading, err error, at time.Time) Snapshot {
	p.mu.Lock()
	switch {
	case errors.Is(err, client.ErrNoData):
		p.snap.Connected = true
		p.snap.Awaiting = p.snap.Reading == nil
		p.snap.LastError = nil
	case err != nil:
		if p.snap.Connected {
			p.logger.WithError(err).Warn("Lost connection to dashboard API, keeping last reading")
		}
		p.snap.Connected = false
		p.snap.LastError = err
	default:
		p.snap.Connected = true
		p.snap.Awaiting = false
		p.snap.LastError = nil
		if p.snap.Reading != nil && r.Timestamp.Before(p.snap.Reading.Timestamp) {
			p.logger.Logger.Debug().
				Time("received", r.Timestamp).
				Time("applied", p.snap.Reading.Timestamp).
				Msg("Dropping out-of-order reading")
		} else {
			p.snap.Reading = r
		}
	}
	p.snap.UpdatedAt = at
	snap := p.snap
	fn := p.onUpdate
	p.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return snap
}

// Start polls immediately and then every interval until ctx is done or Stop is called
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.PollOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.PollOnce(ctx)
			}
		}
	}()
}

// Stop clears the ticker. A poll already in flight completes first.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
