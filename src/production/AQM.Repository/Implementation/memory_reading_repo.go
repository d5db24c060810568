package implementation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

// MemoryReadingRepository keeps readings in process memory. It backs the mock
// data source and the tests; nothing survives a restart.
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings []aqmmodels.Reading // ascending by timestamp
}

func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{}
}

func (r *MemoryReadingRepository) Insert(_ context.Context, rd aqmmodels.Reading) (string, error) {
	rd.ID = uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	// equal timestamps keep insertion order
	i := sort.Search(len(r.readings), func(i int) bool {
		return r.readings[i].Timestamp.After(rd.Timestamp)
	})
	r.readings = append(r.readings, aqmmodels.Reading{})
	copy(r.readings[i+1:], r.readings[i:])
	r.readings[i] = rd

	return rd.ID, nil
}

func (r *MemoryReadingRepository) Latest(_ context.Context) (*aqmmodels.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.readings) == 0 {
		return nil, interfaces.ErrNotFound
	}
	rd := r.readings[len(r.readings)-1]
	return &rd, nil
}

func (r *MemoryReadingRepository) Since(_ context.Context, since time.Time, limit int) ([]aqmmodels.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := sort.Search(len(r.readings), func(i int) bool {
		return !r.readings[i].Timestamp.Before(since)
	})
	end := len(r.readings)
	if n := clampLimit(limit); end-start > n {
		end = start + n
	}

	out := make([]aqmmodels.Reading, end-start)
	copy(out, r.readings[start:end])
	return out, nil
}

// Len reports how many readings are held
func (r *MemoryReadingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings)
}

func (r *MemoryReadingRepository) Ping(_ context.Context) error {
	return nil
}

func (r *MemoryReadingRepository) Close(_ context.Context) error {
	return nil
}

func (r *MemoryReadingRepository) Collections(_ context.Context) ([]string, error) {
	return []string{"memory"}, nil
}
