package interfaces

import (
	"context"
	"errors"
	"time"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// ErrNotFound is returned by Latest when the store holds no readings yet
var ErrNotFound = errors.New("no sensor readings found")

// ReadingRepository is the durable, append-only collection of sensor readings
type ReadingRepository interface {
	// Insert appends one reading and returns its store generated id
	Insert(ctx context.Context, r aqmmodels.Reading) (string, error)

	// Latest returns the most recently timestamped reading or ErrNotFound
	Latest(ctx context.Context) (*aqmmodels.Reading, error)

	// Since returns readings with timestamp >= since, oldest first, at most limit entries
	Since(ctx context.Context, since time.Time, limit int) ([]aqmmodels.Reading, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// StoreInspector is implemented by stores that can list their collections or tables
type StoreInspector interface {
	Collections(ctx context.Context) ([]string, error)
}
