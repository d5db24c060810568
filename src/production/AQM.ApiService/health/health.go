package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
)

// Pinger is anything whose connectivity can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	backend string
	store   Pinger
	timeout time.Duration
}

// NewHealthChecker creates a new health checker for the configured store
func NewHealthChecker(backend string, store Pinger) *HealthChecker {
	return &HealthChecker{backend: backend, store: store, timeout: 3 * time.Second}
}

// PingStore checks if the reading store is reachable
func (h *HealthChecker) PingStore(ctx context.Context) error {
	if h.store == nil {
		return fmt.Errorf("reading store is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.store.Ping(ctx)
}

// GetHealthStatus returns the current health status
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	check := map[string]interface{}{"backend": h.backend, "status": "ok"}
	status := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    map[string]interface{}{"store": check},
		"status":    "ok",
	}

	if err := h.PingStore(ctx); err != nil {
		check["status"] = "error"
		check["error"] = err.Error()
		status["status"] = "degraded"
	}

	return status
}

// ConnectPostgresWithTimeout creates a PostgreSQL connection with a timeout context
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Store.Postgres.MaxConns)
	db.SetMaxIdleConns(cfg.Store.Postgres.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
