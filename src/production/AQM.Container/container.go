package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/health"
	readings "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/implementation/readings"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/aggregation"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/liveness"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	implementation "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
	simulator "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Simulator"
)

// ErrNotOpen is returned by getters used before Open
var ErrNotOpen = errors.New("container is not open")

// Container manages dependencies and their lifecycle. Construction does no
// I/O; Open connects the store and starts background work, Shutdown undoes it.
type Container struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	repo       interfaces.ReadingRepository
	validator  *validation.Validator
	aggregator *aggregation.Aggregator
	tracker    *liveness.Tracker
	ingest     *readings.IngestService
	query      *readings.QueryService
	generator  *simulator.Generator

	healthChecker *health.HealthChecker

	// Mutex for thread-safe access
	mu     sync.RWMutex
	opened bool

	// Cleanup functions, run in reverse order
	cleanupFuncs []func(ctx context.Context) error
}

// NewContainer creates a new dependency injection container for cfg
func NewContainer(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config:    cfg,
		logger:    log,
		metrics:   metrics.NewMetrics(),
		validator: validation.NewValidator(cfg.Ingest.APIKey, cfg.Ingest.DefaultDeviceID),
		generator: simulator.NewGenerator(cfg.Ingest.DefaultDeviceID, time.Now().UnixNano()),
	}
}

// NewContainerFromEnv loads configuration from the environment and builds the logger
func NewContainerFromEnv() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return NewContainer(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// Open connects the configured store, wires the services, seeds the liveness
// tracker from the newest stored reading and starts its ticker.
func (c *Container) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return nil
	}

	repo, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	c.repo = repo

	loc, err := c.config.Aggregation.Location()
	if err != nil {
		return err
	}
	c.aggregator = aggregation.NewAggregator(aggregation.Mode(c.config.Aggregation.Mode), loc)

	c.tracker = liveness.NewTracker(c.config.Liveness.StaleAfter, c.config.Liveness.CheckInterval, c.logger)
	c.tracker.OnEvaluate(c.metrics.SetLiveness)

	c.ingest = readings.NewIngestService(c.validator, repo, c.tracker, c.metrics, c.logger)
	c.query = readings.NewQueryService(repo, c.aggregator, c.tracker, readings.QueryDefaults{
		Hours: c.config.Query.DefaultHours,
		Limit: c.config.Query.DefaultLimit,
	}, c.metrics, c.logger)
	c.healthChecker = health.NewHealthChecker(c.config.Store.Backend, repo)

	latest, err := repo.Latest(ctx)
	switch {
	case err == nil:
		c.tracker.Observe(latest.Timestamp)
	case errors.Is(err, interfaces.ErrNotFound):
	default:
		c.logger.Logger.Warn().Err(err).Msg("Could not seed liveness from store")
	}

	trackerCtx, cancel := context.WithCancel(context.Background())
	c.tracker.Start(trackerCtx)
	c.cleanupFuncs = append(c.cleanupFuncs, func(context.Context) error {
		cancel()
		c.tracker.Stop()
		return nil
	})

	c.opened = true
	c.logger.Logger.Info().Str("backend", c.config.Store.Backend).Msg("Container opened")
	return nil
}

// OpenStore connects only the reading store. The caller owns the result.
func (c *Container) OpenStore(ctx context.Context) (interfaces.ReadingRepository, error) {
	return c.connectStore(ctx)
}

func (c *Container) openStore(ctx context.Context) (interfaces.ReadingRepository, error) {
	repo, err := c.connectStore(ctx)
	if err != nil {
		return nil, err
	}
	c.cleanupFuncs = append(c.cleanupFuncs, repo.Close)
	return repo, nil
}

func (c *Container) connectStore(ctx context.Context) (interfaces.ReadingRepository, error) {
	store := c.config.Store

	switch store.Backend {
	case config.BackendMongo:
		client, err := health.ConnectMongoWithTimeout(store, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := implementation.NewMongoReadingRepository(client, store.MongoDB, store.Collection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			c.logger.Logger.Warn().Err(err).Msg("Failed to ensure reading indexes")
		}
		return repo, nil

	case config.BackendPostgres:
		db, err := health.ConnectPostgresWithTimeout(c.config, store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := implementation.NewPostgresReadingRepository(db, store.Collection)
		if err := repo.CreateTables(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
		return repo, nil

	case config.BackendMock:
		repo := implementation.NewMemoryReadingRepository()
		if store.MockSeed > 0 {
			for _, r := range c.generator.Series(store.MockSeed, time.Minute, time.Now()) {
				if _, err := repo.Insert(ctx, r); err != nil {
					return nil, err
				}
			}
			c.logger.Logger.Info().Int("readings", store.MockSeed).Msg("Seeded mock reading store")
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", store.Backend)
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

func (c *Container) GetMetrics() *metrics.Metrics {
	return c.metrics
}

func (c *Container) GetValidator() *validation.Validator {
	return c.validator
}

func (c *Container) GetGenerator() *simulator.Generator {
	return c.generator
}

// GetRepository returns the reading store opened by Open
func (c *Container) GetRepository() (interfaces.ReadingRepository, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.opened {
		return nil, ErrNotOpen
	}
	return c.repo, nil
}

// GetStoreInspector returns the store as an inspector when it supports listing collections
func (c *Container) GetStoreInspector() interfaces.StoreInspector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inspector, _ := c.repo.(interfaces.StoreInspector)
	return inspector
}

func (c *Container) GetIngestService() (*readings.IngestService, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.opened {
		return nil, ErrNotOpen
	}
	return c.ingest, nil
}

func (c *Container) GetQueryService() (*readings.QueryService, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.opened {
		return nil, ErrNotOpen
	}
	return c.query, nil
}

func (c *Container) GetTracker() (*liveness.Tracker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.opened {
		return nil, ErrNotOpen
	}
	return c.tracker, nil
}

// GetHealthChecker returns the health checker
func (c *Container) GetHealthChecker() (*health.HealthChecker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.opened {
		return nil, ErrNotOpen
	}
	return c.healthChecker, nil
}

// HealthCheck performs a comprehensive health check
func (c *Container) HealthCheck(ctx context.Context) map[string]interface{} {
	healthChecker, err := c.GetHealthChecker()
	if err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	return healthChecker.GetHealthStatus(ctx)
}

// LivenessState is a convenience for callers that only need the current state
func (c *Container) LivenessState() aqmmodels.LivenessState {
	tracker, err := c.GetTracker()
	if err != nil {
		return aqmmodels.LivenessUnknown
	}
	return tracker.State()
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Shutting down container...")

	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](ctx); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
			errs = append(errs, err)
		}
	}
	c.cleanupFuncs = nil
	c.opened = false

	c.logger.Info("Container shutdown complete")
	return errors.Join(errs...)
}
