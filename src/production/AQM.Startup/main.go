package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	container "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Container"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

// Checks that the configured reading store is reachable and optionally seeds it.
func main() {
	seed := flag.Int("seed", 0, "insert this many simulated readings, one minute apart, ending now")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	ctr, err := container.NewContainerFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}
	log := ctr.GetLogger().WithComponent("store-check")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, ctr, *seed, log); err != nil {
		log.ErrorWithError(err, "Store check failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, ctr *container.Container, seed int, log *logger.Logger) error {
	backend := ctr.GetConfig().Store.Backend

	repo, err := ctr.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			log.ErrorWithError(err, "Failed to close store")
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s store: %w", backend, err)
	}
	log.Logger.Info().Str("backend", backend).Msg("Store connection successful")

	if inspector, ok := repo.(interfaces.StoreInspector); ok {
		names, err := inspector.Collections(ctx)
		if err != nil {
			return fmt.Errorf("list collections: %w", err)
		}
		log.Logger.Info().Strs("collections", names).Msg("Available collections")
	}

	if seed > 0 {
		for _, r := range ctr.GetGenerator().Series(seed, time.Minute, time.Now()) {
			if _, err := repo.Insert(ctx, r); err != nil {
				return fmt.Errorf("seed reading: %w", err)
			}
		}
		log.Logger.Info().Int("readings", seed).Msg("Seeded simulated readings")
	}

	latest, err := repo.Latest(ctx)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		log.Info("Store is empty, no sensor readings yet")
	case err != nil:
		return fmt.Errorf("read latest reading: %w", err)
	default:
		log.Logger.Info().
			Time("timestamp", latest.Timestamp).
			Str("device_id", latest.DeviceID).
			Msg("Latest reading")
	}
	return nil
}
