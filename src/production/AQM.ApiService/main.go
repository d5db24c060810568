package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/controllers"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/middleware"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	container "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Container"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewContainerFromEnv()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}

	logger := ctr.GetLogger()
	cfg := ctr.GetConfig()
	logger.Logger.Info().Str("backend", cfg.Store.Backend).Str("aggregation", cfg.Aggregation.Mode).Msg("Starting AQM dashboard API")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.ConnectTimeout+10*time.Second)
	if err := ctr.Open(ctx); err != nil {
		cancel()
		logger.FatalWithError(err, "Failed to open reading store")
	}
	cancel()
	defer ctr.Shutdown(context.Background())

	ingestService, _ := ctr.GetIngestService()
	queryService, _ := ctr.GetQueryService()
	healthChecker, _ := ctr.GetHealthChecker()
	m := ctr.GetMetrics()

	if cfg.Logging.Format == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(m.GinMiddleware())

	// Configure CORS from config
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// Create controllers and register routes
	sensorController := controllers.NewSensorController(ingestService, queryService, ctr.GetValidator(), m, logger)
	healthController := controllers.NewHealthController(healthChecker, ctr.GetStoreInspector(), cfg.Store.Backend, storeDatabase(cfg), m, logger)

	sensorController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)
	if cfg.Store.Backend == config.BackendMock {
		controllers.NewMockSensorController(ctr.GetGenerator()).RegisterRoutes(router)
	}

	port := cfg.Server.Port

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("API service running... press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}

func storeDatabase(cfg *config.Config) string {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		return cfg.Store.MongoDB
	case config.BackendPostgres:
		return cfg.Store.Postgres.DBName
	}
	return ""
}
