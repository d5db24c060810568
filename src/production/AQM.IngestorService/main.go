package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Client/client"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	aqmingestor "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.IngestorService/ingestor"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
)

func main() {
	cfg, err := config.LoadBridgeConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	log := logger.NewLogger(&cfg.Logging)
	log.Info("Starting MQTT bridge service")

	m := metrics.NewMetrics()
	apiClient := client.NewAPIClient(cfg.Client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing := aqmingestor.New(cfg.MQTT, cfg.QueueSize, cfg.Client.APIKey, apiClient, m, log)
	if err := ing.Start(ctx); err != nil {
		log.FatalWithError(err, "Failed to start MQTT bridge")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      healthRouter(ing, apiClient, m),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("Health server starting on port " + cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.FatalWithError(err, "Failed to start health server")
		}
	}()

	log.Info("MQTT bridge running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down...")
	ing.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithError(err, "Health server forced to shutdown")
	}
}

func healthRouter(ing *aqmingestor.Ingestor, apiClient *client.APIClient, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		mqttStatus := "disconnected"
		if ing.IsConnected() {
			mqttStatus = "connected"
		}

		apiStatus := "disconnected"
		if err := apiClient.Health(ctx); err == nil {
			apiStatus = "connected"
		}

		status, code := "healthy", http.StatusOK
		if mqttStatus != "connected" || apiStatus != "connected" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": gin.H{
				"mqtt":        mqttStatus,
				"api_service": apiStatus,
			},
			"queue_depth":     ing.QueueDepth(),
			"circuit_breaker": apiClient.GetCircuitBreakerStatus(),
		})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	return router
}
