package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Client/client"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Client/poller"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	airquality "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/airquality"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	simulator "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Simulator"
)

func main() {
	mode := flag.String("mode", "http", "transport: http or mqtt")
	deviceID := flag.String("device", "ESP32_001", "device id reported in every reading")
	interval := flag.Duration("interval", 5*time.Second, "time between readings")
	count := flag.Int("count", 0, "readings to send, 0 runs until interrupted")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	watch := flag.Duration("watch", 0, "also poll /current at this interval and log what the dashboard shows")
	flag.Parse()

	log := logger.NewLogger(&config.LoggingConfig{Level: "info", Format: "text"}).WithComponent("device-simulator")
	clientCfg := config.LoadClientConfig()

	var sink Sink
	switch *mode {
	case "http":
		sink = newHTTPSink(clientCfg)
	case "mqtt":
		s, err := newMQTTSink(config.LoadMQTT("aqm-sim-"+*deviceID), *deviceID, clientCfg.APIKey)
		if err != nil {
			log.FatalWithError(err, "Failed to connect to MQTT broker")
		}
		sink = s
	default:
		log.Logger.Fatal().Str("mode", *mode).Msg("Unknown mode, expected http or mqtt")
	}
	defer sink.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *watch > 0 {
		p := poller.New(client.NewAPIClient(clientCfg), *watch, log)
		p.OnUpdate(func(s poller.Snapshot) {
			switch {
			case !s.Connected:
				log.Logger.Warn().Err(s.LastError).Msg("Dashboard offline")
			case s.Reading == nil:
				log.Info("Dashboard connected, waiting for data")
			default:
				log.Logger.Info().
					Time("timestamp", s.Reading.Timestamp).
					Float64("aqi", s.Reading.AQI).
					Str("category", airquality.Categorize(s.Reading.AQI).Label).
					Msg("Dashboard shows")
			}
		})
		p.Start(ctx)
		defer p.Stop()
	}

	log.Logger.Info().Str("mode", *mode).Str("device_id", *deviceID).Dur("interval", *interval).Msg("Simulating device")
	sent, failed := emit(ctx, sink, simulator.NewGenerator(*deviceID, *seed), *interval, *count, log)
	log.Logger.Info().Int("sent", sent).Int("failed", failed).Msg("Simulation finished")

	if sent == 0 && failed > 0 {
		os.Exit(1)
	}
}
