package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Client/client"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	aqmingestor "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.IngestorService/ingestor"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	simulator "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Simulator"
)

// Sink delivers one device payload
type Sink interface {
	Send(ctx context.Context, payload map[string]interface{}) error
	Close()
}

type httpSink struct {
	api    *client.APIClient
	apiKey string
}

func newHTTPSink(cfg config.ClientConfig) *httpSink {
	return &httpSink{api: client.NewAPIClient(cfg), apiKey: cfg.APIKey}
}

func (s *httpSink) Send(ctx context.Context, payload map[string]interface{}) error {
	_, err := s.api.Ingest(ctx, payload, s.apiKey)
	return err
}

func (s *httpSink) Close() {}

type mqttSink struct {
	client mqtt.Client
	topic  string
	apiKey string
}

// newMQTTSink connects to the broker and publishes to the readings topic of deviceID
func newMQTTSink(cfg config.MQTTConfig, deviceID, apiKey string) (*mqttSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.GetMQTTBrokerURL()).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetPingTimeout(cfg.PingTimeout).
		SetAutoReconnect(true)

	if cfg.BrokerUser != "" {
		opts.SetUsername(cfg.BrokerUser)
		opts.SetPassword(cfg.BrokerPass)
	}
	if cfg.UseTLS {
		tlsCfg, err := aqmingestor.TLSConfig(cfg.CACertPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	c := mqtt.NewClient(opts)
	if tk := c.Connect(); tk.WaitTimeout(10*time.Second) && tk.Error() != nil {
		return nil, tk.Error()
	}
	if !c.IsConnected() {
		return nil, fmt.Errorf("timed out connecting to %s", cfg.GetMQTTBrokerURL())
	}

	return &mqttSink{client: c, topic: ReadingsTopic(cfg.Topic, deviceID), apiKey: apiKey}, nil
}

// ReadingsTopic fills the first single-level wildcard of pattern with deviceID
func ReadingsTopic(pattern, deviceID string) string {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '+' {
			return pattern[:i] + deviceID + pattern[i+1:]
		}
	}
	return pattern
}

func (s *mqttSink) Send(ctx context.Context, payload map[string]interface{}) error {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if s.apiKey != "" {
		body["apiKey"] = s.apiKey
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, 1, false, raw)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *mqttSink) Close() {
	s.client.Disconnect(250)
}

// emit sends count payloads (0 means until ctx is done) every interval
func emit(ctx context.Context, sink Sink, gen *simulator.Generator, interval time.Duration, count int, log *logger.Logger) (sent, failed int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		payload := gen.Payload()
		if err := sink.Send(ctx, payload); err != nil {
			failed++
			log.Logger.Warn().Err(err).Msg("Failed to send reading")
		} else {
			sent++
			log.Logger.Info().
				Interface("aqi", payload["aqi"]).
				Interface("temperature", payload["temperature"]).
				Msg("Reading sent")
		}

		if count > 0 && sent+failed >= count {
			return sent, failed
		}

		select {
		case <-ctx.Done():
			return sent, failed
		case <-ticker.C:
		}
	}
}
