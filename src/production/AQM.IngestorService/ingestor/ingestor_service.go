package aqmingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Client/client"
	config "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Config"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
)

// Bridge outcomes recorded on aqm_bridge_messages_total
const (
	ResultForwarded = "forwarded"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"
	ResultMalformed = "malformed"
)

// Forwarder delivers ingest payloads to the dashboard API
type Forwarder interface {
	Ingest(ctx context.Context, payload map[string]interface{}, apiKey string) (*api_models.IngestResponse, error)
	CircuitState() client.CircuitBreakerState
}

type Ingestor struct {
	cfg        config.MQTTConfig
	apiKey     string
	forwarder  Forwarder
	mqttClient mqtt.Client
	publish    func(topic string, payload []byte) error
	metrics    *metrics.Metrics
	logger     *logger.Logger

	mu     sync.Mutex
	closed bool
	msgCh  chan Message
	wg     sync.WaitGroup
}

// New creates a bridge. apiKey is used for payloads that carry none.
func New(cfg config.MQTTConfig, queueSize int, apiKey string, fwd Forwarder, m *metrics.Metrics, log *logger.Logger) *Ingestor {
	if queueSize <= 0 {
		queueSize = 1
	}
	i := &Ingestor{
		cfg:       cfg,
		apiKey:    apiKey,
		forwarder: fwd,
		msgCh:     make(chan Message, queueSize),
		metrics:   m,
		logger:    log.WithComponent("mqtt-bridge"),
	}
	i.publish = i.mqttPublish
	return i
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.cfg.GetMQTTBrokerURL()).
		SetClientID(i.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.cfg.KeepAlive).
		SetPingTimeout(i.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.cfg.BrokerUser != "" {
		opts.SetUsername(i.cfg.BrokerUser)
		opts.SetPassword(i.cfg.BrokerPass)
	}

	if i.cfg.UseTLS {
		tlsCfg, err := TLSConfig(i.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.subscription()
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)
	if tk := i.mqttClient.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	i.startForwarder(ctx)
	return nil
}

// Stop disconnects from the broker and waits for queued messages to be forwarded
func (i *Ingestor) Stop() {
	if i.mqttClient != nil && i.mqttClient.IsConnected() {
		i.mqttClient.Disconnect(500)
	}

	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.msgCh)
	}
	i.mu.Unlock()
	i.wg.Wait()
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

// QueueDepth returns the number of messages waiting to be forwarded
func (i *Ingestor) QueueDepth() int {
	return len(i.msgCh)
}

func (i *Ingestor) subscription() string {
	if i.cfg.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", i.cfg.SharedGroup, i.cfg.Topic)
	}
	return i.cfg.Topic
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.handle(m.Topic(), m.Payload())
}

func (i *Ingestor) handle(topic string, body []byte) {
	i.logger.Logger.Debug().Str("topic", topic).Int("bytes", len(body)).Msg("Received MQTT message")

	msg, err := ParseMessage(i.cfg.Topic, topic, body, i.apiKey, time.Now().UTC())
	if err != nil {
		i.logger.Logger.Warn().Err(err).Str("topic", topic).Msg("Discarding malformed message")
		i.metrics.BridgeMessage(ResultMalformed)
		i.publishError(msg.DeviceID, "malformed_message", err.Error())
		return
	}

	if !i.enqueue(msg) {
		i.logger.Logger.Warn().Str("device_id", msg.DeviceID).Msg("Forward queue full, dropping reading")
		i.metrics.BridgeMessage(ResultDropped)
		i.publishError(msg.DeviceID, "queue_full", "Bridge is overloaded, reading dropped")
	}
}

func (i *Ingestor) enqueue(msg Message) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	select {
	case i.msgCh <- msg:
		return true
	default:
		return false
	}
}

func (i *Ingestor) startForwarder(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-i.msgCh:
				if !ok {
					return
				}
				i.forward(ctx, msg)
			}
		}
	}()
}

func (i *Ingestor) forward(ctx context.Context, msg Message) {
	log := i.logger.WithDevice(msg.DeviceID)

	resp, err := i.forwarder.Ingest(ctx, msg.Payload, msg.APIKey)
	i.metrics.SetCircuitBreakerState(float64(i.forwarder.CircuitState()))

	var apiErr *client.APIError
	switch {
	case err == nil:
		i.metrics.BridgeMessage(ResultForwarded)
		log.Logger.Debug().Str("id", resp.ID).Msg("Reading forwarded")
	case errors.As(err, &apiErr) && apiErr.Permanent():
		i.metrics.BridgeMessage(ResultRejected)
		log.Logger.Warn().Err(err).Msg("Reading rejected by API")
		i.publishError(msg.DeviceID, rejectionType(apiErr.StatusCode), rejectionMessage(apiErr))
	case errors.Is(err, client.ErrCircuitOpen):
		i.metrics.BridgeMessage(ResultFailed)
		log.Logger.Warn().Msg("API circuit open, reading not forwarded")
		i.publishError(msg.DeviceID, "api_unavailable", "Dashboard API is unavailable, reading not stored")
	default:
		i.metrics.BridgeMessage(ResultFailed)
		log.Logger.Error().Err(err).Msg("Error forwarding reading")
		i.publishError(msg.DeviceID, "forward_failed", fmt.Sprintf("Failed to store reading: %v", err))
	}
}

func rejectionType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusBadRequest:
		return "invalid_reading"
	default:
		return "rejected"
	}
}

func rejectionMessage(err *client.APIError) string {
	if err.Response.Message != "" {
		return err.Response.Message
	}
	if err.Response.Error != "" {
		return err.Response.Error
	}
	return err.Error()
}

// publishError sends feedback to <ErrorTopic>/<deviceId>
func (i *Ingestor) publishError(deviceID, errorType, message string) {
	if deviceID == "" {
		deviceID = "unknown"
	}

	payloadJSON, err := json.Marshal(map[string]interface{}{
		"errorType": errorType,
		"message":   message,
		"deviceId":  deviceID,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := fmt.Sprintf("%s/%s", i.cfg.ErrorTopic, deviceID)
	if err := i.publish(errorTopic, payloadJSON); err != nil {
		i.logger.Logger.Error().Err(err).Str("topic", errorTopic).Msg("Failed to publish error")
		return
	}
	i.logger.Logger.Info().Str("topic", errorTopic).Str("message", message).Msg("Published error")
}

func (i *Ingestor) mqttPublish(topic string, payload []byte) error {
	if !i.IsConnected() {
		return errors.New("not connected to broker")
	}
	token := i.mqttClient.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

// TLSConfig builds the broker TLS settings, trusting caFile when given
func TLSConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
