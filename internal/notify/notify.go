// Package notify announces completed uploads over MQTT.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopic is the topic pattern used when none is configured.
// {buoy_id} is replaced with the uploading buoy's identifier.
const DefaultTopic = "buoys/{buoy_id}/uploads"

// Notice describes a fully persisted upload.
type Notice struct {
	BuoyID       string   `json:"buoy_id"`
	Timestamp    string   `json:"timestamp"`
	Files        []string `json:"files"`
	Bytes        int      `json:"bytes"`
	DecodeErrors int      `json:"decode_errors"`
	// UUID is the ingestion request id, also found in the server logs.
	UUID string `json:"uuid"`
}

// publisher is the subset of mqtt.Client used by MQTT.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Config holds the MQTT notifier configuration.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic is a topic pattern, see DefaultTopic.
	Topic string
	// Timeout bounds connecting and each publish.
	Timeout time.Duration
}

// MQTT publishes one JSON message per Notice.
type MQTT struct {
	client  publisher
	topic   string
	timeout time.Duration
}

// NewMQTT connects to the configured broker.
func NewMQTT(config Config) (*MQTT, error) {
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", "broker", config.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(config.Timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	log.Info("Connected to MQTT broker", "broker", config.Broker)
	return &MQTT{client: client, topic: config.Topic, timeout: config.Timeout}, nil
}

// Notify publishes n with QoS 1.
func (m *MQTT) Notify(ctx context.Context, n *Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	topic := formatTopic(m.topic, n.BuoyID)
	token := m.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-time.After(m.timeout):
		return fmt.Errorf("timed out publishing to %s", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}
	log.Debug("Published notice", "topic", topic, "buoy_id", n.BuoyID, "timestamp", n.Timestamp)
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if c, ok := m.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}

func formatTopic(pattern, buoyID string) string {
	return strings.ReplaceAll(pattern, "{buoy_id}", buoyID)
}
