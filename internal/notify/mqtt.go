package notify

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kb1sig/ic705scanner/internal/obs"
)

// MQTTConfig holds the broker connection parameters.
type MQTTConfig struct {
	Broker   string
	Topic    string
	Username string
	Password string
	QoS      byte
	Retain   bool
}

// mqttPayload is the JSON body published for each detection.
type mqttPayload struct {
	Timestamp   int64   `json:"timestamp"`
	Callsign    string  `json:"callsign"`
	FrequencyHz uint64  `json:"frequency_hz"`
	DurationMs  int64   `json:"duration_ms"`
	Confidence  float64 `json:"confidence"`
	Text        string  `json:"text,omitempty"`
}

// MQTT publishes each DetectedActivity as a JSON payload to a
// configured topic.
type MQTT struct {
	client mqtt.Client
	cfg    MQTTConfig
	log    logger
}

// NewMQTT connects to cfg.Broker and returns a ready-to-use transport.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	log := obs.For("notify.mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("connected to broker %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &MQTT{client: client, cfg: cfg, log: log}, nil
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "ic705scanner_" + hex.EncodeToString(b)
}

// SendActivity publishes the detection; failures are logged, never
// returned, per the Notifier contract.
func (m *MQTT) SendActivity(a DetectedActivity) {
	if !m.client.IsConnected() {
		m.log.Warnf("publish skipped: not connected")
		return
	}

	payload := mqttPayload{
		Timestamp:   a.Timestamp.Unix(),
		Callsign:    a.Callsign,
		FrequencyHz: a.FrequencyHz,
		DurationMs:  a.Duration.Milliseconds(),
		Confidence:  a.Confidence,
		Text:        a.Text,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Errorf("marshal: %v", err)
		return
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retain, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			m.log.Errorf("publish to %s: %v", m.cfg.Topic, token.Error())
		}
	}()
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
