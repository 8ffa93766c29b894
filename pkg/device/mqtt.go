package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

const mqttTimeout = 10 * time.Second

// switchPayload is what the firmware reads from <switch-topic>/<id>.
type switchPayload struct {
	Name  string `json:"name"`
	State bool   `json:"state"`
}

// MQTTSystem talks to the installation through an MQTT broker. The device
// publishes readings to the telemetry topic and listens on retained
// per-switch topics.
type MQTTSystem struct {
	broker         string
	clientID       string
	telemetryTopic string
	switchTopic    string

	client mqtt.Client
	now    func() time.Time

	mu     sync.Mutex
	latest *types.Telemetry
}

// configuredMQTT sets up the MQTT system.
// It registers flags for configuration.
func configuredMQTT() *MQTTSystem {
	broker := lflag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	clientID := lflag.String("mqtt-client-id", "solaris", "MQTT client ID")
	telemetryTopic := lflag.String("mqtt-telemetry-topic", "app/energyData", "Topic the device publishes telemetry to")
	switchTopic := lflag.String("mqtt-switch-topic", "app/switchStates", "Topic prefix for retained switch states")

	m := &MQTTSystem{now: time.Now}

	lflag.Do(func() {
		m.broker = *broker
		m.clientID = *clientID
		m.telemetryTopic = *telemetryTopic
		m.switchTopic = *switchTopic
	})

	return m
}

// Init connects to the broker and subscribes to the telemetry topic. The
// subscription is renewed on every reconnect.
func (m *MQTTSystem) Init(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(m.telemetryTopic, 1, m.handleTelemetry)
			if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to subscribe to telemetry", slog.String("topic", m.telemetryTopic), slog.Any("error", token.Error()))
			}
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Ctx(ctx).WarnContext(ctx, "mqtt connection lost", slog.Any("error", err))
		})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("timed out connecting to mqtt broker %s", m.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", m.broker, err)
	}
	return nil
}

// handleTelemetry keeps the newest valid reading. Invalid readings are
// dropped.
func (m *MQTTSystem) handleTelemetry(_ mqtt.Client, msg mqtt.Message) {
	ctx := context.Background()
	var sample types.Telemetry
	if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid telemetry payload", slog.String("topic", msg.Topic()), slog.Any("error", err))
		return
	}
	if err := sample.Validate(); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "rejected telemetry", slog.String("topic", msg.Topic()), slog.Any("error", err))
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest != nil && sample.Timestamp.Before(m.latest.Timestamp) {
		return
	}
	m.latest = &sample
}

// Telemetry returns the newest reading received over MQTT.
func (m *MQTTSystem) Telemetry(ctx context.Context) (types.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return types.Telemetry{}, ErrNoTelemetry
	}
	return *m.latest, nil
}

// SetSwitches publishes every state as a retained message so the device
// picks up the current states when it reconnects.
func (m *MQTTSystem) SetSwitches(ctx context.Context, states []types.SwitchState) error {
	var errs []error
	for _, s := range states {
		if !s.ID.Valid() {
			errs = append(errs, types.InvalidInput("id", "unknown switch id %d", s.ID))
			continue
		}
		payload, err := json.Marshal(switchPayload{Name: s.Name, State: s.State})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to marshal switch %d: %w", s.ID, err))
			continue
		}
		topic := fmt.Sprintf("%s/%d", m.switchTopic, s.ID)
		token := m.client.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(mqttTimeout) {
			errs = append(errs, fmt.Errorf("timed out publishing %s", topic))
			continue
		}
		if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish %s: %w", topic, err))
			continue
		}
		log.Ctx(ctx).DebugContext(ctx, "published switch state", slog.String("topic", topic), slog.Bool("state", s.State))
	}
	return errors.Join(errs...)
}

// Close disconnects from the broker.
func (m *MQTTSystem) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
