package report

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

var (
	ERR_NOT_CONNECTED = errors.New("MQTT client is not connected")
)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Publishes every record as a json encoded synapse.Command
type MQTT struct {
	mu        sync.Mutex
	publisher Publisher
	topic     string
	sender    string
}

func NewMQTT(publisher Publisher, topic, sender string) *MQTT {
	return &MQTT{publisher: publisher, topic: topic, sender: sender}
}

func (m *MQTT) Write(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publisher == nil {
		return ERR_SINK_CLOSED
	}
	payload, err := r.Command(m.sender).ToPayload()
	if err != nil {
		return fmt.Errorf("Can't encode frame %d: %w", r.Frame, err)
	}
	return m.publisher.Publish(ctx, m.topic, payload)
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publisher == nil {
		return nil
	}
	err := m.publisher.Close()
	m.publisher = nil
	return err
}

// QoS0 publisher over a plain TCP connection to a broker
type Broker struct {
	mu     sync.Mutex
	client *mqtt.Client
}

func DialBroker(ctx context.Context, address, client_id string, timeout time.Duration) (*Broker, error) {
	dial_ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var dialer net.Dialer
	connection, err := dialer.DialContext(dial_ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("Can't reach broker at %s: %w", address, err)
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 2048)},
	})
	var vars mqtt.VariablesConnect
	vars.SetDefaultMQTT([]byte(client_id))
	if err := client.Connect(dial_ctx, connection, &vars); err != nil {
		connection.Close()
		return nil, fmt.Errorf("Can't connect to broker at %s: %w", address, err)
	}
	return &Broker{client: client}, nil
}

func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.client.IsConnected() {
		return ERR_NOT_CONNECTED
	}
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return err
	}
	return b.client.PublishPayload(flags, mqtt.VariablesPublish{TopicName: []byte(topic)}, payload)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.client.IsConnected() {
		return nil
	}
	return b.client.Disconnect(errors.New("Shutting down"))
}
