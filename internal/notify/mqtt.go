package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

const publishTimeout = 5 * time.Second

// MQTTForwarder publishes notifications as JSON to an MQTT topic so other
// dashboards and pagers can mirror them.
type MQTTForwarder struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTTForwarder wraps an already configured client.
func NewMQTTForwarder(client mqtt.Client, topic string) *MQTTForwarder {
	return &MQTTForwarder{client: client, topic: topic, qos: 1}
}

// ConnectMQTT dials the broker and returns a forwarder bound to topic.
func ConnectMQTT(brokerURL, clientID, topic string) (*MQTTForwarder, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return NewMQTTForwarder(client, topic), nil
}

// Forward publishes one notification and waits for the broker acknowledgement.
func (f *MQTTForwarder) Forward(n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	token := f.client.Publish(f.topic, f.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", f.topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (f *MQTTForwarder) Close() {
	f.client.Disconnect(250)
}
