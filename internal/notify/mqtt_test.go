package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeMQTTClient implements only Publish; other methods panic via the nil embedded interface.
type fakeMQTTClient struct {
	mqtt.Client
	topics   []string
	payloads [][]byte
	token    *fakeToken
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return c.token
}

func TestMQTTForwarder_Forward(t *testing.T) {
	client := &fakeMQTTClient{token: &fakeToken{complete: true}}
	f := NewMQTTForwarder(client, "fleet/notifications")

	n := models.Notification{ID: 42, Message: "Vehicle updated", Type: models.NotifySuccess, Timestamp: time.Now()}
	require.NoError(t, f.Forward(n))

	require.Len(t, client.payloads, 1)
	assert.Equal(t, "fleet/notifications", client.topics[0])

	var got models.Notification
	require.NoError(t, json.Unmarshal(client.payloads[0], &got))
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, models.NotifySuccess, got.Type)
}

func TestMQTTForwarder_Errors(t *testing.T) {
	t.Run("broker error", func(t *testing.T) {
		client := &fakeMQTTClient{token: &fakeToken{complete: true, err: errors.New("not connected")}}
		err := NewMQTTForwarder(client, "t").Forward(models.Notification{ID: 1})
		assert.EqualError(t, err, "not connected")
	})

	t.Run("timeout", func(t *testing.T) {
		client := &fakeMQTTClient{token: &fakeToken{complete: false}}
		err := NewMQTTForwarder(client, "t").Forward(models.Notification{ID: 1})
		assert.ErrorContains(t, err, "timed out")
	})
}

func TestMQTTForwarder_AsQueueForwarder(t *testing.T) {
	client := &fakeMQTTClient{token: &fakeToken{complete: true}}
	q := NewQueue(WithClock(newFakeClock()), WithForwarder(NewMQTTForwarder(client, "fleet/alerts")))

	q.Push(models.NotifyWarning, "3 of 4 vehicles updated")
	assert.Len(t, client.payloads, 1)
}
