package natsserver

import (
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetHandler(discard.New())
}

func TestEmbeddedDeliversEvents(t *testing.T) {
	e, err := New(Config{Port: -1})
	require.NoError(t, err)
	defer e.Shutdown()

	received := make(chan []byte, 1)
	sub, err := e.Conn().Subscribe("violations.>", func(msg *nats.Msg) {
		received <- msg.Data
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, e.Conn().Flush())

	require.NoError(t, e.Conn().Publish("violations.created", []byte(`{"event":"created"}`)))

	select {
	case data := <-received:
		assert.JSONEq(t, `{"event":"created"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	stats := e.GetStats()
	assert.GreaterOrEqual(t, stats.Clients, 1)
	assert.GreaterOrEqual(t, stats.Subscriptions, uint32(1))
	assert.Contains(t, e.URL(), "nats://127.0.0.1:")
}

func TestDefaultsFillZeroConfig(t *testing.T) {
	e, err := New(Config{Port: -1})
	require.NoError(t, err)
	defer e.Shutdown()

	assert.Equal(t, int64(DefaultConfig().MaxPayload), e.Conn().MaxPayload())
}
