package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	rooms []string
	event string
	data  interface{}
	calls int
}

func (c *captureSink) Emit(rooms []string, event string, data interface{}) {
	c.rooms, c.event, c.data = rooms, event, data
	c.calls++
}

func TestEnvelopeRoundTripKeepsPayloadBytes(t *testing.T) {
	body, err := encode("origin-a", []string{"kitchen", "user:u1"}, "order:created", map[string]interface{}{"_id": "o1", "status": "pending"})
	require.NoError(t, err)

	env, err := decode(body)
	require.NoError(t, err)
	assert.Equal(t, "origin-a", env.Origin)
	assert.Equal(t, []string{"kitchen", "user:u1"}, env.Rooms)
	assert.JSONEq(t, `{"_id":"o1","status":"pending"}`, string(env.Data))
}

func TestHandleDeliveryReplaysForeignEnvelopes(t *testing.T) {
	r := NewRelay("amqp://unused", "order_events")
	sink := &captureSink{}

	body, err := encode("another-instance", []string{"cashier"}, "order:payment-updated", map[string]string{"_id": "o1"})
	require.NoError(t, err)
	r.handleDelivery(body, sink)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, "order:payment-updated", sink.event)
	raw, ok := sink.data.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"_id":"o1"}`, string(raw))
}

func TestHandleDeliverySkipsOwnAndMalformed(t *testing.T) {
	r := NewRelay("amqp://unused", "order_events")
	sink := &captureSink{}

	own, err := encode(r.Origin(), []string{"cashier"}, "order:created", map[string]string{"_id": "o1"})
	require.NoError(t, err)
	r.handleDelivery(own, sink)
	r.handleDelivery([]byte("not json"), sink)
	r.handleDelivery([]byte(`{"origin":"x","rooms":[],"event":"order:created"}`), sink)

	assert.Zero(t, sink.calls)
}

func TestEmitWithoutConnectionDoesNotPanic(t *testing.T) {
	r := NewRelay("amqp://unused", "order_events")
	assert.NotPanics(t, func() {
		r.Emit([]string{"kitchen"}, "order:created", map[string]string{"_id": "o1"})
	})
	assert.False(t, r.IsAlive())
}
