package messaging

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventStoreWiped, func(shared.Event) error {
		typed++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return errors.New("ignored")
	}))

	require.NoError(t, bus.Publish(shared.NewStoreChangedEvent(shared.EventStoreWiped, "run-1", 3)))
	require.NoError(t, bus.Publish(shared.NewBatchIngestedEvent("run-1", "a.csv", "merge_refresh", 1, 0)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var calls atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		calls.Add(1)
		return nil
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewStoreChangedEvent(shared.EventStoreReplaced, "run", i)))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(10), calls.Load())
}

func TestInMemoryEventBus_Errors(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	assert.ErrorIs(t, bus.Subscribe(shared.EventStoreWiped, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewStoreChangedEvent(shared.EventStoreWiped, "run", 0)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	event := shared.NewIdentityDeletedEvent("7", "learner", 2)
	env := newEnvelope("node-a", event)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	data := string(raw)

	got, self, err := decodeEnvelope(data, "node-b")
	require.NoError(t, err)
	assert.False(t, self)
	assert.Equal(t, shared.EventIdentityDeleted, got.EventType())
	assert.Equal(t, "7", got.AggregateID())
	assert.Equal(t, "learner", got.Payload()["role"])

	_, self, err = decodeEnvelope(data, "node-a")
	require.NoError(t, err)
	assert.True(t, self)

	_, _, err = decodeEnvelope(`{"instance_id":"x"}`, "node-a")
	assert.Error(t, err)
	_, _, err = decodeEnvelope(`not json`, "node-a")
	assert.Error(t, err)
}
