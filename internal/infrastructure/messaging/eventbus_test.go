package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecops-academy/progression-engine/internal/domain/shared"
)

type testEvent struct {
	eventType shared.EventType
	userID    string
}

func (e testEvent) EventType() shared.EventType { return e.eventType }
func (e testEvent) OccurredAt() time.Time       { return time.Unix(1700000000, 0).UTC() }
func (e testEvent) AggregateID() string         { return e.userID }
func (e testEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"user_id": e.userID}
}

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestInMemoryEventBus_DeliversToTypedSubscriber(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var got []string
	err := bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		got = append(got, event.AggregateID())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(testEvent{eventType: shared.EventXPGained, userID: "u-1"}))
	require.NoError(t, bus.Publish(testEvent{eventType: shared.EventLevelUp, userID: "u-2"}))

	assert.Equal(t, []string{"u-1"}, got)
}

func TestInMemoryEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var types []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(event shared.Event) error {
		types = append(types, event.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(testEvent{eventType: shared.EventXPGained, userID: "u-1"}))
	require.NoError(t, bus.Publish(testEvent{eventType: shared.EventLevelUp, userID: "u-1"}))

	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventLevelUp}, types)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
	})

	var mu sync.Mutex
	delivered := 0
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(testEvent{eventType: shared.EventXPGained, userID: "u-1"}))
	}

	// Close waits for pending handlers.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, delivered)
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(testEvent{eventType: shared.EventXPGained, userID: "u-1"})
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventXPGained, func(event shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// Closing twice is fine.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_NilHandlerRejected(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventXPGained, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

func TestInMemoryEventBus_Metrics(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		return nil
	}))
	require.NoError(t, bus.Publish(testEvent{eventType: shared.EventXPGained, userID: "u-1"}))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(1), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}

// fakeRedisClient captures published payloads and lets the test inject
// incoming messages.
type fakeRedisClient struct {
	mu        sync.Mutex
	published []string
	incoming  chan RedisMessage
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{incoming: make(chan RedisMessage, 16)}
}

func (c *fakeRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message.(string))
	return nil
}

func (c *fakeRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	return c.incoming, nil
}

func (c *fakeRedisClient) Close() error {
	return nil
}

func (c *fakeRedisClient) lastPublished() (eventEnvelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return eventEnvelope{}, false
	}
	var env eventEnvelope
	if err := json.Unmarshal([]byte(c.published[len(c.published)-1]), &env); err != nil {
		return eventEnvelope{}, false
	}
	return env, true
}

func TestRedisEventBus_PublishesEnvelopeAndLocalDelivery(t *testing.T) {
	client := newFakeRedisClient()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     client,
		InstanceID: "inst-a",
		LocalBusConfig: InMemoryEventBusConfig{
			AsyncMode: false,
		},
	})
	require.NoError(t, err)
	defer bus.Close()

	var local []string
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		local = append(local, event.AggregateID())
		return nil
	}))

	require.NoError(t, bus.Publish(testEvent{eventType: shared.EventXPGained, userID: "u-1"}))

	// Local handlers fire immediately; the envelope goes out over Redis.
	assert.Equal(t, []string{"u-1"}, local)

	env, ok := client.lastPublished()
	require.True(t, ok)
	assert.Equal(t, "inst-a", env.InstanceID)
	assert.Equal(t, shared.EventXPGained, env.EventType)
	assert.Equal(t, "u-1", env.AggregateID)
}

func TestRedisEventBus_DeliversRemoteEvents(t *testing.T) {
	client := newFakeRedisClient()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     client,
		InstanceID: "inst-a",
		LocalBusConfig: InMemoryEventBusConfig{
			AsyncMode: false,
		},
	})
	require.NoError(t, err)
	defer bus.Close()

	delivered := make(chan string, 1)
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		delivered <- event.AggregateID()
		return nil
	}))

	remote, err := json.Marshal(eventEnvelope{
		InstanceID:  "inst-b",
		EventType:   shared.EventXPGained,
		AggregateID: "u-9",
		OccurredAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	client.incoming <- RedisMessage{Channel: "progression:events", Payload: string(remote)}

	select {
	case userID := <-delivered:
		assert.Equal(t, "u-9", userID)
	case <-time.After(2 * time.Second):
		t.Fatal("remote event was not delivered")
	}
}

func TestRedisEventBus_IgnoresOwnEvents(t *testing.T) {
	client := newFakeRedisClient()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     client,
		InstanceID: "inst-a",
		LocalBusConfig: InMemoryEventBusConfig{
			AsyncMode: false,
		},
	})
	require.NoError(t, err)
	defer bus.Close()

	delivered := make(chan string, 1)
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		delivered <- event.AggregateID()
		return nil
	}))

	// An echo of this instance's own envelope must not be redelivered.
	own, err := json.Marshal(eventEnvelope{
		InstanceID:  "inst-a",
		EventType:   shared.EventXPGained,
		AggregateID: "u-1",
		OccurredAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	client.incoming <- RedisMessage{Channel: "progression:events", Payload: string(own)}

	select {
	case <-delivered:
		t.Fatal("self-published event was redelivered")
	case <-time.After(100 * time.Millisecond):
	}
}
