package taskboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForSubscription gives the delivery goroutine time to establish its
// Redis subscription before the test publishes.
func waitForSubscription() {
	time.Sleep(100 * time.Millisecond)
}

func collectEvents(ch <-chan *Event, wait time.Duration) []*Event {
	var events []*Event
	timeout := time.After(wait)
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		case <-timeout:
			return events
		}
	}
}

func TestEventBusPublishSubscribe(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	bus := NewEventBus(client)
	defer bus.Close()

	t.Run("handler receives events published while subscribed", func(t *testing.T) {
		received := make(chan *Event, 10)
		sub, err := bus.Subscribe("task.updated", func(e *Event) {
			received <- e
		})
		require.NoError(t, err)
		waitForSubscription()

		err = bus.Publish(ctx, "task.updated", map[string]any{"task_id": "t-1"})
		require.NoError(t, err)

		select {
		case event := <-received:
			assert.Equal(t, "task.updated", event.Type)
			assert.Equal(t, "t-1", event.Data["task_id"])
			assert.NotZero(t, event.TimestampMs)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}

		// After unsubscribing the handler sees nothing further
		require.NoError(t, sub.Close())

		err = bus.Publish(ctx, "task.updated", map[string]any{"task_id": "t-2"})
		require.NoError(t, err)

		assert.Empty(t, collectEvents(received, 200*time.Millisecond))
	})

	t.Run("events of other types are not delivered", func(t *testing.T) {
		received := make(chan *Event, 10)
		sub, err := bus.Subscribe("agent.registered", func(e *Event) {
			received <- e
		})
		require.NoError(t, err)
		defer sub.Close()
		waitForSubscription()

		err = bus.Publish(ctx, "task.created", map[string]any{"task_id": "t-3"})
		require.NoError(t, err)

		assert.Empty(t, collectEvents(received, 200*time.Millisecond))
	})

	t.Run("wildcard subscriber sees every type", func(t *testing.T) {
		received := make(chan *Event, 10)
		sub, err := bus.Subscribe(EventTypeAll, func(e *Event) {
			received <- e
		})
		require.NoError(t, err)
		defer sub.Close()
		waitForSubscription()

		require.NoError(t, bus.Publish(ctx, "task.created", map[string]any{"task_id": "t-4"}))
		require.NoError(t, bus.Publish(ctx, "agent.registered", map[string]any{"name": "a-1"}))

		events := collectEvents(received, 500*time.Millisecond)
		require.Len(t, events, 2)

		types := map[string]bool{}
		for _, e := range events {
			types[e.Type] = true
		}
		assert.True(t, types["task.created"])
		assert.True(t, types["agent.registered"])
	})

	t.Run("rejects publishing to the wildcard type", func(t *testing.T) {
		err := bus.Publish(ctx, EventTypeAll, nil)
		assert.Error(t, err)
		err = bus.Publish(ctx, "", nil)
		assert.Error(t, err)
	})
}

func TestEventBusHandlerIsolation(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	bus := NewEventBus(client)
	defer bus.Close()

	received := make(chan *Event, 10)

	panicking, err := bus.Subscribe("task.updated", func(e *Event) {
		panic("handler exploded")
	})
	require.NoError(t, err)
	defer panicking.Close()

	surviving, err := bus.Subscribe("task.updated", func(e *Event) {
		received <- e
	})
	require.NoError(t, err)
	defer surviving.Close()
	waitForSubscription()

	// The panic is caught and logged; the sibling handler and the publisher
	// are unaffected.
	err = bus.Publish(ctx, "task.updated", map[string]any{"task_id": "t-1"})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "t-1", event.Data["task_id"])
	case <-time.After(time.Second):
		t.Fatal("sibling handler never received the event despite panic isolation")
	}
}

func TestEventBusChannelTeardown(t *testing.T) {
	client, _ := setupTestClient(t)

	bus := NewEventBus(client)
	defer bus.Close()

	first, err := bus.Subscribe("task.updated", func(e *Event) {})
	require.NoError(t, err)
	second, err := bus.Subscribe("task.updated", func(e *Event) {})
	require.NoError(t, err)

	bus.mu.Lock()
	assert.Len(t, bus.subs, 1, "both handlers share one channel subscription")
	bus.mu.Unlock()

	require.NoError(t, first.Close())

	bus.mu.Lock()
	assert.Len(t, bus.subs, 1, "channel survives while a handler remains")
	bus.mu.Unlock()

	require.NoError(t, second.Close())
	require.NoError(t, second.Close(), "double close is a no-op")

	bus.mu.Lock()
	assert.Empty(t, bus.subs, "last unsubscribe tears the channel down")
	bus.mu.Unlock()
}

func TestEventBusClose(t *testing.T) {
	client, _ := setupTestClient(t)

	bus := NewEventBus(client)

	_, err := bus.Subscribe("task.updated", func(e *Event) {})
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "double close is a no-op")

	_, err = bus.Subscribe("task.updated", func(e *Event) {})
	assert.Error(t, err, "closed bus refuses new subscriptions")
}

// Store mutations publish lifecycle events consumable through the bus.
func TestLifecycleEventsReachBus(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	bus := NewEventBus(client)
	defer bus.Close()

	received := make(chan *Event, 10)
	sub, err := bus.Subscribe(EventTypeAll, func(e *Event) {
		received <- e
	})
	require.NoError(t, err)
	defer sub.Close()
	waitForSubscription()

	task, err := client.CreateTask(ctx, "Event source", "", "")
	require.NoError(t, err)
	_, err = client.ClaimTask(ctx, task.ID, "worker-1")
	require.NoError(t, err)
	_, err = client.UpdateTask(ctx, task.ID, TaskUpdateRequest{Status: TaskStatusCompleted, Final: true})
	require.NoError(t, err)
	_, err = client.RegisterAgent(ctx, AgentRegistration{Name: "observer:1"})
	require.NoError(t, err)

	events := collectEvents(received, 500*time.Millisecond)

	types := map[string]int{}
	for _, e := range events {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[EventTaskCreated])
	assert.Equal(t, 1, types[EventTaskClaimed])
	assert.Equal(t, 1, types[EventTaskUpdated])
	assert.Equal(t, 1, types[EventAgentRegistered])
}
