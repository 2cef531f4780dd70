package taskboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Event distribution
//
// The bus is an explicit object with an owned lifecycle: construct it once,
// pass it by reference, Close it when done. Handlers are registered per event
// type; the first handler for a type opens the underlying Redis subscription
// and the last one to leave tears it down. Handler faults are isolated - a
// panic inside one handler is recovered and logged, never propagated to the
// publisher or to sibling handlers.
//
// Delivery is at-most-once with no replay: a subscriber connecting after
// publish never receives that event.

// EventHandler receives published events. Handlers for one event type run
// sequentially on a single delivery goroutine; order across handlers is
// unspecified.
type EventHandler func(event *Event)

// EventBus fans published events out to subscribed handlers, keyed by event
// type. Subscribe with EventTypeAll ("*") to receive every event. Safe for
// concurrent use, including subscribing and unsubscribing while delivery is
// in progress.
type EventBus struct {
	client *Client

	mu     sync.Mutex
	subs   map[string]*channelSub
	nextID uint64
	closed bool
}

// channelSub is the delivery state for one event type's channel.
type channelSub struct {
	cancel   context.CancelFunc
	handlers map[uint64]EventHandler
}

// NewEventBus creates an event bus on top of the given client's instance
// channels. The bus does not own the client; Close the bus first.
func NewEventBus(client *Client) *EventBus {
	return &EventBus{
		client: client,
		subs:   make(map[string]*channelSub),
	}
}

// Publish wraps data in an event envelope and delivers it to every handler
// subscribed to eventType (and to the wildcard) at publish time.
func (b *EventBus) Publish(ctx context.Context, eventType string, data map[string]any) error {
	if eventType == "" || eventType == EventTypeAll {
		return fmt.Errorf("invalid event type: %q", eventType)
	}
	return b.client.PublishEvent(ctx, eventType, data)
}

// Subscribe registers a handler for eventType and returns a subscription
// handle; closing the handle unsubscribes. The first subscriber of a type
// opens the per-type delivery channel.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) (*EventSubscription, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub, ok := b.subs[eventType]
	if !ok {
		channel := EventTypeChannel(b.client.instanceName, eventType)
		if eventType == EventTypeAll {
			channel = EventsChannel(b.client.instanceName)
		}

		ctx, cancel := context.WithCancel(context.Background())
		sub = &channelSub{
			cancel:   cancel,
			handlers: make(map[uint64]EventHandler),
		}
		b.subs[eventType] = sub

		go b.deliver(ctx, eventType, channel)
	}

	b.nextID++
	id := b.nextID
	sub.handlers[id] = handler

	return &EventSubscription{bus: b, eventType: eventType, id: id}, nil
}

// deliver pumps one channel's messages to its current handler set.
func (b *EventBus) deliver(ctx context.Context, eventType, channel string) {
	pubsub := b.client.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("[ERROR] Failed to unmarshal event on %s: %v", channel, err)
				continue
			}

			for _, handler := range b.handlerSnapshot(eventType) {
				b.invoke(handler, &event)
			}
		}
	}
}

// handlerSnapshot copies the current handler set so delivery never holds the
// lock while running handlers.
func (b *EventBus) handlerSnapshot(eventType string) []EventHandler {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[eventType]
	if !ok {
		return nil
	}

	handlers := make([]EventHandler, 0, len(sub.handlers))
	for _, h := range sub.handlers {
		handlers = append(handlers, h)
	}
	return handlers
}

// invoke runs one handler with panic isolation.
func (b *EventBus) invoke(handler EventHandler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Event handler panicked on %q event: %v", event.Type, r)
		}
	}()
	handler(event)
}

// unsubscribe removes one handler; the last handler out tears the channel down.
func (b *EventBus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[eventType]
	if !ok {
		return
	}

	delete(sub.handlers, id)
	if len(sub.handlers) == 0 {
		sub.cancel()
		delete(b.subs, eventType)
	}
}

// Close stops all delivery goroutines and drops every handler.
// The bus must not be used after Close. Implements io.Closer.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for eventType, sub := range b.subs {
		sub.cancel()
		delete(b.subs, eventType)
	}

	return nil
}

// EventSubscription is the handle returned by Subscribe.
// Close it to unsubscribe; safe to call multiple times.
type EventSubscription struct {
	bus       *EventBus
	eventType string
	id        uint64
	once      sync.Once
}

// Close unsubscribes the handler. Implements io.Closer.
func (s *EventSubscription) Close() error {
	s.once.Do(func() {
		s.bus.unsubscribe(s.eventType, s.id)
	})
	return nil
}
