package taskboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Per-task update notification
//
// Distinct from the generic event bus: handlers here are keyed by task id,
// not event type, and fire whenever that specific task's status changes. This
// supports a caller waiting on exactly one task (a streaming response, a
// long-poll) without subscribing to the full event firehose.
//
// All watchers share a single subscription to the task-updates channel;
// dispatch by task id happens locally. The subscription is opened by the
// first watcher and torn down by the last.

// TaskUpdateHandler receives the full task snapshot for each update, with a
// final flag marking the last update a streamer should expect.
type TaskUpdateHandler func(update *TaskUpdate)

// TaskNotifier dispatches task-update notifications to per-task watchers.
// Safe for concurrent use.
type TaskNotifier struct {
	client *Client

	mu       sync.Mutex
	watchers map[string]map[uint64]TaskUpdateHandler
	cancel   context.CancelFunc
	nextID   uint64
	closed   bool
}

// NewTaskNotifier creates a notifier on top of the given client's
// task-updates channel.
func NewTaskNotifier(client *Client) *TaskNotifier {
	return &TaskNotifier{
		client:   client,
		watchers: make(map[string]map[uint64]TaskUpdateHandler),
	}
}

// WatchTask registers a handler for one task's updates and returns a handle;
// closing the handle stops the watch. The first watcher opens the shared
// subscription.
func (n *TaskNotifier) WatchTask(taskID string, handler TaskUpdateHandler) (*TaskWatch, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, fmt.Errorf("task notifier is closed")
	}

	if n.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancel = cancel
		go n.deliver(ctx)
	}

	n.nextID++
	id := n.nextID
	if n.watchers[taskID] == nil {
		n.watchers[taskID] = make(map[uint64]TaskUpdateHandler)
	}
	n.watchers[taskID][id] = handler

	return &TaskWatch{notifier: n, taskID: taskID, id: id}, nil
}

// deliver pumps the shared task-updates channel and dispatches by task id.
func (n *TaskNotifier) deliver(ctx context.Context) {
	pubsub := n.client.rdb.Subscribe(ctx, TaskUpdatesChannel(n.client.instanceName))
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

			var update TaskUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				log.Printf("[ERROR] Failed to unmarshal task update notification: %v", err)
				continue
			}
			if update.Task == nil {
				continue
			}

			for _, handler := range n.watcherSnapshot(update.Task.ID) {
				n.invoke(handler, &update)
			}
		}
	}
}

// watcherSnapshot copies one task's handler set under the lock.
func (n *TaskNotifier) watcherSnapshot(taskID string) []TaskUpdateHandler {
	n.mu.Lock()
	defer n.mu.Unlock()

	handlers := make([]TaskUpdateHandler, 0, len(n.watchers[taskID]))
	for _, h := range n.watchers[taskID] {
		handlers = append(handlers, h)
	}
	return handlers
}

// invoke runs one handler with panic isolation.
func (n *TaskNotifier) invoke(handler TaskUpdateHandler, update *TaskUpdate) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Task watch handler panicked for task %s: %v", update.Task.ID, r)
		}
	}()
	handler(update)
}

// unwatch removes one watcher; the last watcher out closes the subscription.
func (n *TaskNotifier) unwatch(taskID string, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	handlers, ok := n.watchers[taskID]
	if !ok {
		return
	}

	delete(handlers, id)
	if len(handlers) == 0 {
		delete(n.watchers, taskID)
	}

	if len(n.watchers) == 0 && n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

// Close stops delivery and drops every watcher. Implements io.Closer.
func (n *TaskNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.watchers = make(map[string]map[uint64]TaskUpdateHandler)

	return nil
}

// TaskWatch is the handle returned by WatchTask.
// Close it to stop watching; safe to call multiple times.
type TaskWatch struct {
	notifier *TaskNotifier
	taskID   string
	id       uint64
	once     sync.Once
}

// Close stops the watch. Implements io.Closer.
func (w *TaskWatch) Close() error {
	w.once.Do(func() {
		w.notifier.unwatch(w.taskID, w.id)
	})
	return nil
}
