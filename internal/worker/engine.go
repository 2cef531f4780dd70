package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dyluth/drey/pkg/taskboard"
)

// Handler executes one claimed task and returns a result message for the
// task's message history. A context.Canceled error releases the task back to
// the pending pool instead of failing it.
type Handler func(ctx context.Context, task *taskboard.Task) (string, error)

// Engine represents the core execution logic of the worker daemon.
// It manages three concurrent loops:
//   - Heartbeat: keeps the agent visible in the roster
//   - Task Watcher: monitors for claimable tasks via events plus periodic polls
//   - Task Executor: claims tasks and runs the handler
//
// The loops coordinate via a work queue channel and shut down together
// through context cancellation.
type Engine struct {
	config  *Config
	client  *taskboard.Client
	bus     *taskboard.EventBus
	handler Handler
	wg      sync.WaitGroup
}

// New creates a worker engine with the provided configuration, board client,
// and task handler. The engine does not begin execution until Run is called.
func New(config *Config, client *taskboard.Client, handler Handler) *Engine {
	return &Engine{
		config:  config,
		client:  client,
		bus:     taskboard.NewEventBus(client),
		handler: handler,
	}
}

// Run registers the agent and blocks executing tasks until ctx is cancelled.
//
// Graceful shutdown sequence:
//  1. Context is cancelled (typically via SIGTERM)
//  2. All loops detect cancellation and exit
//  3. The agent unregisters (best-effort - TTL eviction covers a crash)
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[INFO] Worker starting for agent='%s' instance='%s'", e.config.AgentName, e.config.InstanceName)

	if _, err := e.client.RegisterAgent(ctx, taskboard.AgentRegistration{
		Name:            e.config.AgentName,
		Role:            e.config.AgentRole,
		URL:             e.config.AgentURL,
		ModelsSupported: e.config.ModelsSupported,
	}); err != nil {
		return err
	}

	// Buffer size 1 allows the watcher to post one task without blocking;
	// anything dropped while the executor is busy is picked up by the next poll.
	workQueue := make(chan string, 1)

	e.wg.Add(1)
	go e.heartbeatLoop(ctx)

	e.wg.Add(1)
	go e.taskWatcher(ctx, workQueue)

	e.wg.Add(1)
	go e.taskExecutor(ctx, workQueue)

	<-ctx.Done()
	log.Printf("[INFO] Shutdown signal received, initiating graceful shutdown")

	e.wg.Wait()
	e.bus.Close()

	// Unregister politely; if this fails the roster TTL cleans up anyway
	unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.client.UnregisterAgent(unregCtx, e.config.AgentName); err != nil {
		log.Printf("[WARN] Failed to unregister on shutdown: %v", err)
	}

	log.Printf("[INFO] Worker shutdown complete")
	return nil
}

// heartbeatLoop refreshes the agent's last_seen on a fixed cadence.
// Heartbeat failures are logged and retried on the next tick - losing one
// beat must not kill a worker mid-task. A heartbeat that finds the agent
// evicted re-registers it.
func (e *Engine) heartbeatLoop(ctx context.Context) {
	defer e.wg.Done()
	defer log.Printf("[DEBUG] Heartbeat loop exited cleanly")

	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshed, err := e.client.RefreshHeartbeat(ctx, e.config.AgentName)
			if err != nil {
				log.Printf("[WARN] Heartbeat failed: %v", err)
				continue
			}
			if !refreshed {
				log.Printf("[INFO] Agent evicted from roster, re-registering")
				if _, err := e.client.RegisterAgent(ctx, taskboard.AgentRegistration{
					Name:            e.config.AgentName,
					Role:            e.config.AgentRole,
					URL:             e.config.AgentURL,
					ModelsSupported: e.config.ModelsSupported,
				}); err != nil {
					log.Printf("[WARN] Re-registration failed: %v", err)
				}
			}
		}
	}
}

// taskWatcher feeds claimable task ids to the executor.
// Dual-source pattern: subscribes to task.created and task.released events
// for low latency, and polls the pending bucket on a fixed cadence to pick
// up anything the events missed (at-most-once delivery has no replay).
func (e *Engine) taskWatcher(ctx context.Context, workQueue chan<- string) {
	defer e.wg.Done()
	defer log.Printf("[DEBUG] Task watcher exited cleanly")

	offer := func(taskID string) {
		select {
		case workQueue <- taskID:
		default:
			// Executor busy; the next poll re-offers pending tasks
		}
	}

	onEvent := func(event *taskboard.Event) {
		taskID, ok := event.Data["task_id"].(string)
		if !ok || taskID == "" {
			return
		}
		offer(taskID)
	}

	createdSub, err := e.bus.Subscribe(taskboard.EventTaskCreated, onEvent)
	if err != nil {
		log.Printf("[ERROR] Failed to subscribe to task.created events: %v", err)
		return
	}
	defer createdSub.Close()

	releasedSub, err := e.bus.Subscribe(taskboard.EventTaskReleased, onEvent)
	if err != nil {
		log.Printf("[ERROR] Failed to subscribe to task.released events: %v", err)
		return
	}
	defer releasedSub.Close()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	// Prime immediately so a worker joining a busy board starts at once
	e.offerPending(ctx, offer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.offerPending(ctx, offer)
		}
	}
}

// offerPending polls the pending bucket and offers every task found.
func (e *Engine) offerPending(ctx context.Context, offer func(string)) {
	tasks, err := e.client.ListTasks(ctx, taskboard.TaskStatusPending)
	if err != nil {
		log.Printf("[WARN] Failed to poll pending tasks: %v", err)
		return
	}
	for _, task := range tasks {
		offer(task.ID)
	}
}

// taskExecutor claims offered tasks and runs the handler on each win.
// A lost claim is a normal outcome: some other worker got there first and
// this one simply moves on to the next offer.
func (e *Engine) taskExecutor(ctx context.Context, workQueue <-chan string) {
	defer e.wg.Done()
	defer log.Printf("[DEBUG] Task executor exited cleanly")

	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-workQueue:
			e.execute(ctx, taskID)
		}
	}
}

// execute claims one task, runs the handler, and records the outcome.
func (e *Engine) execute(ctx context.Context, taskID string) {
	task, err := e.client.ClaimTask(ctx, taskID, e.config.AgentName)
	if err != nil {
		if taskboard.IsNotFound(err) {
			log.Printf("[DEBUG] Lost claim on task %s, moving on", taskID)
			return
		}
		log.Printf("[ERROR] Failed to claim task %s: %v", taskID, err)
		return
	}

	log.Printf("[INFO] Claimed task %s (%s)", task.ID, task.Title)

	result, err := e.handler(ctx, task)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutting down mid-task: hand it back for another worker
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, relErr := e.client.ReleaseTask(releaseCtx, task.ID, e.config.AgentName); relErr != nil && !taskboard.IsNotFound(relErr) {
				log.Printf("[WARN] Failed to release task %s on shutdown: %v", task.ID, relErr)
			} else {
				log.Printf("[INFO] Released task %s back to pending", task.ID)
			}
			return
		}

		log.Printf("[ERROR] Handler failed on task %s: %v", task.ID, err)
		if _, updErr := e.client.UpdateTask(ctx, task.ID, taskboard.TaskUpdateRequest{
			Status:  taskboard.TaskStatusFailed,
			Message: err.Error(),
			Final:   true,
		}); updErr != nil && !taskboard.IsNotFound(updErr) {
			log.Printf("[ERROR] Failed to record failure for task %s: %v", task.ID, updErr)
		}
		return
	}

	done := 1.0
	if _, err := e.client.UpdateTask(ctx, task.ID, taskboard.TaskUpdateRequest{
		Status:   taskboard.TaskStatusCompleted,
		Message:  result,
		Progress: &done,
		Final:    true,
	}); err != nil && !taskboard.IsNotFound(err) {
		log.Printf("[ERROR] Failed to record completion for task %s: %v", task.ID, err)
		return
	}

	log.Printf("[INFO] Completed task %s", task.ID)
}
