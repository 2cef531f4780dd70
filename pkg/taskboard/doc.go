// Package taskboard provides type-safe Go definitions and Redis schema patterns
// for the drey task board.
//
// # Overview
//
// The board is the shared coordination state for a fleet of autonomous worker
// processes: a task queue with an atomic claim protocol, a TTL-based agent
// roster, and the Pub/Sub channels that connect both to external consumers.
// Every drey component (CLI, workers, policy layers) interacts with the board
// through this package.
//
// # Core Concepts
//
// Tasks are units of work tracked through a status lifecycle. A task is
// created pending, claimed by exactly one worker at a time, and eventually
// reaches a terminal status (completed, cancelled, failed, or rejected) from
// which no further transition is permitted.
//
// Claiming is the atomic act of a worker taking ownership of a pending task.
// Claim and release execute as server-side Lua scripts so that racing
// claimants are serialized by Redis: exactly one wins, the rest observe an
// absent result and move on to other tasks.
//
// Agents advertise themselves by registering under a unique name and sending
// periodic heartbeats. Discovery filters the roster by a caller-supplied
// maximum silence window and lazily evicts anything quieter than that, so a
// crashed worker disappears without ever deregistering.
//
// Events are ephemeral envelopes fanned out on an all-events channel and
// per-type channels, delivered at-most-once to handlers subscribed at publish
// time. Per-task update notifications serve callers waiting on exactly one
// task without the full firehose.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple drey instances to safely coexist on a single Redis server
// without interference.
//
// # Usage Example
//
//	import "github.com/dyluth/drey/pkg/taskboard"
//
//	client, err := taskboard.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	task, err := client.CreateTask(ctx, "Deploy v2", "Roll out release 2.0", "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Exactly one racing worker wins this claim; losers see IsNotFound.
//	claimed, err := client.ClaimTask(ctx, task.ID, "deployer:host-a")
//	if taskboard.IsNotFound(err) {
//		// lost the race - try another task
//	}
//
// # Redis Schema
//
// Task records: drey:{instance}:task:{task_id}
// Status index: drey:{instance}:tasks:{status} (SET of task ids)
// Agent records: drey:{instance}:agent:{name}
// Agent roster: drey:{instance}:agents (ZSET scored by last_seen unix ms)
// Role index: drey:{instance}:agents:role:{role}
// Stale set: drey:{instance}:agents:stale (ZSET scored by stale_since unix ms)
//
// Pub/Sub channels:
//
// All events: drey:{instance}:events
// Per-type events: drey:{instance}:events:{event_type}
// Task updates: drey:{instance}:task_updates
//
// # Design Principles
//
//   - Atomicity: a task record and its status-index membership are one unit,
//     mutated together inside a single Lua script
//   - Absent over error: operations on unknown ids and lost races both return
//     redis.Nil, signalling "already gone" without an exception
//   - Lazy cleanup: the cost of evicting silent agents is paid by the next
//     discovery call, not by a background sweep
//   - Isolation: instance namespacing prevents cross-instance interference
package taskboard
