package taskboard

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Agent registry & discovery
//
// The roster is a ZSET of agent names scored by last_seen (unix ms). TTL-based
// discovery means workers never need a reliable crash-time deregistration
// hook: any caller of Discover opportunistically garbage-collects silence,
// bounding staleness to the caller's max-age window. Eviction is paid for by
// whichever caller next performs discovery, not by a background sweep.

// refreshHeartbeatScript extends last_seen only when the name is currently in
// the roster. Unknown names are a no-op so a crashed-and-evicted agent must
// fully re-register rather than silently resurrecting through heartbeats.
//
// KEYS[1] = roster key, KEYS[2] = agent key
// ARGV[1] = agent name, ARGV[2] = now (unix ms)
var refreshHeartbeatScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) == false then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], 'last_seen_ms', ARGV[2], 'status', 'active')
return 1
`)

// AgentRegistration carries the caller-supplied fields of a Register call.
// Role and InstanceID are optional: when omitted and Name contains a ':',
// the substring before the first ':' becomes the role and the remainder the
// instance id.
type AgentRegistration struct {
	Name            string
	Role            string
	InstanceID      string
	Description     string
	URL             string
	Capabilities    map[string]bool
	ModelsSupported []string
}

// RegisterAgent inserts or refreshes an agent's roster entry.
// Registration always sets last_seen to now and is idempotent on
// re-registration. Publishes an agent.registered event.
func (c *Client) RegisterAgent(ctx context.Context, reg AgentRegistration) (*AgentInfo, error) {
	if reg.Name == "" {
		return nil, fmt.Errorf("agent name cannot be empty")
	}

	role, instanceID := reg.Role, reg.InstanceID
	if role == "" {
		derivedRole, derivedInstance := SplitAgentName(reg.Name)
		role = derivedRole
		if instanceID == "" {
			instanceID = derivedInstance
		}
	}

	now := time.Now().UnixMilli()
	agent := &AgentInfo{
		Name:            reg.Name,
		Role:            role,
		InstanceID:      instanceID,
		Description:     reg.Description,
		URL:             reg.URL,
		Capabilities:    reg.Capabilities,
		ModelsSupported: reg.ModelsSupported,
		LastSeenMs:      now,
		Status:          AgentStatusActive,
	}
	if agent.Capabilities == nil {
		agent.Capabilities = map[string]bool{}
	}

	if err := agent.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent: %w", err)
	}

	hash, err := AgentToHash(agent)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize agent: %w", err)
	}

	// A re-registration may change the agent's role; drop the old role index
	// membership so the name never appears under two roles.
	previousRole, err := c.rdb.HGet(ctx, AgentKey(c.instanceName, agent.Name), "role").Result()
	if err != nil && !IsNotFound(err) {
		return nil, fmt.Errorf("failed to read existing agent role: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	if previousRole != "" && previousRole != agent.Role {
		pipe.SRem(ctx, AgentRoleKey(c.instanceName, previousRole), agent.Name)
	}
	pipe.HSet(ctx, AgentKey(c.instanceName, agent.Name), hash)
	pipe.ZAdd(ctx, AgentRosterKey(c.instanceName), redis.Z{Score: float64(now), Member: agent.Name})
	pipe.SAdd(ctx, AgentRoleKey(c.instanceName, agent.Role), agent.Name)
	pipe.ZRem(ctx, AgentStaleKey(c.instanceName), agent.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to register agent in Redis: %w", err)
	}

	if err := c.PublishEvent(ctx, EventAgentRegistered, map[string]any{
		"name": agent.Name,
		"role": agent.Role,
	}); err != nil {
		return nil, err
	}

	return agent, nil
}

// UnregisterAgent removes an agent from the roster and role index and marks
// the record inactive. The record itself is retained. Best-effort: the
// individual steps are not required to be atomic with other operations.
// Returns false when the agent was never registered.
func (c *Client) UnregisterAgent(ctx context.Context, name string) (bool, error) {
	agent, err := c.GetAgent(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZRem(ctx, AgentRosterKey(c.instanceName), name)
	pipe.SRem(ctx, AgentRoleKey(c.instanceName, agent.Role), name)
	pipe.ZRem(ctx, AgentStaleKey(c.instanceName), name)
	pipe.HSet(ctx, AgentKey(c.instanceName, name), "status", string(AgentStatusInactive))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to unregister agent in Redis: %w", err)
	}

	if err := c.PublishEvent(ctx, EventAgentUnregistered, map[string]any{
		"name": name,
		"role": agent.Role,
	}); err != nil {
		return true, err
	}

	return true, nil
}

// DiscoverAgents returns every roster entry seen within maxAge.
//
// Negative silence deltas (future last_seen from clock skew between writers)
// are clamped to zero rather than treated as invalid. Entries silent for
// longer than maxAge are excluded from the result and, when cleanupStale is
// set, lazily evicted: removed from the roster and role index and soft-marked
// stale - never hard-deleted by this path. Stale records past the retention
// window are purged as a side effect.
func (c *Client) DiscoverAgents(ctx context.Context, maxAge time.Duration, cleanupStale bool) ([]*AgentInfo, error) {
	now := time.Now().UnixMilli()

	// Retention is forensic housekeeping, not a discovery requirement:
	// log and carry on if it fails.
	if c.staleRetention > 0 {
		if _, err := c.PurgeStaleAgents(ctx, c.staleRetention); err != nil {
			log.Printf("[WARN] Failed to purge expired stale agents: %v", err)
		}
	}

	entries, err := c.rdb.ZRangeWithScores(ctx, AgentRosterKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent roster from Redis: %w", err)
	}

	agents := []*AgentInfo{}
	for _, entry := range entries {
		name, ok := entry.Member.(string)
		if !ok {
			continue
		}

		silence := now - int64(entry.Score)
		if silence < 0 {
			silence = 0
		}

		if silence <= maxAge.Milliseconds() {
			agent, err := c.GetAgent(ctx, name)
			if err != nil {
				// Unregistered between the roster read and the fetch
				if IsNotFound(err) {
					continue
				}
				return nil, err
			}
			agents = append(agents, agent)
			continue
		}

		if cleanupStale {
			if err := c.evictStaleAgent(ctx, name, now); err != nil {
				return nil, err
			}
		}
	}

	return agents, nil
}

// DiscoverAgentsByRole returns the agents of one role seen within maxAge,
// applying the same staleness filter as DiscoverAgents. Read-only: eviction
// is left to full discovery sweeps.
func (c *Client) DiscoverAgentsByRole(ctx context.Context, role string, maxAge time.Duration) ([]*AgentInfo, error) {
	now := time.Now().UnixMilli()

	names, err := c.rdb.SMembers(ctx, AgentRoleKey(c.instanceName, role)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read role index from Redis: %w", err)
	}

	agents := []*AgentInfo{}
	for _, name := range names {
		agent, err := c.GetAgent(ctx, name)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}

		silence := now - agent.LastSeenMs
		if silence < 0 {
			silence = 0
		}
		if silence <= maxAge.Milliseconds() {
			agents = append(agents, agent)
		}
	}

	return agents, nil
}

// RefreshHeartbeat extends an agent's visibility window by resetting last_seen
// to now. Returns false (no-op) for names not currently in the roster.
func (c *Client) RefreshHeartbeat(ctx context.Context, name string) (bool, error) {
	now := time.Now().UnixMilli()
	keys := []string{
		AgentRosterKey(c.instanceName),
		AgentKey(c.instanceName, name),
	}

	refreshed, err := refreshHeartbeatScript.Run(ctx, c.rdb, keys, name, now).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh heartbeat in Redis: %w", err)
	}

	return refreshed == 1, nil
}

// GetAgent retrieves an agent record by name with no TTL filtering.
// Callers needing a liveness guarantee must use DiscoverAgents.
// Returns (nil, redis.Nil) if the agent doesn't exist.
func (c *Client) GetAgent(ctx context.Context, name string) (*AgentInfo, error) {
	key := AgentKey(c.instanceName, name)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	agent, err := HashToAgent(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize agent: %w", err)
	}

	return agent, nil
}

// PurgeStaleAgents hard-deletes agent records that were soft-marked stale
// longer than olderThan ago. Returns the number of records deleted.
func (c *Client) PurgeStaleAgents(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UnixMilli() - olderThan.Milliseconds()

	names, err := c.rdb.ZRangeByScore(ctx, AgentStaleKey(c.instanceName), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read stale agent set from Redis: %w", err)
	}

	if len(names) == 0 {
		return 0, nil
	}

	pipe := c.rdb.TxPipeline()
	for _, name := range names {
		pipe.Del(ctx, AgentKey(c.instanceName, name))
		pipe.ZRem(ctx, AgentStaleKey(c.instanceName), name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to purge stale agents from Redis: %w", err)
	}

	return len(names), nil
}

// evictStaleAgent performs the lazy-cleanup half of discovery: the name leaves
// the roster and role index, the record survives soft-marked stale with a
// stale_since timestamp feeding the retention sweep.
func (c *Client) evictStaleAgent(ctx context.Context, name string, nowMs int64) error {
	role, err := c.rdb.HGet(ctx, AgentKey(c.instanceName, name), "role").Result()
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to read role for stale agent: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZRem(ctx, AgentRosterKey(c.instanceName), name)
	if role != "" {
		pipe.SRem(ctx, AgentRoleKey(c.instanceName, role), name)
	}
	pipe.HSet(ctx, AgentKey(c.instanceName, name),
		"status", string(AgentStatusStale),
		"stale_since_ms", nowMs)
	pipe.ZAdd(ctx, AgentStaleKey(c.instanceName), redis.Z{Score: float64(nowMs), Member: name})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to evict stale agent: %w", err)
	}

	return nil
}
