package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/openfinance-gateway/internal/infra"
	"go.uber.org/zap"
)

// AgentBlocker answers whether an agent has been cut off by an operator.
type AgentBlocker interface {
	IsBlocked(agentID string) bool
}

// KillSwitchManager keeps the blocked-agent set in RAM and in sync with Redis.
// Reads on the hot path never touch the network.
type KillSwitchManager struct {
	mu            sync.RWMutex
	blockedAgents map[string]struct{}
	rdb           *redis.Client
	logger        *zap.Logger
}

func NewKillSwitchManager(rdb *redis.Client, logger *zap.Logger) *KillSwitchManager {
	return &KillSwitchManager{
		blockedAgents: make(map[string]struct{}),
		rdb:           rdb,
		logger:        logger.Named("kill-switch"),
	}
}

// Init replaces the local set with the Redis set.
func (m *KillSwitchManager) Init(ctx context.Context) error {
	agents, err := m.rdb.SMembers(ctx, infra.RedisKeyBlockedAgents).Result()
	if err != nil {
		return fmt.Errorf("kill-switch: load blocked set: %w", err)
	}

	fresh := make(map[string]struct{}, len(agents))
	for _, id := range agents {
		fresh[id] = struct{}{}
	}

	m.mu.Lock()
	m.blockedAgents = fresh
	m.mu.Unlock()

	m.logger.Info("blocked agents loaded", zap.Int("count", len(fresh)))
	return nil
}

// StartListener follows kill-switch signals until ctx is cancelled.
func (m *KillSwitchManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanKillSwitch,
		func() error { return m.Init(ctx) },
		m.apply,
	)
}

// Block persists the block and broadcasts it to every gateway instance.
func (m *KillSwitchManager) Block(ctx context.Context, agentID string) error {
	return m.publish(ctx, agentID, true)
}

func (m *KillSwitchManager) Unblock(ctx context.Context, agentID string) error {
	return m.publish(ctx, agentID, false)
}

func (m *KillSwitchManager) publish(ctx context.Context, agentID string, blocked bool) error {
	signal := agentID + ":off"
	pipe := m.rdb.TxPipeline()
	if blocked {
		signal = agentID + ":on"
		pipe.SAdd(ctx, infra.RedisKeyBlockedAgents, agentID)
	} else {
		pipe.SRem(ctx, infra.RedisKeyBlockedAgents, agentID)
	}
	pipe.Publish(ctx, infra.RedisChanKillSwitch, signal)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kill-switch: publish %s: %w", signal, err)
	}
	m.apply(agentID, blocked)
	return nil
}

func (m *KillSwitchManager) apply(agentID string, blocked bool) {
	if blocked {
		m.MarkAsBlocked(agentID)
		m.logger.Warn("agent blocked", zap.String("agent_id", agentID))
		return
	}
	m.MarkAsUnblocked(agentID)
	m.logger.Info("agent unblocked", zap.String("agent_id", agentID))
}

func (m *KillSwitchManager) MarkAsBlocked(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockedAgents[agentID] = struct{}{}
}

func (m *KillSwitchManager) MarkAsUnblocked(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blockedAgents, agentID)
}

func (m *KillSwitchManager) IsBlocked(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, blocked := m.blockedAgents[agentID]
	return blocked
}

// Snapshot lists blocked agents in lexical order.
func (m *KillSwitchManager) Snapshot() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.blockedAgents))
	for id := range m.blockedAgents {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
