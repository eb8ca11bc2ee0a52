package infra

const (
	// RedisNamespace isolates gateway keys in a shared Redis
	RedisNamespace = "ofg"
)

// Sets (state)
const (
	RedisKeyBlockedAgents = RedisNamespace + ":agents:blocked_set"
)

// Pub/Sub channels (events)
const (
	// RedisChanKillSwitch carries "agent_id:on" / "agent_id:off" signals.
	RedisChanKillSwitch = RedisNamespace + ":agents:kill-switch-signal"
)
