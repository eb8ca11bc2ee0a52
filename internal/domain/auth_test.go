package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentClaims_BoundTo(t *testing.T) {
	bound := &AgentClaims{AgentID: "agent_1"}
	assert.True(t, bound.BoundTo("agent_1"))
	assert.False(t, bound.BoundTo("agent_2"))
	assert.False(t, bound.BoundTo(""))

	service := &AgentClaims{}
	assert.True(t, service.BoundTo("agent_2"))

	var anonymous *AgentClaims
	assert.True(t, anonymous.BoundTo("agent_2"))
	assert.False(t, anonymous.HasScope(ScopeAgentAuthorize))
}
