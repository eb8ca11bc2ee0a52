package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Scopes a caller token must carry per route.
const (
	ScopeAgentAuthorize = "agent.authorize"
	ScopeCarbonEnrich   = "carbon.enrich"
)

// AgentClaims are the claims of an RS256 token presented by an agent runtime.
type AgentClaims struct {
	AgentID string          `json:"agent_id"` // empty for service callers not bound to one agent
	Scopes  map[string]bool `json:"scopes"`   // "agent.authorize": true
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants the scope.
func (c *AgentClaims) HasScope(scope string) bool {
	return c != nil && c.Scopes[scope]
}

// BoundTo reports whether the token may speak for agentID. Tokens without an
// agent binding belong to service callers and may speak for any agent.
func (c *AgentClaims) BoundTo(agentID string) bool {
	return c == nil || c.AgentID == "" || c.AgentID == agentID
}
