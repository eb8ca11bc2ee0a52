package policy

import (
	"fmt"

	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

// Evaluator decides whether an AI agent may spend without a human in the loop.
type Evaluator interface {
	Evaluate(req domain.AgentAuthorizationRequest) (domain.AuthorizationVerdict, error)
}

// Guardrail runs an ordered list of rules; the first denial wins and rules are never combined.
// It holds no mutable state, so one instance serves all requests concurrently.
type Guardrail struct {
	rules  []Rule
	issuer ConsentIssuer
}

// NewGuardrail builds the standard policy: spending ceiling first, then category governance.
func NewGuardrail(limits Limits, issuer ConsentIssuer) (*Guardrail, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return NewGuardrailWithRules(issuer,
		SpendingLimitRule{Max: limits.MaxAutoApprove},
		NewProhibitedCategoryRule(limits.ProhibitedCategories),
	), nil
}

// NewGuardrailWithRules allows extra guardrails to be appended without touching Evaluate.
func NewGuardrailWithRules(issuer ConsentIssuer, rules ...Rule) *Guardrail {
	if issuer == nil {
		issuer = NewUUIDIssuer(DefaultConsentPrefix)
	}
	return &Guardrail{
		rules:  append([]Rule(nil), rules...),
		issuer: issuer,
	}
}

// Evaluate returns a denial verdict or an approval with a fresh consent ID.
// The error is reserved for consent issuance failures; denials are never errors here.
func (g *Guardrail) Evaluate(req domain.AgentAuthorizationRequest) (domain.AuthorizationVerdict, error) {
	for _, rule := range g.rules {
		if denial := rule.Check(req); denial != nil {
			return domain.Deny(denial), nil
		}
	}

	consentID, err := g.issuer.Issue()
	if err != nil {
		return domain.AuthorizationVerdict{}, fmt.Errorf("guardrail: agent %s: %w", req.AgentID, err)
	}
	return domain.Approve(consentID, req.MerchantCategory), nil
}

// RuleNames lists the rules in evaluation order.
func (g *Guardrail) RuleNames() []string {
	names := make([]string, 0, len(g.rules))
	for _, r := range g.rules {
		names = append(names, r.Name())
	}
	return names
}
