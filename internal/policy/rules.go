package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

// Rule is one guardrail: a pure predicate plus the denial it produces.
// Check returns nil when the request passes.
type Rule interface {
	Name() string
	Check(req domain.AgentAuthorizationRequest) *domain.DenialError
}

// SpendingLimitRule requires a human MFA step-up above the automated ceiling.
type SpendingLimitRule struct {
	Max decimal.Decimal
}

func (r SpendingLimitRule) Name() string { return "spending_limit" }

func (r SpendingLimitRule) Check(req domain.AgentAuthorizationRequest) *domain.DenialError {
	if !req.SpendingLimit.GreaterThan(r.Max) {
		return nil
	}
	return &domain.DenialError{
		Code: domain.ReasonLimitExceeded,
		Message: fmt.Sprintf("Limit Exceeded: Transactions over %s %s require human MFA step-up.",
			r.Max.String(), currencyOrDefault(req.Currency)),
		Details: map[string]any{
			"max_allowed": json.Number(r.Max.String()),
			"requested":   json.Number(req.SpendingLimit.String()),
		},
	}
}

// ProhibitedCategoryRule keeps agents away from categorically disallowed merchants.
type ProhibitedCategoryRule struct {
	prohibited map[string]struct{}
}

// NewProhibitedCategoryRule copies categories into a lower-cased set.
func NewProhibitedCategoryRule(categories []string) ProhibitedCategoryRule {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[normalizeCategory(c)] = struct{}{}
	}
	return ProhibitedCategoryRule{prohibited: set}
}

func (r ProhibitedCategoryRule) Name() string { return "prohibited_category" }

func (r ProhibitedCategoryRule) Check(req domain.AgentAuthorizationRequest) *domain.DenialError {
	if _, ok := r.prohibited[normalizeCategory(req.MerchantCategory)]; !ok {
		return nil
	}
	return &domain.DenialError{
		Code:    domain.ReasonGovernanceViolation,
		Message: fmt.Sprintf("Governance Violation: AI Agents are prohibited from %s.", req.MerchantCategory),
		Details: map[string]any{"prohibited_category": req.MerchantCategory},
	}
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func currencyOrDefault(c string) string {
	if c == "" {
		return domain.DefaultCurrency
	}
	return c
}
