package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReasonCode identifies why the guardrail refused an agent transaction.
type ReasonCode string

const (
	// ReasonLimitExceeded is recoverable: the caller can escalate to a human step-up flow.
	ReasonLimitExceeded ReasonCode = "LIMIT_EXCEEDED"
	// ReasonGovernanceViolation needs a policy change to ever pass.
	ReasonGovernanceViolation ReasonCode = "GOVERNANCE_VIOLATION"
)

// DefaultCurrency is applied at the boundary when the caller omits the currency.
const DefaultCurrency = "USD"

// AgentAuthorizationRequest is what an AI agent asks to be allowed to spend.
// Values are validated by the transport before they reach the guardrail.
type AgentAuthorizationRequest struct {
	AgentID          string
	SpendingLimit    decimal.Decimal
	Currency         string
	MerchantCategory string
}

// AuthorizationVerdict is the outcome of a guardrail evaluation.
// Exactly one of (ConsentID, Constraints) or Denial is populated.
type AuthorizationVerdict struct {
	Approved    bool
	ConsentID   string // opaque, unique per approval
	Constraints string // approved merchant category
	Denial      *DenialError
}

// Approve builds an approving verdict.
func Approve(consentID, merchantCategory string) AuthorizationVerdict {
	return AuthorizationVerdict{
		Approved:    true,
		ConsentID:   consentID,
		Constraints: merchantCategory,
	}
}

// Deny builds a refusing verdict.
func Deny(d *DenialError) AuthorizationVerdict {
	return AuthorizationVerdict{Denial: d}
}

// Err returns the denial as an error, or nil for approvals.
func (v AuthorizationVerdict) Err() error {
	if v.Approved || v.Denial == nil {
		return nil
	}
	return v.Denial
}

// DenialError is a policy refusal. It is a verdict, not a system failure.
type DenialError struct {
	Code    ReasonCode
	Message string
	Details map[string]any
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
