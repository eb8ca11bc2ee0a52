package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Limits is the business policy for automated agent approvals.
// It changes independently of code and is injected from config at startup.
type Limits struct {
	// MaxAutoApprove is the highest spend approved without a human step-up,
	// in the request's own currency units (no conversion).
	MaxAutoApprove decimal.Decimal
	// ProhibitedCategories are matched case-insensitively.
	ProhibitedCategories []string
}

// DefaultLimits returns the shipped policy: $500 ceiling, no gambling or crypto.
func DefaultLimits() Limits {
	return Limits{
		MaxAutoApprove:       decimal.NewFromInt(500),
		ProhibitedCategories: []string{"gambling", "casino", "betting", "crypto"},
	}
}

var ErrInvalidLimits = errors.New("invalid guardrail limits")

// Validate rejects a policy that would approve nothing or match garbage.
func (l Limits) Validate() error {
	if !l.MaxAutoApprove.IsPositive() {
		return fmt.Errorf("%w: max_auto_approve must be positive, got %s", ErrInvalidLimits, l.MaxAutoApprove)
	}
	for i, c := range l.ProhibitedCategories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: prohibited category #%d is empty", ErrInvalidLimits, i)
		}
	}
	return nil
}
