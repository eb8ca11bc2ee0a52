package carbon

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Factor is the emissions intensity of a merchant category, kg CO2 per currency unit spent.
type Factor struct {
	Name      string
	KgPerUnit decimal.Decimal
}

var (
	ErrInvalidFactor = errors.New("invalid carbon factor")

	mccPattern = regexp.MustCompile(`^\d{4}$`)
)

// FactorTable maps 4-digit MCCs to factors. Built once and read-only afterwards.
type FactorTable struct {
	entries  map[string]Factor
	fallback Factor
}

// NewFactorTable copies entries so later changes to the caller's map are not observed.
func NewFactorTable(entries map[string]Factor, fallback Factor) (*FactorTable, error) {
	if err := fallback.validate("fallback"); err != nil {
		return nil, err
	}

	copied := make(map[string]Factor, len(entries))
	for mcc, f := range entries {
		if !mccPattern.MatchString(mcc) {
			return nil, fmt.Errorf("%w: mcc %q is not 4 digits", ErrInvalidFactor, mcc)
		}
		if err := f.validate(mcc); err != nil {
			return nil, err
		}
		copied[mcc] = f
	}
	return &FactorTable{entries: copied, fallback: fallback}, nil
}

// DefaultFactorTable returns the reference factors shipped with the gateway.
func DefaultFactorTable() *FactorTable {
	t, err := NewFactorTable(DefaultFactors(), DefaultFallback())
	if err != nil {
		panic(err) // static data
	}
	return t
}

// DefaultFactors returns a fresh copy of the shipped table.
func DefaultFactors() map[string]Factor {
	return map[string]Factor{
		"4511": {Name: "Airlines", KgPerUnit: decimal.RequireFromString("0.85")},
		"5411": {Name: "Grocery Stores", KgPerUnit: decimal.RequireFromString("0.12")},
		"5541": {Name: "Gas Stations", KgPerUnit: decimal.RequireFromString("2.10")},
		"5812": {Name: "Restaurants", KgPerUnit: decimal.RequireFromString("0.25")},
	}
}

func DefaultFallback() Factor {
	return Factor{Name: "General Retail", KgPerUnit: decimal.RequireFromString("0.15")}
}

// Lookup resolves an MCC. ok is false when the fallback entry was used.
func (t *FactorTable) Lookup(mcc string) (f Factor, ok bool) {
	if f, ok = t.entries[mcc]; ok {
		return f, true
	}
	return t.fallback, false
}

// Len is the number of explicit entries, fallback excluded.
func (t *FactorTable) Len() int {
	return len(t.entries)
}

func (f Factor) validate(key string) error {
	if f.Name == "" {
		return fmt.Errorf("%w: %s has no name", ErrInvalidFactor, key)
	}
	if f.KgPerUnit.IsNegative() {
		return fmt.Errorf("%w: %s factor %s is negative", ErrInvalidFactor, key, f.KgPerUnit)
	}
	return nil
}
