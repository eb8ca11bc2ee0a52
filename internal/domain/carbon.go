package domain

import "github.com/shopspring/decimal"

// CarbonQuery is a card transaction to enrich with an emissions estimate.
type CarbonQuery struct {
	MerchantCategoryCode string // 4-digit MCC
	Amount               decimal.Decimal
	Description          string // passed through as-is
}

// CarbonResult is the estimate attached to a CarbonQuery.
type CarbonResult struct {
	MerchantCategoryName string
	CarbonFootprintKg    decimal.Decimal // rounded to 2 places
	Insight              string

	// Factor used for the estimate, kg CO2 per currency unit. Not part of the API body.
	FactorKgPerUnit decimal.Decimal
	// Fallback is set when the MCC was not in the factor table.
	Fallback bool
}
