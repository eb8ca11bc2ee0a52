package carbon

import (
	"fmt"

	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

// FootprintPlaces is the precision of the reported footprint.
// Rounding is half away from zero (decimal.Round), so 0.125 becomes 0.13.
const FootprintPlaces = 2

// Estimator attaches an emissions estimate to a transaction.
// Pure and reentrant: the factor table is never written after construction.
type Estimator struct {
	table *FactorTable
}

func NewEstimator(table *FactorTable) *Estimator {
	if table == nil {
		table = DefaultFactorTable()
	}
	return &Estimator{table: table}
}

// Estimate computes round(amount × factor, 2) for the MCC, falling back to General Retail.
func (e *Estimator) Estimate(q domain.CarbonQuery) domain.CarbonResult {
	factor, known := e.table.Lookup(q.MerchantCategoryCode)

	kg := q.Amount.Mul(factor.KgPerUnit).Round(FootprintPlaces)

	return domain.CarbonResult{
		MerchantCategoryName: factor.Name,
		CarbonFootprintKg:    kg,
		Insight: fmt.Sprintf("%s (%s) contributed %skg of CO2 to your monthly limit.",
			q.Description, factor.Name, kg.StringFixed(FootprintPlaces)),
		FactorKgPerUnit: factor.KgPerUnit,
		Fallback:        !known,
	}
}
