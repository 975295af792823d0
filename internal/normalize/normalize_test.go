package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestNum_JSONNumber(t *testing.T) {
	assert.Equal(t, 1234.56, Num(1234.5612))
	assert.Equal(t, 42.0, Num(42))
	assert.Equal(t, 42.0, Num(int64(42)))
}

func TestNum_CurrencyStrings(t *testing.T) {
	assert.Equal(t, 1250000.0, Num("$1,250,000"))
	assert.Equal(t, 88.5, Num("88.5%"))
	assert.Equal(t, -4200.0, Num("(4,200)"))
	assert.Equal(t, 95.25, Num("  $95.25  "))
}

func TestNum_Unparseable(t *testing.T) {
	assert.Equal(t, 0.0, Num(nil))
	assert.Equal(t, 0.0, Num("n/a"))
	assert.Equal(t, 0.0, Num(""))
	assert.Equal(t, 0.0, Num(map[string]any{}))
	assert.Equal(t, 0.0, Num(math.NaN()))
	assert.Equal(t, 0.0, Num(math.Inf(1)))
}

func TestConfidence_FractionScalesUp(t *testing.T) {
	assert.Equal(t, 85.0, Confidence(0.85, 50))
	assert.Equal(t, 100.0, Confidence(1.0, 50))
}

func TestConfidence_AlreadyOnScale(t *testing.T) {
	assert.Equal(t, 72.0, Confidence(72.0, 50))
	assert.Equal(t, 100.0, Confidence(140.0, 50))
}

func TestConfidence_MissingFallsBack(t *testing.T) {
	assert.Equal(t, 65.0, Confidence(nil, 65))
	assert.Equal(t, 65.0, Confidence("garbage", 65))
}

func TestRepairTotal_ProvidedWinsWithinTolerance(t *testing.T) {
	// 3% disagreement keeps the provided total.
	assert.Equal(t, 103.0, RepairTotal(103, 100))
}

func TestRepairTotal_ComponentSumWinsPastTolerance(t *testing.T) {
	assert.Equal(t, 100.0, RepairTotal(150, 100))
}

func TestRepairTotal_ZeroSides(t *testing.T) {
	assert.Equal(t, 500.0, RepairTotal(500, 0))
	assert.Equal(t, 400.0, RepairTotal(0, 400))
}

func TestInferPeriodType(t *testing.T) {
	assert.Equal(t, model.PeriodMonthly, InferPeriodType(30))
	assert.Equal(t, model.PeriodMonthly, InferPeriodType(31))
	assert.Equal(t, model.PeriodQuarterly, InferPeriodType(92))
	assert.Equal(t, model.PeriodQuarterly, InferPeriodType(180))
	assert.Equal(t, model.PeriodAnnual, InferPeriodType(365))
	assert.Equal(t, model.PeriodTTM, InferPeriodType(372))
}

func TestComputeMetrics(t *testing.T) {
	expenses := model.ExpenseBreakdown{
		Labor:     model.LaborBreakdown{Total: 500},
		Operating: 200,
		Fixed:     150,
		Rent:      100,
		Total:     850,
	}
	m := ComputeMetrics(1000, expenses)
	// Rent is a carve-out of Fixed: EBITDAR adds it back, EBITDA subtracts it.
	assert.Equal(t, 250.0, m.EBITDAR)
	assert.Equal(t, 150.0, m.EBITDA)
	assert.Equal(t, 150.0, m.NOI)
	assert.Equal(t, 0.25, m.EBITDARMargin)
	assert.Equal(t, 0.15, m.EBITDAMargin)
}

func TestComputeMetrics_ZeroRevenue(t *testing.T) {
	m := ComputeMetrics(0, model.ExpenseBreakdown{Total: 100})
	assert.Equal(t, -100.0, m.EBITDAR)
	assert.Equal(t, 0.0, m.EBITDARMargin)
}

func TestAnnualize_ScalesPartialYear(t *testing.T) {
	p := &model.FinancialPeriod{
		DaysCovered: 182,
		Revenue: model.RevenueBreakdown{
			ByPayer: map[model.PayerClass]float64{model.PayerMedicare: 500},
			Total:   1000,
		},
		Expenses: model.ExpenseBreakdown{
			Labor:     model.LaborBreakdown{Core: 300, Total: 300},
			Operating: 100,
			Fixed:     100,
			Rent:      50,
			Total:     500,
		},
	}
	Annualize(p)
	factor := 365.0 / 182.0
	assert.InDelta(t, 1000*factor, p.Revenue.Total, 0.01)
	assert.InDelta(t, 500*factor, p.Revenue.ByPayer[model.PayerMedicare], 0.01)
	assert.InDelta(t, 500*factor, p.Expenses.Total, 0.01)
	assert.InDelta(t, p.Revenue.Total-(p.Expenses.Total-p.Expenses.Rent), p.Metrics.EBITDAR, 0.01)
}

func TestAnnualize_FullYearUntouched(t *testing.T) {
	p := &model.FinancialPeriod{
		DaysCovered: 365,
		Revenue:     model.RevenueBreakdown{Total: 1200},
	}
	Annualize(p)
	assert.Equal(t, 1200.0, p.Revenue.Total)
}

func TestAnnualize_ZeroDaysNoOp(t *testing.T) {
	p := &model.FinancialPeriod{Revenue: model.RevenueBreakdown{Total: 100}}
	Annualize(p)
	assert.Equal(t, 100.0, p.Revenue.Total)
}
