// Package normalize converts the reader's duck-typed partial records into
// fully-typed model records. Every numeric leaf is coerced and rounded, component
// sums repair unreliable totals, and derived metrics are recomputed from scratch
// so nothing downstream trusts reader arithmetic.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/valuation-cli/internal/model"
)

// totalRepairTolerance is the relative disagreement between a provided total
// and its component sum beyond which the component sum wins.
const totalRepairTolerance = 0.10

// annualizeTolerance: annualization is a no-op when the 365/days factor is
// within 5% of 1.
const annualizeTolerance = 0.05

// Round2 rounds to 2 decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Num coerces a duck-typed numeric leaf to a rounded float64. Nil, NaN,
// infinities, and unparseable strings all become 0 so a sparse partial
// record never aborts ingestion.
func Num(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		cleaned := strings.TrimSpace(n)
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		cleaned = strings.TrimPrefix(cleaned, "$")
		neg := false
		// Accountant-style parentheses for negatives.
		if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
			neg = true
			cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
		}
		cleaned = strings.TrimSuffix(cleaned, "%")
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		f = parsed
		if neg {
			f = -f
		}
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Round2(f)
}

// Confidence coerces a confidence value onto the [0,100] scale. Values at or
// below 1 are treated as fractions. A missing value falls back to def.
func Confidence(v any, def float64) float64 {
	if v == nil {
		return clampScore(def)
	}
	c := Num(v)
	if c == 0 {
		return clampScore(def)
	}
	if c <= 1 {
		c *= 100
	}
	return clampScore(c)
}

func clampScore(c float64) float64 {
	return math.Min(100, math.Max(0, Round2(c)))
}

// RepairTotal returns the trusted total given a provided total and the sum of
// its components. The component sum wins when the provided total is zero or
// disagrees with it by more than 10%.
func RepairTotal(provided, componentSum float64) float64 {
	if componentSum == 0 {
		return Round2(provided)
	}
	if provided == 0 {
		return Round2(componentSum)
	}
	if math.Abs(provided-componentSum)/math.Abs(provided) > totalRepairTolerance {
		return Round2(componentSum)
	}
	return Round2(provided)
}

// InferPeriodType classifies a period by its day span.
func InferPeriodType(days int) model.PeriodType {
	switch {
	case days <= 35:
		return model.PeriodMonthly
	case days <= 100:
		return model.PeriodQuarterly
	case days >= 360 && days <= 370:
		return model.PeriodAnnual
	case days > 360:
		return model.PeriodTTM
	default:
		// Spans between 100 and 360 days carry no standard granularity;
		// treat them as quarterly-ish partial years.
		return model.PeriodQuarterly
	}
}

// ComputeMetrics derives EBITDAR/EBITDA/NOI and margins from a period's
// revenue and expenses. D&A and interest are not decomposed at this layer,
// so NOI equals EBITDA.
func ComputeMetrics(revenue float64, expenses model.ExpenseBreakdown) model.DerivedMetrics {
	ebitdar := Round2(revenue - (expenses.Total - expenses.Rent))
	ebitda := Round2(ebitdar - expenses.Rent)
	m := model.DerivedMetrics{
		EBITDAR: ebitdar,
		EBITDA:  ebitda,
		NOI:     ebitda,
	}
	if revenue != 0 {
		m.EBITDARMargin = Round2(ebitdar / revenue)
		m.EBITDAMargin = Round2(ebitda / revenue)
		m.NOIMargin = m.EBITDAMargin
	}
	return m
}

// Annualize scales every additive field of a financial period to a full year
// when the coverage factor deviates from 1 by more than 5%. Margins are
// ratios and survive unscaled; metrics are recomputed from the scaled bases.
func Annualize(p *model.FinancialPeriod) {
	if p.DaysCovered <= 0 {
		return
	}
	factor := 365.0 / float64(p.DaysCovered)
	if math.Abs(factor-1) <= annualizeTolerance {
		return
	}
	for k, v := range p.Revenue.ByPayer {
		p.Revenue.ByPayer[k] = Round2(v * factor)
	}
	p.Revenue.Total = Round2(p.Revenue.Total * factor)
	p.Expenses.Labor.Core = Round2(p.Expenses.Labor.Core * factor)
	p.Expenses.Labor.Agency = Round2(p.Expenses.Labor.Agency * factor)
	p.Expenses.Labor.Benefits = Round2(p.Expenses.Labor.Benefits * factor)
	p.Expenses.Labor.Total = Round2(p.Expenses.Labor.Total * factor)
	p.Expenses.Operating = Round2(p.Expenses.Operating * factor)
	p.Expenses.Fixed = Round2(p.Expenses.Fixed * factor)
	p.Expenses.Rent = Round2(p.Expenses.Rent * factor)
	p.Expenses.Total = Round2(p.Expenses.Total * factor)
	p.Metrics = ComputeMetrics(p.Revenue.Total, p.Expenses)
}
