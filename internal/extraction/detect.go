package extraction

import (
	"fmt"
	"math"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// Variance thresholds, expressed as fractions.
const (
	conflictMinVariance    = 0.05 // below this, multi-source disagreement is noise
	conflictMediumVariance = 0.10
	conflictHighVariance   = 0.15

	reconcileTolerance = 0.10 // census-times-rate vs reported revenue
	reconcileHigh      = 0.20
)

// Variance computes the relative spread of a value set: max |v - avg| / avg,
// 0 when the average is 0. Symmetric in value order and scale-invariant.
func Variance(values []float64) (variancePct, varianceAbs float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var maxDiff float64
	for _, v := range values {
		if d := math.Abs(v - avg); d > maxDiff {
			maxDiff = d
		}
	}
	if avg == 0 {
		return 0, maxDiff
	}
	return math.Abs(maxDiff / avg), maxDiff
}

// checkForConflict runs the cross-document variance test whenever a
// cross-reference key has accumulated two or more entries. Re-detection for
// a key updates the open conflict in place instead of stacking duplicates.
func (c *Context) checkForConflict(facilityID, recordKey, fieldPath string, entries []Observation) {
	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	variancePct, varianceAbs := Variance(values)
	if variancePct < conflictMinVariance {
		return
	}

	severity := model.SeverityLow
	switch {
	case variancePct > conflictHighVariance:
		severity = model.SeverityHigh
	case variancePct > conflictMediumVariance:
		severity = model.SeverityMedium
	}

	cv := make([]model.ConflictValue, len(entries))
	for i, e := range entries {
		cv[i] = model.ConflictValue{
			Value:       e.Value,
			Source:      e.Source,
			Confidence:  e.Confidence,
			ExtractedAt: e.ExtractedAt,
		}
	}

	for _, existing := range c.conflicts {
		if existing.Type == model.ConflictCrossDocument &&
			existing.FieldPath == fieldPath &&
			existing.PeriodKey == recordKey &&
			existing.Status == model.ConflictDetected {
			existing.Values = cv
			existing.Severity = severity
			existing.VariancePercent = normalize.Round2(variancePct * 100)
			existing.VarianceAbsolute = normalize.Round2(varianceAbs)
			return
		}
	}

	c.AddConflict(&model.DataConflict{
		Type:             model.ConflictCrossDocument,
		Severity:         severity,
		FieldPath:        fieldPath,
		FacilityID:       facilityID,
		PeriodKey:        recordKey,
		Values:           cv,
		VariancePercent:  normalize.Round2(variancePct * 100),
		VarianceAbsolute: normalize.Round2(varianceAbs),
		Description:      fmt.Sprintf("%d sources disagree on %s", len(entries), fieldPath),
	})
}

// checkRevenueReconciliation compares reported revenue against census times
// payer rates once both sides exist for a period key. A CalculatedRevenue
// record is kept regardless of magnitude; a conflict is raised only past
// tolerance. The rate lookup uses the single most-recently-effective schedule
// for the whole period — a known approximation when a rate changes mid-period.
func (c *Context) checkRevenueReconciliation(facilityID, periodKey string) {
	b := c.builders[facilityID]
	if b == nil {
		return
	}

	var reported *model.FinancialPeriod
	for i := range b.Profile().FinancialPeriods {
		if b.Profile().FinancialPeriods[i].Key() == periodKey {
			reported = &b.Profile().FinancialPeriods[i]
			break
		}
	}
	if reported == nil || reported.Revenue.Total == 0 {
		return
	}

	census := b.CensusFor(periodKey)
	if census == nil {
		return
	}

	rate := b.LatestRateBefore(reported.PeriodEnd)
	if rate == nil {
		return
	}

	byPayer := make(map[model.PayerClass]float64, len(model.PayerClasses))
	var calculated float64
	for _, payer := range model.PayerClasses {
		amount := normalize.Round2(census.PatientDays.ByPayer[payer] * rate.Rates[payer])
		if amount != 0 {
			byPayer[payer] = amount
		}
		calculated += amount
	}
	calculated = normalize.Round2(calculated)

	variance := (calculated - reported.Revenue.Total) / reported.Revenue.Total

	entry := model.CalculatedRevenue{
		FacilityID:      facilityID,
		PeriodKey:       periodKey,
		Calculated:      calculated,
		Reported:        reported.Revenue.Total,
		VariancePercent: normalize.Round2(variance * 100),
		ByPayer:         byPayer,
		RateEffective:   rate.EffectiveDate,
	}

	raise := math.Abs(variance) > reconcileTolerance
	if raise {
		severity := model.SeverityMedium
		if math.Abs(variance) >= reconcileHigh {
			severity = model.SeverityHigh
		}
		entry.ConflictRaised = true
		c.AddConflict(&model.DataConflict{
			Type:       model.ConflictRevenueReconciliation,
			Severity:   severity,
			FieldPath:  "revenue.total",
			FacilityID: facilityID,
			PeriodKey:  periodKey,
			Values: []model.ConflictValue{
				{Value: reported.Revenue.Total, Source: "reported", Confidence: reported.Confidence},
				{Value: calculated, Source: "census x rates", Confidence: math.Min(census.Confidence, rate.Confidence)},
			},
			VariancePercent:  normalize.Round2(math.Abs(variance) * 100),
			VarianceAbsolute: normalize.Round2(math.Abs(calculated - reported.Revenue.Total)),
			Description:      fmt.Sprintf("reported revenue %.2f vs census-implied %.2f", reported.Revenue.Total, calculated),
		})
	}

	// Replace any earlier entry for the same key; the latest rate/census wins.
	for i := range c.calculated {
		if c.calculated[i].PeriodKey == periodKey {
			c.calculated[i] = entry
			return
		}
	}
	c.calculated = append(c.calculated, entry)
}
