package extraction

import (
	"fmt"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// Anomaly thresholds for standalone clarifications.
const (
	lowConfidenceFloor  = 70.0 // period confidence below this gets questioned
	agencyShareCeiling  = 0.25 // agency labor as a share of total labor
	payerCoverageFloor  = 0.50 // payer revenue breakdown vs reported total
	occupancyFloorPct   = 50.0
	occupancyCeilingPct = 100.0
)

// highImpactFields get a priority bump because they feed valuation directly.
var highImpactFields = map[string]bool{
	"revenue.total":   true,
	"expenses.total":  true,
	"metrics.noi":     true,
	"metrics.ebitdar": true,
}

// priorityFor maps conflict severity to clarification priority, bumping
// high-impact field paths by 2 capped at 10.
func priorityFor(severity model.ConflictSeverity, fieldPath string) int {
	var p int
	switch severity {
	case model.SeverityCritical:
		p = 10
	case model.SeverityHigh:
		p = 8
	case model.SeverityMedium:
		p = 6
	default:
		p = 5
	}
	if highImpactFields[fieldPath] {
		p += 2
		if p > 10 {
			p = 10
		}
	}
	return p
}

// ClarificationFromConflict elevates an unresolved conflict into a
// user-facing question with suggested values: every conflicting observation,
// a computed average, and the benchmark median when one exists.
func (c *Context) ClarificationFromConflict(conflict *model.DataConflict) *model.Clarification {
	suggested := make([]model.SuggestedValue, 0, len(conflict.Values)+2)
	var sum float64
	for _, v := range conflict.Values {
		suggested = append(suggested, model.SuggestedValue{
			Value:  v.Value,
			Label:  fmt.Sprintf("as extracted (confidence %.0f)", v.Confidence),
			Source: v.Source,
		})
		sum += v.Value
	}
	if len(conflict.Values) > 1 {
		suggested = append(suggested, model.SuggestedValue{
			Value: normalize.Round2(sum / float64(len(conflict.Values))),
			Label: "average of observations",
		})
	}
	if bench, ok := c.benchmarks.For(conflict.FieldPath); ok {
		suggested = append(suggested, model.SuggestedValue{
			Value: bench.Median,
			Label: "benchmark median",
		})
	}

	var question string
	switch conflict.Type {
	case model.ConflictRevenueReconciliation:
		question = fmt.Sprintf("Reported revenue for %s disagrees with census x rates by %.1f%%. Which figure should be used?",
			conflict.PeriodKey, conflict.VariancePercent)
	case model.ConflictCrossPeriod:
		question = fmt.Sprintf("%s swings %.1f%% between adjacent periods for %s. Is this a real change or a data issue?",
			conflict.FieldPath, conflict.VariancePercent, conflict.PeriodKey)
	case model.ConflictInternalConsistency:
		question = fmt.Sprintf("%s does not match the sum of its components for %s (off by %.1f%%). Which total is correct?",
			conflict.FieldPath, conflict.PeriodKey, conflict.VariancePercent)
	case model.ConflictBenchmarkDeviation:
		question = fmt.Sprintf("%s for %s is outside the expected benchmark band. Please confirm the value.",
			conflict.FieldPath, conflict.PeriodKey)
	default:
		question = fmt.Sprintf("Multiple documents report different values for %s (%s). Which should be used?",
			conflict.FieldPath, conflict.PeriodKey)
	}

	return &model.Clarification{
		ConflictID:      conflict.ID,
		FacilityID:      conflict.FacilityID,
		PeriodKey:       conflict.PeriodKey,
		FieldPath:       conflict.FieldPath,
		Question:        question,
		Priority:        priorityFor(conflict.Severity, conflict.FieldPath),
		SuggestedValues: suggested,
	}
}

// scanAnomalies raises clarifications for standalone out-of-range
// observations that never produced a conflict: low extraction confidence,
// outsized agency labor, thin payer revenue coverage, implausible occupancy.
func (c *Context) scanAnomalies() []*model.Clarification {
	var out []*model.Clarification

	for _, profile := range c.Profiles() {
		name := profile.Name
		for _, p := range profile.FinancialPeriods {
			key := p.Key()

			if p.Confidence < lowConfidenceFloor {
				out = append(out, &model.Clarification{
					FacilityID: p.FacilityID,
					PeriodKey:  key,
					FieldPath:  "confidence",
					Question: fmt.Sprintf("Extraction confidence for %s period ending %s is only %.0f. Please verify the figures.",
						name, p.PeriodEnd.Format("2006-01-02"), p.Confidence),
					Priority: 5,
				})
			}

			if p.Expenses.Labor.Total > 0 {
				share := p.Expenses.Labor.Agency / p.Expenses.Labor.Total
				if share > agencyShareCeiling {
					out = append(out, &model.Clarification{
						FacilityID: p.FacilityID,
						PeriodKey:  key,
						FieldPath:  "expenses.labor.agency",
						Question: fmt.Sprintf("Agency labor is %.0f%% of total labor for %s period ending %s. Confirm this is not a misclassification.",
							share*100, name, p.PeriodEnd.Format("2006-01-02")),
						Priority: 6,
						SuggestedValues: []model.SuggestedValue{
							{Value: p.Expenses.Labor.Agency, Label: "as extracted"},
						},
					})
				}
			}

			if p.Revenue.Total > 0 {
				coverage := p.Revenue.ComponentSum() / p.Revenue.Total
				if coverage > 0 && coverage < payerCoverageFloor {
					out = append(out, &model.Clarification{
						FacilityID: p.FacilityID,
						PeriodKey:  key,
						FieldPath:  "revenue.by_payer",
						Question: fmt.Sprintf("The payer breakdown covers only %.0f%% of reported revenue for %s period ending %s. Is the breakdown incomplete?",
							coverage*100, name, p.PeriodEnd.Format("2006-01-02")),
						Priority: 5,
					})
				}
			}
		}

		for _, cp := range profile.CensusPeriods {
			if cp.Occupancy > 0 && (cp.Occupancy < occupancyFloorPct || cp.Occupancy > occupancyCeilingPct) {
				out = append(out, &model.Clarification{
					FacilityID: cp.FacilityID,
					PeriodKey:  cp.Key(),
					FieldPath:  "census.occupancy",
					Question: fmt.Sprintf("Occupancy of %.1f%% for %s period ending %s is outside the plausible range. Please verify patient days and bed count.",
						cp.Occupancy, name, cp.PeriodEnd.Format("2006-01-02")),
					Priority: 6,
					SuggestedValues: []model.SuggestedValue{
						{Value: cp.Occupancy, Label: "as extracted"},
					},
				})
			}
		}
	}

	return out
}
