package extraction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// Period-over-period swing thresholds (fractions).
const (
	swingRevenueTolerance = 0.20
	swingExpenseTolerance = 0.25
	swingHighTolerance    = 0.50
)

// Internal-consistency thresholds (fractions).
const (
	componentTolerance = 0.05
	componentHigh      = 0.15
)

// crossDocumentFields are the per-period fields swept by the cross-document
// consistency check.
var crossDocumentFields = map[string]bool{
	"revenue.total":  true,
	"expenses.total": true,
	"metrics.noi":    true,
}

// Validate runs the holistic post-ingestion sweep: cross-document grouping,
// period-over-period swings, revenue reconciliation resurfacing, internal
// consistency, benchmark deviation, then auto-resolution and clarification
// conversion. Sub-checks never mutate extraction data. Safe to call once per
// session; a second call only recomputes the score.
func (c *Context) Validate() model.ValidationResult {
	if !c.validated {
		c.validated = true
		c.sweepCrossDocument()
		c.sweepPeriodOverPeriod()
		c.resurfaceReconciliation()
		c.sweepInternalConsistency()
		c.sweepBenchmarks()
		c.sweepResolution()
	}
	return c.scoreValidation()
}

// sweepCrossDocument re-groups every cross-reference entry of interest and
// applies the variance test, catching keys whose entries accumulated across
// documents without tripping the incremental check.
func (c *Context) sweepCrossDocument() {
	c.xref.Each(func(key string, obs []Observation) {
		if len(obs) < 2 {
			return
		}
		sep := strings.LastIndex(key, "#")
		if sep < 0 {
			return
		}
		recordKey, fieldPath := key[:sep], key[sep+1:]
		if !crossDocumentFields[fieldPath] {
			return
		}
		facilityID := recordKey
		if i := strings.Index(recordKey, "|"); i > 0 {
			facilityID = recordKey[:i]
		}
		c.checkForConflict(facilityID, recordKey, fieldPath, obs)
	})
}

// sweepPeriodOverPeriod flags implausible adjacent-period swings in revenue
// and expenses. These always require a human: a 40% revenue drop can be a
// census collapse, not a data error.
func (c *Context) sweepPeriodOverPeriod() {
	for _, profile := range c.Profiles() {
		periods := make([]model.FinancialPeriod, len(profile.FinancialPeriods))
		copy(periods, profile.FinancialPeriods)
		sort.Slice(periods, func(i, j int) bool {
			return periods[i].PeriodEnd.Before(periods[j].PeriodEnd)
		})

		for i := 1; i < len(periods); i++ {
			prev, cur := periods[i-1], periods[i]
			c.flagSwing(profile, prev, cur, "revenue.total", prev.Revenue.Total, cur.Revenue.Total, swingRevenueTolerance)
			c.flagSwing(profile, prev, cur, "expenses.total", prev.Expenses.Total, cur.Expenses.Total, swingExpenseTolerance)
		}
	}
}

func (c *Context) flagSwing(profile *model.FacilityProfile, prev, cur model.FinancialPeriod, fieldPath string, prevVal, curVal, tolerance float64) {
	if prevVal == 0 {
		return
	}
	swing := math.Abs(curVal-prevVal) / math.Abs(prevVal)
	if swing <= tolerance {
		return
	}
	if c.hasConflict(model.ConflictCrossPeriod, fieldPath, cur.Key()) {
		return
	}
	severity := model.SeverityMedium
	if swing > swingHighTolerance {
		severity = model.SeverityHigh
	}
	c.AddConflict(&model.DataConflict{
		Type:       model.ConflictCrossPeriod,
		Severity:   severity,
		FieldPath:  fieldPath,
		FacilityID: profile.ID,
		PeriodKey:  cur.Key(),
		Values: []model.ConflictValue{
			{Value: prevVal, Source: "period ending " + prev.PeriodEnd.Format("2006-01-02"), Confidence: prev.Confidence},
			{Value: curVal, Source: "period ending " + cur.PeriodEnd.Format("2006-01-02"), Confidence: cur.Confidence},
		},
		VariancePercent:  normalize.Round2(swing * 100),
		VarianceAbsolute: normalize.Round2(math.Abs(curVal - prevVal)),
		Description:      fmt.Sprintf("%s moved %.1f%% between adjacent periods", fieldPath, swing*100),
	})
}

// resurfaceReconciliation raises conflicts for calculated-revenue entries
// whose variance exceeds tolerance but that never produced a conflict at
// ingestion time (e.g. the rate schedule arrived last).
func (c *Context) resurfaceReconciliation() {
	for i := range c.calculated {
		entry := &c.calculated[i]
		if entry.ConflictRaised {
			continue
		}
		variance := math.Abs(entry.VariancePercent) / 100
		if variance <= reconcileTolerance {
			continue
		}
		if c.hasConflict(model.ConflictRevenueReconciliation, "revenue.total", entry.PeriodKey) {
			entry.ConflictRaised = true
			continue
		}
		severity := model.SeverityMedium
		if variance >= reconcileHigh {
			severity = model.SeverityHigh
		}
		entry.ConflictRaised = true
		c.AddConflict(&model.DataConflict{
			Type:       model.ConflictRevenueReconciliation,
			Severity:   severity,
			FieldPath:  "revenue.total",
			FacilityID: entry.FacilityID,
			PeriodKey:  entry.PeriodKey,
			Values: []model.ConflictValue{
				{Value: entry.Reported, Source: "reported"},
				{Value: entry.Calculated, Source: "census x rates"},
			},
			VariancePercent:  normalize.Round2(variance * 100),
			VarianceAbsolute: normalize.Round2(math.Abs(entry.Calculated - entry.Reported)),
			Description:      fmt.Sprintf("reported revenue %.2f vs census-implied %.2f", entry.Reported, entry.Calculated),
		})
	}
}

// sweepInternalConsistency verifies that stored totals match their component
// sums: expense components against expenses.total, labor sub-components
// against labor.total.
func (c *Context) sweepInternalConsistency() {
	for _, profile := range c.Profiles() {
		for _, p := range profile.FinancialPeriods {
			key := p.Key()

			if p.Expenses.Total != 0 {
				components := p.Expenses.ComponentSum()
				if components != 0 {
					off := math.Abs(p.Expenses.Total-components) / math.Abs(p.Expenses.Total)
					if off > componentTolerance && !c.hasConflict(model.ConflictInternalConsistency, "expenses.total", key) {
						severity := model.SeverityMedium
						if off > componentHigh {
							severity = model.SeverityHigh
						}
						c.AddConflict(&model.DataConflict{
							Type:       model.ConflictInternalConsistency,
							Severity:   severity,
							FieldPath:  "expenses.total",
							FacilityID: profile.ID,
							PeriodKey:  key,
							Values: []model.ConflictValue{
								{Value: p.Expenses.Total, Source: "reported total", Confidence: p.Confidence},
								{Value: normalize.Round2(components), Source: "labor + operating + fixed", Confidence: p.Confidence},
							},
							VariancePercent:  normalize.Round2(off * 100),
							VarianceAbsolute: normalize.Round2(math.Abs(p.Expenses.Total - components)),
							Description:      "expense total disagrees with component sum",
						})
					}
				}
			}

			if p.Expenses.Labor.Total != 0 {
				components := p.Expenses.Labor.ComponentSum()
				if components != 0 {
					off := math.Abs(p.Expenses.Labor.Total-components) / math.Abs(p.Expenses.Labor.Total)
					if off > componentTolerance && !c.hasConflict(model.ConflictInternalConsistency, "expenses.labor.total", key) {
						c.AddConflict(&model.DataConflict{
							Type:       model.ConflictInternalConsistency,
							Severity:   model.SeverityLow,
							FieldPath:  "expenses.labor.total",
							FacilityID: profile.ID,
							PeriodKey:  key,
							Values: []model.ConflictValue{
								{Value: p.Expenses.Labor.Total, Source: "reported total", Confidence: p.Confidence},
								{Value: normalize.Round2(components), Source: "core + agency + benefits", Confidence: p.Confidence},
							},
							VariancePercent:  normalize.Round2(off * 100),
							VarianceAbsolute: normalize.Round2(math.Abs(p.Expenses.Labor.Total - components)),
							Description:      "labor total disagrees with component sum",
						})
					}
				}
			}
		}
	}
}

// sweepBenchmarks compares per-period metrics against the configured
// benchmark bands. Deviation is advisory, never a data error: severity is
// low, bumped to medium when the value sits more than a band width outside.
func (c *Context) sweepBenchmarks() {
	for _, profile := range c.Profiles() {
		for _, p := range profile.FinancialPeriods {
			c.flagBenchmark(profile.ID, p.Key(), "metrics.ebitdar_margin", p.Metrics.EBITDARMargin, p.Confidence)
			c.flagBenchmark(profile.ID, p.Key(), "metrics.noi_margin", p.Metrics.NOIMargin, p.Confidence)
		}
		for _, cp := range profile.CensusPeriods {
			if cp.Occupancy > 0 {
				c.flagBenchmark(profile.ID, cp.Key(), "census.occupancy", cp.Occupancy, cp.Confidence)
			}
		}
	}
}

func (c *Context) flagBenchmark(facilityID, key, metric string, value, confidence float64) {
	bench, ok := c.benchmarks.For(metric)
	if !ok || value == 0 || bench.Contains(value) {
		return
	}
	if c.hasConflict(model.ConflictBenchmarkDeviation, metric, key) {
		return
	}
	var dist float64
	if value < bench.Min {
		dist = bench.Min - value
	} else {
		dist = value - bench.Max
	}
	severity := model.SeverityLow
	if bench.Width() > 0 && dist > bench.Width() {
		severity = model.SeverityMedium
	}
	c.AddConflict(&model.DataConflict{
		Type:       model.ConflictBenchmarkDeviation,
		Severity:   severity,
		FieldPath:  metric,
		FacilityID: facilityID,
		PeriodKey:  key,
		Values: []model.ConflictValue{
			{Value: value, Source: "extracted", Confidence: confidence},
			{Value: bench.Median, Source: "benchmark median"},
		},
		VarianceAbsolute: normalize.Round2(dist),
		Description:      fmt.Sprintf("%s of %.2f outside benchmark band [%.2f, %.2f]", metric, value, bench.Min, bench.Max),
	})
}

// sweepResolution attempts auto-resolution on every open conflict, then
// converts the survivors into clarifications and queues the standalone
// anomaly questions.
func (c *Context) sweepResolution() {
	for _, conflict := range c.conflicts {
		if conflict.Status != model.ConflictDetected {
			continue
		}
		if c.TryAutoResolve(conflict) {
			continue
		}
		cl := c.ClarificationFromConflict(conflict)
		c.AddClarification(cl)
		conflict.Status = model.ConflictPendingClarification
	}

	for _, cl := range c.scanAnomalies() {
		c.AddClarification(cl)
	}
}

func (c *Context) hasConflict(t model.ConflictType, fieldPath, periodKey string) bool {
	for _, conflict := range c.conflicts {
		if conflict.Type == t && conflict.FieldPath == fieldPath && conflict.PeriodKey == periodKey {
			return true
		}
	}
	return false
}

// scoreValidation derives the validity verdict and 0-100 score from the
// surviving conflicts and pending clarifications.
func (c *Context) scoreValidation() model.ValidationResult {
	score := 100
	isValid := true
	var unresolved int
	for _, conflict := range c.conflicts {
		if !conflict.Unresolved() {
			continue
		}
		unresolved++
		switch conflict.Severity {
		case model.SeverityCritical:
			score -= 20
			isValid = false
		case model.SeverityHigh:
			score -= 10
			isValid = false
		case model.SeverityMedium:
			score -= 5
		default:
			score -= 2
		}
	}
	score -= 3 * len(c.pending)
	if score < 0 {
		score = 0
	}

	result := model.ValidationResult{
		IsValid:         isValid,
		ValidationScore: score,
		ConflictsFound:  len(c.conflicts),
		AutoResolved:    c.stats.ConflictsAutoResolved,
		Clarifications:  len(c.pending),
	}
	zap.L().Info("validate: pass complete",
		zap.Bool("is_valid", result.IsValid),
		zap.Int("score", result.ValidationScore),
		zap.Int("conflicts", result.ConflictsFound),
		zap.Int("unresolved", unresolved),
		zap.Int("pending_clarifications", result.Clarifications),
	)
	return result
}
