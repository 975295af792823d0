package facility

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// Builder accumulates one facility's periods and recomputes its derived
// aggregates after every accepted mutation. All period lists are kept
// most-recent-first.
type Builder struct {
	profile *model.FacilityProfile
	now     func() time.Time
}

// NewBuilder wraps a profile owned by the session's resolver.
func NewBuilder(p *model.FacilityProfile) *Builder {
	return &Builder{profile: p, now: time.Now}
}

// Profile returns the underlying profile.
func (b *Builder) Profile() *model.FacilityProfile {
	return b.profile
}

// AddFinancialPeriod ingests a period under the retention rule: a record for
// an occupied key wins only with equal-or-higher confidence. Returns whether
// the record was accepted.
func (b *Builder) AddFinancialPeriod(p model.FinancialPeriod) bool {
	accepted := false
	for i, existing := range b.profile.FinancialPeriods {
		if existing.Key() != p.Key() {
			continue
		}
		if p.Confidence >= existing.Confidence {
			b.profile.FinancialPeriods[i] = p
			accepted = true
		} else {
			zap.L().Debug("facility: dropped lower-confidence financial period",
				zap.String("key", p.Key()),
				zap.Float64("stored", existing.Confidence),
				zap.Float64("incoming", p.Confidence),
			)
		}
		if accepted {
			b.recompute()
		}
		return accepted
	}
	b.profile.FinancialPeriods = append(b.profile.FinancialPeriods, p)
	sort.SliceStable(b.profile.FinancialPeriods, func(i, j int) bool {
		return b.profile.FinancialPeriods[i].PeriodEnd.After(b.profile.FinancialPeriods[j].PeriodEnd)
	})
	b.recompute()
	return true
}

// AddCensusPeriod ingests a census observation under the retention rule.
func (b *Builder) AddCensusPeriod(c model.CensusPeriod) bool {
	for i, existing := range b.profile.CensusPeriods {
		if existing.Key() != c.Key() {
			continue
		}
		if c.Confidence >= existing.Confidence {
			b.profile.CensusPeriods[i] = c
			b.recompute()
			return true
		}
		return false
	}
	b.profile.CensusPeriods = append(b.profile.CensusPeriods, c)
	sort.SliceStable(b.profile.CensusPeriods, func(i, j int) bool {
		return b.profile.CensusPeriods[i].PeriodEnd.After(b.profile.CensusPeriods[j].PeriodEnd)
	})
	if c.LicensedBeds > 0 && b.profile.LicensedBeds == 0 {
		b.profile.LicensedBeds = c.LicensedBeds
	}
	b.recompute()
	return true
}

// AddPayerRate ingests a rate schedule under the retention rule.
func (b *Builder) AddPayerRate(r model.PayerRate) bool {
	for i, existing := range b.profile.PayerRates {
		if existing.Key() != r.Key() {
			continue
		}
		if r.Confidence >= existing.Confidence {
			b.profile.PayerRates[i] = r
			b.recompute()
			return true
		}
		return false
	}
	b.profile.PayerRates = append(b.profile.PayerRates, r)
	sort.SliceStable(b.profile.PayerRates, func(i, j int) bool {
		return b.profile.PayerRates[i].EffectiveDate.After(b.profile.PayerRates[j].EffectiveDate)
	})
	b.recompute()
	return true
}

// ApplyInfo merges facility identity/structure attributes, keeping existing
// values unless they are empty.
func (b *Builder) ApplyInfo(info model.RawFacilityInfo) {
	p := b.profile
	if p.CCN == "" && info.CCN != "" {
		p.CCN = info.CCN
	}
	if beds := int(normalize.Num(info.LicensedBeds)); beds > 0 && p.LicensedBeds == 0 {
		p.LicensedBeds = beds
	}
	if beds := int(normalize.Num(info.AvailableBeds)); beds > 0 && p.AvailableBeds == 0 {
		p.AvailableBeds = beds
	}
	if p.Class == "" && info.Class != "" {
		p.Class = model.FacilityClass(info.Class)
	}
	b.recompute()
}

// LatestRateBefore returns the most recently effective rate schedule at or
// before the given date, or nil.
func (b *Builder) LatestRateBefore(date time.Time) *model.PayerRate {
	// PayerRates are most-recent-first.
	for i := range b.profile.PayerRates {
		if !b.profile.PayerRates[i].EffectiveDate.After(date) {
			return &b.profile.PayerRates[i]
		}
	}
	return nil
}

// CensusFor returns the census period matching a financial period key, or nil.
func (b *Builder) CensusFor(periodKey string) *model.CensusPeriod {
	for i := range b.profile.CensusPeriods {
		if b.profile.CensusPeriods[i].Key() == periodKey {
			return &b.profile.CensusPeriods[i]
		}
	}
	return nil
}

func (b *Builder) recompute() {
	b.computeTTM()
	b.computeCensusAverages()
	b.computeCompleteness()
	b.computeConfidence()
}

// computeTTM sums the periods whose end dates fall in the trailing twelve
// months, falling back to the last 12 ingested periods when none do, and
// annualizes by 12/monthsCovered for partial coverage.
func (b *Builder) computeTTM() {
	p := b.profile
	if len(p.FinancialPeriods) == 0 {
		p.TTM = nil
		return
	}

	cutoff := b.now().AddDate(-1, 0, 0)
	var window []model.FinancialPeriod
	for _, fp := range p.FinancialPeriods {
		if fp.PeriodEnd.After(cutoff) {
			window = append(window, fp)
		}
	}
	if len(window) == 0 {
		n := len(p.FinancialPeriods)
		if n > 12 {
			n = 12
		}
		window = p.FinancialPeriods[:n]
	}

	ttm := &model.TTMMetrics{
		WindowStart: window[len(window)-1].PeriodStart,
		WindowEnd:   window[0].PeriodEnd,
	}
	var days int
	for _, fp := range window {
		ttm.Revenue += fp.Revenue.Total
		ttm.Expenses += fp.Expenses.Total
		ttm.EBITDAR += fp.Metrics.EBITDAR
		ttm.EBITDA += fp.Metrics.EBITDA
		ttm.NOI += fp.Metrics.NOI
		days += fp.DaysCovered
	}
	ttm.MonthsCovered = int(math.Round(float64(days) / 30.44))
	if ttm.MonthsCovered > 0 && ttm.MonthsCovered < 12 {
		factor := 12 / float64(ttm.MonthsCovered)
		ttm.Revenue *= factor
		ttm.Expenses *= factor
		ttm.EBITDAR *= factor
		ttm.EBITDA *= factor
		ttm.NOI *= factor
		ttm.Annualized = true
	}
	ttm.Revenue = normalize.Round2(ttm.Revenue)
	ttm.Expenses = normalize.Round2(ttm.Expenses)
	ttm.EBITDAR = normalize.Round2(ttm.EBITDAR)
	ttm.EBITDA = normalize.Round2(ttm.EBITDA)
	ttm.NOI = normalize.Round2(ttm.NOI)
	p.TTM = ttm
}

// computeCensusAverages takes the arithmetic mean of non-zero census
// observations for occupancy and per-payer day mix.
func (b *Builder) computeCensusAverages() {
	p := b.profile
	var occSum float64
	var occN int
	mixSums := make(map[model.PayerClass]float64)
	var mixTotal float64

	for _, c := range p.CensusPeriods {
		if c.Occupancy > 0 {
			occSum += c.Occupancy
			occN++
		}
		for payer, d := range c.PatientDays.ByPayer {
			mixSums[payer] += d
		}
		mixTotal += c.PatientDays.Total
	}

	if occN > 0 {
		p.AvgOccupancy = normalize.Round2(occSum / float64(occN))
	} else {
		p.AvgOccupancy = 0
	}

	if mixTotal > 0 {
		mix := make(map[model.PayerClass]float64, len(mixSums))
		for payer, d := range mixSums {
			if d > 0 {
				mix[payer] = normalize.Round2(d / mixTotal * 100)
			}
		}
		p.PayerMix = mix
	} else {
		p.PayerMix = nil
	}
}

// computeCompleteness scores the profile against a weighted 100-point rubric:
// identity/basic info 20, financial coverage up to 30 (2.5/month, 12 months),
// census coverage up to 25 (2/month), populated payer rates 15, full TTM 10.
func (b *Builder) computeCompleteness() {
	p := b.profile
	var score float64

	if p.Name != "" && p.Name != UnknownFacility {
		score += 10
	}
	if p.LicensedBeds > 0 {
		score += 5
	}
	if p.Class != "" {
		score += 5
	}

	score += math.Min(30, monthsOfFinancialCoverage(p)*2.5)
	score += math.Min(25, monthsOfCensusCoverage(p)*2)

	if len(p.PayerRates) > 0 {
		score += 15
	}
	if p.TTM != nil && p.TTM.Revenue != 0 && p.TTM.Expenses != 0 && p.TTM.EBITDAR != 0 && p.TTM.NOI != 0 {
		score += 10
	}

	p.DataCompleteness = normalize.Round2(math.Min(100, score))
}

func monthsOfFinancialCoverage(p *model.FacilityProfile) float64 {
	var days int
	for _, fp := range p.FinancialPeriods {
		days += fp.DaysCovered
	}
	return float64(days) / 30.44
}

func monthsOfCensusCoverage(p *model.FacilityProfile) float64 {
	var days int
	for _, c := range p.CensusPeriods {
		days += c.DaysCovered
	}
	return float64(days) / 30.44
}

// computeConfidence averages the confidence of every stored record.
func (b *Builder) computeConfidence() {
	p := b.profile
	var sum float64
	var n int
	for _, fp := range p.FinancialPeriods {
		sum += fp.Confidence
		n++
	}
	for _, c := range p.CensusPeriods {
		sum += c.Confidence
		n++
	}
	for _, r := range p.PayerRates {
		sum += r.Confidence
		n++
	}
	if n == 0 {
		p.DataConfidence = 0
		return
	}
	p.DataConfidence = normalize.Round2(sum / float64(n))
}
