// Package extraction implements the session-level extraction context: the
// stateful accumulator that ingests normalized records, cross-references
// values across documents, detects and resolves numeric conflicts, and
// escalates unresolved disagreements into clarifications.
package extraction

import (
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/facility"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// Context is the aggregate root for one deal session. It exclusively owns
// all facility profiles, extracted records, the cross-reference index,
// conflicts, and clarifications. One goroutine owns a Context; it is not
// safe for concurrent use.
type Context struct {
	SessionID string
	DealID    string

	resolver *facility.Resolver
	builders map[string]*facility.Builder

	// Flat session-level record lists; every ingested record lands here even
	// when the per-facility retention rule drops it, so the audit trail and
	// confidence math see all observations.
	financialPeriods []model.FinancialPeriod
	censusPeriods    []model.CensusPeriod
	payerRates       []model.PayerRate

	xref       *CrossRef
	conflicts  []*model.DataConflict
	pending    []*model.Clarification
	resolved   []*model.Clarification
	calculated []model.CalculatedRevenue

	stats      model.ProcessingStats
	confidence float64
	benchmarks *benchmark.Table
	validated  bool
	now        func() time.Time
}

// NewContext creates an empty session context.
func NewContext(sessionID, dealID string, benchmarks *benchmark.Table) *Context {
	if benchmarks == nil {
		benchmarks = benchmark.Default()
	}
	return &Context{
		SessionID:  sessionID,
		DealID:     dealID,
		resolver:   facility.NewResolver(),
		builders:   make(map[string]*facility.Builder),
		xref:       NewCrossRef(),
		benchmarks: benchmarks,
		now:        time.Now,
	}
}

// FindOrCreateFacility resolves a facility name to its session profile.
func (c *Context) FindOrCreateFacility(name string) (*model.FacilityProfile, bool) {
	p, isNew := c.resolver.FindOrCreate(name)
	if isNew {
		c.builders[p.ID] = facility.NewBuilder(p)
	}
	return p, isNew
}

// Builder returns the profile builder for a facility id, or nil.
func (c *Context) Builder(facilityID string) *facility.Builder {
	return c.builders[facilityID]
}

// Profiles returns every facility profile in creation order.
func (c *Context) Profiles() []*model.FacilityProfile {
	return c.resolver.Profiles()
}

// AddFinancialPeriod ingests a normalized financial period: the flat session
// list and the owning profile are updated, cross-reference entries are
// written for the reconciliation fields, and entry accumulation triggers
// immediate conflict detection.
func (c *Context) AddFinancialPeriod(p model.FinancialPeriod) {
	c.financialPeriods = append(c.financialPeriods, p)
	c.stats.FinancialPeriods++

	b := c.builders[p.FacilityID]
	if b == nil {
		zap.L().Warn("context: financial period for unknown facility", zap.String("facility_id", p.FacilityID))
		return
	}
	if !b.AddFinancialPeriod(p) {
		c.stats.RecordsDropped++
	}

	key := p.Key()
	src := sourceName(p.Sources)
	at := extractedAt(p.Sources, c.now())
	for _, f := range []struct {
		path  string
		value float64
	}{
		{"revenue.total", p.Revenue.Total},
		{"expenses.total", p.Expenses.Total},
		{"metrics.ebitdar", p.Metrics.EBITDAR},
		{"metrics.noi", p.Metrics.NOI},
	} {
		entries := c.xref.Add(key, f.path, Observation{
			Value:       f.value,
			Source:      src,
			Confidence:  p.Confidence,
			ExtractedAt: at,
		})
		if len(entries) >= 2 {
			c.checkForConflict(p.FacilityID, key, f.path, entries)
		}
	}

	c.checkRevenueReconciliation(p.FacilityID, key)
	c.recomputeConfidence()
}

// AddCensusPeriod ingests a normalized census period and triggers revenue
// reconciliation for its period key.
func (c *Context) AddCensusPeriod(cp model.CensusPeriod) {
	c.censusPeriods = append(c.censusPeriods, cp)
	c.stats.CensusPeriods++

	b := c.builders[cp.FacilityID]
	if b == nil {
		zap.L().Warn("context: census period for unknown facility", zap.String("facility_id", cp.FacilityID))
		return
	}
	if !b.AddCensusPeriod(cp) {
		c.stats.RecordsDropped++
	}

	key := cp.Key()
	entries := c.xref.Add(key, "census.patient_days.total", Observation{
		Value:       cp.PatientDays.Total,
		Source:      sourceName(cp.Sources),
		Confidence:  cp.Confidence,
		ExtractedAt: extractedAt(cp.Sources, c.now()),
	})
	if len(entries) >= 2 {
		c.checkForConflict(cp.FacilityID, key, "census.patient_days.total", entries)
	}

	c.checkRevenueReconciliation(cp.FacilityID, key)
	c.recomputeConfidence()
}

// AddPayerRate ingests a normalized rate schedule.
func (c *Context) AddPayerRate(r model.PayerRate) {
	c.payerRates = append(c.payerRates, r)
	c.stats.PayerRates++

	b := c.builders[r.FacilityID]
	if b == nil {
		zap.L().Warn("context: payer rate for unknown facility", zap.String("facility_id", r.FacilityID))
		return
	}
	if !b.AddPayerRate(r) {
		c.stats.RecordsDropped++
	}

	key := r.Key()
	src := sourceName(r.Sources)
	at := extractedAt(r.Sources, c.now())
	for payer, rate := range r.Rates {
		if rate == 0 {
			continue
		}
		path := "rates." + string(payer)
		entries := c.xref.Add(key, path, Observation{
			Value:       rate,
			Source:      src,
			Confidence:  r.Confidence,
			ExtractedAt: at,
		})
		if len(entries) >= 2 {
			c.checkForConflict(r.FacilityID, key, path, entries)
		}
	}

	c.recomputeConfidence()
}

// FinancialPeriods returns the flat session-level period list.
func (c *Context) FinancialPeriods() []model.FinancialPeriod {
	return c.financialPeriods
}

// CensusPeriods returns the flat session-level census list.
func (c *Context) CensusPeriods() []model.CensusPeriod {
	return c.censusPeriods
}

// PayerRates returns the flat session-level rate list.
func (c *Context) PayerRates() []model.PayerRate {
	return c.payerRates
}

// CalculatedRevenues returns every census-times-rate reconciliation record.
func (c *Context) CalculatedRevenues() []model.CalculatedRevenue {
	return c.calculated
}

// Conflicts returns every detected conflict.
func (c *Context) Conflicts() []*model.DataConflict {
	return c.conflicts
}

// PendingClarifications returns the pending clarification queue.
func (c *Context) PendingClarifications() []*model.Clarification {
	return c.pending
}

// ResolvedClarifications returns resolved and skipped clarifications.
func (c *Context) ResolvedClarifications() []*model.Clarification {
	return c.resolved
}

// Stats returns the session's processing counters.
func (c *Context) Stats() model.ProcessingStats {
	return c.stats
}

// OverallConfidence returns the session confidence score in [0,100].
func (c *Context) OverallConfidence() float64 {
	return c.confidence
}

// AddTokens accrues reader token usage into the session stats.
func (c *Context) AddTokens(n int) {
	c.stats.TokensUsed += n
}

// MarkDocumentProcessed increments the processed-document counter.
func (c *Context) MarkDocumentProcessed() {
	c.stats.DocumentsProcessed++
}

// MarkDocumentSkipped increments the skipped-document counter.
func (c *Context) MarkDocumentSkipped() {
	c.stats.DocumentsSkipped++
}

// AddConflict records a detected conflict, assigning id, timestamp, and the
// initial state-machine status.
func (c *Context) AddConflict(conflict *model.DataConflict) {
	if conflict.ID == "" {
		conflict.ID = uuid.New().String()
	}
	if conflict.Status == "" {
		conflict.Status = model.ConflictDetected
	}
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = c.now()
	}
	c.conflicts = append(c.conflicts, conflict)
	c.stats.ConflictsDetected++
	zap.L().Info("context: conflict detected",
		zap.String("type", string(conflict.Type)),
		zap.String("severity", string(conflict.Severity)),
		zap.String("field", conflict.FieldPath),
		zap.Float64("variance_pct", conflict.VariancePercent),
	)
	c.recomputeConfidence()
}

// ResolveConflict applies a resolution to a conflict. Unknown ids are silent
// no-ops so stale clients cannot corrupt session state.
func (c *Context) ResolveConflict(id string, res model.ConflictResolution) {
	for _, conflict := range c.conflicts {
		if conflict.ID != id {
			continue
		}
		if res.ResolvedAt.IsZero() {
			res.ResolvedAt = c.now()
		}
		conflict.Resolution = &res
		if res.Method == model.ResolveUserInput {
			conflict.Status = model.ConflictUserResolved
		} else {
			conflict.Status = model.ConflictAutoResolved
			c.stats.ConflictsAutoResolved++
		}
		c.recomputeConfidence()
		return
	}
}

// AddClarification queues a clarification for human review.
func (c *Context) AddClarification(cl *model.Clarification) {
	if cl.ID == "" {
		cl.ID = uuid.New().String()
	}
	if cl.Status == "" {
		cl.Status = model.ClarificationPending
	}
	if cl.CreatedAt.IsZero() {
		cl.CreatedAt = c.now()
	}
	c.pending = append(c.pending, cl)
	c.stats.ClarificationsRaised++
	c.recomputeConfidence()
}

// ResolveClarification answers a pending clarification and user-resolves any
// linked conflict. Unknown ids are silent no-ops.
func (c *Context) ResolveClarification(id string, value float64, resolvedBy, note string) {
	cl := c.takePending(id)
	if cl == nil {
		return
	}
	cl.Status = model.ClarificationResolved
	cl.Answer = &model.ClarificationAnswer{
		Value:      value,
		ResolvedBy: resolvedBy,
		Note:       note,
		ResolvedAt: c.now(),
	}
	c.resolved = append(c.resolved, cl)
	c.stats.ClarificationsResolved++

	if cl.ConflictID != "" {
		c.ResolveConflict(cl.ConflictID, model.ConflictResolution{
			Method:     model.ResolveUserInput,
			Value:      value,
			ResolvedBy: resolvedBy,
			Note:       note,
		})
	}
	c.recomputeConfidence()
}

// SkipClarification marks a pending clarification as skipped. Unknown ids
// are silent no-ops.
func (c *Context) SkipClarification(id string) {
	cl := c.takePending(id)
	if cl == nil {
		return
	}
	cl.Status = model.ClarificationSkipped
	c.resolved = append(c.resolved, cl)
	c.recomputeConfidence()
}

func (c *Context) takePending(id string) *model.Clarification {
	for i, cl := range c.pending {
		if cl.ID == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return cl
		}
	}
	return nil
}

// HasBlockingClarifications reports whether any pending clarification has a
// priority at or above the persistence-blocking threshold.
func (c *Context) HasBlockingClarifications() bool {
	for _, cl := range c.pending {
		if cl.Blocking() {
			return true
		}
	}
	return false
}

// recomputeConfidence derives the session score from the mean of all stored
// record confidences, penalized per unresolved conflict and pending
// clarification, floored at 0.
func (c *Context) recomputeConfidence() {
	var sum float64
	var n int
	for _, p := range c.financialPeriods {
		sum += p.Confidence
		n++
	}
	for _, cp := range c.censusPeriods {
		sum += cp.Confidence
		n++
	}
	for _, r := range c.payerRates {
		sum += r.Confidence
		n++
	}
	if n == 0 {
		c.confidence = 0
		return
	}

	var unresolved int
	for _, conflict := range c.conflicts {
		if conflict.Unresolved() {
			unresolved++
		}
	}

	score := sum/float64(n) - 2*float64(unresolved) - float64(len(c.pending))
	c.confidence = normalize.Round2(math.Min(100, math.Max(0, score)))
}

func sourceName(sources []model.Source) string {
	if len(sources) == 0 {
		return "unknown"
	}
	s := sources[len(sources)-1]
	if s.Location != "" {
		return s.DocumentName + " (" + s.Location + ")"
	}
	return s.DocumentName
}

func extractedAt(sources []model.Source, fallback time.Time) time.Time {
	if len(sources) == 0 || sources[len(sources)-1].ExtractedAt.IsZero() {
		return fallback
	}
	return sources[len(sources)-1].ExtractedAt
}
