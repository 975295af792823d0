package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/cost"
	"github.com/sells-group/valuation-cli/internal/events"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/reader"
	"github.com/sells-group/valuation-cli/internal/store"
)

// Loader reads deal documents from disk. Files that cannot be loaded are
// reported by name in skipped rather than failing the whole deal.
type Loader interface {
	LoadAll(ctx context.Context, dir string) (docs []model.Document, skipped []string, err error)
}

// Pipeline runs deal sessions: load documents, extract them in order with
// accumulated context, validate, then persist facility profiles once no
// blocking clarification remains.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	loader   Loader
	reader   reader.Reader
	bench    *benchmark.Table
	costs    *cost.Calculator
	registry *Registry
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, loader Loader, rd reader.Reader, bench *benchmark.Table) *Pipeline {
	retention := time.Duration(cfg.Session.RetentionHours) * time.Hour
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		loader:   loader,
		reader:   rd,
		bench:    bench,
		costs:    cost.NewCalculator(cost.DefaultRates()),
		registry: NewRegistry(retention),
	}
}

// EstimateCost returns the estimated Claude spend for a session so far.
func (p *Pipeline) EstimateCost(s *Session) float64 {
	return p.costs.EstimateSession(p.cfg.Anthropic.Model, s.Info().Stats.TokensUsed)
}

// Registry exposes the in-memory session registry.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// StartSession creates and registers a session for a deal's document
// directory. The session is not run until Run is called.
func (p *Pipeline) StartSession(dealID, docsDir string) *Session {
	s := newSession(dealID, docsDir, p.bench)
	p.registry.Add(s)
	return s
}

// Run executes a session end to end: every document through both reader
// passes, the validation sweep, and the clarification gate. A session that
// raises blocking clarifications stops before persistence and waits for
// Resume; anything else runs through to complete. Any error fails the whole
// session with the stage recorded.
func (p *Pipeline) Run(ctx context.Context, s *Session) error {
	log := zap.L().With(zap.String("session", s.ID()), zap.String("deal", s.DealID()))
	log.Info("pipeline: starting session")

	p.saveInfo(ctx, s.transition(model.SessionExtracting))
	s.publish(events.Event{Type: events.SessionStarted})

	docs, skipped, err := p.loader.LoadAll(ctx, s.docsDir)
	if err != nil {
		return p.fail(ctx, s, "load", err)
	}
	for _, name := range skipped {
		s.mu.Lock()
		s.extraction.MarkDocumentSkipped()
		s.mu.Unlock()
		s.publish(events.Event{Type: events.DocumentSkipped, Document: name})
	}
	if len(docs) == 0 {
		return p.fail(ctx, s, "load", eris.Errorf("pipeline: no documents in %s", s.docsDir))
	}

	for _, doc := range docs {
		if err := p.processDocument(ctx, s, doc); err != nil {
			return p.fail(ctx, s, "extract", err)
		}
	}

	p.saveInfo(ctx, s.transition(model.SessionValidating))
	s.publish(events.Event{Type: events.PassStarted, Pass: "validate"})

	s.mu.Lock()
	conflictsBefore := len(s.extraction.Conflicts())
	result := s.extraction.Validate()
	s.validation = &result
	newConflicts := cloneConflicts(s.extraction.Conflicts()[conflictsBefore:])
	pending := s.extraction.PendingClarifications()
	newClarifications := make([]model.Clarification, len(pending))
	for i, c := range pending {
		newClarifications[i] = *c
	}
	s.mu.Unlock()

	for _, c := range newConflicts {
		s.publish(conflictEvent(c, ""))
	}
	for _, c := range newClarifications {
		s.publish(events.Event{Type: events.ClarificationNeeded, Message: c.Question, Fields: map[string]any{
			"clarification_id": c.ID,
			"priority":         c.Priority,
			"blocking":         c.Blocking(),
		}})
	}

	s.publish(events.Event{Type: events.PassCompleted, Pass: "validate", Fields: map[string]any{
		"score":          result.ValidationScore,
		"conflicts":      result.ConflictsFound,
		"auto_resolved":  result.AutoResolved,
		"clarifications": result.Clarifications,
	}})
	log.Info("pipeline: validation complete",
		zap.Int("score", result.ValidationScore),
		zap.Int("conflicts", result.ConflictsFound),
		zap.Int("auto_resolved", result.AutoResolved),
	)

	if err := p.saveFindings(ctx, s); err != nil {
		return p.fail(ctx, s, "persist", err)
	}
	return p.gate(ctx, s)
}

// Resume applies clarification answers to a waiting session and re-runs
// the gate. The session completes once nothing blocking remains pending.
func (p *Pipeline) Resume(ctx context.Context, s *Session, answers []Answer) error {
	if status := s.Status(); status != model.SessionAwaitingClarifications {
		return eris.Errorf("pipeline: session %s is %s, not awaiting clarifications", s.ID(), status)
	}

	s.mu.Lock()
	for _, a := range answers {
		if a.Skip {
			s.extraction.SkipClarification(a.ClarificationID)
		} else {
			s.extraction.ResolveClarification(a.ClarificationID, a.Value, a.ResolvedBy, a.Note)
		}
	}
	resolved := s.extraction.ResolvedClarifications()
	s.mu.Unlock()

	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.ClarificationID] = true
	}
	for _, c := range resolved {
		if !answered[c.ID] {
			continue
		}
		if err := p.store.UpdateClarification(ctx, s.ID(), *c); err != nil {
			return p.fail(ctx, s, "persist", err)
		}
	}

	// Auto-resolved conflict statuses may have changed with the answers.
	if err := p.saveFindings(ctx, s); err != nil {
		return p.fail(ctx, s, "persist", err)
	}
	return p.gate(ctx, s)
}

// Answer resolves or skips one clarification.
type Answer struct {
	ClarificationID string
	Value           float64
	ResolvedBy      string
	Note            string
	Skip            bool
}

func (p *Pipeline) processDocument(ctx context.Context, s *Session, doc model.Document) error {
	log := zap.L().With(zap.String("session", s.ID()), zap.String("document", doc.Name))
	s.publish(events.Event{Type: events.DocumentStarted, Document: doc.Name})

	s.mu.Lock()
	prior := s.extraction.Summary().Render()
	focus := s.focusFieldsLocked()
	s.mu.Unlock()

	s.publish(events.Event{Type: events.PassStarted, Document: doc.Name, Pass: "structure"})
	structure, err := p.reader.AnalyzeStructure(ctx, doc, prior)
	if err != nil {
		return eris.Wrapf(err, "pipeline: analyze %s", doc.Name)
	}
	s.mu.Lock()
	s.extraction.AddTokens(structure.TokensUsed)
	s.mu.Unlock()
	s.publish(events.Event{Type: events.PassCompleted, Document: doc.Name, Pass: "structure", Fields: map[string]any{
		"document_type": structure.DocumentType,
		"facilities":    len(structure.FacilityNames),
		"periods":       len(structure.Periods),
	}})

	s.publish(events.Event{Type: events.PassStarted, Document: doc.Name, Pass: "extract"})
	res, err := p.reader.Extract(ctx, doc, structure, prior, focus)
	if err != nil {
		return eris.Wrapf(err, "pipeline: extract %s", doc.Name)
	}

	s.mu.Lock()
	conflictsBefore := len(s.extraction.Conflicts())
	report := s.extraction.Ingest(*res, doc)
	s.extraction.MarkDocumentProcessed()
	newConflicts := cloneConflicts(s.extraction.Conflicts()[conflictsBefore:])
	conflicts := s.extraction.Stats().ConflictsDetected
	s.mu.Unlock()

	for _, name := range report.NewFacilities {
		s.publish(events.Event{Type: events.FacilityDetected, Document: doc.Name, Message: name})
	}
	for _, label := range report.PeriodLabels {
		s.publish(events.Event{Type: events.PeriodExtracted, Document: doc.Name, Message: label})
	}
	for _, c := range newConflicts {
		s.publish(conflictEvent(c, doc.Name))
	}
	s.publish(events.Event{Type: events.PassCompleted, Document: doc.Name, Pass: "extract"})
	s.publish(events.Event{Type: events.DocumentCompleted, Document: doc.Name, Fields: map[string]any{
		"financial_periods": report.FinancialPeriods,
		"census_periods":    report.CensusPeriods,
		"payer_rates":       report.PayerRates,
		"parse_failures":    report.ParseFailures,
	}})
	log.Info("pipeline: document processed",
		zap.String("type", structure.DocumentType),
		zap.Int("financial_periods", report.FinancialPeriods),
		zap.Int("census_periods", report.CensusPeriods),
		zap.Int("payer_rates", report.PayerRates),
		zap.Int("parse_failures", report.ParseFailures),
		zap.Int("conflicts_so_far", conflicts),
	)
	return nil
}

// gate either parks the session on blocking clarifications or persists the
// profiles and completes it.
func (p *Pipeline) gate(ctx context.Context, s *Session) error {
	s.mu.Lock()
	blocking := s.extraction.HasBlockingClarifications()
	pending := len(s.extraction.PendingClarifications())
	s.mu.Unlock()

	if blocking {
		p.saveInfo(ctx, s.transition(model.SessionAwaitingClarifications))
		s.publish(events.Event{Type: events.SessionAwaiting, Fields: map[string]any{
			"pending": pending,
		}})
		zap.L().Info("pipeline: session awaiting clarifications",
			zap.String("session", s.ID()), zap.Int("pending", pending))
		return nil
	}
	return p.finalize(ctx, s)
}

func (p *Pipeline) finalize(ctx context.Context, s *Session) error {
	log := zap.L().With(zap.String("session", s.ID()), zap.String("deal", s.DealID()))
	p.saveInfo(ctx, s.transition(model.SessionPopulating))

	for _, profile := range s.Profiles() {
		written, err := p.store.UpsertProfile(ctx, s.DealID(), &profile)
		if err != nil {
			return p.fail(ctx, s, "persist", err)
		}
		if !written {
			log.Info("pipeline: profile kept, stored copy has higher confidence",
				zap.String("facility", profile.Name))
		}
	}

	info := s.transition(model.SessionComplete)
	if err := p.store.SaveSession(ctx, info); err != nil {
		return p.fail(ctx, s, "persist", err)
	}
	s.publish(events.Event{Type: events.SessionCompleted, Fields: map[string]any{
		"confidence":          info.Confidence,
		"documents_processed": info.Stats.DocumentsProcessed,
		"facilities":          len(s.Profiles()),
	}})
	log.Info("pipeline: session complete",
		zap.Float64("confidence", info.Confidence),
		zap.Int("documents", info.Stats.DocumentsProcessed),
		zap.Int("tokens", info.Stats.TokensUsed),
		zap.Float64("est_cost_usd", p.costs.EstimateSession(p.cfg.Anthropic.Model, info.Stats.TokensUsed)),
	)
	return nil
}

// saveFindings writes the session's conflicts and clarifications for audit.
func (p *Pipeline) saveFindings(ctx context.Context, s *Session) error {
	s.mu.Lock()
	conflictPtrs := s.extraction.Conflicts()
	conflicts := make([]model.DataConflict, len(conflictPtrs))
	for i, c := range conflictPtrs {
		conflicts[i] = *c
	}
	var clarifications []model.Clarification
	for _, c := range s.extraction.PendingClarifications() {
		clarifications = append(clarifications, *c)
	}
	for _, c := range s.extraction.ResolvedClarifications() {
		clarifications = append(clarifications, *c)
	}
	s.mu.Unlock()

	if err := p.store.SaveConflicts(ctx, s.ID(), conflicts); err != nil {
		return err
	}
	return p.store.SaveClarifications(ctx, s.ID(), clarifications)
}

func (p *Pipeline) fail(ctx context.Context, s *Session, stage string, err error) error {
	info := s.markFailed(stage, err)
	p.saveInfo(ctx, info)
	s.publish(events.Event{Type: events.SessionFailed, Message: err.Error(), Fields: map[string]any{
		"stage": stage,
	}})
	zap.L().Error("pipeline: session failed",
		zap.String("session", s.ID()),
		zap.String("stage", stage),
		zap.Error(err),
	)
	return err
}

func (p *Pipeline) saveInfo(ctx context.Context, info model.SessionInfo) {
	if err := p.store.SaveSession(ctx, info); err != nil {
		zap.L().Warn("pipeline: failed to save session", zap.String("session", info.ID), zap.Error(err))
	}
}

// cloneConflicts copies conflict values out from under the session lock.
func cloneConflicts(ptrs []*model.DataConflict) []model.DataConflict {
	out := make([]model.DataConflict, len(ptrs))
	for i, c := range ptrs {
		out[i] = *c
	}
	return out
}

func conflictEvent(c model.DataConflict, document string) events.Event {
	return events.Event{
		Type:     events.ConflictDetected,
		Document: document,
		Message:  c.FieldPath,
		Fields: map[string]any{
			"conflict_id": c.ID,
			"type":        string(c.Type),
			"severity":    string(c.Severity),
		},
	}
}
