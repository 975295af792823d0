package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeLoader returns a fixed document list.
type fakeLoader struct {
	docs    []model.Document
	skipped []string
	err     error
}

func (l *fakeLoader) LoadAll(_ context.Context, _ string) ([]model.Document, []string, error) {
	return l.docs, l.skipped, l.err
}

// scriptedReader returns canned structures and extraction results keyed by
// document name.
type scriptedReader struct {
	structures map[string]*model.DocumentStructure
	results    map[string]*model.ExtractionResult
	extractErr map[string]error
	priors     []string
	focuses    [][]string
}

func (r *scriptedReader) AnalyzeStructure(_ context.Context, doc model.Document, priorContext string) (*model.DocumentStructure, error) {
	r.priors = append(r.priors, priorContext)
	if s, ok := r.structures[doc.Name]; ok {
		return s, nil
	}
	return &model.DocumentStructure{DocumentType: "financial_statement"}, nil
}

func (r *scriptedReader) Extract(_ context.Context, doc model.Document, _ *model.DocumentStructure, _ string, focus []string) (*model.ExtractionResult, error) {
	r.focuses = append(r.focuses, focus)
	if err := r.extractErr[doc.Name]; err != nil {
		return nil, err
	}
	res, ok := r.results[doc.Name]
	if !ok {
		return &model.ExtractionResult{Confidence: 0.9}, nil
	}
	return res, nil
}

// memStore keeps everything in memory and records session status history.
type memStore struct {
	sessions       map[string]model.SessionInfo
	statusHistory  []model.SessionStatus
	profiles       map[string]model.FacilityProfile // dealID/facilityID
	conflicts      map[string][]model.DataConflict
	clarifications map[string][]model.Clarification
	upsertErr      error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:       make(map[string]model.SessionInfo),
		profiles:       make(map[string]model.FacilityProfile),
		conflicts:      make(map[string][]model.DataConflict),
		clarifications: make(map[string][]model.Clarification),
	}
}

var _ store.Store = (*memStore)(nil)

func (m *memStore) SaveSession(_ context.Context, info model.SessionInfo) error {
	m.sessions[info.ID] = info
	m.statusHistory = append(m.statusHistory, info.Status)
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*model.SessionInfo, error) {
	info, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (m *memStore) ListSessions(_ context.Context, _ store.SessionFilter) ([]model.SessionInfo, error) {
	var out []model.SessionInfo
	for _, info := range m.sessions {
		out = append(out, info)
	}
	return out, nil
}

func (m *memStore) DeleteExpiredSessions(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

func (m *memStore) UpsertProfile(_ context.Context, dealID string, p *model.FacilityProfile) (bool, error) {
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	key := dealID + "/" + p.ID
	if existing, ok := m.profiles[key]; ok && existing.DataConfidence > p.DataConfidence {
		return false, nil
	}
	m.profiles[key] = *p
	return true, nil
}

func (m *memStore) GetProfile(_ context.Context, dealID, facilityID string) (*model.FacilityProfile, error) {
	p, ok := m.profiles[dealID+"/"+facilityID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) ListProfiles(_ context.Context, dealID string) ([]model.FacilityProfile, error) {
	var out []model.FacilityProfile
	for key, p := range m.profiles {
		if len(key) > len(dealID) && key[:len(dealID)] == dealID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) SaveConflicts(_ context.Context, sessionID string, conflicts []model.DataConflict) error {
	m.conflicts[sessionID] = conflicts
	return nil
}

func (m *memStore) ListConflicts(_ context.Context, sessionID string) ([]model.DataConflict, error) {
	return m.conflicts[sessionID], nil
}

func (m *memStore) SaveClarifications(_ context.Context, sessionID string, clarifications []model.Clarification) error {
	m.clarifications[sessionID] = clarifications
	return nil
}

func (m *memStore) ListClarifications(_ context.Context, sessionID string) ([]model.Clarification, error) {
	return m.clarifications[sessionID], nil
}

func (m *memStore) UpdateClarification(_ context.Context, sessionID string, c model.Clarification) error {
	list := m.clarifications[sessionID]
	for i := range list {
		if list[i].ID == c.ID {
			list[i] = c
			return nil
		}
	}
	return eris.New("store: clarification not found")
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }
