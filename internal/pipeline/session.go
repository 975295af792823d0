package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/events"
	"github.com/sells-group/valuation-cli/internal/extraction"
	"github.com/sells-group/valuation-cli/internal/model"
)

// Session owns one deal's extraction run: the in-memory extraction context,
// its progress stream, and the persisted lifecycle record. The extraction
// context is not safe for concurrent use; every access goes through mu.
type Session struct {
	id     string
	dealID string

	mu         sync.Mutex
	info       model.SessionInfo
	extraction *extraction.Context
	bus        *events.Bus
	docsDir    string
	validation *model.ValidationResult

	now func() time.Time
}

func newSession(dealID, docsDir string, benchmarks *benchmark.Table) *Session {
	id := uuid.NewString()
	now := time.Now().UTC()
	return &Session{
		id:     id,
		dealID: dealID,
		info: model.SessionInfo{
			ID:        id,
			DealID:    dealID,
			Status:    model.SessionCreated,
			CreatedAt: now,
			UpdatedAt: now,
		},
		extraction: extraction.NewContext(id, dealID, benchmarks),
		bus:        events.NewBus(0),
		docsDir:    docsDir,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// DealID returns the deal this session belongs to.
func (s *Session) DealID() string {
	return s.dealID
}

// Status returns the current lifecycle status.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Status
}

// Info returns the lifecycle record with stats and confidence refreshed
// from the extraction context.
func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Events exposes the session's progress stream for transports.
func (s *Session) Events() <-chan events.Event {
	return s.bus.Events()
}

// Validation returns the result of the validation pass, or nil if the
// session has not been validated yet.
func (s *Session) Validation() *model.ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validation == nil {
		return nil
	}
	v := *s.validation
	return &v
}

// PendingClarifications returns a copy of the open clarifications, highest
// priority first.
func (s *Session) PendingClarifications() []model.Clarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.extraction.PendingClarifications()
	out := make([]model.Clarification, len(pending))
	for i, c := range pending {
		out[i] = *c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Profiles returns copies of the facility profiles built so far.
func (s *Session) Profiles() []model.FacilityProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles := s.extraction.Profiles()
	out := make([]model.FacilityProfile, len(profiles))
	for i, p := range profiles {
		out[i] = *p
	}
	return out
}

func (s *Session) snapshotLocked() model.SessionInfo {
	info := s.info
	info.Stats = s.extraction.Stats()
	info.Confidence = s.extraction.OverallConfidence()
	return info
}

func (s *Session) transition(status model.SessionStatus) model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Status = status
	s.info.UpdatedAt = s.now()
	return s.snapshotLocked()
}

func (s *Session) markFailed(stage string, err error) model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Status = model.SessionFailed
	s.info.Error = err.Error()
	s.info.FailedStage = stage
	s.info.UpdatedAt = s.now()
	return s.snapshotLocked()
}

func (s *Session) publish(e events.Event) {
	e.SessionID = s.ID()
	s.bus.Publish(e)
}

// focusFieldsLocked lists the field paths behind unresolved conflicts so
// later documents can be steered at them. Caller holds mu.
func (s *Session) focusFieldsLocked() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, c := range s.extraction.Conflicts() {
		if !c.Unresolved() || c.FieldPath == "" || seen[c.FieldPath] {
			continue
		}
		seen[c.FieldPath] = true
		fields = append(fields, c.FieldPath)
	}
	return fields
}
