package store

import (
	"context"
	"time"

	"github.com/sells-group/valuation-cli/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	DealID string              `json:"deal_id,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for extraction sessions.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, info model.SessionInfo) error
	GetSession(ctx context.Context, sessionID string) (*model.SessionInfo, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionInfo, error)
	DeleteExpiredSessions(ctx context.Context, olderThan time.Duration) (int, error)

	// Facility profiles. UpsertProfile writes only when the incoming
	// profile's DataConfidence is at least the stored one; it reports
	// whether the row was written.
	UpsertProfile(ctx context.Context, dealID string, profile *model.FacilityProfile) (bool, error)
	GetProfile(ctx context.Context, dealID, facilityID string) (*model.FacilityProfile, error)
	ListProfiles(ctx context.Context, dealID string) ([]model.FacilityProfile, error)

	// Conflicts and clarifications, recorded per session for audit.
	SaveConflicts(ctx context.Context, sessionID string, conflicts []model.DataConflict) error
	ListConflicts(ctx context.Context, sessionID string) ([]model.DataConflict, error)
	SaveClarifications(ctx context.Context, sessionID string, clarifications []model.Clarification) error
	ListClarifications(ctx context.Context, sessionID string) ([]model.Clarification, error)
	UpdateClarification(ctx context.Context, sessionID string, c model.Clarification) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
