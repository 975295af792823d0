package model

import "time"

// ClarificationStatus tracks a clarification through its state machine:
// pending -> {resolved | skipped | auto_resolved}.
type ClarificationStatus string

const (
	ClarificationPending      ClarificationStatus = "pending"
	ClarificationResolved     ClarificationStatus = "resolved"
	ClarificationSkipped      ClarificationStatus = "skipped"
	ClarificationAutoResolved ClarificationStatus = "auto_resolved"
)

// BlockingPriority is the priority at or above which a pending clarification
// blocks the session from proceeding to persistence.
const BlockingPriority = 8

// SuggestedValue is one candidate answer offered with a clarification.
type SuggestedValue struct {
	Value  float64 `json:"value"`
	Label  string  `json:"label"`
	Source string  `json:"source,omitempty"`
}

// ClarificationAnswer captures a user's resolution of a clarification.
type ClarificationAnswer struct {
	Value      float64   `json:"value"`
	ResolvedBy string    `json:"resolved_by"`
	Note       string    `json:"note,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Clarification is a conflict or anomaly elevated into a user-facing
// question. Priority runs 1-10; 10 is most urgent.
type Clarification struct {
	ID              string               `json:"id"`
	ConflictID      string               `json:"conflict_id,omitempty"`
	FacilityID      string               `json:"facility_id,omitempty"`
	PeriodKey       string               `json:"period_key,omitempty"`
	FieldPath       string               `json:"field_path,omitempty"`
	Question        string               `json:"question"`
	Priority        int                  `json:"priority"`
	SuggestedValues []SuggestedValue     `json:"suggested_values,omitempty"`
	Status          ClarificationStatus  `json:"status"`
	Answer          *ClarificationAnswer `json:"answer,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// Blocking reports whether this clarification, while pending, halts the
// session ahead of persistence.
func (c *Clarification) Blocking() bool {
	return c.Status == ClarificationPending && c.Priority >= BlockingPriority
}
