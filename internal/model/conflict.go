package model

import "time"

// ConflictType classifies how a numeric disagreement was detected.
type ConflictType string

const (
	ConflictCrossDocument         ConflictType = "cross_document"
	ConflictCrossPeriod           ConflictType = "cross_period"
	ConflictRevenueReconciliation ConflictType = "revenue_reconciliation"
	ConflictInternalConsistency   ConflictType = "internal_consistency"
	ConflictBenchmarkDeviation    ConflictType = "benchmark_deviation"
)

// ConflictSeverity ranks a conflict's impact on the valuation.
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// ConflictStatus tracks a conflict through its state machine:
// detected -> {auto_resolved | pending_clarification | user_resolved}.
type ConflictStatus string

const (
	ConflictDetected             ConflictStatus = "detected"
	ConflictAutoResolved         ConflictStatus = "auto_resolved"
	ConflictPendingClarification ConflictStatus = "pending_clarification"
	ConflictUserResolved         ConflictStatus = "user_resolved"
)

// ResolutionMethod records how a conflict's winning value was chosen.
type ResolutionMethod string

const (
	ResolveAutoAverage           ResolutionMethod = "auto_average"
	ResolveAutoHighestConfidence ResolutionMethod = "auto_highest_confidence"
	ResolveUserInput             ResolutionMethod = "user_input"
)

// ConflictValue is one observed value participating in a conflict.
type ConflictValue struct {
	Value       float64   `json:"value"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	ExtractedAt time.Time `json:"extracted_at,omitempty"`
}

// ConflictResolution captures the outcome of resolving a conflict.
type ConflictResolution struct {
	Method     ResolutionMethod `json:"method"`
	Value      float64          `json:"value"`
	ResolvedBy string           `json:"resolved_by,omitempty"`
	Note       string           `json:"note,omitempty"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// DataConflict is a detected numeric disagreement between observations.
// Conflicts are domain objects, not errors: they degrade confidence scores
// and flow through the clarification workflow instead of aborting a session.
type DataConflict struct {
	ID               string              `json:"id"`
	Type             ConflictType        `json:"type"`
	Severity         ConflictSeverity    `json:"severity"`
	FieldPath        string              `json:"field_path"`
	FacilityID       string              `json:"facility_id,omitempty"`
	PeriodKey        string              `json:"period_key,omitempty"`
	Values           []ConflictValue     `json:"values"`
	VariancePercent  float64             `json:"variance_percent"`
	VarianceAbsolute float64             `json:"variance_absolute"`
	Status           ConflictStatus      `json:"status"`
	Resolution       *ConflictResolution `json:"resolution,omitempty"`
	Description      string              `json:"description,omitempty"`
	DetectedAt       time.Time           `json:"detected_at"`
}

// Unresolved reports whether the conflict still needs attention.
func (c *DataConflict) Unresolved() bool {
	return c.Status == ConflictDetected || c.Status == ConflictPendingClarification
}

// CalculatedRevenue records a census-times-rate revenue check for one period,
// kept regardless of whether the variance crossed the conflict threshold.
type CalculatedRevenue struct {
	FacilityID      string                 `json:"facility_id"`
	PeriodKey       string                 `json:"period_key"`
	Calculated      float64                `json:"calculated"`
	Reported        float64                `json:"reported"`
	VariancePercent float64                `json:"variance_percent"` // signed
	ByPayer         map[PayerClass]float64 `json:"by_payer"`
	RateEffective   time.Time              `json:"rate_effective"`
	ConflictRaised  bool                   `json:"conflict_raised"`
}
