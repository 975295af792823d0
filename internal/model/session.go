package model

import "time"

// SessionStatus tracks a deal session through its lifecycle.
type SessionStatus string

const (
	SessionCreated                SessionStatus = "created"
	SessionExtracting             SessionStatus = "extracting"
	SessionValidating             SessionStatus = "validating"
	SessionAwaitingClarifications SessionStatus = "awaiting_clarifications"
	SessionPopulating             SessionStatus = "populating"
	SessionComplete               SessionStatus = "complete"
	SessionFailed                 SessionStatus = "failed"
)

// DocumentKind identifies the raw format of an input document.
type DocumentKind string

const (
	DocSpreadsheet DocumentKind = "spreadsheet"
	DocPDF         DocumentKind = "pdf"
	DocText        DocumentKind = "text"
)

// Document is one input file queued for extraction.
type Document struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Path string       `json:"path"`
	Kind DocumentKind `json:"kind"`
	Text string       `json:"-"` // loaded content, never persisted
}

// DocumentStructure is the reader's first-pass analysis of a document.
type DocumentStructure struct {
	DocumentType  string   `json:"document_type"` // financial_statement, census_report, rate_sheet, rent_roll, mixed
	FacilityNames []string `json:"facility_names"`
	Periods       []string `json:"periods"`
	FocusHints    []string `json:"focus_hints,omitempty"`
	TokensUsed    int      `json:"-"`
}

// ProcessingStats holds session-wide ingestion counters.
type ProcessingStats struct {
	DocumentsProcessed     int `json:"documents_processed"`
	DocumentsSkipped       int `json:"documents_skipped"`
	FinancialPeriods       int `json:"financial_periods"`
	CensusPeriods          int `json:"census_periods"`
	PayerRates             int `json:"payer_rates"`
	RecordsDropped         int `json:"records_dropped"` // lost the confidence retention rule
	ConflictsDetected      int `json:"conflicts_detected"`
	ConflictsAutoResolved  int `json:"conflicts_auto_resolved"`
	ClarificationsRaised   int `json:"clarifications_raised"`
	ClarificationsResolved int `json:"clarifications_resolved"`
	TokensUsed             int `json:"tokens_used"`
}

// SessionInfo is the persisted summary of a session's lifecycle.
type SessionInfo struct {
	ID          string          `json:"id"`
	DealID      string          `json:"deal_id"`
	Status      SessionStatus   `json:"status"`
	Error       string          `json:"error,omitempty"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Stats       ProcessingStats `json:"stats"`
	Confidence  float64         `json:"confidence"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ValidationResult is the outcome of the post-ingestion validation pass.
type ValidationResult struct {
	IsValid         bool `json:"is_valid"`
	ValidationScore int  `json:"validation_score"`
	ConflictsFound  int  `json:"conflicts_found"`
	AutoResolved    int  `json:"auto_resolved"`
	Clarifications  int  `json:"clarifications"`
}
