package model

// Raw partial records are the reader's duck-typed output. Numeric fields are
// `any` because the model emits a mix of JSON numbers, numeric strings with
// currency formatting, and nulls. Nothing downstream touches a raw record
// without passing it through the normalize package first.

// RawFinancialPeriod is an unvalidated per-period financial extraction.
type RawFinancialPeriod struct {
	FacilityName   string         `json:"facility_name"`
	PeriodStart    string         `json:"period_start"`
	PeriodEnd      string         `json:"period_end"`
	RevenueByPayer map[string]any `json:"revenue_by_payer,omitempty"`
	RevenueTotal   any            `json:"revenue_total,omitempty"`
	LaborCore      any            `json:"labor_core,omitempty"`
	LaborAgency    any            `json:"labor_agency,omitempty"`
	LaborBenefits  any            `json:"labor_benefits,omitempty"`
	LaborTotal     any            `json:"labor_total,omitempty"`
	OperatingExp   any            `json:"operating_expenses,omitempty"`
	FixedExp       any            `json:"fixed_expenses,omitempty"`
	Rent           any            `json:"rent,omitempty"`
	ExpenseTotal   any            `json:"expense_total,omitempty"`
	Location       string         `json:"location,omitempty"`
	Confidence     any            `json:"confidence,omitempty"`
}

// RawCensusPeriod is an unvalidated per-period census extraction.
type RawCensusPeriod struct {
	FacilityName       string         `json:"facility_name"`
	PeriodStart        string         `json:"period_start"`
	PeriodEnd          string         `json:"period_end"`
	PatientDaysByPayer map[string]any `json:"patient_days_by_payer,omitempty"`
	PatientDaysTotal   any            `json:"patient_days_total,omitempty"`
	LicensedBeds       any            `json:"licensed_beds,omitempty"`
	Occupancy          any            `json:"occupancy,omitempty"`
	Location           string         `json:"location,omitempty"`
	Confidence         any            `json:"confidence,omitempty"`
}

// RawPayerRate is an unvalidated rate-schedule extraction.
type RawPayerRate struct {
	FacilityName  string         `json:"facility_name"`
	EffectiveDate string         `json:"effective_date"`
	Rates         map[string]any `json:"rates,omitempty"`
	Location      string         `json:"location,omitempty"`
	Confidence    any            `json:"confidence,omitempty"`
}

// RawFacilityInfo is unvalidated facility identity/structure data.
type RawFacilityInfo struct {
	Name          string `json:"name"`
	CCN           string `json:"ccn,omitempty"`
	LicensedBeds  any    `json:"licensed_beds,omitempty"`
	AvailableBeds any    `json:"available_beds,omitempty"`
	Class         string `json:"class,omitempty"`
}

// ExtractionResult is everything the reader returns for one document.
// Any list may be empty, and no internal consistency is guaranteed.
type ExtractionResult struct {
	FinancialPeriods        []RawFinancialPeriod `json:"financial_periods"`
	CensusPeriods           []RawCensusPeriod    `json:"census_periods"`
	PayerRates              []RawPayerRate       `json:"payer_rates"`
	Facilities              []RawFacilityInfo    `json:"facilities"`
	Observations            []string             `json:"observations,omitempty"`
	SuggestedClarifications []string             `json:"suggested_clarifications,omitempty"`
	Confidence              float64              `json:"confidence"`
	TokensUsed              int                  `json:"tokens_used"`
}
