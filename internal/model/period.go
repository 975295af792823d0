package model

import (
	"fmt"
	"time"
)

// PayerClass identifies a reimbursement payer category.
type PayerClass string

const (
	PayerMedicare    PayerClass = "medicare"
	PayerMedicaid    PayerClass = "medicaid"
	PayerManagedCare PayerClass = "managed_care"
	PayerInsurance   PayerClass = "insurance"
	PayerPrivate     PayerClass = "private"
	PayerVA          PayerClass = "va"
	PayerHospice     PayerClass = "hospice"
	PayerOther       PayerClass = "other"
)

// PayerClasses lists every payer category in reconciliation order.
var PayerClasses = []PayerClass{
	PayerMedicare,
	PayerMedicaid,
	PayerManagedCare,
	PayerInsurance,
	PayerPrivate,
	PayerVA,
	PayerHospice,
	PayerOther,
}

// PeriodType classifies the span of a reporting period.
type PeriodType string

const (
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodAnnual    PeriodType = "annual"
	PeriodTTM       PeriodType = "ttm"
)

// Source records the document provenance of an extracted record.
type Source struct {
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	Location     string    `json:"location,omitempty"` // sheet name or page reference
	ExtractedAt  time.Time `json:"extracted_at"`
}

// RevenueBreakdown holds per-payer revenue and the reported total.
type RevenueBreakdown struct {
	ByPayer map[PayerClass]float64 `json:"by_payer"`
	Total   float64                `json:"total"`
}

// ComponentSum returns the sum of the per-payer revenue components.
func (r RevenueBreakdown) ComponentSum() float64 {
	var sum float64
	for _, v := range r.ByPayer {
		sum += v
	}
	return sum
}

// LaborBreakdown splits labor expense into its sub-components.
type LaborBreakdown struct {
	Core     float64 `json:"core"`
	Agency   float64 `json:"agency"`
	Benefits float64 `json:"benefits"`
	Total    float64 `json:"total"`
}

// ComponentSum returns core + agency + benefits.
func (l LaborBreakdown) ComponentSum() float64 {
	return l.Core + l.Agency + l.Benefits
}

// ExpenseBreakdown holds the expense components of a period. Rent is a memo
// carve-out of Fixed used for EBITDAR math; it is not an additional component.
type ExpenseBreakdown struct {
	Labor     LaborBreakdown `json:"labor"`
	Operating float64        `json:"operating"`
	Fixed     float64        `json:"fixed"`
	Rent      float64        `json:"rent"`
	Total     float64        `json:"total"`
}

// ComponentSum returns labor + operating + fixed.
func (e ExpenseBreakdown) ComponentSum() float64 {
	return e.Labor.Total + e.Operating + e.Fixed
}

// DerivedMetrics holds profitability metrics recomputed by the normalizer.
type DerivedMetrics struct {
	EBITDAR       float64 `json:"ebitdar"`
	EBITDA        float64 `json:"ebitda"`
	NOI           float64 `json:"noi"`
	EBITDARMargin float64 `json:"ebitdar_margin"`
	EBITDAMargin  float64 `json:"ebitda_margin"`
	NOIMargin     float64 `json:"noi_margin"`
}

// FinancialPeriod is a normalized per-facility reporting period. Immutable
// once normalized; replaced wholesale under the confidence retention rule.
type FinancialPeriod struct {
	FacilityID  string           `json:"facility_id"`
	PeriodStart time.Time        `json:"period_start"`
	PeriodEnd   time.Time        `json:"period_end"`
	PeriodType  PeriodType       `json:"period_type"`
	DaysCovered int              `json:"days_covered"`
	Revenue     RevenueBreakdown `json:"revenue"`
	Expenses    ExpenseBreakdown `json:"expenses"`
	Metrics     DerivedMetrics   `json:"metrics"`
	Sources     []Source         `json:"sources"`
	Confidence  float64          `json:"confidence"`
}

// Key returns the retention key for this period.
func (p FinancialPeriod) Key() string {
	return PeriodKey(p.FacilityID, p.PeriodStart, p.PeriodEnd)
}

// PatientDays holds per-payer occupied bed-days and the reported total.
type PatientDays struct {
	ByPayer map[PayerClass]float64 `json:"by_payer"`
	Total   float64                `json:"total"`
}

// ComponentSum returns the sum of per-payer patient days.
func (p PatientDays) ComponentSum() float64 {
	var sum float64
	for _, v := range p.ByPayer {
		sum += v
	}
	return sum
}

// CensusPeriod is a normalized per-facility census observation.
type CensusPeriod struct {
	FacilityID   string      `json:"facility_id"`
	PeriodStart  time.Time   `json:"period_start"`
	PeriodEnd    time.Time   `json:"period_end"`
	DaysCovered  int         `json:"days_covered"`
	PatientDays  PatientDays `json:"patient_days"`
	ADC          float64     `json:"adc"`
	Occupancy    float64     `json:"occupancy"` // percent of licensed beds
	LicensedBeds int         `json:"licensed_beds"`
	Sources      []Source    `json:"sources"`
	Confidence   float64     `json:"confidence"`
}

// Key returns the retention key for this census period.
func (c CensusPeriod) Key() string {
	return PeriodKey(c.FacilityID, c.PeriodStart, c.PeriodEnd)
}

// PayerRate is a normalized per-payer-day rate schedule effective from a date.
type PayerRate struct {
	FacilityID    string                 `json:"facility_id"`
	EffectiveDate time.Time              `json:"effective_date"`
	Rates         map[PayerClass]float64 `json:"rates"` // PPD by payer
	Sources       []Source               `json:"sources"`
	Confidence    float64                `json:"confidence"`
}

// Key returns the retention key for this rate schedule.
func (r PayerRate) Key() string {
	return DateKey(r.FacilityID, r.EffectiveDate)
}

// PeriodKey builds the canonical retention key for period-scoped records.
func PeriodKey(facilityID string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s", facilityID, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// DateKey builds the canonical retention key for date-scoped records.
func DateKey(facilityID string, date time.Time) string {
	return fmt.Sprintf("%s|%s", facilityID, date.Format("2006-01-02"))
}
