package model

import "time"

// FacilityClass categorizes a facility by care level.
type FacilityClass string

const (
	ClassSkilledNursing FacilityClass = "snf"
	ClassAssistedLiving FacilityClass = "alf"
	ClassIndependent    FacilityClass = "ilf"
	ClassMemoryCare     FacilityClass = "memory_care"
	ClassCCRC           FacilityClass = "ccrc"
)

// TTMMetrics holds trailing-twelve-month aggregates for a facility.
type TTMMetrics struct {
	Revenue       float64   `json:"revenue"`
	Expenses      float64   `json:"expenses"`
	EBITDAR       float64   `json:"ebitdar"`
	EBITDA        float64   `json:"ebitda"`
	NOI           float64   `json:"noi"`
	MonthsCovered int       `json:"months_covered"`
	Annualized    bool      `json:"annualized"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
}

// FacilityProfile is the reconciled per-facility financial profile built up
// over a session. Created on first reference to an unknown name; mutated by
// every accepted record; never deleted within a session.
type FacilityProfile struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Aliases       []string      `json:"aliases,omitempty"`
	CCN           string        `json:"ccn,omitempty"` // CMS certification number
	DealRef       string        `json:"deal_ref,omitempty"`
	LicensedBeds  int           `json:"licensed_beds,omitempty"`
	AvailableBeds int           `json:"available_beds,omitempty"`
	Class         FacilityClass `json:"class,omitempty"`

	// Most-recent-first.
	FinancialPeriods []FinancialPeriod `json:"financial_periods"`
	CensusPeriods    []CensusPeriod    `json:"census_periods"`
	PayerRates       []PayerRate       `json:"payer_rates"`

	TTM          *TTMMetrics            `json:"ttm,omitempty"`
	AvgOccupancy float64                `json:"avg_occupancy"`
	PayerMix     map[PayerClass]float64 `json:"payer_mix,omitempty"`

	DataCompleteness float64 `json:"data_completeness"`
	DataConfidence   float64 `json:"data_confidence"`
}

// HasAlias reports whether the profile already carries the given raw alias.
func (p *FacilityProfile) HasAlias(raw string) bool {
	for _, a := range p.Aliases {
		if a == raw {
			return true
		}
	}
	return false
}
