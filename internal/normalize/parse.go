package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/valuation-cli/internal/model"
)

// ParseError reports a raw record that could not be normalized. Callers skip
// the record and keep the session alive; the error carries enough context for
// the observational event stream.
type ParseError struct {
	Record string
	Field  string
	Value  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("normalize: %s has unparseable %s %q", e.Record, e.Field, e.Value)
}

// dateLayouts are tried in order when parsing reader-emitted dates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2006",
	"January 2006",
	"2006-01",
}

// monthOnly marks layouts that carry no day component; an end date parsed
// from one of these snaps to the last day of the month.
var monthOnly = map[string]bool{
	"Jan 2006":     true,
	"January 2006": true,
	"2006-01":      true,
}

func parseDate(record, field, raw string) (time.Time, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, "", &ParseError{Record: record, Field: field, Value: raw}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, nil
		}
	}
	return time.Time{}, "", &ParseError{Record: record, Field: field, Value: raw}
}

func parsePeriodEnd(record, raw string) (time.Time, error) {
	t, layout, err := parseDate(record, "period_end", raw)
	if err != nil {
		return time.Time{}, err
	}
	if monthOnly[layout] {
		t = t.AddDate(0, 1, -1)
	}
	return t, nil
}

func payerMap(raw map[string]any) map[model.PayerClass]float64 {
	out := make(map[model.PayerClass]float64, len(model.PayerClasses))
	for _, pc := range model.PayerClasses {
		out[pc] = 0
	}
	for k, v := range raw {
		pc := canonicalPayer(k)
		out[pc] += Num(v)
	}
	for k, v := range out {
		out[k] = Round2(v)
	}
	return out
}

// canonicalPayer folds reader payer labels onto the eight payer classes.
func canonicalPayer(raw string) model.PayerClass {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	switch s {
	case "medicare", "medicare_a", "medicare_b":
		return model.PayerMedicare
	case "medicaid":
		return model.PayerMedicaid
	case "managed_care", "hmo", "medicare_advantage":
		return model.PayerManagedCare
	case "insurance", "commercial":
		return model.PayerInsurance
	case "private", "private_pay", "self_pay":
		return model.PayerPrivate
	case "va", "veterans":
		return model.PayerVA
	case "hospice":
		return model.PayerHospice
	default:
		return model.PayerOther
	}
}

// FinancialFrom normalizes a raw financial period. docConfidence is the
// document-level fallback when the record carries no confidence of its own.
func FinancialFrom(raw model.RawFinancialPeriod, facilityID string, src model.Source, docConfidence float64) (model.FinancialPeriod, error) {
	start, _, err := parseDate("financial period", "period_start", raw.PeriodStart)
	if err != nil {
		return model.FinancialPeriod{}, err
	}
	end, err := parsePeriodEnd("financial period", raw.PeriodEnd)
	if err != nil {
		return model.FinancialPeriod{}, err
	}
	if !end.After(start) {
		return model.FinancialPeriod{}, &ParseError{Record: "financial period", Field: "period_end", Value: raw.PeriodEnd}
	}

	days := int(end.Sub(start).Hours()/24) + 1

	revenue := model.RevenueBreakdown{ByPayer: payerMap(raw.RevenueByPayer)}
	revenue.Total = RepairTotal(Num(raw.RevenueTotal), revenue.ComponentSum())

	labor := model.LaborBreakdown{
		Core:     Num(raw.LaborCore),
		Agency:   Num(raw.LaborAgency),
		Benefits: Num(raw.LaborBenefits),
	}
	labor.Total = RepairTotal(Num(raw.LaborTotal), labor.ComponentSum())

	expenses := model.ExpenseBreakdown{
		Labor:     labor,
		Operating: Num(raw.OperatingExp),
		Fixed:     Num(raw.FixedExp),
		Rent:      Num(raw.Rent),
	}
	expenses.Total = RepairTotal(Num(raw.ExpenseTotal), expenses.ComponentSum())

	if src.Location == "" {
		src.Location = raw.Location
	}

	p := model.FinancialPeriod{
		FacilityID:  facilityID,
		PeriodStart: start,
		PeriodEnd:   end,
		PeriodType:  InferPeriodType(days),
		DaysCovered: days,
		Revenue:     revenue,
		Expenses:    expenses,
		Metrics:     ComputeMetrics(revenue.Total, expenses),
		Sources:     []model.Source{src},
		Confidence:  Confidence(raw.Confidence, docConfidence),
	}
	return p, nil
}

// CensusFrom normalizes a raw census period, recomputing ADC and occupancy
// from patient days rather than trusting reader-provided ratios.
func CensusFrom(raw model.RawCensusPeriod, facilityID string, src model.Source, docConfidence float64) (model.CensusPeriod, error) {
	start, _, err := parseDate("census period", "period_start", raw.PeriodStart)
	if err != nil {
		return model.CensusPeriod{}, err
	}
	end, err := parsePeriodEnd("census period", raw.PeriodEnd)
	if err != nil {
		return model.CensusPeriod{}, err
	}
	if !end.After(start) {
		return model.CensusPeriod{}, &ParseError{Record: "census period", Field: "period_end", Value: raw.PeriodEnd}
	}

	days := int(end.Sub(start).Hours()/24) + 1

	patientDays := model.PatientDays{ByPayer: payerMap(raw.PatientDaysByPayer)}
	patientDays.Total = RepairTotal(Num(raw.PatientDaysTotal), patientDays.ComponentSum())

	beds := int(Num(raw.LicensedBeds))
	adc := 0.0
	if days > 0 {
		adc = Round2(patientDays.Total / float64(days))
	}
	occupancy := 0.0
	switch {
	case beds > 0 && adc > 0:
		occupancy = Round2(adc / float64(beds) * 100)
	default:
		occupancy = Num(raw.Occupancy)
		if occupancy > 0 && occupancy <= 1 {
			occupancy = Round2(occupancy * 100)
		}
	}

	if src.Location == "" {
		src.Location = raw.Location
	}

	return model.CensusPeriod{
		FacilityID:   facilityID,
		PeriodStart:  start,
		PeriodEnd:    end,
		DaysCovered:  days,
		PatientDays:  patientDays,
		ADC:          adc,
		Occupancy:    occupancy,
		LicensedBeds: beds,
		Sources:      []model.Source{src},
		Confidence:   Confidence(raw.Confidence, docConfidence),
	}, nil
}

// RateFrom normalizes a raw payer-rate schedule.
func RateFrom(raw model.RawPayerRate, facilityID string, src model.Source, docConfidence float64) (model.PayerRate, error) {
	effective, _, err := parseDate("payer rate", "effective_date", raw.EffectiveDate)
	if err != nil {
		return model.PayerRate{}, err
	}

	if src.Location == "" {
		src.Location = raw.Location
	}

	return model.PayerRate{
		FacilityID:    facilityID,
		EffectiveDate: effective,
		Rates:         payerMap(raw.Rates),
		Sources:       []model.Source{src},
		Confidence:    Confidence(raw.Confidence, docConfidence),
	}, nil
}
