package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func testSource() model.Source {
	return model.Source{
		DocumentID:   "doc-1",
		DocumentName: "financials.xlsx",
		ExtractedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFinancialFrom_Normalizes(t *testing.T) {
	raw := model.RawFinancialPeriod{
		FacilityName: "Maple Grove",
		PeriodStart:  "2025-01-01",
		PeriodEnd:    "2025-01-31",
		RevenueByPayer: map[string]any{
			"medicare":    "400,000",
			"medicaid":    350000,
			"private_pay": 150000,
		},
		RevenueTotal:  "$900,000",
		LaborCore:     300000,
		LaborAgency:   50000,
		LaborBenefits: 60000,
		LaborTotal:    410000,
		OperatingExp:  180000,
		FixedExp:      120000,
		Rent:          60000,
		ExpenseTotal:  710000,
		Location:      "Sheet: Jan P&L",
		Confidence:    0.9,
	}

	p, err := FinancialFrom(raw, "fac-1", testSource(), 75)
	require.NoError(t, err)

	assert.Equal(t, "fac-1", p.FacilityID)
	assert.Equal(t, 31, p.DaysCovered)
	assert.Equal(t, model.PeriodMonthly, p.PeriodType)
	assert.Equal(t, 400000.0, p.Revenue.ByPayer[model.PayerMedicare])
	assert.Equal(t, 150000.0, p.Revenue.ByPayer[model.PayerPrivate])
	assert.Equal(t, 900000.0, p.Revenue.Total)
	assert.Equal(t, 410000.0, p.Expenses.Labor.Total)
	assert.Equal(t, 710000.0, p.Expenses.Total)
	assert.Equal(t, 90.0, p.Confidence)
	require.Len(t, p.Sources, 1)
	assert.Equal(t, "Sheet: Jan P&L", p.Sources[0].Location)

	// Metrics recomputed, never trusted from the reader.
	assert.Equal(t, 250000.0, p.Metrics.EBITDAR)
	assert.Equal(t, 190000.0, p.Metrics.EBITDA)
}

func TestFinancialFrom_RepairsDisagreeingTotal(t *testing.T) {
	raw := model.RawFinancialPeriod{
		FacilityName:   "Maple Grove",
		PeriodStart:    "2025-01-01",
		PeriodEnd:      "2025-01-31",
		RevenueByPayer: map[string]any{"medicare": 800000, "medicaid": 200000},
		RevenueTotal:   500000, // off by far more than 10%
	}
	p, err := FinancialFrom(raw, "fac-1", testSource(), 75)
	require.NoError(t, err)
	assert.Equal(t, 1000000.0, p.Revenue.Total)
}

func TestFinancialFrom_MonthOnlyEndDate(t *testing.T) {
	raw := model.RawFinancialPeriod{
		FacilityName: "Maple Grove",
		PeriodStart:  "2025-02-01",
		PeriodEnd:    "Feb 2025",
	}
	p, err := FinancialFrom(raw, "fac-1", testSource(), 75)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), p.PeriodEnd)
	assert.Equal(t, 28, p.DaysCovered)
}

func TestFinancialFrom_BadDates(t *testing.T) {
	_, err := FinancialFrom(model.RawFinancialPeriod{PeriodStart: "soon", PeriodEnd: "2025-01-31"}, "fac-1", testSource(), 75)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "period_start")

	_, err = FinancialFrom(model.RawFinancialPeriod{PeriodStart: "2025-01-01", PeriodEnd: ""}, "fac-1", testSource(), 75)
	require.Error(t, err)

	// End before start is rejected.
	_, err = FinancialFrom(model.RawFinancialPeriod{PeriodStart: "2025-03-01", PeriodEnd: "2025-01-31"}, "fac-1", testSource(), 75)
	require.Error(t, err)
}

func TestCensusFrom_RecomputesADCAndOccupancy(t *testing.T) {
	raw := model.RawCensusPeriod{
		FacilityName: "Maple Grove",
		PeriodStart:  "2025-01-01",
		PeriodEnd:    "2025-01-31",
		PatientDaysByPayer: map[string]any{
			"medicare": 1200,
			"medicaid": 1500,
		},
		PatientDaysTotal: 2700,
		LicensedBeds:     100,
		Occupancy:        "99%", // ignored; recomputed from days and beds
	}
	cp, err := CensusFrom(raw, "fac-1", testSource(), 75)
	require.NoError(t, err)

	assert.Equal(t, 2700.0, cp.PatientDays.Total)
	assert.InDelta(t, 87.1, cp.ADC, 0.01)
	assert.InDelta(t, 87.1, cp.Occupancy, 0.01)
	assert.Equal(t, 100, cp.LicensedBeds)
}

func TestCensusFrom_FallsBackToReportedOccupancy(t *testing.T) {
	raw := model.RawCensusPeriod{
		FacilityName: "Maple Grove",
		PeriodStart:  "2025-01-01",
		PeriodEnd:    "2025-01-31",
		Occupancy:    0.92, // fraction scales to percent
	}
	cp, err := CensusFrom(raw, "fac-1", testSource(), 75)
	require.NoError(t, err)
	assert.Equal(t, 92.0, cp.Occupancy)
}

func TestRateFrom_CanonicalizesPayers(t *testing.T) {
	raw := model.RawPayerRate{
		FacilityName:  "Maple Grove",
		EffectiveDate: "2025-01-01",
		Rates: map[string]any{
			"Medicare A":         650.0,
			"HMO":                480,
			"self_pay":           "310",
			"workers comp other": 200,
		},
		Confidence: 80,
	}
	r, err := RateFrom(raw, "fac-1", testSource(), 75)
	require.NoError(t, err)

	assert.Equal(t, 650.0, r.Rates[model.PayerMedicare])
	assert.Equal(t, 480.0, r.Rates[model.PayerManagedCare])
	assert.Equal(t, 310.0, r.Rates[model.PayerPrivate])
	assert.Equal(t, 200.0, r.Rates[model.PayerOther])
	assert.Equal(t, 80.0, r.Confidence)
}

func TestRateFrom_BadEffectiveDate(t *testing.T) {
	_, err := RateFrom(model.RawPayerRate{EffectiveDate: "Q1"}, "fac-1", testSource(), 75)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "effective_date")
}

func TestParseDate_Layouts(t *testing.T) {
	for _, raw := range []string{"2025-06-30", "06/30/2025", "6/30/2025"} {
		got, _, err := parseDate("test", "date", raw)
		require.NoError(t, err, raw)
		assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), got, raw)
	}
}
