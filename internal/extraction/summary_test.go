package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestSummary_CollectsSessionState(t *testing.T) {
	c := newTestContext()
	p, _ := c.FindOrCreateFacility("Maple Grove SNF")
	c.FindOrCreateFacility("MAPLE GROVE S.N.F.") // alias spelling

	c.AddFinancialPeriod(financialPeriod(p.ID, 2025, time.October, 900000, 85, "p&l.xlsx"))
	c.AddFinancialPeriod(financialPeriod(p.ID, 2025, time.November, 950000, 85, "p&l.xlsx"))
	c.AddClarification(&model.Clarification{Question: "Which census total?", Priority: 9})

	s := c.Summary()

	require.Len(t, s.Facilities, 1)
	assert.Equal(t, "Maple Grove SNF", s.Facilities[0].Name)
	assert.Contains(t, s.Facilities[0].Aliases, "MAPLE GROVE S.N.F.")

	require.Len(t, s.RecentPeriods, 2)
	// Most recent first.
	assert.Equal(t, "2025-11-30", s.RecentPeriods[0].PeriodEnd)
	require.Len(t, s.Financials, 2)
	assert.Equal(t, 950000.0, s.Financials[0].Revenue)

	require.Len(t, s.OpenQuestions, 1)
	assert.Equal(t, "Which census total?", s.OpenQuestions[0])
}

func TestSummary_BoundsPeriodLists(t *testing.T) {
	c := newTestContext()
	p, _ := c.FindOrCreateFacility("Maple Grove")
	for y := 2023; y <= 2025; y++ {
		for m := time.Month(1); m <= 12; m++ {
			c.AddFinancialPeriod(financialPeriod(p.ID, y, m, 900000, 85, "p&l.xlsx"))
		}
	}

	s := c.Summary()
	assert.Len(t, s.RecentPeriods, summaryMaxPeriods)
	assert.Len(t, s.Financials, summaryMaxFinancials)
}

func TestRender_FirstDocument(t *testing.T) {
	var s ContextSummary
	assert.Contains(t, s.Render(), "first document")
}

func TestRender_IncludesSections(t *testing.T) {
	c := newTestContext()
	p, _ := c.FindOrCreateFacility("Maple Grove")
	c.AddFinancialPeriod(financialPeriod(p.ID, 2025, time.November, 950000, 85, "p&l.xlsx"))
	c.AddClarification(&model.Clarification{Question: "Confirm rent figure", Priority: 7})

	text := c.Summary().Render()
	assert.Contains(t, text, "Known facilities:")
	assert.Contains(t, text, "Maple Grove")
	assert.Contains(t, text, "Known periods:")
	assert.Contains(t, text, "2025-11-30")
	assert.Contains(t, text, "Recent financials:")
	assert.Contains(t, text, "Confirm rent figure")
}

func TestCrossRef(t *testing.T) {
	x := NewCrossRef()
	entries := x.Add("k1", "revenue.total", Observation{Value: 100, Source: "a"})
	assert.Len(t, entries, 1)
	entries = x.Add("k1", "revenue.total", Observation{Value: 110, Source: "b"})
	assert.Len(t, entries, 2)
	x.Add("k2", "revenue.total", Observation{Value: 50, Source: "a"})

	assert.Equal(t, 2, x.Len())
	assert.Len(t, x.Get("k1", "revenue.total"), 2)
	assert.Empty(t, x.Get("k3", "revenue.total"))

	var keys []string
	x.Each(func(key string, obs []Observation) {
		keys = append(keys, key)
	})
	assert.Equal(t, []string{"k1#revenue.total", "k2#revenue.total"}, keys)
}
