package extraction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Summary bounds.
const (
	summaryMaxPeriods    = 24
	summaryMaxFinancials = 12
	summaryMaxQuestions  = 10
)

// FacilitySummary is one known facility in the context digest.
type FacilitySummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// PeriodDigest is one known period in the context digest.
type PeriodDigest struct {
	Facility    string           `json:"facility"`
	PeriodStart string           `json:"period_start"`
	PeriodEnd   string           `json:"period_end"`
	PeriodType  model.PeriodType `json:"period_type"`
}

// FinancialDigest is a revenue/expense/NOI triple for one recent period.
type FinancialDigest struct {
	Facility  string  `json:"facility"`
	PeriodEnd string  `json:"period_end"`
	Revenue   float64 `json:"revenue"`
	Expenses  float64 `json:"expenses"`
	NOI       float64 `json:"noi"`
}

// ContextSummary is the bounded digest handed to the reader as prior context
// for subsequent documents, letting later extractions reference facilities
// and periods established earlier. This is what makes document processing
// order-dependent.
type ContextSummary struct {
	Facilities    []FacilitySummary `json:"facilities"`
	RecentPeriods []PeriodDigest    `json:"recent_periods"`
	Financials    []FinancialDigest `json:"financials"`
	OpenQuestions []string          `json:"open_questions,omitempty"`
}

// Summary builds the digest from current session state.
func (c *Context) Summary() ContextSummary {
	var s ContextSummary

	names := make(map[string]string)
	for _, p := range c.Profiles() {
		names[p.ID] = p.Name
		s.Facilities = append(s.Facilities, FacilitySummary{
			ID:      p.ID,
			Name:    p.Name,
			Aliases: p.Aliases,
		})
	}

	periods := make([]model.FinancialPeriod, len(c.financialPeriods))
	copy(periods, c.financialPeriods)
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].PeriodEnd.After(periods[j].PeriodEnd)
	})

	for i, p := range periods {
		if i >= summaryMaxPeriods {
			break
		}
		s.RecentPeriods = append(s.RecentPeriods, PeriodDigest{
			Facility:    names[p.FacilityID],
			PeriodStart: p.PeriodStart.Format("2006-01-02"),
			PeriodEnd:   p.PeriodEnd.Format("2006-01-02"),
			PeriodType:  p.PeriodType,
		})
	}
	for i, p := range periods {
		if i >= summaryMaxFinancials {
			break
		}
		s.Financials = append(s.Financials, FinancialDigest{
			Facility:  names[p.FacilityID],
			PeriodEnd: p.PeriodEnd.Format("2006-01-02"),
			Revenue:   p.Revenue.Total,
			Expenses:  p.Expenses.Total,
			NOI:       p.Metrics.NOI,
		})
	}

	questions := make([]*model.Clarification, len(c.pending))
	copy(questions, c.pending)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Priority > questions[j].Priority
	})
	for i, q := range questions {
		if i >= summaryMaxQuestions {
			break
		}
		s.OpenQuestions = append(s.OpenQuestions, q.Question)
	}

	return s
}

// Render formats the summary as prompt-ready text.
func (s ContextSummary) Render() string {
	if len(s.Facilities) == 0 {
		return "No prior context: this is the first document in the session."
	}

	var b strings.Builder
	b.WriteString("Known facilities:\n")
	for _, f := range s.Facilities {
		b.WriteString("- " + f.Name)
		if len(f.Aliases) > 0 {
			b.WriteString(" (aka " + strings.Join(f.Aliases, ", ") + ")")
		}
		b.WriteString("\n")
	}

	if len(s.RecentPeriods) > 0 {
		b.WriteString("\nKnown periods:\n")
		for _, p := range s.RecentPeriods {
			fmt.Fprintf(&b, "- %s: %s to %s (%s)\n", p.Facility, p.PeriodStart, p.PeriodEnd, p.PeriodType)
		}
	}

	if len(s.Financials) > 0 {
		b.WriteString("\nRecent financials:\n")
		for _, f := range s.Financials {
			fmt.Fprintf(&b, "- %s %s: revenue %.2f, expenses %.2f, NOI %.2f\n",
				f.Facility, f.PeriodEnd, f.Revenue, f.Expenses, f.NOI)
		}
	}

	if len(s.OpenQuestions) > 0 {
		b.WriteString("\nOpen questions (answer if this document clarifies them):\n")
		for _, q := range s.OpenQuestions {
			b.WriteString("- " + q + "\n")
		}
	}

	return b.String()
}
