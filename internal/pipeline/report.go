package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/valuation-cli/internal/model"
)

// FormatReport generates a human-readable session report: lifecycle summary,
// per-facility financial picture, open conflicts, and clarifications.
func FormatReport(s *Session) string {
	num := message.NewPrinter(language.English)
	info := s.Info()
	var b strings.Builder

	fmt.Fprintf(&b, "# Extraction Report: %s\n", info.DealID)
	fmt.Fprintf(&b, "Session: %s\n", info.ID)
	fmt.Fprintf(&b, "Status: %s\n\n", info.Status)

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Documents processed: %d (%d skipped)\n",
		info.Stats.DocumentsProcessed, info.Stats.DocumentsSkipped)
	fmt.Fprintf(&b, "- Financial periods: %d, census periods: %d, payer rates: %d\n",
		info.Stats.FinancialPeriods, info.Stats.CensusPeriods, info.Stats.PayerRates)
	fmt.Fprintf(&b, "- Conflicts: %d detected, %d auto-resolved\n",
		info.Stats.ConflictsDetected, info.Stats.ConflictsAutoResolved)
	fmt.Fprintf(&b, "- Clarifications: %d raised, %d resolved\n",
		info.Stats.ClarificationsRaised, info.Stats.ClarificationsResolved)
	fmt.Fprintf(&b, "- Overall confidence: %.1f%%\n", info.Confidence)
	num.Fprintf(&b, "- Tokens used: %d\n", info.Stats.TokensUsed)
	if v := s.Validation(); v != nil {
		fmt.Fprintf(&b, "- Validation score: %d (%s)\n", v.ValidationScore, validLabel(v.IsValid))
	}
	if info.Error != "" {
		fmt.Fprintf(&b, "- Error at %s: %s\n", info.FailedStage, info.Error)
	}
	b.WriteString("\n")

	b.WriteString("## Facilities\n")
	profiles := s.Profiles()
	if len(profiles) == 0 {
		b.WriteString("No facilities identified.\n\n")
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	for _, p := range profiles {
		fmt.Fprintf(&b, "### %s\n", p.Name)
		if len(p.Aliases) > 0 {
			fmt.Fprintf(&b, "Also seen as: %s\n", strings.Join(p.Aliases, ", "))
		}
		if p.LicensedBeds > 0 {
			fmt.Fprintf(&b, "- Licensed beds: %d\n", p.LicensedBeds)
		}
		if p.TTM != nil {
			num.Fprintf(&b, "- TTM revenue: $%.0f over %d months", p.TTM.Revenue, p.TTM.MonthsCovered)
			if p.TTM.Annualized {
				b.WriteString(" (annualized)")
			}
			b.WriteString("\n")
			num.Fprintf(&b, "- TTM EBITDAR: $%.0f, EBITDA: $%.0f\n", p.TTM.EBITDAR, p.TTM.EBITDA)
		}
		if p.AvgOccupancy > 0 {
			fmt.Fprintf(&b, "- Average occupancy: %.1f%%\n", p.AvgOccupancy)
		}
		fmt.Fprintf(&b, "- Data confidence: %.1f%%, completeness: %.0f%%\n",
			p.DataConfidence, p.DataCompleteness)
		b.WriteString("\n")
	}

	writeConflicts(&b, s)
	writeClarifications(&b, s)

	return b.String()
}

func writeConflicts(b *strings.Builder, s *Session) {
	s.mu.Lock()
	var open []model.DataConflict
	for _, c := range s.extraction.Conflicts() {
		if c.Unresolved() {
			open = append(open, *c)
		}
	}
	s.mu.Unlock()
	if len(open) == 0 {
		return
	}

	b.WriteString("## Open Conflicts\n")
	for _, c := range open {
		fmt.Fprintf(b, "- [%s/%s] %s %s: variance %.1f%%\n",
			c.Type, c.Severity, c.FieldPath, c.PeriodKey, c.VariancePercent)
		for _, v := range c.Values {
			fmt.Fprintf(b, "  - %.2f from %s (%.0f%% confidence)\n", v.Value, v.Source, v.Confidence)
		}
	}
	b.WriteString("\n")
}

func writeClarifications(b *strings.Builder, s *Session) {
	pending := s.PendingClarifications()
	if len(pending) == 0 {
		return
	}

	b.WriteString("## Pending Clarifications\n")
	for _, c := range pending {
		marker := ""
		if c.Blocking() {
			marker = " [blocking]"
		}
		fmt.Fprintf(b, "- (P%d)%s %s\n", c.Priority, marker, c.Question)
		for _, v := range c.SuggestedValues {
			fmt.Fprintf(b, "  - %.2f: %s\n", v.Value, v.Label)
		}
	}
	b.WriteString("\n")
}

func validLabel(valid bool) string {
	if valid {
		return "valid"
	}
	return "needs review"
}
