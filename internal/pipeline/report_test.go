package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestFormatReport_CompleteSession(t *testing.T) {
	st := newMemStore()
	rd := &scriptedReader{
		results: map[string]*model.ExtractionResult{
			"jan.xlsx": financialDoc("Maple Grove Care Center", 1_000_000, 0.9),
		},
	}
	p := newTestPipeline(st, &fakeLoader{docs: []model.Document{doc("jan.xlsx")}}, rd)
	s := p.StartSession("deal-1", "/deals/deal-1")
	require.NoError(t, p.Run(context.Background(), s))

	report := FormatReport(s)
	assert.Contains(t, report, "# Extraction Report: deal-1")
	assert.Contains(t, report, "Status: complete")
	assert.Contains(t, report, "## Summary")
	assert.Contains(t, report, "Documents processed: 1")
	assert.Contains(t, report, "### Maple Grove Care Center")
	assert.Contains(t, report, "Validation score: 100 (valid)")
	assert.NotContains(t, report, "## Open Conflicts")
	assert.NotContains(t, report, "## Pending Clarifications")
}

func TestFormatReport_ListsConflictsAndClarifications(t *testing.T) {
	st := newMemStore()
	rd := &scriptedReader{
		results: map[string]*model.ExtractionResult{
			"a.xlsx": financialDoc("Maple Grove", 1_000_000, 0.85),
			"b.xlsx": financialDoc("Maple Grove", 1_400_000, 0.9),
		},
	}
	p := newTestPipeline(st, &fakeLoader{docs: []model.Document{doc("a.xlsx"), doc("b.xlsx")}}, rd)
	s := p.StartSession("deal-1", "/deals/deal-1")
	require.NoError(t, p.Run(context.Background(), s))
	require.Equal(t, model.SessionAwaitingClarifications, s.Status())

	report := FormatReport(s)
	assert.Contains(t, report, "Status: awaiting_clarifications")
	assert.Contains(t, report, "## Open Conflicts")
	assert.Contains(t, report, "revenue.total")
	assert.Contains(t, report, "## Pending Clarifications")
	assert.Contains(t, report, "[blocking]")
	assert.Contains(t, report, "needs review")
}

func TestFormatReport_EmptySession(t *testing.T) {
	p := newTestPipeline(newMemStore(), &fakeLoader{}, &scriptedReader{})
	s := p.StartSession("deal-1", "/deals/deal-1")

	report := FormatReport(s)
	assert.Contains(t, report, "No facilities identified.")
	assert.Contains(t, report, "Status: created")
}
