package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestCleanJSON_Fenced(t *testing.T) {
	text := "```json\n{\"document_type\": \"rate_sheet\"}\n```"
	assert.Equal(t, `{"document_type": "rate_sheet"}`, cleanJSON(text))
}

func TestCleanJSON_SurroundingProse(t *testing.T) {
	text := "Here is the extraction:\n{\"confidence\": 0.9}\nLet me know if you need more."
	assert.Equal(t, `{"confidence": 0.9}`, cleanJSON(text))
}

func TestCleanJSON_AlreadyClean(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, cleanJSON(`{"a": 1}`))
}

func TestParseStructure(t *testing.T) {
	s, err := parseStructure(`{
		"document_type": "financial_statement",
		"facility_names": ["Maple Grove"],
		"periods": ["2025-11"],
		"focus_hints": ["labor tab has merged cells"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, "financial_statement", s.DocumentType)
	assert.Equal(t, []string{"Maple Grove"}, s.FacilityNames)
	assert.Len(t, s.FocusHints, 1)
}

func TestParseStructure_DefaultsType(t *testing.T) {
	s, err := parseStructure(`{"facility_names": []}`)
	require.NoError(t, err)
	assert.Equal(t, "mixed", s.DocumentType)
}

func TestParseStructure_BadJSON(t *testing.T) {
	_, err := parseStructure("not json at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal structure")
}

func TestParseExtraction(t *testing.T) {
	res, err := parseExtraction("```json\n" + `{
		"financial_periods": [{
			"facility_name": "Maple Grove",
			"period_start": "2025-11-01",
			"period_end": "2025-11-30",
			"revenue_total": "1,000,000",
			"confidence": 0.9
		}],
		"census_periods": [],
		"observations": ["rent is embedded in fixed expenses"],
		"confidence": 0.85
	}` + "\n```")
	require.NoError(t, err)
	require.Len(t, res.FinancialPeriods, 1)
	assert.Equal(t, "Maple Grove", res.FinancialPeriods[0].FacilityName)
	// Duck-typed numerics survive as-is for the normalize layer.
	assert.Equal(t, "1,000,000", res.FinancialPeriods[0].RevenueTotal)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Len(t, res.Observations, 1)
}

func TestParseExtraction_DefaultConfidence(t *testing.T) {
	res, err := parseExtraction(`{"financial_periods": []}`)
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestBuildStructurePrompt(t *testing.T) {
	doc := testDoc("p&l.xlsx", "=== Sheet: Nov ===\nRevenue\t1000000")
	prompt := buildStructurePrompt(doc, "")
	assert.Contains(t, prompt, "p&l.xlsx")
	assert.Contains(t, prompt, "Revenue\t1000000")
	assert.NotContains(t, prompt, "Session Context")
}

func TestBuildStructurePrompt_WithContext(t *testing.T) {
	doc := testDoc("census.pdf", "occupancy report")
	prompt := buildStructurePrompt(doc, "Known facilities:\n- Maple Grove")
	assert.Contains(t, prompt, "--- Session Context")
	assert.Contains(t, prompt, "Maple Grove")
	assert.Contains(t, prompt, "--- End Session Context ---")
}

func TestBuildExtractionPrompt(t *testing.T) {
	doc := testDoc("p&l.xlsx", "grid data")
	structure := &model.DocumentStructure{
		DocumentType: "financial_statement",
		FocusHints:   []string{"labor tab has merged cells"},
	}
	prompt := buildExtractionPrompt(doc, structure, "prior", []string{"revenue.total"})

	assert.Contains(t, prompt, "Document type: financial_statement")
	assert.Contains(t, prompt, "labor tab has merged cells")
	assert.Contains(t, prompt, "revenue.total")
	assert.Contains(t, prompt, "Never merge periods")
}

func TestBuildExtractionPrompt_NilStructure(t *testing.T) {
	doc := testDoc("p&l.xlsx", "grid data")
	prompt := buildExtractionPrompt(doc, nil, "", nil)
	assert.Contains(t, prompt, "Document type: unknown")
}

func TestTruncateDocument(t *testing.T) {
	big := make([]byte, maxDocumentChars+100)
	for i := range big {
		big[i] = 'x'
	}
	out := truncateDocument(string(big))
	assert.Contains(t, out, "[... document truncated ...]")
	assert.Less(t, len(out), len(big)+50)

	assert.Equal(t, "short", truncateDocument("short"))
}
