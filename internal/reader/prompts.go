package reader

import (
	"fmt"
	"strings"

	"github.com/sells-group/valuation-cli/internal/model"
)

// maxDocumentChars caps how much document text goes into a single prompt.
// Facility financials rarely exceed this; anything larger is truncated with
// a marker so the model knows content is missing.
const maxDocumentChars = 120000

const structureSystemText = `You are a financial analyst reviewing documents for skilled nursing and seniors housing acquisitions. Classify each document and identify which facilities and reporting periods it covers. Return valid JSON only.`

const extractionSystemText = `You are a financial analyst extracting data from skilled nursing and seniors housing facility documents. Extract every financial period, census period, and payer rate you find. Report dollar values as plain numbers without currency symbols. Use null for values not present. Return valid JSON only.`

const structurePrompt = `Classify this document and list what it covers.

%s
Document name: %s
Document content:
%s

Return a valid JSON object:
{
  "document_type": "<financial_statement | census_report | rate_sheet | rent_roll | mixed>",
  "facility_names": ["<each facility named in the document>"],
  "periods": ["<each reporting period, e.g. 2024-01 or FY2023>"],
  "focus_hints": ["<sections that look inconsistent or hard to read>"]
}`

const extractionPrompt = `Extract all financial data from this document.

%s
Document name: %s
Document type: %s
%s%s
Document content:
%s

Return a valid JSON object:
{
  "financial_periods": [{
    "facility_name": "<name as written>",
    "period_start": "<YYYY-MM-DD>",
    "period_end": "<YYYY-MM-DD>",
    "revenue_by_payer": {"medicare": 0, "medicaid": 0, "managed_care": 0, "insurance": 0, "private": 0, "va": 0, "hospice": 0, "other": 0},
    "revenue_total": 0,
    "labor_core": 0, "labor_agency": 0, "labor_benefits": 0, "labor_total": 0,
    "operating_expenses": 0, "fixed_expenses": 0, "rent": 0, "expense_total": 0,
    "location": "<sheet/page where found>",
    "confidence": 0.0
  }],
  "census_periods": [{
    "facility_name": "", "period_start": "", "period_end": "",
    "patient_days_by_payer": {}, "patient_days_total": 0,
    "licensed_beds": 0, "occupancy": 0.0,
    "location": "", "confidence": 0.0
  }],
  "payer_rates": [{
    "facility_name": "", "effective_date": "<YYYY-MM-DD>",
    "rates": {"medicare": 0.0, "medicaid": 0.0},
    "location": "", "confidence": 0.0
  }],
  "facilities": [{"name": "", "ccn": "", "licensed_beds": 0, "available_beds": 0, "class": "<snf | alf | ilf | memory_care | mixed>"}],
  "observations": ["<anything notable about data quality or layout>"],
  "suggested_clarifications": ["<questions only the deal team can answer>"],
  "confidence": 0.0
}

Rules:
- One financial_periods entry per facility per reporting period. Never merge periods.
- Report each period exactly as stated; do not annualize or sum columns yourself.
- If a total line disagrees with its components, report both as written and note it in observations.
- "confidence" is 0.0-1.0 per record, reflecting how legible and unambiguous the source was.`

// buildStructurePrompt assembles the first-pass prompt.
func buildStructurePrompt(doc model.Document, priorContext string) string {
	return fmt.Sprintf(structurePrompt,
		contextBlock(priorContext),
		doc.Name,
		truncateDocument(doc.Text),
	)
}

// buildExtractionPrompt assembles the full extraction prompt.
func buildExtractionPrompt(doc model.Document, structure *model.DocumentStructure, priorContext string, focus []string) string {
	docType := "unknown"
	hints := ""
	if structure != nil {
		if structure.DocumentType != "" {
			docType = structure.DocumentType
		}
		if len(structure.FocusHints) > 0 {
			hints = "Sections flagged during structure analysis:\n- " + strings.Join(structure.FocusHints, "\n- ") + "\n"
		}
	}

	focusBlock := ""
	if len(focus) > 0 {
		focusBlock = "Pay extra attention to these fields; earlier documents left them uncertain:\n- " + strings.Join(focus, "\n- ") + "\n"
	}

	return fmt.Sprintf(extractionPrompt,
		contextBlock(priorContext),
		doc.Name,
		docType,
		hints,
		focusBlock,
		truncateDocument(doc.Text),
	)
}

func contextBlock(priorContext string) string {
	if strings.TrimSpace(priorContext) == "" {
		return ""
	}
	return "--- Session Context (data already extracted this deal) ---\n" + priorContext + "\n--- End Session Context ---\n"
}

func truncateDocument(text string) string {
	if len(text) <= maxDocumentChars {
		return text
	}
	return text[:maxDocumentChars] + "\n\n[... document truncated ...]"
}
