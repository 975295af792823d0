package reader

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

// cleanJSON strips markdown code fences and any prose surrounding the
// outermost JSON object. Models occasionally wrap output despite
// instructions.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func parseStructure(text string) (*model.DocumentStructure, error) {
	var s model.DocumentStructure
	if err := json.Unmarshal([]byte(cleanJSON(text)), &s); err != nil {
		return nil, eris.Wrap(err, "reader: unmarshal structure")
	}
	if s.DocumentType == "" {
		s.DocumentType = "mixed"
	}
	return &s, nil
}

func parseExtraction(text string) (*model.ExtractionResult, error) {
	var res model.ExtractionResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return nil, eris.Wrap(err, "reader: unmarshal extraction")
	}
	if res.Confidence <= 0 {
		res.Confidence = 0.5
	}
	return &res, nil
}
