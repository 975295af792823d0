package reader

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/ocr"
)

// Loader reads document files from disk into model.Document values with
// their text content populated. Spreadsheets are rendered to tab-separated
// text so the model sees row/column structure.
type Loader struct {
	pdf ocr.Extractor
}

// NewLoader creates a Loader. pdf may be nil if no PDF support is needed.
func NewLoader(pdf ocr.Extractor) *Loader {
	return &Loader{pdf: pdf}
}

// Load reads one file and returns a Document ready for extraction.
func (l *Loader) Load(ctx context.Context, path string) (model.Document, error) {
	doc := model.Document{
		ID:   uuid.NewString(),
		Name: filepath.Base(path),
		Path: path,
		Kind: kindForPath(path),
	}

	var text string
	var err error
	switch doc.Kind {
	case model.DocSpreadsheet:
		text, err = renderXLSX(path)
	case model.DocPDF:
		if l.pdf == nil {
			return doc, eris.Errorf("reader: no PDF extractor configured for %s", doc.Name)
		}
		text, err = l.pdf.ExtractText(ctx, path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return doc, eris.Wrapf(err, "reader: load %s", doc.Name)
	}
	if strings.TrimSpace(text) == "" {
		return doc, eris.Errorf("reader: %s produced no text", doc.Name)
	}

	doc.Text = text
	return doc, nil
}

// LoadAll loads every supported file in a directory, skipping hidden files
// and unsupported extensions. A file that fails to load is skipped rather
// than aborting the deal; its name is returned so callers can surface it.
func (l *Loader) LoadAll(ctx context.Context, dir string) ([]model.Document, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "reader: read dir %s", dir)
	}

	var docs []model.Document
	var skipped []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !supportedExt(entry.Name()) {
			continue
		}
		doc, err := l.Load(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, err
			}
			zap.L().Warn("reader: skipping unreadable document",
				zap.String("document", entry.Name()), zap.Error(err))
			skipped = append(skipped, entry.Name())
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

func kindForPath(path string) model.DocumentKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return model.DocSpreadsheet
	case ".pdf":
		return model.DocPDF
	default:
		return model.DocText
	}
}

func supportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls", ".pdf", ".txt", ".csv", ".md":
		return true
	}
	return false
}

// renderXLSX flattens every sheet into tab-separated rows with sheet
// headers, preserving the grid layout the model needs to line up columns.
func renderXLSX(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrap(err, "reader: open xlsx")
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		if len(sheet.Rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("=== Sheet: " + sheet.Name + " ===\n")
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			empty := true
			for j, cell := range row.Cells {
				cells[j] = cell.String()
				if cells[j] != "" {
					empty = false
				}
			}
			if empty {
				continue
			}
			sb.WriteString(strings.Join(cells, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
