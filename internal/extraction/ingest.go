package extraction

import (
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// IngestReport summarizes what one document's extraction contributed.
type IngestReport struct {
	NewFacilities    []string // names of profiles created by this document
	PeriodLabels     []string // financial periods ingested, as "name YYYY-MM-DD"
	FinancialPeriods int
	CensusPeriods    int
	PayerRates       int
	ParseFailures    int
}

// Ingest runs a document's raw extraction result through facility resolution
// and normalization into session state. Unparseable records are logged and
// skipped; they never abort the document.
func (c *Context) Ingest(res model.ExtractionResult, doc model.Document) IngestReport {
	var report IngestReport
	src := model.Source{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		ExtractedAt:  c.now(),
	}
	// Reader confidences arrive as fractions; records with no confidence of
	// their own fall back to the document-level score on the 0-100 scale.
	docConf := normalize.Confidence(res.Confidence, 50)

	for _, info := range res.Facilities {
		profile, isNew := c.FindOrCreateFacility(info.Name)
		if isNew {
			report.NewFacilities = append(report.NewFacilities, profile.Name)
		}
		c.Builder(profile.ID).ApplyInfo(info)
	}

	for _, raw := range res.FinancialPeriods {
		profile, isNew := c.FindOrCreateFacility(raw.FacilityName)
		if isNew {
			report.NewFacilities = append(report.NewFacilities, profile.Name)
		}
		p, err := normalize.FinancialFrom(raw, profile.ID, src, docConf)
		if err != nil {
			report.ParseFailures++
			zap.L().Warn("ingest: skipped financial period", zap.String("document", doc.Name), zap.Error(err))
			continue
		}
		c.AddFinancialPeriod(p)
		report.PeriodLabels = append(report.PeriodLabels, profile.Name+" "+p.PeriodEnd.Format("2006-01-02"))
		report.FinancialPeriods++
	}

	for _, raw := range res.CensusPeriods {
		profile, isNew := c.FindOrCreateFacility(raw.FacilityName)
		if isNew {
			report.NewFacilities = append(report.NewFacilities, profile.Name)
		}
		cp, err := normalize.CensusFrom(raw, profile.ID, src, docConf)
		if err != nil {
			report.ParseFailures++
			zap.L().Warn("ingest: skipped census period", zap.String("document", doc.Name), zap.Error(err))
			continue
		}
		c.AddCensusPeriod(cp)
		report.CensusPeriods++
	}

	for _, raw := range res.PayerRates {
		profile, isNew := c.FindOrCreateFacility(raw.FacilityName)
		if isNew {
			report.NewFacilities = append(report.NewFacilities, profile.Name)
		}
		r, err := normalize.RateFrom(raw, profile.ID, src, docConf)
		if err != nil {
			report.ParseFailures++
			zap.L().Warn("ingest: skipped payer rate", zap.String("document", doc.Name), zap.Error(err))
			continue
		}
		c.AddPayerRate(r)
		report.PayerRates++
	}

	c.AddTokens(res.TokensUsed)
	return report
}
