package facility

import (
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

// MergeProfiles folds secondary into primary for deduplication: aliases are
// unioned, empty or lower-confidence scalar fields are taken from secondary,
// and secondary's period lists are re-ingested through the builder so the
// retention rule and derived aggregates stay consistent.
func MergeProfiles(primary, secondary *model.FacilityProfile) *model.FacilityProfile {
	b := NewBuilder(primary)

	if !primary.HasAlias(secondary.Name) && secondary.Name != primary.Name {
		primary.Aliases = append(primary.Aliases, secondary.Name)
	}
	for _, a := range secondary.Aliases {
		if a != primary.Name && !primary.HasAlias(a) {
			primary.Aliases = append(primary.Aliases, a)
		}
	}

	preferSecondary := secondary.DataConfidence > primary.DataConfidence
	if primary.CCN == "" || (preferSecondary && secondary.CCN != "") {
		if secondary.CCN != "" {
			primary.CCN = secondary.CCN
		}
	}
	if primary.LicensedBeds == 0 || (preferSecondary && secondary.LicensedBeds > 0) {
		if secondary.LicensedBeds > 0 {
			primary.LicensedBeds = secondary.LicensedBeds
		}
	}
	if primary.AvailableBeds == 0 || (preferSecondary && secondary.AvailableBeds > 0) {
		if secondary.AvailableBeds > 0 {
			primary.AvailableBeds = secondary.AvailableBeds
		}
	}
	if primary.Class == "" || (preferSecondary && secondary.Class != "") {
		if secondary.Class != "" {
			primary.Class = secondary.Class
		}
	}

	for _, fp := range secondary.FinancialPeriods {
		fp.FacilityID = primary.ID
		b.AddFinancialPeriod(fp)
	}
	for _, c := range secondary.CensusPeriods {
		c.FacilityID = primary.ID
		b.AddCensusPeriod(c)
	}
	for _, r := range secondary.PayerRates {
		r.FacilityID = primary.ID
		b.AddPayerRate(r)
	}

	zap.L().Info("facility: merged profiles",
		zap.String("primary", primary.ID),
		zap.String("secondary", secondary.ID),
		zap.Int("financial_periods", len(primary.FinancialPeriods)),
	)
	return primary
}
