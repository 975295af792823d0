package facility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestMergeProfiles_UnionsAliases(t *testing.T) {
	primary := &model.FacilityProfile{ID: "fac-1", Name: "Maple Grove"}
	secondary := &model.FacilityProfile{
		ID:      "fac-2",
		Name:    "The Grove at Maple",
		Aliases: []string{"Grove SNF"},
	}

	merged := MergeProfiles(primary, secondary)
	assert.Contains(t, merged.Aliases, "The Grove at Maple")
	assert.Contains(t, merged.Aliases, "Grove SNF")
}

func TestMergeProfiles_FillsEmptyScalars(t *testing.T) {
	primary := &model.FacilityProfile{ID: "fac-1", Name: "Maple Grove"}
	secondary := &model.FacilityProfile{
		ID:           "fac-2",
		Name:         "Maple Grove SNF",
		CCN:          "123456",
		LicensedBeds: 100,
		Class:        model.FacilityClass("snf"),
	}

	merged := MergeProfiles(primary, secondary)
	assert.Equal(t, "123456", merged.CCN)
	assert.Equal(t, 100, merged.LicensedBeds)
}

func TestMergeProfiles_HigherConfidenceSecondaryWinsScalars(t *testing.T) {
	primary := &model.FacilityProfile{ID: "fac-1", Name: "Maple Grove", CCN: "111111", DataConfidence: 40}
	secondary := &model.FacilityProfile{ID: "fac-2", Name: "Maple Grove SNF", CCN: "222222", DataConfidence: 90}

	merged := MergeProfiles(primary, secondary)
	assert.Equal(t, "222222", merged.CCN)
}

func TestMergeProfiles_ReingestsPeriodsUnderRetention(t *testing.T) {
	nov := monthPeriod(2025, time.November, 900000, 90)
	primary := &model.FacilityProfile{ID: "fac-1", Name: "Maple Grove"}
	NewBuilder(primary).AddFinancialPeriod(nov)

	// Secondary has a lower-confidence duplicate of November plus a new
	// December period.
	dup := monthPeriod(2025, time.November, 500000, 50)
	dec := monthPeriod(2025, time.December, 950000, 85)
	secondary := &model.FacilityProfile{
		ID:               "fac-2",
		Name:             "Maple Grove SNF",
		FinancialPeriods: []model.FinancialPeriod{dup, dec},
	}

	merged := MergeProfiles(primary, secondary)
	require.Len(t, merged.FinancialPeriods, 2)
	// December first (most recent), November kept at the high-confidence value.
	assert.Equal(t, 950000.0, merged.FinancialPeriods[0].Revenue.Total)
	assert.Equal(t, 900000.0, merged.FinancialPeriods[1].Revenue.Total)
	// Re-pointed at the surviving profile.
	assert.Equal(t, "fac-1", merged.FinancialPeriods[0].FacilityID)
}
