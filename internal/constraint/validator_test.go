package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/internal/contracts"
)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	out := map[string]string{}
	for _, fe := range verr.Errors {
		out[fe.Field] = fe.Message
	}
	return out
}

func TestValidateDefaultProfilePasses(t *testing.T) {
	assert.NoError(t, Validate(contracts.DefaultProfile("u1")))
}

func TestValidateRangeErrors(t *testing.T) {
	p := contracts.DefaultProfile("u1")
	p.MaxNameWeightLargeCapPct = 0
	p.TurnoverCapPct = 150
	p.WeightDeadbandBps = -1
	p.SpreadThresholdBps = 0
	p.LiquidityFloorADV = -5

	errs := fieldErrors(t, Validate(p))
	assert.Contains(t, errs, "max_name_weight_large_cap_pct")
	assert.Contains(t, errs, "turnover_cap_pct")
	assert.Contains(t, errs, "weight_deadband_bps")
	assert.Contains(t, errs, "spread_threshold_bps")
	assert.Contains(t, errs, "liquidity_floor_adv")
}

func TestValidateCapLadderConsistency(t *testing.T) {
	p := contracts.DefaultProfile("u1")
	p.MaxNameWeightMidCapPct = 6.00 // above the 5.00 large-cap cap

	errs := fieldErrors(t, Validate(p))
	assert.Contains(t, errs, "max_name_weight_mid_cap_pct")
}

func TestValidateSectorCapMustCoverNameCap(t *testing.T) {
	p := contracts.DefaultProfile("u1")
	p.MaxSectorExposurePct = 4.00 // below the 5.00 per-name cap

	errs := fieldErrors(t, Validate(p))
	assert.Contains(t, errs, "max_sector_exposure_pct")
}

func TestValidateParticipationLadder(t *testing.T) {
	p := contracts.DefaultProfile("u1")
	p.ParticipationCapTier3Pct = 9.00 // above tier 2's 7.50

	errs := fieldErrors(t, Validate(p))
	assert.Contains(t, errs, "participation_cap_tier3_pct")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	p := contracts.DefaultProfile("u1")
	p.Name = ""
	p.MaxSectorExposurePct = -1
	p.CostMarginRequiredBps = -1

	var verr *ValidationError
	require.ErrorAs(t, Validate(p), &verr)
	assert.GreaterOrEqual(t, len(verr.Errors), 3, "validation reports every offending field, not just the first")
}
