// Package constraint manages constraint profiles: synchronous validation
// of limit values and versioned persistence with a single active profile
// per user.
package constraint

import (
	"fmt"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// FieldError is one validation failure tied to a profile field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates all field errors for one profile.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("profile validation failed with %d error(s)", len(e.Errors))
}

// Validate checks a profile's limits for range and internal consistency.
// Returns nil when valid, or a *ValidationError listing every offending
// field. Values are never coerced.
func Validate(p *contracts.ConstraintProfile) error {
	var errs []FieldError

	add := func(field, format string, args ...interface{}) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	pctField := func(field string, v float64) {
		if v <= 0 || v > 100 {
			add(field, "must be in (0, 100], got %.2f", v)
		}
	}

	if p.Name == "" {
		add("name", "must not be empty")
	}

	pctField("max_name_weight_large_cap_pct", p.MaxNameWeightLargeCapPct)
	pctField("max_name_weight_mid_cap_pct", p.MaxNameWeightMidCapPct)
	pctField("max_name_weight_small_cap_pct", p.MaxNameWeightSmallCapPct)
	pctField("max_sector_exposure_pct", p.MaxSectorExposurePct)
	pctField("turnover_cap_pct", p.TurnoverCapPct)

	// smaller-cap tiers must not allow larger positions
	if p.MaxNameWeightMidCapPct > p.MaxNameWeightLargeCapPct {
		add("max_name_weight_mid_cap_pct", "must not exceed the large-cap cap (%.2f)", p.MaxNameWeightLargeCapPct)
	}
	if p.MaxNameWeightSmallCapPct > p.MaxNameWeightMidCapPct {
		add("max_name_weight_small_cap_pct", "must not exceed the mid-cap cap (%.2f)", p.MaxNameWeightMidCapPct)
	}

	if p.MaxSectorExposurePct < p.MaxNameWeightLargeCapPct {
		add("max_sector_exposure_pct", "must be at least the largest per-name cap (%.2f)", p.MaxNameWeightLargeCapPct)
	}

	if p.WeightDeadbandBps < 0 || p.WeightDeadbandBps > 1000 {
		add("weight_deadband_bps", "must be in [0, 1000], got %d", p.WeightDeadbandBps)
	}

	participation := []struct {
		field string
		value float64
	}{
		{"participation_cap_tier1_pct", p.ParticipationCapTier1Pct},
		{"participation_cap_tier2_pct", p.ParticipationCapTier2Pct},
		{"participation_cap_tier3_pct", p.ParticipationCapTier3Pct},
		{"participation_cap_tier4_pct", p.ParticipationCapTier4Pct},
		{"participation_cap_tier5_pct", p.ParticipationCapTier5Pct},
	}
	for i, pc := range participation {
		pctField(pc.field, pc.value)
		// less liquid tiers must not allow more participation
		if i > 0 && pc.value > participation[i-1].value {
			add(pc.field, "must not exceed the cap for tier %d (%.2f)", i, participation[i-1].value)
		}
	}

	if p.SpreadThresholdBps <= 0 || p.SpreadThresholdBps > 10000 {
		add("spread_threshold_bps", "must be in (0, 10000], got %d", p.SpreadThresholdBps)
	}
	if p.EarningsBlackoutHours < 0 || p.EarningsBlackoutHours > 24*14 {
		add("earnings_blackout_hours", "must be in [0, 336], got %d", p.EarningsBlackoutHours)
	}
	if p.LiquidityFloorADV < 0 {
		add("liquidity_floor_adv", "must not be negative, got %.2f", p.LiquidityFloorADV)
	}
	if p.CostMarginRequiredBps < 0 || p.CostMarginRequiredBps > 10000 {
		add("cost_margin_required_bps", "must be in [0, 10000], got %d", p.CostMarginRequiredBps)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
