package contracts

import "time"

// MarketCapTier classifies constituents by market capitalization.
type MarketCapTier string

const (
	TierLargeCap MarketCapTier = "LARGE_CAP"
	TierMidCap   MarketCapTier = "MID_CAP"
	TierSmallCap MarketCapTier = "SMALL_CAP"
)

// Label returns the short human-readable tier name used in messages.
func (t MarketCapTier) Label() string {
	switch t {
	case TierLargeCap:
		return "LARGE_CAP"
	case TierMidCap:
		return "MID_CAP"
	case TierSmallCap:
		return "SMALL_CAP"
	default:
		return string(t)
	}
}

// ConstraintProfile is a named, versioned set of trading limits.
// At most one profile per user is active at a time. A profile referenced by
// a finalized run is never edited in place; edits create a new version.
type ConstraintProfile struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	Version  int    `json:"version"`

	// Per-name weight caps by market-cap tier (% of portfolio)
	MaxNameWeightLargeCapPct float64 `json:"max_name_weight_large_cap_pct"`
	MaxNameWeightMidCapPct   float64 `json:"max_name_weight_mid_cap_pct"`
	MaxNameWeightSmallCapPct float64 `json:"max_name_weight_small_cap_pct"`

	MaxSectorExposurePct float64 `json:"max_sector_exposure_pct"`
	TurnoverCapPct       float64 `json:"turnover_cap_pct"`
	WeightDeadbandBps    int     `json:"weight_deadband_bps"`

	// Participation caps by liquidity tier (1=most liquid .. 5=least)
	ParticipationCapTier1Pct float64 `json:"participation_cap_tier1_pct"`
	ParticipationCapTier2Pct float64 `json:"participation_cap_tier2_pct"`
	ParticipationCapTier3Pct float64 `json:"participation_cap_tier3_pct"`
	ParticipationCapTier4Pct float64 `json:"participation_cap_tier4_pct"`
	ParticipationCapTier5Pct float64 `json:"participation_cap_tier5_pct"`

	SpreadThresholdBps    int     `json:"spread_threshold_bps"`
	EarningsBlackoutHours int     `json:"earnings_blackout_hours"`
	LiquidityFloorADV     float64 `json:"liquidity_floor_adv"`
	CostMarginRequiredBps int     `json:"cost_margin_required_bps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultProfile returns the default constraint profile for a new user.
func DefaultProfile(userID string) *ConstraintProfile {
	return &ConstraintProfile{
		UserID:                   userID,
		Name:                     "Default",
		Version:                  1,
		MaxNameWeightLargeCapPct: 5.00,
		MaxNameWeightMidCapPct:   2.00,
		MaxNameWeightSmallCapPct: 1.00,
		MaxSectorExposurePct:     20.00,
		TurnoverCapPct:           25.00,
		WeightDeadbandBps:        30,
		ParticipationCapTier1Pct: 10.00,
		ParticipationCapTier2Pct: 7.50,
		ParticipationCapTier3Pct: 5.00,
		ParticipationCapTier4Pct: 3.00,
		ParticipationCapTier5Pct: 1.00,
		SpreadThresholdBps:       50,
		EarningsBlackoutHours:    48,
		LiquidityFloorADV:        1_000_000.00,
		CostMarginRequiredBps:    20,
	}
}

// MaxWeightForTier returns the per-name weight cap for a market-cap tier.
// Unknown tiers get a zero cap (fail-closed).
func (p *ConstraintProfile) MaxWeightForTier(tier MarketCapTier) float64 {
	switch tier {
	case TierLargeCap:
		return p.MaxNameWeightLargeCapPct
	case TierMidCap:
		return p.MaxNameWeightMidCapPct
	case TierSmallCap:
		return p.MaxNameWeightSmallCapPct
	default:
		return 0
	}
}

// ParticipationCapForTier returns the ADV participation cap for a liquidity
// tier (1..5). Out-of-range tiers get a zero cap.
func (p *ConstraintProfile) ParticipationCapForTier(tier int) float64 {
	switch tier {
	case 1:
		return p.ParticipationCapTier1Pct
	case 2:
		return p.ParticipationCapTier2Pct
	case 3:
		return p.ParticipationCapTier3Pct
	case 4:
		return p.ParticipationCapTier4Pct
	case 5:
		return p.ParticipationCapTier5Pct
	default:
		return 0
	}
}
