package contracts

import "time"

// ExclusionReason is a machine-readable code for why a constituent was
// removed from a run's candidate set.
type ExclusionReason string

const (
	ExclLiquidityFloor    ExclusionReason = "LIQUIDITY_FLOOR"
	ExclSectorCap         ExclusionReason = "SECTOR_CAP"
	ExclEarningsProximity ExclusionReason = "EARNINGS_PROXIMITY"
	ExclSpreadThreshold   ExclusionReason = "SPREAD_THRESHOLD"
	ExclMarketCapFloor    ExclusionReason = "MARKET_CAP_FLOOR"
	ExclPositionSizeCap   ExclusionReason = "POSITION_SIZE_CAP"
)

// ReasonText returns the human-readable description for an exclusion code.
func (r ExclusionReason) ReasonText() string {
	switch r {
	case ExclLiquidityFloor:
		return "Average daily volume below liquidity floor"
	case ExclSectorCap:
		return "Sector exposure would exceed the sector cap"
	case ExclEarningsProximity:
		return "Earnings announcement within the blackout window"
	case ExclSpreadThreshold:
		return "Estimated spread above the spread threshold"
	case ExclMarketCapFloor:
		return "Market capitalization below the minimum"
	case ExclPositionSizeCap:
		return "Target position would exceed the per-name weight cap"
	default:
		return string(r)
	}
}

// Exclusion records one symbol dropped during a run, with the constraint
// value that caused the drop. Every exclusion is persisted so the output
// list is auditable.
type Exclusion struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`

	Reason ExclusionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`

	// ObservedValue and LimitValue capture the measurement that tripped
	// the constraint, in the constraint's own unit.
	ObservedValue float64 `json:"observed_value"`
	LimitValue    float64 `json:"limit_value"`

	CreatedAt time.Time `json:"created_at"`
}
