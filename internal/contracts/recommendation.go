package contracts

import "time"

// ChangeIndicator classifies a recommendation relative to the previous
// finalized run for the same user.
type ChangeIndicator string

const (
	ChangeNew       ChangeIndicator = "NEW"
	ChangeIncreased ChangeIndicator = "INCREASED"
	ChangeDecreased ChangeIndicator = "DECREASED"
	ChangeUnchanged ChangeIndicator = "UNCHANGED"
	ChangeRemoved   ChangeIndicator = "REMOVED"
)

// FactorDriver names one factor contributing to a recommendation's score.
type FactorDriver struct {
	Factor       string  `json:"factor"`
	Contribution float64 `json:"contribution"`
}

// Recommendation is one ranked entry in a run's output list.
type Recommendation struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`

	Rank            int     `json:"rank"`
	CompositeScore  float64 `json:"composite_score"`
	TargetWeightPct float64 `json:"target_weight_pct"`

	// CurrentWeightPct is the holding's weight at computation time;
	// zero for names not currently held.
	CurrentWeightPct float64 `json:"current_weight_pct"`
	WeightChangePct  float64 `json:"weight_change_pct"`

	ChangeIndicator ChangeIndicator `json:"change_indicator"`
	ConfidenceScore float64         `json:"confidence_score"`

	ExpectedAlphaBps float64 `json:"expected_alpha_bps"`
	EstimatedCostBps float64 `json:"estimated_cost_bps"`

	FactorDrivers []FactorDriver `json:"factor_drivers,omitempty"`
	Rationale     string         `json:"rationale,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
