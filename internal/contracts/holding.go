package contracts

import "time"

// Portfolio aggregates a user's holdings and the active references the
// month-end workflow needs to create a run.
type Portfolio struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	Name             string  `json:"name"`
	BaseCurrency     string  `json:"base_currency"`
	CashBalance      float64 `json:"cash_balance"`
	TotalMarketValue float64 `json:"total_market_value"`

	// Active references; empty means the portfolio is not eligible for
	// scheduled runs and T-3 skips it.
	ActiveUniverseID string `json:"active_universe_id,omitempty"`
	ActiveProfileID  string `json:"active_profile_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalValue returns cash plus market value of all holdings.
func (p *Portfolio) TotalValue() float64 {
	return p.CashBalance + p.TotalMarketValue
}

// Holding is a position in the investor's portfolio. The computed fields
// (market value, weight, P&L) are recalculated from scratch on every
// portfolio-calculation pass, never incrementally.
type Holding struct {
	ID          string `json:"id"`
	PortfolioID string `json:"portfolio_id"`
	Symbol      string `json:"symbol"`

	Quantity          float64   `json:"quantity"`
	CostBasis         float64   `json:"cost_basis"`
	CostBasisPerShare float64   `json:"cost_basis_per_share"`
	AcquisitionDate   time.Time `json:"acquisition_date"`
	Currency          string    `json:"currency"`
	FxRateToBase      float64   `json:"fx_rate_to_base"`

	CurrentPrice       float64    `json:"current_price"`
	CurrentMarketValue float64    `json:"current_market_value"`
	UnrealizedPnl      float64    `json:"unrealized_pnl"`
	UnrealizedPnlPct   float64    `json:"unrealized_pnl_pct"`
	WeightPct          float64    `json:"weight_pct"`
	PriceUpdatedAt     *time.Time `json:"price_updated_at,omitempty"`

	Sector        string        `json:"sector,omitempty"`
	MarketCapTier MarketCapTier `json:"market_cap_tier,omitempty"`
	InUniverse    bool          `json:"in_universe"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketValue returns quantity times current price. When no price is
// available the quantity alone stands in, matching the turnover convention.
func (h *Holding) MarketValue() float64 {
	if h.CurrentPrice > 0 {
		return h.Quantity * h.CurrentPrice
	}
	return h.Quantity
}
