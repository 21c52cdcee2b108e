package contracts

import "time"

// Universe is a named set of tradable securities for a user.
type Universe struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UniverseConstituent is a symbol eligible for recommendation.
// Constituents are never hard-deleted: dropping one from a snapshot sets
// RemovedDate and clears IsActive so prior runs stay auditable.
type UniverseConstituent struct {
	ID          string        `json:"id"`
	UniverseID  string        `json:"universe_id"`
	Symbol      string        `json:"symbol"`
	CompanyName string        `json:"company_name"`
	Sector      string        `json:"sector"`
	Industry    string        `json:"industry,omitempty"`

	MarketCapTier MarketCapTier `json:"market_cap_tier"`

	// LiquidityTier: 1 = most liquid .. 5 = least liquid
	LiquidityTier  int     `json:"liquidity_tier"`
	AvgDailyVolume float64 `json:"avg_daily_volume"`
	AvgDailyValue  float64 `json:"avg_daily_value"`

	IsActive    bool       `json:"is_active"`
	AddedDate   time.Time  `json:"added_date"`
	RemovedDate *time.Time `json:"removed_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
