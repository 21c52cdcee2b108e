package holdings

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockmonitor/monthend/internal/contracts"
)

func TestRecomputeWeightsIncludeCash(t *testing.T) {
	p := &contracts.Portfolio{BaseCurrency: "USD", CashBalance: 2000}
	hs := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 10, CurrentPrice: 500, CostBasis: 4000, FxRateToBase: 1}, // 5000
		{Symbol: "MSFT", Quantity: 10, CurrentPrice: 300, CostBasis: 3500, FxRateToBase: 1}, // 3000
	}

	Recompute(p, hs)

	assert.Equal(t, 8000.0, p.TotalMarketValue)
	assert.Equal(t, 10000.0, p.TotalValue())

	assert.Equal(t, 5000.0, hs[0].CurrentMarketValue)
	assert.Equal(t, 50.0, hs[0].WeightPct)
	assert.Equal(t, 30.0, hs[1].WeightPct)

	assert.Equal(t, 1000.0, hs[0].UnrealizedPnl)
	assert.InDelta(t, 25.0, hs[0].UnrealizedPnlPct, 1e-9)
	assert.Equal(t, -500.0, hs[1].UnrealizedPnl)
}

func TestRecomputeAppliesFxRate(t *testing.T) {
	p := &contracts.Portfolio{BaseCurrency: "USD"}
	hs := []*contracts.Holding{
		{Symbol: "SAP", Quantity: 10, CurrentPrice: 100, Currency: "EUR", FxRateToBase: 1.10, CostBasis: 1000},
	}

	Recompute(p, hs)

	assert.InDelta(t, 1100.0, hs[0].CurrentMarketValue, 1e-9)
	assert.InDelta(t, 100.0, hs[0].WeightPct, 1e-9)
}

func TestRecomputeMissingFxDefaultsToOne(t *testing.T) {
	p := &contracts.Portfolio{}
	hs := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 10, CurrentPrice: 100, CostBasis: 500},
	}

	Recompute(p, hs)
	assert.Equal(t, 1000.0, hs[0].CurrentMarketValue)
}

func TestRecomputeEmptyPortfolio(t *testing.T) {
	p := &contracts.Portfolio{}
	Recompute(p, nil)
	assert.Zero(t, p.TotalMarketValue)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	// weights are rebuilt from totals each pass, so repeating the pass
	// with unchanged inputs changes nothing
	p := &contracts.Portfolio{CashBalance: 100}
	hs := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 3, CurrentPrice: 100, CostBasis: 250, FxRateToBase: 1},
	}

	Recompute(p, hs)
	w1 := hs[0].WeightPct
	Recompute(p, hs)
	assert.Equal(t, w1, hs[0].WeightPct)
}
