package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockmonitor/monthend/internal/contracts"
)

func TestTurnoverNewMoney(t *testing.T) {
	targets := map[string]float64{"AAPL": 60, "MSFT": 40}
	got := CalculateTurnover(nil, targets)
	assert.Equal(t, 50.00, got)
}

func TestTurnoverNoChange(t *testing.T) {
	holdings := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 50, CurrentPrice: 1},
		{Symbol: "MSFT", Quantity: 50, CurrentPrice: 1},
	}
	targets := map[string]float64{"AAPL": 50, "MSFT": 50}
	assert.Equal(t, 0.00, CalculateTurnover(holdings, targets))
}

func TestTurnoverPartialReduction(t *testing.T) {
	holdings := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 50, CurrentPrice: 1},
		{Symbol: "MSFT", Quantity: 50, CurrentPrice: 1},
	}
	targets := map[string]float64{"AAPL": 50, "MSFT": 30}
	assert.Equal(t, 10.00, CalculateTurnover(holdings, targets))
}

func TestTurnoverFullReplacement(t *testing.T) {
	// one-sided convention: selling the whole book and buying a fresh one
	// whose targets sum to W yields W/2, not W
	holdings := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 60, CurrentPrice: 1},
		{Symbol: "MSFT", Quantity: 40, CurrentPrice: 1},
	}
	targets := map[string]float64{"GOOG": 70, "AMZN": 30}
	assert.Equal(t, 100.00, CalculateTurnover(holdings, targets))
}

func TestTurnoverExitCountsFullWeight(t *testing.T) {
	holdings := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 80, CurrentPrice: 1},
		{Symbol: "MSFT", Quantity: 20, CurrentPrice: 1},
	}
	// exit MSFT entirely, add its weight to AAPL
	targets := map[string]float64{"AAPL": 100}
	assert.Equal(t, 20.00, CalculateTurnover(holdings, targets))
}

func TestTurnoverMissingPriceUsesQuantity(t *testing.T) {
	holdings := []*contracts.Holding{
		{Symbol: "AAPL", Quantity: 100}, // no price, market value = quantity
	}
	targets := map[string]float64{"AAPL": 100}
	assert.Equal(t, 0.00, CalculateTurnover(holdings, targets))
}

func TestTurnoverRoundsHalfUp(t *testing.T) {
	assert.Equal(t, 0.13, roundHalfUp2(0.125))
	assert.Equal(t, 0.12, roundHalfUp2(0.1249))
}
