package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionCost(t *testing.T) {
	// 100 shares at 50: notional 5000, 0.40% total -> 20
	assert.InDelta(t, 20.0, CalculateTransactionCost(100, 50), 1e-9)
	assert.Zero(t, CalculateTransactionCost(0, 50))
}

func TestEdgeOverCostIsStrict(t *testing.T) {
	assert.False(t, HasEdgeOverCost(1.5, 1.0), "equality to cost*1.5 fails")
	assert.True(t, HasEdgeOverCost(1.5+1e-9, 1.0))
	assert.False(t, HasEdgeOverCost(1.0, 1.0))
	assert.True(t, HasEdgeOverCost(0, -0.1), "negative cost always admits")
}

func TestEstimateSpreadBps(t *testing.T) {
	assert.Equal(t, 5.0, EstimateSpreadBps(1, 0))
	assert.Equal(t, 10.0, EstimateSpreadBps(2, 0))
	assert.Equal(t, 20.0, EstimateSpreadBps(3, 0))
	assert.Equal(t, 40.0, EstimateSpreadBps(4, 0))
	assert.Equal(t, 80.0, EstimateSpreadBps(5, 0))

	// a 10pp change widens the estimate by 10%
	assert.InDelta(t, 5.5, EstimateSpreadBps(1, 10), 1e-9)
	assert.InDelta(t, 5.5, EstimateSpreadBps(1, -10), 1e-9)
}
