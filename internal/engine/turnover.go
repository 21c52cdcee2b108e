package engine

import (
	"math"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// CalculateTurnover computes one-sided portfolio turnover in percent
// between current holdings and a proposed target book. targets maps
// symbol to target weight percent.
//
// One-sided means buys and sells each count half: fully replacing a book
// whose targets sum to W yields W/2, not W. An exited position counts its
// full current weight as change.
func CalculateTurnover(holdings []*contracts.Holding, targets map[string]float64) float64 {
	var total float64
	for _, h := range holdings {
		total += h.MarketValue()
	}

	if total == 0 {
		var sum float64
		for _, w := range targets {
			sum += w
		}
		return roundHalfUp2(sum / 2)
	}

	var change float64
	for sym, w := range targets {
		cw := 0.0
		for _, h := range holdings {
			if h.Symbol == sym {
				cw = h.MarketValue() / total * 100
				break
			}
		}
		change += math.Abs(w - cw)
	}
	for _, h := range holdings {
		if _, ok := targets[h.Symbol]; !ok {
			change += h.MarketValue() / total * 100
		}
	}

	return roundHalfUp2(change / 2)
}

// roundHalfUp2 rounds to two decimal places, half away from zero.
func roundHalfUp2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
