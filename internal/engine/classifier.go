package engine

import (
	"math"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// changeThresholdPct is the minimum weight difference, in percentage
// points, treated as a real change. At or below it a line is UNCHANGED.
const changeThresholdPct = 0.01

// ClassifyChanges tags each recommendation relative to the previous
// finalized run's output and returns REMOVED entries for symbols that
// dropped out. A nil or empty previous set marks everything NEW.
//
// Current recommendations are mutated in place (ChangeIndicator only);
// the returned slice holds synthetic REMOVED lines.
func ClassifyChanges(current []*contracts.Recommendation, previous []*contracts.Recommendation) []*contracts.Recommendation {
	prevBySymbol := make(map[string]*contracts.Recommendation, len(previous))
	for _, p := range previous {
		prevBySymbol[p.Symbol] = p
	}

	seen := make(map[string]bool, len(current))
	for _, rec := range current {
		seen[rec.Symbol] = true
		prev, ok := prevBySymbol[rec.Symbol]
		if !ok {
			rec.ChangeIndicator = contracts.ChangeNew
			continue
		}
		diff := rec.TargetWeightPct - prev.TargetWeightPct
		switch {
		case math.Abs(diff) <= changeThresholdPct:
			rec.ChangeIndicator = contracts.ChangeUnchanged
		case diff > 0:
			rec.ChangeIndicator = contracts.ChangeIncreased
		default:
			rec.ChangeIndicator = contracts.ChangeDecreased
		}
	}

	var removed []*contracts.Recommendation
	for _, p := range previous {
		if !seen[p.Symbol] {
			removed = append(removed, &contracts.Recommendation{
				Symbol:           p.Symbol,
				CurrentWeightPct: p.TargetWeightPct,
				TargetWeightPct:  0,
				WeightChangePct:  -p.TargetWeightPct,
				ChangeIndicator:  contracts.ChangeRemoved,
			})
		}
	}
	return removed
}
