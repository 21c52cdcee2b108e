// Package engine holds the pure numeric core of recommendation
// construction: constraint evaluation, turnover, transaction costs, and
// change classification. Nothing in this package touches storage or I/O.
package engine

import (
	"fmt"
	"math"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// EvalResult is the outcome of evaluating one proposed position.
// Passed is true iff Violations is empty; warnings never fail a check.
type EvalResult struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Evaluator tests proposed positions against a constraint profile.
//
// StrictADVFloor switches the liquidity check from the coarse tier rule
// (tier 5 rejected whenever a floor is configured) to a direct comparison
// of the constituent's average daily volume against the floor.
type Evaluator struct {
	StrictADVFloor bool
}

// NewEvaluator returns an evaluator with the coarse tier-based liquidity rule.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs every check against the proposed target weight. Checks are
// independent: all run regardless of earlier failures, so the caller sees
// the full violation set in one pass.
func (e *Evaluator) Evaluate(symbol string, targetWeight float64, constituent *contracts.UniverseConstituent, profile *contracts.ConstraintProfile, holdings []*contracts.Holding) EvalResult {
	var violations, warnings []string

	tierCap := profile.MaxWeightForTier(constituent.MarketCapTier)
	if targetWeight > tierCap {
		violations = append(violations, fmt.Sprintf(
			"position size %.2f%% exceeds %s cap of %.1f%%",
			targetWeight, constituent.MarketCapTier.Label(), tierCap))
	}

	if !e.MeetsLiquidityRequirement(constituent, profile) {
		violations = append(violations, fmt.Sprintf(
			"liquidity tier %d below minimum required under ADV floor %.0f",
			constituent.LiquidityTier, profile.LiquidityFloorADV))
	}

	if cw, held := currentWeight(symbol, holdings); held {
		if !ExceedsWeightDeadband(cw, targetWeight, profile) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: weight change %.2fpp within deadband of %.2fpp",
				symbol, math.Abs(targetWeight-cw), float64(profile.WeightDeadbandBps)/100))
		}
	}

	return EvalResult{
		Passed:     len(violations) == 0,
		Violations: violations,
		Warnings:   warnings,
	}
}

// currentWeight returns the symbol's weight in percent of total portfolio
// market value, and whether the symbol is held at all.
func currentWeight(symbol string, holdings []*contracts.Holding) (float64, bool) {
	var total, own float64
	held := false
	for _, h := range holdings {
		mv := h.MarketValue()
		total += mv
		if h.Symbol == symbol {
			own = mv
			held = true
		}
	}
	if !held || total == 0 {
		return 0, held
	}
	return own / total * 100, true
}

// MeetsLiquidityRequirement reports whether a constituent clears the
// profile's liquidity constraint. With no floor configured everything
// passes. The default rule only rejects the least liquid tier; the strict
// rule compares ADV against the floor directly.
func (e *Evaluator) MeetsLiquidityRequirement(c *contracts.UniverseConstituent, p *contracts.ConstraintProfile) bool {
	if p.LiquidityFloorADV <= 0 {
		return true
	}
	if e.StrictADVFloor {
		return c.AvgDailyVolume >= p.LiquidityFloorADV
	}
	return c.LiquidityTier <= 4
}

// IsWithinSectorLimit reports whether a sector's total exposure stays at
// or under the profile's sector cap.
func IsWithinSectorLimit(sectorWeightPct float64, p *contracts.ConstraintProfile) bool {
	return sectorWeightPct <= p.MaxSectorExposurePct
}

// IsWithinTurnoverCap reports whether portfolio turnover stays at or
// under the profile's turnover cap.
func IsWithinTurnoverCap(turnoverPct float64, p *contracts.ConstraintProfile) bool {
	return turnoverPct <= p.TurnoverCapPct
}

// IsTradingCostAcceptable reports whether an estimated cost in basis
// points is within the profile's required cost margin.
func IsTradingCostAcceptable(costBps float64, p *contracts.ConstraintProfile) bool {
	return costBps <= float64(p.CostMarginRequiredBps)
}

// ExceedsWeightDeadband reports whether a weight change is large enough to
// act on. True when no deadband is configured, or when the absolute change
// in percentage points is strictly greater than the deadband. Equality
// counts as within the deadband.
func ExceedsWeightDeadband(currentPct, targetPct float64, p *contracts.ConstraintProfile) bool {
	if p.WeightDeadbandBps <= 0 {
		return true
	}
	return math.Abs(targetPct-currentPct) > float64(p.WeightDeadbandBps)/100
}
