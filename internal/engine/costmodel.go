package engine

// Transaction cost coefficients as fractions of notional. Static across
// venues and liquidity tiers; a modeling simplification.
const (
	CommissionPct   = 0.10
	SpreadPct       = 0.20
	MarketImpactPct = 0.10

	// edgeSafetyMultiple is the margin expected alpha must clear over
	// estimated cost before a trade is admitted.
	edgeSafetyMultiple = 1.5
)

// CalculateTransactionCost estimates the currency cost of trading the
// given number of shares at the given price.
func CalculateTransactionCost(shares, price float64) float64 {
	notional := price * shares
	return notional * (CommissionPct + SpreadPct + MarketImpactPct) / 100
}

// HasEdgeOverCost is the admission gate: a candidate becomes a
// recommendation only if expected alpha strictly exceeds 1.5x the
// estimated cost. Equality fails.
func HasEdgeOverCost(expectedAlphaPct, costPct float64) bool {
	return expectedAlphaPct > costPct*edgeSafetyMultiple
}

// EstimateSpreadBps returns a liquidity-tier-based spread estimate in
// basis points, widened by the size of the weight change.
func EstimateSpreadBps(liquidityTier int, weightChangePct float64) float64 {
	var base float64
	switch liquidityTier {
	case 1:
		base = 5
	case 2:
		base = 10
	case 3:
		base = 20
	case 4:
		base = 40
	default:
		base = 80
	}
	if weightChangePct < 0 {
		weightChangePct = -weightChangePct
	}
	return base * (1 + weightChangePct/100)
}
