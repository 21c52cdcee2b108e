package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/engine"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// maxPositions bounds the output list; with equal base allocation this
// also keeps the target weight sum at or under 100%.
const maxPositions = 20

// StatusPublisher receives run progress updates. The WebSocket hub
// implements it; tests use a recorder.
type StatusPublisher interface {
	Broadcast(userID string, update contracts.RunStatusUpdate)
}

type nopPublisher struct{}

func (nopPublisher) Broadcast(string, contracts.RunStatusUpdate) {}

// EarningsSource reports upcoming earnings dates keyed by symbol. Used
// for blackout-window exclusions; a nil source skips the check.
type EarningsSource interface {
	NextEarnings(ctx context.Context, symbols []string, horizon time.Duration) (map[string]time.Time, error)
}

// Pipeline turns a staged run into persisted recommendations and
// exclusions.
type Pipeline struct {
	runs       contracts.RunRepository
	recs       contracts.RecommendationRepository
	excls      contracts.ExclusionRepository
	portfolios contracts.PortfolioRepository
	holdings   contracts.HoldingRepository
	universes  contracts.UniverseRepository
	profiles   contracts.ProfileRepository

	evaluator *engine.Evaluator
	scorer    Scorer
	earnings  EarningsSource
	publisher StatusPublisher
	logger    *logger.Logger
}

// NewPipeline wires a pipeline. scorer defaults to the static scorer and
// publisher to a no-op when nil; earnings may be nil.
func NewPipeline(
	runs contracts.RunRepository,
	recs contracts.RecommendationRepository,
	excls contracts.ExclusionRepository,
	portfolios contracts.PortfolioRepository,
	holdings contracts.HoldingRepository,
	universes contracts.UniverseRepository,
	profiles contracts.ProfileRepository,
	evaluator *engine.Evaluator,
	scorer Scorer,
	earnings EarningsSource,
	publisher StatusPublisher,
	log *logger.Logger,
) *Pipeline {
	if scorer == nil {
		scorer = NewStaticScorer()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Pipeline{
		runs:       runs,
		recs:       recs,
		excls:      excls,
		portfolios: portfolios,
		holdings:   holdings,
		universes:  universes,
		profiles:   profiles,
		evaluator:  evaluator,
		scorer:     scorer,
		earnings:   earnings,
		publisher:  publisher,
		logger:     log,
	}
}

type candidate struct {
	constituent *contracts.UniverseConstituent
	score       Score
	target      float64
	current     float64
}

// Execute runs the full pipeline for a run and persists the outcome.
// Recomputing an existing run first clears its previous output.
func (p *Pipeline) Execute(ctx context.Context, run *contracts.Run) error {
	start := time.Now()
	log := p.logger.WithField("run_id", run.ID)

	p.progress(run, 5, "loading inputs")

	portfolio, err := p.portfolios.GetByID(ctx, run.PortfolioID)
	if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}
	profile, err := p.profiles.GetByID(ctx, run.ProfileID)
	if err != nil {
		return fmt.Errorf("failed to load constraint profile: %w", err)
	}
	constituents, err := p.universes.ListConstituents(ctx, run.UniverseID, true)
	if err != nil {
		return fmt.Errorf("failed to load universe constituents: %w", err)
	}
	holdings, err := p.holdings.ListByPortfolio(ctx, run.PortfolioID)
	if err != nil {
		return fmt.Errorf("failed to load holdings: %w", err)
	}

	// recomputation clears the prior output for this run
	if err := p.recs.DeleteByRun(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to clear prior recommendations: %w", err)
	}
	if err := p.excls.DeleteByRun(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to clear prior exclusions: %w", err)
	}

	p.progress(run, 20, "filtering universe")
	eligible, exclusions := p.filterUniverse(ctx, run, profile, constituents)

	p.progress(run, 40, "scoring candidates")
	candidates, err := p.scoreCandidates(ctx, eligible)
	if err != nil {
		return err
	}

	p.progress(run, 60, "applying constraints")
	admitted, constraintExcls := p.applyConstraints(run, profile, candidates, holdings)
	exclusions = append(exclusions, constraintExcls...)

	p.progress(run, 75, "classifying changes")
	recommendations := p.buildRecommendations(run, admitted)
	previous, err := p.previousRecommendations(ctx, run)
	if err != nil {
		log.WithError(err).Warn("Proceeding without previous run for change classification")
	}
	removed := engine.ClassifyChanges(recommendations, previous)
	for _, rem := range removed {
		rem.ID = uuid.NewString()
		rem.RunID = run.ID
		rem.CreatedAt = time.Now().UTC()
	}
	recommendations = append(recommendations, removed...)
	denseRank(recommendations)

	targets := make(map[string]float64, len(admitted))
	for _, c := range admitted {
		targets[c.constituent.Symbol] = c.target
	}
	turnover := engine.CalculateTurnover(holdings, targets)

	p.progress(run, 90, "persisting results")
	if len(recommendations) > 0 {
		if err := p.recs.CreateBatch(ctx, recommendations); err != nil {
			return fmt.Errorf("failed to persist recommendations: %w", err)
		}
	}
	if len(exclusions) > 0 {
		if err := p.excls.CreateBatch(ctx, exclusions); err != nil {
			return fmt.Errorf("failed to persist exclusions: %w", err)
		}
	}

	run.RecommendationCount = len(recommendations)
	run.ExclusionCount = len(exclusions)
	run.ExpectedTurnoverPct = turnover
	run.EstimatedCostBps, run.ExpectedAlphaBps = aggregateMetrics(admitted)
	run.Decision, run.DecisionReason = decide(profile, turnover, admitted, holdings)
	run.DurationMs = time.Since(start).Milliseconds()

	if err := p.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to update run metrics: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"recommendations": run.RecommendationCount,
		"exclusions":      run.ExclusionCount,
		"turnover_pct":    turnover,
		"decision":        run.Decision,
		"portfolio_id":    portfolio.ID,
	}).Info("Pipeline completed")
	return nil
}

// filterUniverse drops ineligible constituents, emitting one exclusion
// per dropped symbol.
func (p *Pipeline) filterUniverse(ctx context.Context, run *contracts.Run, profile *contracts.ConstraintProfile, constituents []*contracts.UniverseConstituent) ([]*contracts.UniverseConstituent, []*contracts.Exclusion) {
	var eligible []*contracts.UniverseConstituent
	var exclusions []*contracts.Exclusion

	earningsDates := p.fetchEarnings(ctx, profile, constituents)
	now := time.Now().UTC()

	for _, c := range constituents {
		if !p.evaluator.MeetsLiquidityRequirement(c, profile) {
			exclusions = append(exclusions, newExclusion(run.ID, c.Symbol,
				contracts.ExclLiquidityFloor,
				fmt.Sprintf("liquidity tier %d", c.LiquidityTier),
				c.AvgDailyVolume, profile.LiquidityFloorADV))
			continue
		}

		if announce, ok := earningsDates[c.Symbol]; ok {
			blackout := time.Duration(profile.EarningsBlackoutHours) * time.Hour
			if until := announce.Sub(now); until >= 0 && until <= blackout {
				exclusions = append(exclusions, newExclusion(run.ID, c.Symbol,
					contracts.ExclEarningsProximity,
					fmt.Sprintf("earnings on %s", announce.Format("2006-01-02")),
					until.Hours(), float64(profile.EarningsBlackoutHours)))
				continue
			}
		}

		if spread := engine.EstimateSpreadBps(c.LiquidityTier, 0); spread > float64(profile.SpreadThresholdBps) {
			exclusions = append(exclusions, newExclusion(run.ID, c.Symbol,
				contracts.ExclSpreadThreshold,
				fmt.Sprintf("estimated spread %.0f bps", spread),
				spread, float64(profile.SpreadThresholdBps)))
			continue
		}

		eligible = append(eligible, c)
	}

	return eligible, exclusions
}

func (p *Pipeline) fetchEarnings(ctx context.Context, profile *contracts.ConstraintProfile, constituents []*contracts.UniverseConstituent) map[string]time.Time {
	if p.earnings == nil || profile.EarningsBlackoutHours <= 0 {
		return nil
	}
	symbols := make([]string, len(constituents))
	for i, c := range constituents {
		symbols[i] = c.Symbol
	}
	horizon := time.Duration(profile.EarningsBlackoutHours) * time.Hour
	dates, err := p.earnings.NextEarnings(ctx, symbols, horizon)
	if err != nil {
		p.logger.WithError(err).Warn("Earnings calendar unavailable, skipping blackout check")
		return nil
	}
	return dates
}

func (p *Pipeline) scoreCandidates(ctx context.Context, constituents []*contracts.UniverseConstituent) ([]*candidate, error) {
	candidates := make([]*candidate, 0, len(constituents))
	for _, c := range constituents {
		s, err := p.scorer.Score(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s: %w", c.Symbol, err)
		}
		candidates = append(candidates, &candidate{constituent: c, score: s})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score.Composite != candidates[j].score.Composite {
			return candidates[i].score.Composite > candidates[j].score.Composite
		}
		return candidates[i].constituent.Symbol < candidates[j].constituent.Symbol
	})

	return candidates, nil
}

// applyConstraints assigns target weights top-down and drops candidates
// that fail hard constraints or the edge-over-cost admission gate.
func (p *Pipeline) applyConstraints(run *contracts.Run, profile *contracts.ConstraintProfile, candidates []*candidate, holdings []*contracts.Holding) ([]*candidate, []*contracts.Exclusion) {
	var admitted []*candidate
	var exclusions []*contracts.Exclusion

	if len(candidates) > maxPositions {
		candidates = candidates[:maxPositions]
	}

	baseWeight := 0.0
	if n := len(candidates); n > 0 {
		baseWeight = 100.0 / float64(n)
	}

	var totalMarket float64
	currentBySymbol := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		totalMarket += h.MarketValue()
	}
	if totalMarket > 0 {
		for _, h := range holdings {
			currentBySymbol[h.Symbol] = h.MarketValue() / totalMarket * 100
		}
	}

	sectorWeights := make(map[string]float64)

	for _, c := range candidates {
		symbol := c.constituent.Symbol
		target := baseWeight
		if tierCap := profile.MaxWeightForTier(c.constituent.MarketCapTier); target > tierCap {
			target = tierCap
		}
		if target <= 0 {
			exclusions = append(exclusions, newExclusion(run.ID, symbol,
				contracts.ExclPositionSizeCap,
				fmt.Sprintf("no weight available under %s cap", c.constituent.MarketCapTier.Label()),
				0, profile.MaxWeightForTier(c.constituent.MarketCapTier)))
			continue
		}

		res := p.evaluator.Evaluate(symbol, target, c.constituent, profile, holdings)
		if !res.Passed {
			exclusions = append(exclusions, newExclusion(run.ID, symbol,
				contracts.ExclPositionSizeCap, res.Violations[0],
				target, profile.MaxWeightForTier(c.constituent.MarketCapTier)))
			continue
		}

		sector := c.constituent.Sector
		if !engine.IsWithinSectorLimit(sectorWeights[sector]+target, profile) {
			exclusions = append(exclusions, newExclusion(run.ID, symbol,
				contracts.ExclSectorCap,
				fmt.Sprintf("sector %s at %.2f%%", sector, sectorWeights[sector]),
				sectorWeights[sector]+target, profile.MaxSectorExposurePct))
			continue
		}

		c.current = currentBySymbol[symbol]
		c.target = target

		costPct := (engine.EstimateSpreadBps(c.constituent.LiquidityTier, target-c.current) +
			float64(profile.CostMarginRequiredBps)) / 100
		alphaPct := c.score.ExpectedAlphaBps / 100
		if !engine.HasEdgeOverCost(alphaPct, costPct) {
			exclusions = append(exclusions, newExclusion(run.ID, symbol,
				contracts.ExclSpreadThreshold,
				fmt.Sprintf("expected alpha %.2f%% does not clear 1.5x cost %.2f%%", alphaPct, costPct),
				alphaPct*100, costPct*1.5*100))
			continue
		}

		sectorWeights[sector] += target
		admitted = append(admitted, c)
	}

	return admitted, exclusions
}

func (p *Pipeline) buildRecommendations(run *contracts.Run, admitted []*candidate) []*contracts.Recommendation {
	now := time.Now().UTC()
	recs := make([]*contracts.Recommendation, 0, len(admitted))
	for _, c := range admitted {
		recs = append(recs, &contracts.Recommendation{
			ID:               uuid.NewString(),
			RunID:            run.ID,
			Symbol:           c.constituent.Symbol,
			CompositeScore:   c.score.Composite,
			TargetWeightPct:  c.target,
			CurrentWeightPct: c.current,
			WeightChangePct:  c.target - c.current,
			ConfidenceScore:  c.score.Confidence,
			ExpectedAlphaBps: c.score.ExpectedAlphaBps,
			EstimatedCostBps: engine.EstimateSpreadBps(c.constituent.LiquidityTier, c.target-c.current),
			FactorDrivers:    c.score.Drivers,
			Rationale:        c.score.Rationale,
			CreatedAt:        now,
		})
	}
	return recs
}

func (p *Pipeline) previousRecommendations(ctx context.Context, run *contracts.Run) ([]*contracts.Recommendation, error) {
	prevID := run.PreviousRunID
	if prevID == "" {
		prev, err := p.runs.LatestFinalized(ctx, run.UserID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, nil
		}
		prevID = prev.ID
		run.PreviousRunID = prevID
	}
	return p.recs.ListByRun(ctx, prevID)
}

// denseRank orders by composite score (REMOVED lines last) and assigns a
// gapless 1..N rank.
func denseRank(recs []*contracts.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		ri, rj := recs[i], recs[j]
		if (ri.ChangeIndicator == contracts.ChangeRemoved) != (rj.ChangeIndicator == contracts.ChangeRemoved) {
			return rj.ChangeIndicator == contracts.ChangeRemoved
		}
		if ri.CompositeScore != rj.CompositeScore {
			return ri.CompositeScore > rj.CompositeScore
		}
		return ri.Symbol < rj.Symbol
	})
	for i, r := range recs {
		r.Rank = i + 1
	}
}

func aggregateMetrics(admitted []*candidate) (costBps, alphaBps float64) {
	for _, c := range admitted {
		costBps += engine.EstimateSpreadBps(c.constituent.LiquidityTier, c.target-c.current)
		alphaBps += c.score.ExpectedAlphaBps
	}
	if n := len(admitted); n > 0 {
		costBps /= float64(n)
		alphaBps /= float64(n)
	}
	return costBps, alphaBps
}

// decide produces the run-level trade/no-trade decision.
func decide(profile *contracts.ConstraintProfile, turnover float64, admitted []*candidate, holdings []*contracts.Holding) (string, string) {
	if len(admitted) == 0 {
		return contracts.DecisionNoTrade, "no candidates admitted"
	}
	if !engine.IsWithinTurnoverCap(turnover, profile) {
		return contracts.DecisionNoTrade, fmt.Sprintf("turnover %.2f%% exceeds cap %.2f%%", turnover, profile.TurnoverCapPct)
	}

	anyActionable := false
	for _, c := range admitted {
		if engine.ExceedsWeightDeadband(c.current, c.target, profile) {
			anyActionable = true
			break
		}
	}
	if !anyActionable && len(holdings) > 0 {
		return contracts.DecisionNoTrade, "all weight changes within deadband"
	}

	return contracts.DecisionTrade, ""
}

func newExclusion(runID, symbol string, reason contracts.ExclusionReason, detail string, observed, limit float64) *contracts.Exclusion {
	return &contracts.Exclusion{
		ID:            uuid.NewString(),
		RunID:         runID,
		Symbol:        symbol,
		Reason:        reason,
		Detail:        detail,
		ObservedValue: observed,
		LimitValue:    limit,
		CreatedAt:     time.Now().UTC(),
	}
}

func (p *Pipeline) progress(run *contracts.Run, pct int, stage string) {
	p.publisher.Broadcast(run.UserID, contracts.RunStatusUpdate{
		RunID:     run.ID,
		Status:    run.Status,
		Progress:  pct,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	})
}
