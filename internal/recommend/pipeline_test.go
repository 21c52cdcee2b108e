package recommend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/engine"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// --- fakes -----------------------------------------------------------------

type fakeRunRepo struct {
	runs map[string]*contracts.Run
	latestFinalized *contracts.Run
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[string]*contracts.Run{}}
}

func (f *fakeRunRepo) Create(ctx context.Context, r *contracts.Run) error {
	f.runs[r.ID] = r
	return nil
}
func (f *fakeRunRepo) GetByID(ctx context.Context, id string) (*contracts.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return r, nil
}
func (f *fakeRunRepo) ExistsScheduled(ctx context.Context, d time.Time) (bool, error) {
	for _, r := range f.runs {
		if r.RunType == contracts.RunTypeScheduled && r.ScheduledDate.Equal(d) {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeRunRepo) ListByDateStatus(ctx context.Context, d time.Time, s contracts.RunStatus) ([]*contracts.Run, error) {
	var out []*contracts.Run
	for _, r := range f.runs {
		if r.ScheduledDate.Equal(d) && r.Status == s {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeRunRepo) LatestFinalized(ctx context.Context, userID string) (*contracts.Run, error) {
	return f.latestFinalized, nil
}
func (f *fakeRunRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*contracts.Run, error) {
	return nil, nil
}
func (f *fakeRunRepo) ListByStatus(ctx context.Context, s contracts.RunStatus) ([]*contracts.Run, error) {
	var out []*contracts.Run
	for _, r := range f.runs {
		if r.Status == s {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeRunRepo) UpdateStatus(ctx context.Context, id string, from, to contracts.RunStatus) error {
	r, ok := f.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	r.Status = to
	return nil
}
func (f *fakeRunRepo) Update(ctx context.Context, r *contracts.Run) error {
	f.runs[r.ID] = r
	return nil
}
func (f *fakeRunRepo) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

type fakeRecRepo struct {
	byRun map[string][]*contracts.Recommendation
}

func newFakeRecRepo() *fakeRecRepo {
	return &fakeRecRepo{byRun: map[string][]*contracts.Recommendation{}}
}

func (f *fakeRecRepo) CreateBatch(ctx context.Context, recs []*contracts.Recommendation) error {
	for _, r := range recs {
		f.byRun[r.RunID] = append(f.byRun[r.RunID], r)
	}
	return nil
}
func (f *fakeRecRepo) ListByRun(ctx context.Context, runID string) ([]*contracts.Recommendation, error) {
	return f.byRun[runID], nil
}
func (f *fakeRecRepo) DeleteByRun(ctx context.Context, runID string) error {
	delete(f.byRun, runID)
	return nil
}

type fakeExclRepo struct {
	byRun map[string][]*contracts.Exclusion
}

func newFakeExclRepo() *fakeExclRepo {
	return &fakeExclRepo{byRun: map[string][]*contracts.Exclusion{}}
}

func (f *fakeExclRepo) CreateBatch(ctx context.Context, excls []*contracts.Exclusion) error {
	for _, e := range excls {
		f.byRun[e.RunID] = append(f.byRun[e.RunID], e)
	}
	return nil
}
func (f *fakeExclRepo) ListByRun(ctx context.Context, runID string) ([]*contracts.Exclusion, error) {
	return f.byRun[runID], nil
}
func (f *fakeExclRepo) DeleteByRun(ctx context.Context, runID string) error {
	delete(f.byRun, runID)
	return nil
}

type fakePortfolioRepo struct {
	portfolios map[string]*contracts.Portfolio
}

func (f *fakePortfolioRepo) GetByID(ctx context.Context, id string) (*contracts.Portfolio, error) {
	p, ok := f.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("portfolio %s not found", id)
	}
	return p, nil
}
func (f *fakePortfolioRepo) GetByUser(ctx context.Context, userID string) (*contracts.Portfolio, error) {
	for _, p := range f.portfolios {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("not found")
}
func (f *fakePortfolioRepo) ListEligible(ctx context.Context) ([]*contracts.Portfolio, error) {
	var out []*contracts.Portfolio
	for _, p := range f.portfolios {
		if p.ActiveUniverseID != "" && p.ActiveProfileID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakePortfolioRepo) Update(ctx context.Context, p *contracts.Portfolio) error { return nil }

type fakeHoldingRepo struct {
	holdings []*contracts.Holding
}

func (f *fakeHoldingRepo) ListByPortfolio(ctx context.Context, id string) ([]*contracts.Holding, error) {
	return f.holdings, nil
}
func (f *fakeHoldingRepo) Upsert(ctx context.Context, h *contracts.Holding) error { return nil }
func (f *fakeHoldingRepo) ReplaceAll(ctx context.Context, id string, hs []*contracts.Holding) error {
	f.holdings = hs
	return nil
}
func (f *fakeHoldingRepo) Update(ctx context.Context, h *contracts.Holding) error { return nil }

type fakeUniverseRepo struct {
	constituents []*contracts.UniverseConstituent
}

func (f *fakeUniverseRepo) GetByID(ctx context.Context, id string) (*contracts.Universe, error) {
	return &contracts.Universe{ID: id}, nil
}
func (f *fakeUniverseRepo) ListConstituents(ctx context.Context, id string, activeOnly bool) ([]*contracts.UniverseConstituent, error) {
	return f.constituents, nil
}

type fakeProfileRepo struct {
	profile *contracts.ConstraintProfile
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id string) (*contracts.ConstraintProfile, error) {
	return f.profile, nil
}
func (f *fakeProfileRepo) GetActive(ctx context.Context, userID string) (*contracts.ConstraintProfile, error) {
	return f.profile, nil
}
func (f *fakeProfileRepo) Create(ctx context.Context, p *contracts.ConstraintProfile) error {
	return nil
}
func (f *fakeProfileRepo) CreateVersion(ctx context.Context, p *contracts.ConstraintProfile) (*contracts.ConstraintProfile, error) {
	return p, nil
}
func (f *fakeProfileRepo) Activate(ctx context.Context, userID, profileID string) error { return nil }

type recordingPublisher struct {
	updates []contracts.RunStatusUpdate
}

func (r *recordingPublisher) Broadcast(userID string, u contracts.RunStatusUpdate) {
	r.updates = append(r.updates, u)
}

// --- fixtures --------------------------------------------------------------

func constituent(symbol, sector string, tier contracts.MarketCapTier, liquidity int) *contracts.UniverseConstituent {
	return &contracts.UniverseConstituent{
		Symbol:         symbol,
		Sector:         sector,
		MarketCapTier:  tier,
		LiquidityTier:  liquidity,
		AvgDailyVolume: 5_000_000,
		IsActive:       true,
	}
}

type pipelineFixture struct {
	pipeline  *Pipeline
	runs      *fakeRunRepo
	recs      *fakeRecRepo
	excls     *fakeExclRepo
	holdings  *fakeHoldingRepo
	universe  *fakeUniverseRepo
	profiles  *fakeProfileRepo
	publisher *recordingPublisher
	run       *contracts.Run
}

func newPipelineFixture(constituents []*contracts.UniverseConstituent) *pipelineFixture {
	f := &pipelineFixture{
		runs:      newFakeRunRepo(),
		recs:      newFakeRecRepo(),
		excls:     newFakeExclRepo(),
		holdings:  &fakeHoldingRepo{},
		universe:  &fakeUniverseRepo{constituents: constituents},
		profiles:  &fakeProfileRepo{profile: contracts.DefaultProfile("u1")},
		publisher: &recordingPublisher{},
	}
	portfolios := &fakePortfolioRepo{portfolios: map[string]*contracts.Portfolio{
		"p1": {ID: "p1", UserID: "u1", BaseCurrency: "USD", ActiveUniverseID: "univ1", ActiveProfileID: "prof1"},
	}}

	f.run = &contracts.Run{
		ID:          "run1",
		UserID:      "u1",
		PortfolioID: "p1",
		UniverseID:  "univ1",
		ProfileID:   "prof1",
		RunType:     contracts.RunTypeScheduled,
		Status:      contracts.StatusRunning,
	}
	f.runs.runs["run1"] = f.run

	f.pipeline = NewPipeline(f.runs, f.recs, f.excls, portfolios, f.holdings,
		f.universe, f.profiles, engine.NewEvaluator(), nil, nil, f.publisher, logger.NewNop())
	return f
}

// --- tests -----------------------------------------------------------------

func TestPipelineProducesDenseRanks(t *testing.T) {
	f := newPipelineFixture([]*contracts.UniverseConstituent{
		constituent("AAPL", "Tech", contracts.TierLargeCap, 1),
		constituent("JPM", "Financials", contracts.TierLargeCap, 1),
		constituent("XOM", "Energy", contracts.TierLargeCap, 1),
	})

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	recs := f.recs.byRun["run1"]
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Rank, "rank must be dense 1..N")
	}

	var total float64
	for _, r := range recs {
		assert.Equal(t, contracts.ChangeNew, r.ChangeIndicator)
		total += r.TargetWeightPct
	}
	assert.LessOrEqual(t, total, 100.0, "target weights never exceed 100%")
}

func TestPipelineExcludesIlliquidNames(t *testing.T) {
	illiquid := constituent("PENNY", "Tech", contracts.TierSmallCap, 5)
	f := newPipelineFixture([]*contracts.UniverseConstituent{
		constituent("AAPL", "Tech", contracts.TierLargeCap, 1),
		illiquid,
	})

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	excls := f.excls.byRun["run1"]
	require.Len(t, excls, 1)
	assert.Equal(t, "PENNY", excls[0].Symbol)
	assert.Equal(t, contracts.ExclLiquidityFloor, excls[0].Reason)
	assert.Equal(t, 1, f.run.ExclusionCount)
}

func TestPipelineSectorCap(t *testing.T) {
	// five large caps in one sector, 5% tier-capped weight each: the
	// default 20% sector cap admits four and excludes the fifth
	var cs []*contracts.UniverseConstituent
	for _, s := range []string{"A", "B", "C", "D", "E"} {
		cs = append(cs, constituent(s, "Tech", contracts.TierLargeCap, 1))
	}
	f := newPipelineFixture(cs)

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	recs := f.recs.byRun["run1"]
	excls := f.excls.byRun["run1"]

	var sectorTotal float64
	for _, r := range recs {
		sectorTotal += r.TargetWeightPct
	}
	assert.LessOrEqual(t, sectorTotal, 20.0)

	found := false
	for _, e := range excls {
		if e.Reason == contracts.ExclSectorCap {
			found = true
		}
	}
	assert.True(t, found, "over-cap names excluded with SECTOR_CAP")
}

func TestPipelineClassifiesAgainstPreviousRun(t *testing.T) {
	f := newPipelineFixture([]*contracts.UniverseConstituent{
		constituent("AAPL", "Tech", contracts.TierLargeCap, 1),
		constituent("MSFT", "Tech2", contracts.TierLargeCap, 1),
	})

	f.runs.latestFinalized = &contracts.Run{ID: "run0", UserID: "u1", Status: contracts.StatusFinalized}
	f.recs.byRun["run0"] = []*contracts.Recommendation{
		{RunID: "run0", Symbol: "AAPL", TargetWeightPct: 5.0},
		{RunID: "run0", Symbol: "GONE", TargetWeightPct: 3.0},
	}

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	recs := f.recs.byRun["run1"]
	bydSymbol := map[string]*contracts.Recommendation{}
	for _, r := range recs {
		bydSymbol[r.Symbol] = r
	}

	assert.Equal(t, contracts.ChangeUnchanged, bydSymbol["AAPL"].ChangeIndicator,
		"5.0%% target matches previous run")
	assert.Equal(t, contracts.ChangeNew, bydSymbol["MSFT"].ChangeIndicator)

	gone, ok := bydSymbol["GONE"]
	require.True(t, ok, "dropped symbol appears as a REMOVED line")
	assert.Equal(t, contracts.ChangeRemoved, gone.ChangeIndicator)
	assert.Equal(t, len(recs), gone.Rank, "REMOVED lines rank last")
	assert.Equal(t, "run0", f.run.PreviousRunID)
}

func TestPipelineUpdatesRunMetricsAndDecision(t *testing.T) {
	f := newPipelineFixture([]*contracts.UniverseConstituent{
		constituent("AAPL", "Tech", contracts.TierLargeCap, 1),
		constituent("JPM", "Financials", contracts.TierLargeCap, 1),
	})

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	assert.Equal(t, 2, f.run.RecommendationCount)
	assert.Equal(t, contracts.DecisionTrade, f.run.Decision)
	assert.Greater(t, f.run.ExpectedTurnoverPct, 0.0)
	assert.Greater(t, f.run.ExpectedAlphaBps, 0.0)
}

func TestPipelineEmptyUniverseIsNoTrade(t *testing.T) {
	f := newPipelineFixture(nil)

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	assert.Zero(t, f.run.RecommendationCount)
	assert.Equal(t, contracts.DecisionNoTrade, f.run.Decision)
	assert.Equal(t, "no candidates admitted", f.run.DecisionReason)
}

func TestPipelinePublishesProgress(t *testing.T) {
	f := newPipelineFixture([]*contracts.UniverseConstituent{
		constituent("AAPL", "Tech", contracts.TierLargeCap, 1),
	})

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	require.NotEmpty(t, f.publisher.updates)
	last := 0
	for _, u := range f.publisher.updates {
		assert.Equal(t, "run1", u.RunID)
		assert.GreaterOrEqual(t, u.Progress, last, "progress is monotonic")
		last = u.Progress
	}
}

func TestPipelineRecomputeClearsPriorOutput(t *testing.T) {
	f := newPipelineFixture([]*contracts.UniverseConstituent{
		constituent("AAPL", "Tech", contracts.TierLargeCap, 1),
	})

	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))
	first := len(f.recs.byRun["run1"])
	require.NoError(t, f.pipeline.Execute(context.Background(), f.run))

	assert.Equal(t, first, len(f.recs.byRun["run1"]), "recompute regenerates, never appends")
}
