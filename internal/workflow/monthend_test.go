package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*contracts.Run

	createErr error
	updateErr map[string]error
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*contracts.Run), updateErr: make(map[string]error)}
}

func (r *memRunRepo) Create(ctx context.Context, run *contracts.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *memRunRepo) GetByID(ctx context.Context, id string) (*contracts.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	cp := *run
	return &cp, nil
}

func (r *memRunRepo) ExistsScheduled(ctx context.Context, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.RunType == contracts.RunTypeScheduled && run.ScheduledDate.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRunRepo) ListByDateStatus(ctx context.Context, date time.Time, status contracts.RunStatus) ([]*contracts.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*contracts.Run
	for _, run := range r.runs {
		if run.ScheduledDate.Equal(date) && run.Status == status {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRunRepo) LatestFinalized(ctx context.Context, userID string) (*contracts.Run, error) {
	return nil, nil
}

func (r *memRunRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*contracts.Run, error) {
	return nil, nil
}

func (r *memRunRepo) ListByStatus(ctx context.Context, status contracts.RunStatus) ([]*contracts.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*contracts.Run
	for _, run := range r.runs {
		if run.Status == status {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRunRepo) UpdateStatus(ctx context.Context, id string, from, to contracts.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != from {
		return fmt.Errorf("run %s is no longer in status %s", id, from)
	}
	run.Status = to
	return nil
}

func (r *memRunRepo) Update(ctx context.Context, run *contracts.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[run.ID]; err != nil {
		return err
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *memRunRepo) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, run := range r.runs {
		if run.Status.IsTerminal() && run.Status != contracts.StatusArchived &&
			run.CompletedAt != nil && run.CompletedAt.Before(cutoff) {
			run.Status = contracts.StatusArchived
			n++
		}
	}
	return n, nil
}

func (r *memRunRepo) byStatus(status contracts.RunStatus) []*contracts.Run {
	out, _ := r.ListByStatus(context.Background(), status)
	return out
}

type memPortfolioRepo struct {
	portfolios []*contracts.Portfolio
}

func (r *memPortfolioRepo) GetByID(ctx context.Context, id string) (*contracts.Portfolio, error) {
	for _, p := range r.portfolios {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("portfolio %s not found", id)
}

func (r *memPortfolioRepo) GetByUser(ctx context.Context, userID string) (*contracts.Portfolio, error) {
	for _, p := range r.portfolios {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no portfolio for user %s", userID)
}

func (r *memPortfolioRepo) ListEligible(ctx context.Context) ([]*contracts.Portfolio, error) {
	var out []*contracts.Portfolio
	for _, p := range r.portfolios {
		if p.ActiveUniverseID != "" && p.ActiveProfileID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPortfolioRepo) Update(ctx context.Context, p *contracts.Portfolio) error { return nil }

type fakeExecutor struct {
	failFor map[string]error
	calls   []string
}

func (e *fakeExecutor) Execute(ctx context.Context, run *contracts.Run) error {
	e.calls = append(e.calls, run.PortfolioID)
	if err, ok := e.failFor[run.PortfolioID]; ok {
		return err
	}
	run.RecommendationCount = 5
	run.Decision = contracts.DecisionTrade
	return nil
}

type recordingNotifier struct {
	categories []contracts.NotificationCategory
	details    []string
}

func (n *recordingNotifier) Precompute(ctx context.Context, userID, runID string, monthEnd time.Time) error {
	n.categories = append(n.categories, contracts.NotifyPrecompute)
	return nil
}

func (n *recordingNotifier) Staged(ctx context.Context, userID, runID string, monthEnd time.Time) error {
	n.categories = append(n.categories, contracts.NotifyStaged)
	return nil
}

func (n *recordingNotifier) Finalized(ctx context.Context, userID, runID string, recommendations int) error {
	n.categories = append(n.categories, contracts.NotifyFinalized)
	return nil
}

func (n *recordingNotifier) DataStale(ctx context.Context, userID, runID, detail string) error {
	n.categories = append(n.categories, contracts.NotifyDataStale)
	n.details = append(n.details, detail)
	return nil
}

func (n *recordingNotifier) RunFailed(ctx context.Context, userID, runID, reason string) error {
	n.categories = append(n.categories, contracts.NotifyRunFailed)
	n.details = append(n.details, reason)
	return nil
}

func (n *recordingNotifier) count(cat contracts.NotificationCategory) int {
	c := 0
	for _, got := range n.categories {
		if got == cat {
			c++
		}
	}
	return c
}

type recordingBatch struct {
	precompute int
	validate   int
	archive    int
}

func (b *recordingBatch) Precompute(ctx context.Context, runs []*contracts.Run) error {
	b.precompute++
	return nil
}

func (b *recordingBatch) ValidateStaging(ctx context.Context, runs []*contracts.Run) error {
	b.validate++
	return nil
}

func (b *recordingBatch) Archive(ctx context.Context) error {
	b.archive++
	return nil
}

type staleChecker struct {
	detail string
	err    error
}

func (c staleChecker) Check(ctx context.Context, run *contracts.Run) (bool, string, error) {
	if c.err != nil {
		return false, "", c.err
	}
	return false, c.detail, nil
}

type workflowFixture struct {
	runs     *memRunRepo
	pf       *memPortfolioRepo
	executor *fakeExecutor
	notifier *recordingNotifier
	batch    *recordingBatch
	clock    fixedClock
	me       *MonthEnd
}

func portfolio(n int) *contracts.Portfolio {
	return &contracts.Portfolio{
		ID:               fmt.Sprintf("pf-%d", n),
		UserID:           fmt.Sprintf("user-%d", n),
		Name:             fmt.Sprintf("Portfolio %d", n),
		BaseCurrency:     "USD",
		ActiveUniverseID: "univ-1",
		ActiveProfileID:  "prof-1",
	}
}

func newWorkflowFixture(t *testing.T, portfolios ...*contracts.Portfolio) *workflowFixture {
	t.Helper()
	f := &workflowFixture{
		runs:     newMemRunRepo(),
		pf:       &memPortfolioRepo{portfolios: portfolios},
		executor: &fakeExecutor{failFor: make(map[string]error)},
		notifier: &recordingNotifier{},
		batch:    &recordingBatch{},
		clock:    fixedClock{t: time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)},
	}
	f.me = NewMonthEnd(f.runs, f.pf, f.executor, f.notifier, nil, f.batch, nil, f.clock, logger.NewNop())
	return f
}

func (f *workflowFixture) advanceTo(me *MonthEnd, day int) {
	f.clock = fixedClock{t: time.Date(2026, time.August, day, 9, 0, 0, 0, time.UTC)}
	me.clock = f.clock
}

func TestMonthEndDate(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, time.August, 28, 9, 30, 0, 0, time.UTC), time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2028, time.February, 15, 0, 0, 0, 0, time.UTC), time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC), time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MonthEndDate(tc.in), "month end for %s", tc.in)
	}
}

func TestRunT3CreatesOneRunPerEligiblePortfolio(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1), portfolio(2))

	result, err := f.me.RunT3(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	cohort := f.runs.byStatus(contracts.StatusPreCompute)
	require.Len(t, cohort, 2, "warm-cache success advances the cohort to PRE_COMPUTE")
	monthEnd := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	for _, run := range cohort {
		assert.Equal(t, contracts.RunTypeScheduled, run.RunType)
		assert.Equal(t, monthEnd, run.ScheduledDate)
		assert.Equal(t, contracts.DecisionPending, run.Decision)
	}
	assert.Equal(t, 2, f.notifier.count(contracts.NotifyPrecompute))
	assert.Equal(t, 1, f.batch.precompute, "precompute batch runs once per trigger, not per run")
}

func TestRunT3SecondFireIsNoOp(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1), portfolio(2))

	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)

	result, err := f.me.RunT3(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)

	assert.Len(t, f.runs.byStatus(contracts.StatusPreCompute), 2, "double fire must not duplicate the cohort")
	assert.Equal(t, 1, f.batch.precompute)
}

func TestRunT3SkipsPortfolioWithoutActiveProfile(t *testing.T) {
	incomplete := portfolio(3)
	incomplete.ActiveProfileID = ""
	f := newWorkflowFixture(t, portfolio(1), incomplete)

	result, err := f.me.RunT3(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
}

func TestRunT1StagesScheduledRuns(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1), portfolio(2))
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)
	f.advanceTo(f.me, 30)

	result, err := f.me.RunT1(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	staged := f.runs.byStatus(contracts.StatusStaged)
	require.Len(t, staged, 2)
	for _, run := range staged {
		assert.True(t, run.DataFreshnessCheckPassed)
	}
	assert.Equal(t, 2, f.notifier.count(contracts.NotifyStaged))
	assert.Zero(t, f.notifier.count(contracts.NotifyDataStale))
	assert.Equal(t, 1, f.batch.validate)
}

func TestRunT1WithoutScheduledRunsWarnsAndStops(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1))

	result, err := f.me.RunT1(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Empty(t, f.notifier.categories, "nothing to stage, nothing to notify")
	assert.Zero(t, f.batch.validate)
}

func TestRunT1StaleDataStagesWithNotification(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1))
	f.me.freshness = staleChecker{detail: "prices data is 26h0m0s old (limit 24h0m0s)"}
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)

	result, err := f.me.RunT1(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded, "stale data degrades, never blocks staging")

	staged := f.runs.byStatus(contracts.StatusStaged)
	require.Len(t, staged, 1)
	assert.False(t, staged[0].DataFreshnessCheckPassed)
	assert.Equal(t, 1, f.notifier.count(contracts.NotifyDataStale))
	assert.Contains(t, f.notifier.details[0], "26h")
}

func TestRunT1CheckerErrorTreatedAsStale(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1))
	f.me.freshness = staleChecker{err: errors.New("feed registry unreachable")}
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)

	result, err := f.me.RunT1(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	staged := f.runs.byStatus(contracts.StatusStaged)
	require.Len(t, staged, 1)
	assert.False(t, staged[0].DataFreshnessCheckPassed)
	assert.Equal(t, 1, f.notifier.count(contracts.NotifyDataStale))
	assert.Contains(t, f.notifier.details[0], "freshness check unavailable")
}

func TestRunTFinalizesStagedRuns(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1), portfolio(2))
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)
	_, err = f.me.RunT1(context.Background())
	require.NoError(t, err)
	f.advanceTo(f.me, 31)

	result, err := f.me.RunT(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	finalized := f.runs.byStatus(contracts.StatusFinalized)
	require.Len(t, finalized, 2)
	for _, run := range finalized {
		require.NotNil(t, run.StartedAt)
		require.NotNil(t, run.CompletedAt)
		assert.Equal(t, 5, run.RecommendationCount)
	}
	assert.Equal(t, 2, f.notifier.count(contracts.NotifyFinalized))
	assert.Equal(t, 1, f.batch.archive)
}

func TestRunTOneFailureDoesNotBlockSiblings(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1), portfolio(2), portfolio(3))
	f.executor.failFor["pf-2"] = errors.New("price feed timeout")
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)
	_, err = f.me.RunT1(context.Background())
	require.NoError(t, err)

	result, err := f.me.RunT(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "price feed timeout")

	assert.Len(t, f.runs.byStatus(contracts.StatusFinalized), 2)
	failed := f.runs.byStatus(contracts.StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "pf-2", failed[0].PortfolioID)
	assert.Contains(t, failed[0].ErrorMessage, "price feed timeout")
	assert.Equal(t, 1, f.notifier.count(contracts.NotifyRunFailed))
	assert.Equal(t, 1, f.batch.archive, "archival still runs after a partial failure")
}

func TestRunTWithoutStagedRunsWarnsAndStops(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1))
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)

	// T fires without T-1 having staged anything
	result, err := f.me.RunT(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
	assert.Empty(t, f.executor.calls)
	assert.Zero(t, f.batch.archive)
}

func TestTriggerOffCycleExecutesImmediately(t *testing.T) {
	f := newWorkflowFixture(t, portfolio(1))
	// an existing scheduled cohort must not block off-cycle runs
	_, err := f.me.RunT3(context.Background())
	require.NoError(t, err)

	run, err := f.me.TriggerOffCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.RunTypeOffCycle, run.RunType)
	assert.Equal(t, contracts.StatusFinalized, run.Status)
	assert.Equal(t, 5, run.RecommendationCount)
	assert.Equal(t, 1, f.notifier.count(contracts.NotifyFinalized))
}

func TestTriggerOffCycleRequiresActiveReferences(t *testing.T) {
	incomplete := portfolio(1)
	incomplete.ActiveUniverseID = ""
	f := newWorkflowFixture(t, incomplete)

	_, err := f.me.TriggerOffCycle(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active universe")
}
