// Package workflow drives the month-end run state machine: the T-3, T-1,
// and T triggers, their idempotency and partial-failure semantics, and
// off-cycle runs.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// Clock abstracts wall-clock time so trigger anchoring is testable.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// Executor runs the recommendation pipeline for one run.
type Executor interface {
	Execute(ctx context.Context, run *contracts.Run) error
}

// Notifier raises workflow notifications.
type Notifier interface {
	Precompute(ctx context.Context, userID, runID string, monthEnd time.Time) error
	Staged(ctx context.Context, userID, runID string, monthEnd time.Time) error
	Finalized(ctx context.Context, userID, runID string, recommendations int) error
	DataStale(ctx context.Context, userID, runID, detail string) error
	RunFailed(ctx context.Context, userID, runID, reason string) error
}

// BatchRunner performs the coarse per-stage cohort work that follows the
// per-run loop. Failures are logged, never rolled back.
type BatchRunner interface {
	Precompute(ctx context.Context, runs []*contracts.Run) error
	ValidateStaging(ctx context.Context, runs []*contracts.Run) error
	Archive(ctx context.Context) error
}

// StatusPublisher mirrors the real-time hub's broadcast surface.
type StatusPublisher interface {
	Broadcast(userID string, update contracts.RunStatusUpdate)
}

// BatchResult accumulates per-item outcomes of one trigger.
type BatchResult struct {
	Succeeded int
	Failed    int
	Skipped   int
	Errors    []error
}

func (r *BatchResult) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err)
}

// MonthEnd drives runs through the three-stage month-end protocol.
type MonthEnd struct {
	runs       contracts.RunRepository
	portfolios contracts.PortfolioRepository

	executor  Executor
	notifier  Notifier
	freshness FreshnessChecker
	batch     BatchRunner
	publisher StatusPublisher
	clock     Clock
	logger    *logger.Logger
}

// NewMonthEnd wires the workflow. freshness defaults to AlwaysFresh and
// clock to the system clock when nil; batch and publisher may be nil.
func NewMonthEnd(
	runs contracts.RunRepository,
	portfolios contracts.PortfolioRepository,
	executor Executor,
	notifier Notifier,
	freshness FreshnessChecker,
	batch BatchRunner,
	publisher StatusPublisher,
	clock Clock,
	log *logger.Logger,
) *MonthEnd {
	if freshness == nil {
		freshness = AlwaysFresh{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &MonthEnd{
		runs:       runs,
		portfolios: portfolios,
		executor:   executor,
		notifier:   notifier,
		freshness:  freshness,
		batch:      batch,
		publisher:  publisher,
		clock:      clock,
		logger:     log,
	}
}

// MonthEndDate returns the last calendar day of t's month, at midnight UTC.
func MonthEndDate(t time.Time) time.Time {
	t = t.UTC()
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// RunT3 creates one SCHEDULED run per eligible portfolio for the current
// month-end. Firing it twice for the same month-end is a no-op: the
// idempotency guard detects the existing cohort and skips.
func (m *MonthEnd) RunT3(ctx context.Context) (*BatchResult, error) {
	monthEnd := MonthEndDate(m.clock.Now())
	log := m.logger.WithField("month_end", monthEnd.Format("2006-01-02"))
	result := &BatchResult{}

	exists, err := m.runs.ExistsScheduled(ctx, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if exists {
		log.Info("Scheduled runs already exist for this month-end, skipping T-3")
		return result, nil
	}

	portfolios, err := m.portfolios.ListEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible portfolios: %w", err)
	}

	var created []*contracts.Run
	for _, p := range portfolios {
		if p.ActiveUniverseID == "" || p.ActiveProfileID == "" {
			result.Skipped++
			continue
		}

		run := &contracts.Run{
			ID:            uuid.NewString(),
			UserID:        p.UserID,
			PortfolioID:   p.ID,
			UniverseID:    p.ActiveUniverseID,
			ProfileID:     p.ActiveProfileID,
			RunType:       contracts.RunTypeScheduled,
			Status:        contracts.StatusScheduled,
			ScheduledDate: monthEnd,
			Decision:      contracts.DecisionPending,
			CreatedAt:     m.clock.Now(),
			UpdatedAt:     m.clock.Now(),
		}

		if err := m.runs.Create(ctx, run); err != nil {
			log.WithError(err).WithField("portfolio_id", p.ID).Error("Failed to create run")
			result.fail(fmt.Errorf("portfolio %s: %w", p.ID, err))
			continue
		}

		if err := m.notifier.Precompute(ctx, p.UserID, run.ID, monthEnd); err != nil {
			log.WithError(err).Warn("Precompute notification failed")
		}

		m.broadcast(run, 0, "scheduled")
		created = append(created, run)
		result.Succeeded++
	}

	// cohort-wide precompute batch, invoked once; runs advance to
	// PRE_COMPUTE only when the warm cache succeeded
	if m.batch != nil && len(created) > 0 {
		if err := m.batch.Precompute(ctx, created); err != nil {
			log.WithError(err).Error("Precompute batch failed")
		} else {
			for _, run := range created {
				if err := m.runs.UpdateStatus(ctx, run.ID, contracts.StatusScheduled, contracts.StatusPreCompute); err != nil {
					log.WithError(err).WithField("run_id", run.ID).Warn("Failed to mark run pre-computed")
				}
			}
		}
	}

	log.WithFields(map[string]interface{}{
		"created": result.Succeeded,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("T-3 trigger completed")
	return result, nil
}

// RunT1 stages the month-end cohort: freshness check, STAGED transition,
// notifications. A failing run is counted and the loop continues.
func (m *MonthEnd) RunT1(ctx context.Context) (*BatchResult, error) {
	monthEnd := MonthEndDate(m.clock.Now())
	log := m.logger.WithField("month_end", monthEnd.Format("2006-01-02"))
	result := &BatchResult{}

	// a run sits in PRE_COMPUTE when the T-3 warm cache succeeded and
	// in SCHEDULED when it did not; both stage
	runs, err := m.runs.ListByDateStatus(ctx, monthEnd, contracts.StatusPreCompute)
	if err != nil {
		return nil, fmt.Errorf("failed to load pre-computed runs: %w", err)
	}
	scheduled, err := m.runs.ListByDateStatus(ctx, monthEnd, contracts.StatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled runs: %w", err)
	}
	runs = append(runs, scheduled...)
	if len(runs) == 0 {
		log.Warn("No scheduled runs found at T-1; the T-3 trigger likely failed")
		return result, nil
	}

	for _, run := range runs {
		if err := m.stageRun(ctx, run, monthEnd); err != nil {
			log.WithError(err).WithField("run_id", run.ID).Error("Failed to stage run")
			result.fail(fmt.Errorf("run %s: %w", run.ID, err))
			continue
		}
		result.Succeeded++
	}

	if m.batch != nil {
		if err := m.batch.ValidateStaging(ctx, runs); err != nil {
			log.WithError(err).Error("Staging validation batch failed")
		}
	}

	log.WithFields(map[string]interface{}{
		"staged": result.Succeeded,
		"failed": result.Failed,
	}).Info("T-1 trigger completed")
	return result, nil
}

func (m *MonthEnd) stageRun(ctx context.Context, run *contracts.Run, monthEnd time.Time) error {
	fresh, detail, err := m.freshness.Check(ctx, run)
	if err != nil {
		// checker errors degrade to stale rather than failing the run
		m.logger.WithError(err).WithField("run_id", run.ID).Warn("Freshness check errored, treating as stale")
		fresh, detail = false, "freshness check unavailable"
	}

	run.DataFreshnessCheckPassed = fresh
	run.Status = contracts.StatusStaged
	run.UpdatedAt = m.clock.Now()
	if err := m.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to persist staging: %w", err)
	}

	if err := m.notifier.Staged(ctx, run.UserID, run.ID, monthEnd); err != nil {
		m.logger.WithError(err).Warn("Staged notification failed")
	}
	if !fresh {
		if err := m.notifier.DataStale(ctx, run.UserID, run.ID, detail); err != nil {
			m.logger.WithError(err).Warn("Data-stale notification failed")
		}
	}

	m.broadcast(run, 0, "staged")
	return nil
}

// RunT finalizes the staged cohort: pipeline execution, FINALIZED
// transition, notifications. One run's failure marks it FAILED and never
// blocks its siblings.
func (m *MonthEnd) RunT(ctx context.Context) (*BatchResult, error) {
	monthEnd := MonthEndDate(m.clock.Now())
	log := m.logger.WithField("month_end", monthEnd.Format("2006-01-02"))
	result := &BatchResult{}

	runs, err := m.runs.ListByDateStatus(ctx, monthEnd, contracts.StatusStaged)
	if err != nil {
		return nil, fmt.Errorf("failed to load staged runs: %w", err)
	}
	if len(runs) == 0 {
		log.Warn("No staged runs found at T; the T-1 trigger likely failed")
		return result, nil
	}

	for _, run := range runs {
		if err := m.finalizeRun(ctx, run); err != nil {
			log.WithError(err).WithField("run_id", run.ID).Error("Run finalization failed")
			result.fail(fmt.Errorf("run %s: %w", run.ID, err))
			continue
		}
		result.Succeeded++
	}

	if m.batch != nil {
		if err := m.batch.Archive(ctx); err != nil {
			log.WithError(err).Error("Archival batch failed")
		}
	}

	log.WithFields(map[string]interface{}{
		"finalized": result.Succeeded,
		"failed":    result.Failed,
	}).Info("T trigger completed")
	return result, nil
}

func (m *MonthEnd) finalizeRun(ctx context.Context, run *contracts.Run) error {
	started := m.clock.Now()
	run.Status = contracts.StatusRunning
	run.StartedAt = &started
	run.UpdatedAt = started
	if err := m.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	m.broadcast(run, 10, "running")

	if err := m.executor.Execute(ctx, run); err != nil {
		m.markFailed(ctx, run, err)
		return fmt.Errorf("pipeline execution: %w", err)
	}

	completed := m.clock.Now()
	run.Status = contracts.StatusFinalized
	run.CompletedAt = &completed
	run.UpdatedAt = completed
	if err := m.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to mark run finalized: %w", err)
	}

	if err := m.notifier.Finalized(ctx, run.UserID, run.ID, run.RecommendationCount); err != nil {
		m.logger.WithError(err).Warn("Finalized notification failed")
	}
	m.broadcast(run, 100, "finalized")
	return nil
}

func (m *MonthEnd) markFailed(ctx context.Context, run *contracts.Run, cause error) {
	run.Status = contracts.StatusFailed
	run.ErrorMessage = cause.Error()
	run.UpdatedAt = m.clock.Now()
	if err := m.runs.Update(ctx, run); err != nil {
		m.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to persist FAILED status")
	}
	if err := m.notifier.RunFailed(ctx, run.UserID, run.ID, cause.Error()); err != nil {
		m.logger.WithError(err).Warn("Run-failed notification failed")
	}
	m.broadcastError(run, cause.Error())
}

// TriggerOffCycle creates and immediately executes an on-demand run for
// one user. Off-cycle runs skip the monthly idempotency guard.
func (m *MonthEnd) TriggerOffCycle(ctx context.Context, userID string) (*contracts.Run, error) {
	p, err := m.portfolios.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if p.ActiveUniverseID == "" || p.ActiveProfileID == "" {
		return nil, fmt.Errorf("portfolio %s has no active universe or constraint profile", p.ID)
	}

	now := m.clock.Now()
	run := &contracts.Run{
		ID:            uuid.NewString(),
		UserID:        userID,
		PortfolioID:   p.ID,
		UniverseID:    p.ActiveUniverseID,
		ProfileID:     p.ActiveProfileID,
		RunType:       contracts.RunTypeOffCycle,
		Status:        contracts.StatusScheduled,
		ScheduledDate: now.Truncate(24 * time.Hour),
		Decision:      contracts.DecisionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create off-cycle run: %w", err)
	}

	if err := m.finalizeRun(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

func (m *MonthEnd) broadcast(run *contracts.Run, progress int, stage string) {
	if m.publisher == nil {
		return
	}
	m.publisher.Broadcast(run.UserID, contracts.RunStatusUpdate{
		RunID:     run.ID,
		Status:    run.Status,
		Progress:  progress,
		Stage:     stage,
		Timestamp: m.clock.Now(),
	})
}

func (m *MonthEnd) broadcastError(run *contracts.Run, msg string) {
	if m.publisher == nil {
		return
	}
	m.publisher.Broadcast(run.UserID, contracts.RunStatusUpdate{
		RunID:        run.ID,
		Status:       run.Status,
		Stage:        "failed",
		Timestamp:    m.clock.Now(),
		ErrorMessage: msg,
	})
}
