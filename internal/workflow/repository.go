package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// RunRepo is the pgx-backed store for recommendation runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo creates a run repository.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

var _ contracts.RunRepository = (*RunRepo)(nil)

const runColumns = `
	id, user_id, portfolio_id, universe_id, profile_id, profile_version,
	run_type, status, scheduled_date, started_at, completed_at,
	execution_duration_ms, recommendation_count, exclusion_count,
	expected_turnover_pct, estimated_cost_bps, expected_alpha_bps,
	decision, COALESCE(decision_reason, ''), COALESCE(previous_run_id, ''),
	COALESCE(error_message, ''), data_freshness_check_passed,
	constraint_feasibility_check_passed, created_at, updated_at`

func scanRun(row pgx.Row) (*contracts.Run, error) {
	r := &contracts.Run{}
	var runType, status string
	err := row.Scan(&r.ID, &r.UserID, &r.PortfolioID, &r.UniverseID, &r.ProfileID,
		&r.ProfileVersion, &runType, &status, &r.ScheduledDate, &r.StartedAt,
		&r.CompletedAt, &r.DurationMs, &r.RecommendationCount, &r.ExclusionCount,
		&r.ExpectedTurnoverPct, &r.EstimatedCostBps, &r.ExpectedAlphaBps,
		&r.Decision, &r.DecisionReason, &r.PreviousRunID, &r.ErrorMessage,
		&r.DataFreshnessCheckPassed, &r.ConstraintFeasibilityCheckPassed,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.RunType = contracts.RunType(runType)
	r.Status = contracts.RunStatus(status)
	return r, nil
}

// Create inserts a run.
func (r *RunRepo) Create(ctx context.Context, run *contracts.Run) error {
	query := `
		INSERT INTO runs (
			id, user_id, portfolio_id, universe_id, profile_id, profile_version,
			run_type, status, scheduled_date, started_at, completed_at,
			execution_duration_ms, recommendation_count, exclusion_count,
			expected_turnover_pct, estimated_cost_bps, expected_alpha_bps,
			decision, decision_reason, previous_run_id, error_message,
			data_freshness_check_passed, constraint_feasibility_check_passed,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, NULLIF($19, ''), NULLIF($20, ''), NULLIF($21, ''),
			$22, $23, $24, $25)
	`
	_, err := r.pool.Exec(ctx, query,
		run.ID, run.UserID, run.PortfolioID, run.UniverseID, run.ProfileID,
		run.ProfileVersion, string(run.RunType), string(run.Status),
		run.ScheduledDate, run.StartedAt, run.CompletedAt, run.DurationMs,
		run.RecommendationCount, run.ExclusionCount, run.ExpectedTurnoverPct,
		run.EstimatedCostBps, run.ExpectedAlphaBps, run.Decision,
		run.DecisionReason, run.PreviousRunID, run.ErrorMessage,
		run.DataFreshnessCheckPassed, run.ConstraintFeasibilityCheckPassed,
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetByID loads one run.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*contracts.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// ExistsScheduled reports whether any SCHEDULED-type run exists for the
// month-end date.
func (r *RunRepo) ExistsScheduled(ctx context.Context, scheduledDate time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM runs WHERE scheduled_date = $1 AND run_type = $2)`,
		scheduledDate, string(contracts.RunTypeScheduled)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check scheduled runs: %w", err)
	}
	return exists, nil
}

// ListByDateStatus returns runs for a month-end date in a given status.
func (r *RunRepo) ListByDateStatus(ctx context.Context, scheduledDate time.Time, status contracts.RunStatus) ([]*contracts.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE scheduled_date = $1 AND status = $2 ORDER BY created_at`
	return r.queryRuns(ctx, query, scheduledDate, string(status))
}

// LatestFinalized returns the most recent finalized run for a user, or
// nil when none exists.
func (r *RunRepo) LatestFinalized(ctx context.Context, userID string) (*contracts.Run, error) {
	query := `
		SELECT ` + runColumns + ` FROM runs
		WHERE user_id = $1 AND status = $2
		ORDER BY completed_at DESC LIMIT 1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, userID, string(contracts.StatusFinalized)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest finalized run: %w", err)
	}
	return run, nil
}

// ListByUser returns a user's runs, newest first.
func (r *RunRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*contracts.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.queryRuns(ctx, query, userID, limit)
}

// ListByStatus returns all runs in a status.
func (r *RunRepo) ListByStatus(ctx context.Context, status contracts.RunStatus) ([]*contracts.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE status = $1 ORDER BY created_at`
	return r.queryRuns(ctx, query, string(status))
}

// UpdateStatus performs a guarded status transition. The WHERE clause on
// the current status makes the transition atomic against concurrent
// triggers.
func (r *RunRepo) UpdateStatus(ctx context.Context, id string, from, to contracts.RunStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal run status transition %s -> %s", from, to)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s is no longer in status %s", id, from)
	}
	return nil
}

// Update persists a run's mutable fields.
func (r *RunRepo) Update(ctx context.Context, run *contracts.Run) error {
	query := `
		UPDATE runs SET
			status = $2, started_at = $3, completed_at = $4,
			execution_duration_ms = $5, recommendation_count = $6,
			exclusion_count = $7, expected_turnover_pct = $8,
			estimated_cost_bps = $9, expected_alpha_bps = $10,
			decision = $11, decision_reason = NULLIF($12, ''),
			previous_run_id = NULLIF($13, ''), error_message = NULLIF($14, ''),
			data_freshness_check_passed = $15,
			constraint_feasibility_check_passed = $16, updated_at = $17
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.StartedAt, run.CompletedAt,
		run.DurationMs, run.RecommendationCount, run.ExclusionCount,
		run.ExpectedTurnoverPct, run.EstimatedCostBps, run.ExpectedAlphaBps,
		run.Decision, run.DecisionReason, run.PreviousRunID, run.ErrorMessage,
		run.DataFreshnessCheckPassed, run.ConstraintFeasibilityCheckPassed,
		run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// ArchiveOlderThan moves FINALIZED and FAILED runs completed before the
// cutoff to ARCHIVED.
func (r *RunRepo) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE runs SET status = $1, updated_at = NOW()
		WHERE status IN ($2, $3) AND completed_at IS NOT NULL AND completed_at < $4
	`, string(contracts.StatusArchived), string(contracts.StatusFinalized),
		string(contracts.StatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *RunRepo) queryRuns(ctx context.Context, query string, args ...interface{}) ([]*contracts.Run, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
