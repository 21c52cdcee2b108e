package recommend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Repository is the pgx-backed store for recommendations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recommendation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ExclusionRepo is the pgx-backed store for exclusions.
type ExclusionRepo struct {
	pool *pgxpool.Pool
}

// NewExclusionRepo creates an exclusion repository.
func NewExclusionRepo(pool *pgxpool.Pool) *ExclusionRepo {
	return &ExclusionRepo{pool: pool}
}

var (
	_ contracts.RecommendationRepository = (*Repository)(nil)
	_ contracts.ExclusionRepository      = (*ExclusionRepo)(nil)
)

// CreateBatch inserts a run's recommendations in one transaction.
func (r *Repository) CreateBatch(ctx context.Context, recs []*contracts.Recommendation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO recommendations (
			id, run_id, symbol, rank, composite_score, target_weight_pct,
			current_weight_pct, weight_change_pct, change_indicator,
			confidence_score, expected_alpha_bps, estimated_cost_bps,
			factor_drivers, rationale, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	for _, rec := range recs {
		drivers, err := json.Marshal(rec.FactorDrivers)
		if err != nil {
			return fmt.Errorf("failed to marshal factor drivers for %s: %w", rec.Symbol, err)
		}
		if _, err := tx.Exec(ctx, query,
			rec.ID, rec.RunID, rec.Symbol, rec.Rank, rec.CompositeScore,
			rec.TargetWeightPct, rec.CurrentWeightPct, rec.WeightChangePct,
			string(rec.ChangeIndicator), rec.ConfidenceScore,
			rec.ExpectedAlphaBps, rec.EstimatedCostBps,
			drivers, rec.Rationale, rec.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert recommendation %s: %w", rec.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// ListByRun returns a run's recommendations ordered by rank.
func (r *Repository) ListByRun(ctx context.Context, runID string) ([]*contracts.Recommendation, error) {
	query := `
		SELECT id, run_id, symbol, rank, composite_score, target_weight_pct,
			current_weight_pct, weight_change_pct, change_indicator,
			confidence_score, expected_alpha_bps, estimated_cost_bps,
			factor_drivers, rationale, created_at
		FROM recommendations WHERE run_id = $1 ORDER BY rank
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Recommendation
	for rows.Next() {
		rec := &contracts.Recommendation{}
		var indicator string
		var drivers []byte
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Symbol, &rec.Rank,
			&rec.CompositeScore, &rec.TargetWeightPct, &rec.CurrentWeightPct,
			&rec.WeightChangePct, &indicator, &rec.ConfidenceScore,
			&rec.ExpectedAlphaBps, &rec.EstimatedCostBps,
			&drivers, &rec.Rationale, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		rec.ChangeIndicator = contracts.ChangeIndicator(indicator)
		if len(drivers) > 0 {
			if err := json.Unmarshal(drivers, &rec.FactorDrivers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal factor drivers: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteByRun removes a run's recommendations before recomputation.
func (r *Repository) DeleteByRun(ctx context.Context, runID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM recommendations WHERE run_id = $1", runID); err != nil {
		return fmt.Errorf("failed to delete recommendations: %w", err)
	}
	return nil
}

// CreateBatch inserts a run's exclusions.
func (r *ExclusionRepo) CreateBatch(ctx context.Context, excls []*contracts.Exclusion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO exclusions (id, run_id, symbol, reason, detail, observed_value, limit_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, e := range excls {
		if _, err := tx.Exec(ctx, query,
			e.ID, e.RunID, e.Symbol, string(e.Reason), e.Detail,
			e.ObservedValue, e.LimitValue, e.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert exclusion %s: %w", e.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// ListByRun returns a run's exclusions.
func (r *ExclusionRepo) ListByRun(ctx context.Context, runID string) ([]*contracts.Exclusion, error) {
	query := `
		SELECT id, run_id, symbol, reason, detail, observed_value, limit_value, created_at
		FROM exclusions WHERE run_id = $1 ORDER BY symbol
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Exclusion
	for rows.Next() {
		e := &contracts.Exclusion{}
		var reason string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Symbol, &reason, &e.Detail,
			&e.ObservedValue, &e.LimitValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		e.Reason = contracts.ExclusionReason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteByRun removes a run's exclusions before recomputation.
func (r *ExclusionRepo) DeleteByRun(ctx context.Context, runID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM exclusions WHERE run_id = $1", runID); err != nil {
		return fmt.Errorf("failed to delete exclusions: %w", err)
	}
	return nil
}
