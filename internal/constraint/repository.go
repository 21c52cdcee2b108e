package constraint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Repository is the pgx-backed store for constraint profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a profile repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.ProfileRepository = (*Repository)(nil)

const profileColumns = `
	id, user_id, name, is_active, version,
	max_name_weight_large_cap_pct, max_name_weight_mid_cap_pct, max_name_weight_small_cap_pct,
	max_sector_exposure_pct, turnover_cap_pct, weight_deadband_bps,
	participation_cap_tier1_pct, participation_cap_tier2_pct, participation_cap_tier3_pct,
	participation_cap_tier4_pct, participation_cap_tier5_pct,
	spread_threshold_bps, earnings_blackout_hours, liquidity_floor_adv,
	cost_margin_required_bps, created_at, updated_at`

func scanProfile(row pgx.Row) (*contracts.ConstraintProfile, error) {
	p := &contracts.ConstraintProfile{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.IsActive, &p.Version,
		&p.MaxNameWeightLargeCapPct, &p.MaxNameWeightMidCapPct, &p.MaxNameWeightSmallCapPct,
		&p.MaxSectorExposurePct, &p.TurnoverCapPct, &p.WeightDeadbandBps,
		&p.ParticipationCapTier1Pct, &p.ParticipationCapTier2Pct, &p.ParticipationCapTier3Pct,
		&p.ParticipationCapTier4Pct, &p.ParticipationCapTier5Pct,
		&p.SpreadThresholdBps, &p.EarningsBlackoutHours, &p.LiquidityFloorADV,
		&p.CostMarginRequiredBps, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func profileArgs(p *contracts.ConstraintProfile) []interface{} {
	return []interface{}{
		p.ID, p.UserID, p.Name, p.IsActive, p.Version,
		p.MaxNameWeightLargeCapPct, p.MaxNameWeightMidCapPct, p.MaxNameWeightSmallCapPct,
		p.MaxSectorExposurePct, p.TurnoverCapPct, p.WeightDeadbandBps,
		p.ParticipationCapTier1Pct, p.ParticipationCapTier2Pct, p.ParticipationCapTier3Pct,
		p.ParticipationCapTier4Pct, p.ParticipationCapTier5Pct,
		p.SpreadThresholdBps, p.EarningsBlackoutHours, p.LiquidityFloorADV,
		p.CostMarginRequiredBps, p.CreatedAt, p.UpdatedAt,
	}
}

// GetByID loads one profile version.
func (r *Repository) GetByID(ctx context.Context, id string) (*contracts.ConstraintProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM constraint_profiles WHERE id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// GetActive loads the user's active profile.
func (r *Repository) GetActive(ctx context.Context, userID string) (*contracts.ConstraintProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM constraint_profiles WHERE user_id = $1 AND is_active = true`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no active profile for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active profile: %w", err)
	}
	return p, nil
}

// Create validates and inserts a new profile at version 1.
func (r *Repository) Create(ctx context.Context, p *contracts.ConstraintProfile) error {
	if err := Validate(p); err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Version = 1
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO constraint_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	if _, err := r.pool.Exec(ctx, query, profileArgs(p)...); err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// CreateVersion validates and inserts a new version of an existing
// profile. The prior version row is untouched; finalized runs keep
// referencing it.
func (r *Repository) CreateVersion(ctx context.Context, p *contracts.ConstraintProfile) (*contracts.ConstraintProfile, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	next := *p
	next.ID = uuid.NewString()
	next.Version = p.Version + 1
	now := time.Now().UTC()
	next.CreatedAt = now
	next.UpdatedAt = now

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO constraint_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	if _, err := tx.Exec(ctx, query, profileArgs(&next)...); err != nil {
		return nil, fmt.Errorf("failed to insert profile version: %w", err)
	}

	if next.IsActive {
		// keep the one-active invariant: the new version supersedes
		// every other active profile for the user
		if _, err := tx.Exec(ctx,
			`UPDATE constraint_profiles SET is_active = false, updated_at = $1 WHERE user_id = $2 AND id <> $3 AND is_active = true`,
			now, next.UserID, next.ID); err != nil {
			return nil, fmt.Errorf("failed to deactivate prior versions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit profile version: %w", err)
	}
	return &next, nil
}

// Activate marks one profile active and deactivates the rest in a single
// transaction.
func (r *Repository) Activate(ctx context.Context, userID, profileID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE constraint_profiles SET is_active = false, updated_at = $1 WHERE user_id = $2 AND is_active = true`,
		now, userID); err != nil {
		return fmt.Errorf("failed to deactivate profiles: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE constraint_profiles SET is_active = true, updated_at = $1 WHERE id = $2 AND user_id = $3`,
		now, profileID, userID)
	if err != nil {
		return fmt.Errorf("failed to activate profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s not found for user %s", profileID, userID)
	}

	return tx.Commit(ctx)
}
