// Package universe reads security universes and their constituents.
// Constituents are soft-removed only; prior runs stay auditable.
package universe

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Repository is the pgx-backed universe store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a universe repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.UniverseRepository = (*Repository)(nil)

// GetByID loads one universe.
func (r *Repository) GetByID(ctx context.Context, id string) (*contracts.Universe, error) {
	query := `SELECT id, user_id, name, is_active, created_at, updated_at FROM universes WHERE id = $1`
	u := &contracts.Universe{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.UserID, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("universe %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	return u, nil
}

// ListConstituents returns a universe's constituents; activeOnly filters
// out soft-removed rows.
func (r *Repository) ListConstituents(ctx context.Context, universeID string, activeOnly bool) ([]*contracts.UniverseConstituent, error) {
	query := `
		SELECT id, universe_id, symbol, company_name, sector, COALESCE(industry, ''),
			market_cap_tier, liquidity_tier, avg_daily_volume, avg_daily_value,
			is_active, added_date, removed_date, created_at, updated_at
		FROM universe_constituents
		WHERE universe_id = $1 AND ($2 = false OR is_active = true)
		ORDER BY symbol
	`
	rows, err := r.pool.Query(ctx, query, universeID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituents: %w", err)
	}
	defer rows.Close()

	var out []*contracts.UniverseConstituent
	for rows.Next() {
		c := &contracts.UniverseConstituent{}
		var tier string
		if err := rows.Scan(&c.ID, &c.UniverseID, &c.Symbol, &c.CompanyName,
			&c.Sector, &c.Industry, &tier, &c.LiquidityTier,
			&c.AvgDailyVolume, &c.AvgDailyValue, &c.IsActive,
			&c.AddedDate, &c.RemovedDate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan constituent: %w", err)
		}
		c.MarketCapTier = contracts.MarketCapTier(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}
