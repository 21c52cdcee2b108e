package holdings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Repository is the pgx-backed store for holdings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a holdings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PortfolioRepo is the pgx-backed store for portfolios.
type PortfolioRepo struct {
	pool *pgxpool.Pool
}

// NewPortfolioRepo creates a portfolio repository.
func NewPortfolioRepo(pool *pgxpool.Pool) *PortfolioRepo {
	return &PortfolioRepo{pool: pool}
}

var (
	_ contracts.HoldingRepository   = (*Repository)(nil)
	_ contracts.PortfolioRepository = (*PortfolioRepo)(nil)
)

const holdingColumns = `
	id, portfolio_id, symbol, quantity, cost_basis, cost_basis_per_share,
	acquisition_date, currency, fx_rate_to_base, current_price,
	current_market_value, unrealized_pnl, unrealized_pnl_pct, weight_pct,
	price_updated_at, sector, market_cap_tier, in_universe, created_at, updated_at`

func scanHolding(row pgx.Row) (*contracts.Holding, error) {
	h := &contracts.Holding{}
	var tier string
	err := row.Scan(&h.ID, &h.PortfolioID, &h.Symbol, &h.Quantity, &h.CostBasis,
		&h.CostBasisPerShare, &h.AcquisitionDate, &h.Currency, &h.FxRateToBase,
		&h.CurrentPrice, &h.CurrentMarketValue, &h.UnrealizedPnl, &h.UnrealizedPnlPct,
		&h.WeightPct, &h.PriceUpdatedAt, &h.Sector, &tier, &h.InUniverse,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.MarketCapTier = contracts.MarketCapTier(tier)
	return h, nil
}

// ListByPortfolio returns all holdings for a portfolio.
func (r *Repository) ListByPortfolio(ctx context.Context, portfolioID string) ([]*contracts.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE portfolio_id = $1 ORDER BY symbol`
	rows, err := r.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Upsert inserts or updates a holding keyed on (portfolio, symbol).
func (r *Repository) Upsert(ctx context.Context, h *contracts.Holding) error {
	query := `
		INSERT INTO holdings (` + holdingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (portfolio_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			cost_basis = EXCLUDED.cost_basis,
			cost_basis_per_share = EXCLUDED.cost_basis_per_share,
			acquisition_date = EXCLUDED.acquisition_date,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, holdingArgs(h)...)
	if err != nil {
		return fmt.Errorf("failed to upsert holding %s: %w", h.Symbol, err)
	}
	return nil
}

// ReplaceAll atomically swaps a portfolio's holdings for the given set.
// Used by CSV upload after validation passes.
func (r *Repository) ReplaceAll(ctx context.Context, portfolioID string, hs []*contracts.Holding) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM holdings WHERE portfolio_id = $1", portfolioID); err != nil {
		return fmt.Errorf("failed to delete old holdings: %w", err)
	}

	query := `
		INSERT INTO holdings (` + holdingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	for _, h := range hs {
		if _, err := tx.Exec(ctx, query, holdingArgs(h)...); err != nil {
			return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// Update persists the computed fields of one holding.
func (r *Repository) Update(ctx context.Context, h *contracts.Holding) error {
	query := `
		UPDATE holdings SET
			quantity = $2, cost_basis = $3, fx_rate_to_base = $4,
			current_price = $5, current_market_value = $6,
			unrealized_pnl = $7, unrealized_pnl_pct = $8, weight_pct = $9,
			price_updated_at = $10, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, h.ID, h.Quantity, h.CostBasis, h.FxRateToBase,
		h.CurrentPrice, h.CurrentMarketValue, h.UnrealizedPnl, h.UnrealizedPnlPct,
		h.WeightPct, h.PriceUpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update holding %s: %w", h.Symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holding %s not found", h.ID)
	}
	return nil
}

func holdingArgs(h *contracts.Holding) []interface{} {
	return []interface{}{
		h.ID, h.PortfolioID, h.Symbol, h.Quantity, h.CostBasis, h.CostBasisPerShare,
		h.AcquisitionDate, h.Currency, h.FxRateToBase, h.CurrentPrice,
		h.CurrentMarketValue, h.UnrealizedPnl, h.UnrealizedPnlPct, h.WeightPct,
		h.PriceUpdatedAt, h.Sector, string(h.MarketCapTier), h.InUniverse,
		h.CreatedAt, h.UpdatedAt,
	}
}

const portfolioColumns = `
	id, user_id, name, base_currency, cash_balance, total_market_value,
	COALESCE(active_universe_id, ''), COALESCE(active_profile_id, ''), created_at, updated_at`

func scanPortfolio(row pgx.Row) (*contracts.Portfolio, error) {
	p := &contracts.Portfolio{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.BaseCurrency, &p.CashBalance,
		&p.TotalMarketValue, &p.ActiveUniverseID, &p.ActiveProfileID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID loads one portfolio.
func (r *PortfolioRepo) GetByID(ctx context.Context, id string) (*contracts.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1`
	p, err := scanPortfolio(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	return p, nil
}

// GetByUser loads a user's portfolio.
func (r *PortfolioRepo) GetByUser(ctx context.Context, userID string) (*contracts.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1`
	p, err := scanPortfolio(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("portfolio for user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	return p, nil
}

// ListEligible returns portfolios with both an active universe and an
// active constraint profile. These are the month-end cohort.
func (r *PortfolioRepo) ListEligible(ctx context.Context) ([]*contracts.Portfolio, error) {
	query := `
		SELECT ` + portfolioColumns + `
		FROM portfolios
		WHERE active_universe_id IS NOT NULL AND active_profile_id IS NOT NULL
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible portfolios: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update persists portfolio totals.
func (r *PortfolioRepo) Update(ctx context.Context, p *contracts.Portfolio) error {
	query := `
		UPDATE portfolios SET
			cash_balance = $2, total_market_value = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, p.ID, p.CashBalance, p.TotalMarketValue); err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	return nil
}
