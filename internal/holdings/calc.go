// Package holdings owns portfolio positions: the full recalculation pass
// that keeps market values and weights consistent, and CSV upload
// validation.
package holdings

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/external/feeds"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// Calculator recomputes holding market values, weights, and P&L.
type Calculator struct {
	portfolios contracts.PortfolioRepository
	holdings   contracts.HoldingRepository
	prices     *feeds.PriceClient
	fx         *feeds.FxClient
	logger     *logger.Logger
}

// NewCalculator creates a portfolio calculator.
func NewCalculator(portfolios contracts.PortfolioRepository, holdings contracts.HoldingRepository, prices *feeds.PriceClient, fx *feeds.FxClient, log *logger.Logger) *Calculator {
	return &Calculator{
		portfolios: portfolios,
		holdings:   holdings,
		prices:     prices,
		fx:         fx,
		logger:     log,
	}
}

// Recalculate refreshes prices and FX rates for every holding in the
// portfolio and recomputes all derived fields from scratch. Weights are
// never adjusted incrementally; each pass rebuilds them from totals so
// rounding drift cannot accumulate.
func (c *Calculator) Recalculate(ctx context.Context, portfolioID string) error {
	p, err := c.portfolios.GetByID(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to load portfolio %s: %w", portfolioID, err)
	}

	hs, err := c.holdings.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to load holdings: %w", err)
	}

	now := time.Now().UTC()
	for _, h := range hs {
		if quote, err := c.prices.GetQuote(ctx, h.Symbol); err != nil {
			c.logger.WithError(err).WithField("symbol", h.Symbol).Warn("Keeping stale price after quote failure")
		} else {
			h.CurrentPrice = quote.Price
			h.PriceUpdatedAt = &now
		}

		h.FxRateToBase = 1.0
		if h.Currency != "" && h.Currency != p.BaseCurrency {
			rate, err := c.fx.GetRate(ctx, h.Currency, p.BaseCurrency)
			if err != nil {
				return fmt.Errorf("failed to fetch FX rate %s/%s: %w", h.Currency, p.BaseCurrency, err)
			}
			h.FxRateToBase = rate.Rate
		}
	}

	Recompute(p, hs)

	for _, h := range hs {
		if err := c.holdings.Update(ctx, h); err != nil {
			return fmt.Errorf("failed to update holding %s: %w", h.Symbol, err)
		}
	}
	if err := c.portfolios.Update(ctx, p); err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"holdings":     len(hs),
		"total_value":  p.TotalValue(),
	}).Debug("Portfolio recalculated")
	return nil
}

// Recompute derives market value, unrealized P&L, and weight for each
// holding in the portfolio's base currency, then updates the portfolio
// total. Weight is relative to total portfolio value including cash.
func Recompute(p *contracts.Portfolio, hs []*contracts.Holding) {
	var totalMarket float64
	for _, h := range hs {
		fx := h.FxRateToBase
		if fx == 0 {
			fx = 1.0
		}
		h.CurrentMarketValue = h.Quantity * h.CurrentPrice * fx
		h.UnrealizedPnl = h.CurrentMarketValue - h.CostBasis
		if h.CostBasis != 0 {
			h.UnrealizedPnlPct = h.UnrealizedPnl / h.CostBasis * 100
		} else {
			h.UnrealizedPnlPct = 0
		}
		totalMarket += h.CurrentMarketValue
	}

	p.TotalMarketValue = totalMarket
	total := p.TotalValue()

	for _, h := range hs {
		if total > 0 {
			h.WeightPct = h.CurrentMarketValue / total * 100
		} else {
			h.WeightPct = 0
		}
	}
}
