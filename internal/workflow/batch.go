package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/external/feeds"
	"github.com/stockmonitor/monthend/pkg/logger"
	"github.com/stockmonitor/monthend/pkg/redis"
)

// runRetentionDays is how long FINALIZED and FAILED runs stay before the
// archival batch moves them to ARCHIVED.
const runRetentionDays = 180

// warmCacheTTL covers the window from T-3 precompute through T
// finalization with headroom.
const warmCacheTTL = 5 * 24 * time.Hour

// CohortBatch implements the once-per-trigger batch steps: the T-3 warm
// cache, T-1 staging validation, and the T archival sweep.
type CohortBatch struct {
	runs      contracts.RunRepository
	universes contracts.UniverseRepository
	prices    *feeds.PriceClient
	cache     *redis.Cache
	clock     Clock
	logger    *logger.Logger
}

// NewCohortBatch wires the batch steps. cache and prices may be nil, in
// which case the precompute step only logs.
func NewCohortBatch(runs contracts.RunRepository, universes contracts.UniverseRepository, prices *feeds.PriceClient, cache *redis.Cache, clock Clock, log *logger.Logger) *CohortBatch {
	if clock == nil {
		clock = RealClock{}
	}
	return &CohortBatch{
		runs:      runs,
		universes: universes,
		prices:    prices,
		cache:     cache,
		clock:     clock,
		logger:    log,
	}
}

var _ BatchRunner = (*CohortBatch)(nil)

// Precompute warms the quote cache for every symbol in the cohort's
// universes so finalization does not fan out to the price feed.
func (b *CohortBatch) Precompute(ctx context.Context, runs []*contracts.Run) error {
	if b.prices == nil || b.cache == nil {
		b.logger.Debug("Precompute skipped: no price feed or cache configured")
		return nil
	}

	symbols := make(map[string]struct{})
	for _, run := range runs {
		constituents, err := b.universes.ListConstituents(ctx, run.UniverseID, true)
		if err != nil {
			return fmt.Errorf("failed to list constituents for universe %s: %w", run.UniverseID, err)
		}
		for _, c := range constituents {
			symbols[c.Symbol] = struct{}{}
		}
	}

	list := make([]string, 0, len(symbols))
	for s := range symbols {
		list = append(list, s)
	}

	quotes, err := b.prices.GetQuotes(ctx, list)
	if err != nil {
		return fmt.Errorf("failed to fetch cohort quotes: %w", err)
	}

	cached := 0
	for symbol, quote := range quotes {
		if err := b.cache.Set(ctx, "quote:"+symbol, quote, warmCacheTTL); err != nil {
			b.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to cache quote")
			continue
		}
		cached++
	}

	b.logger.WithFields(map[string]interface{}{
		"symbols": len(list),
		"cached":  cached,
	}).Info("Precompute warm cache completed")
	return nil
}

// ValidateStaging verifies the staged cohort is internally consistent:
// every run still references a loadable universe.
func (b *CohortBatch) ValidateStaging(ctx context.Context, runs []*contracts.Run) error {
	for _, run := range runs {
		if _, err := b.universes.GetByID(ctx, run.UniverseID); err != nil {
			return fmt.Errorf("run %s references unavailable universe %s: %w", run.ID, run.UniverseID, err)
		}
	}
	b.logger.WithField("runs", len(runs)).Debug("Staging validation passed")
	return nil
}

// Archive moves completed runs past the retention window to ARCHIVED.
func (b *CohortBatch) Archive(ctx context.Context) error {
	cutoff := b.clock.Now().AddDate(0, 0, -runRetentionDays)
	n, err := b.runs.ArchiveOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to archive old runs: %w", err)
	}
	if n > 0 {
		b.logger.WithField("archived", n).Info("Archived completed runs")
	}
	return nil
}
