package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// FreshnessChecker decides whether a run's input data is current enough
// to stage. A failed check never blocks staging; it degrades the run's
// freshness flag and raises a DATA_STALE notification.
type FreshnessChecker interface {
	// Check returns (fresh, detail). detail describes the failure when
	// fresh is false.
	Check(ctx context.Context, run *contracts.Run) (bool, string, error)
}

// AlwaysFresh reports every run as fresh. This is the stand-in checker
// until per-feed age tracking lands; it keeps the staging flow exercised
// without real age data.
type AlwaysFresh struct{}

func (AlwaysFresh) Check(ctx context.Context, run *contracts.Run) (bool, string, error) {
	return true, "", nil
}

// RefreshSource reports when a data domain was last refreshed.
type RefreshSource interface {
	LastRefresh(ctx context.Context, domain string) (time.Time, error)
}

// MaxAge fails the check when any tracked domain's last refresh is older
// than the limit.
type MaxAge struct {
	Source  RefreshSource
	Domains []string
	Limit   time.Duration
	Now     func() time.Time
}

func (m *MaxAge) Check(ctx context.Context, run *contracts.Run) (bool, string, error) {
	now := time.Now().UTC()
	if m.Now != nil {
		now = m.Now()
	}

	for _, domain := range m.Domains {
		last, err := m.Source.LastRefresh(ctx, domain)
		if err != nil {
			return false, "", fmt.Errorf("failed to read %s refresh time: %w", domain, err)
		}
		if age := now.Sub(last); age > m.Limit {
			return false, fmt.Sprintf("%s data is %s old (limit %s)", domain, age.Round(time.Minute), m.Limit), nil
		}
	}
	return true, "", nil
}
