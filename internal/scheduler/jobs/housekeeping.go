package jobs

import (
	"context"
	"fmt"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/holdings"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// RevaluationJob refreshes prices and recomputes holdings for every
// eligible portfolio. Keeping valuations current between month-ends
// means the T-1 freshness check sees recent data.
type RevaluationJob struct {
	portfolios contracts.PortfolioRepository
	calculator *holdings.Calculator
	logger     *logger.Logger
}

// NewRevaluationJob creates a new revaluation job
func NewRevaluationJob(portfolios contracts.PortfolioRepository, calc *holdings.Calculator, log *logger.Logger) *RevaluationJob {
	return &RevaluationJob{
		portfolios: portfolios,
		calculator: calc,
		logger:     log,
	}
}

// Name returns the job name
func (j *RevaluationJob) Name() string {
	return "portfolio_revaluation"
}

// Schedule returns the cron schedule (every weekday at 10 PM UTC)
func (j *RevaluationJob) Schedule() string {
	return "0 0 22 * * MON-FRI"
}

// Run revalues all eligible portfolios. One portfolio's failure does not
// stop the sweep.
func (j *RevaluationJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled portfolio revaluation")

	portfolios, err := j.portfolios.ListEligible(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}

	failed := 0
	for _, p := range portfolios {
		if err := j.calculator.Recalculate(ctx, p.ID); err != nil {
			j.logger.WithError(err).WithField("portfolio_id", p.ID).Error("Revaluation failed")
			failed++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"portfolios": len(portfolios),
		"failed":     failed,
	}).Info("Scheduled portfolio revaluation completed")

	if failed > 0 {
		return fmt.Errorf("revaluation failed for %d of %d portfolios", failed, len(portfolios))
	}
	return nil
}

// NotificationCleanupJob trims read notifications past the retention
// window.
type NotificationCleanupJob struct {
	notifications NotificationPruner
	logger        *logger.Logger
}

// NotificationPruner deletes read notifications older than the retention
// window.
type NotificationPruner interface {
	PruneRead(ctx context.Context, olderThanDays int) (int, error)
}

// notificationRetentionDays keeps read notifications around long enough
// to audit a full quarter of month-end cycles.
const notificationRetentionDays = 90

// NewNotificationCleanupJob creates a new notification cleanup job
func NewNotificationCleanupJob(pruner NotificationPruner, log *logger.Logger) *NotificationCleanupJob {
	return &NotificationCleanupJob{
		notifications: pruner,
		logger:        log,
	}
}

// Name returns the job name
func (j *NotificationCleanupJob) Name() string {
	return "notification_cleanup"
}

// Schedule returns the cron schedule (weekly, Sunday at 3 AM UTC)
func (j *NotificationCleanupJob) Schedule() string {
	return "0 0 3 * * SUN"
}

// Run executes the notification cleanup
func (j *NotificationCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled notification cleanup")

	count, err := j.notifications.PruneRead(ctx, notificationRetentionDays)
	if err != nil {
		return fmt.Errorf("prune notifications: %w", err)
	}

	if count > 0 {
		j.logger.WithField("removed", count).Info("Notification cleanup completed")
	}
	return nil
}
