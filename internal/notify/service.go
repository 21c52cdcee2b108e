// Package notify creates and persists workflow notifications and hands
// them to the configured dispatcher for delivery.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// Dispatcher delivers a notification over an external channel (email,
// push). Delivery failures must not fail the workflow that raised the
// notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *contracts.Notification) error
}

// NopDispatcher discards notifications. Used when no delivery channel is
// configured; notifications are still persisted and visible in the API.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(ctx context.Context, n *contracts.Notification) error { return nil }

// Service persists notifications and dispatches them.
type Service struct {
	repo       contracts.NotificationRepository
	dispatcher Dispatcher
	logger     *logger.Logger
}

// NewService creates a notification service. A nil dispatcher falls back
// to NopDispatcher.
func NewService(repo contracts.NotificationRepository, d Dispatcher, log *logger.Logger) *Service {
	if d == nil {
		d = NopDispatcher{}
	}
	return &Service{repo: repo, dispatcher: d, logger: log}
}

// Notify persists and dispatches a notification for a workflow event.
// Persistence failure is returned; dispatch failure is only logged so a
// broken delivery channel never blocks a run.
func (s *Service) Notify(ctx context.Context, userID, runID string, category contracts.NotificationCategory, title, message string) error {
	n := &contracts.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		RunID:     runID,
		Category:  category,
		Priority:  category.DefaultPriority(),
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":  userID,
			"category": string(category),
		}).Error("Notification dispatch failed")
	}

	return nil
}

// Precompute announces that a run was scheduled at the T-3 trigger.
func (s *Service) Precompute(ctx context.Context, userID, runID string, monthEnd time.Time) error {
	return s.Notify(ctx, userID, runID, contracts.NotifyPrecompute,
		"Month-end run scheduled",
		fmt.Sprintf("Your recommendation run for %s has been scheduled. Pre-computation has started.", monthEnd.Format("2006-01-02")))
}

// Staged announces the T-1 staging transition.
func (s *Service) Staged(ctx context.Context, userID, runID string, monthEnd time.Time) error {
	return s.Notify(ctx, userID, runID, contracts.NotifyStaged,
		"Month-end run staged",
		fmt.Sprintf("Your recommendation run for %s is staged and will be finalized at month-end.", monthEnd.Format("2006-01-02")))
}

// Finalized announces a completed run.
func (s *Service) Finalized(ctx context.Context, userID, runID string, recommendations int) error {
	return s.Notify(ctx, userID, runID, contracts.NotifyFinalized,
		"Month-end recommendations ready",
		fmt.Sprintf("Your month-end run has finalized with %d recommendations.", recommendations))
}

// DataStale warns that the freshness check failed during staging.
func (s *Service) DataStale(ctx context.Context, userID, runID, detail string) error {
	return s.Notify(ctx, userID, runID, contracts.NotifyDataStale,
		"Stale data detected",
		fmt.Sprintf("Data freshness check failed for your staged run: %s. The run will still finalize; review the results carefully.", detail))
}

// RunFailed reports a run that could not complete.
func (s *Service) RunFailed(ctx context.Context, userID, runID, reason string) error {
	return s.Notify(ctx, userID, runID, contracts.NotifyRunFailed,
		"Month-end run failed",
		fmt.Sprintf("Your recommendation run failed: %s", reason))
}

// ConstraintViolated reports a hard violation surfaced during a run.
func (s *Service) ConstraintViolated(ctx context.Context, userID, runID, detail string) error {
	return s.Notify(ctx, userID, runID, contracts.NotifyConstraintViolated,
		"Constraint violation",
		detail)
}
