package contracts

import (
	"context"
	"time"
)

// RunRepository persists recommendation runs and enforces the
// one-scheduled-run-per-date idempotency guard.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id string) (*Run, error)
	// ExistsScheduled reports whether any SCHEDULED-type run exists for
	// the month-end date. This is the T-3 idempotency guard.
	ExistsScheduled(ctx context.Context, scheduledDate time.Time) (bool, error)
	// ListByDateStatus returns runs for a month-end date in a given
	// status. T-1 loads SCHEDULED runs, T loads STAGED runs.
	ListByDateStatus(ctx context.Context, scheduledDate time.Time, status RunStatus) ([]*Run, error)
	// LatestFinalized returns the most recent FINALIZED run for a user,
	// or nil when none exists.
	LatestFinalized(ctx context.Context, userID string) (*Run, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Run, error)
	ListByStatus(ctx context.Context, status RunStatus) ([]*Run, error)
	UpdateStatus(ctx context.Context, id string, from, to RunStatus) error
	Update(ctx context.Context, run *Run) error
	// ArchiveOlderThan moves FINALIZED and FAILED runs whose completion
	// predates the cutoff to ARCHIVED, returning the count.
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// RecommendationRepository persists the ranked output of a run.
type RecommendationRepository interface {
	CreateBatch(ctx context.Context, recs []*Recommendation) error
	ListByRun(ctx context.Context, runID string) ([]*Recommendation, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// ExclusionRepository persists symbols dropped during a run. Exclusions
// are deleted and regenerated when a run recomputes.
type ExclusionRepository interface {
	CreateBatch(ctx context.Context, excls []*Exclusion) error
	ListByRun(ctx context.Context, runID string) ([]*Exclusion, error)
	DeleteByRun(ctx context.Context, runID string) error
}

// PortfolioRepository reads portfolios eligible for month-end runs.
type PortfolioRepository interface {
	GetByID(ctx context.Context, id string) (*Portfolio, error)
	GetByUser(ctx context.Context, userID string) (*Portfolio, error)
	// ListEligible returns portfolios with an active universe and an
	// active constraint profile.
	ListEligible(ctx context.Context) ([]*Portfolio, error)
	Update(ctx context.Context, p *Portfolio) error
}

// HoldingRepository persists portfolio positions.
type HoldingRepository interface {
	ListByPortfolio(ctx context.Context, portfolioID string) ([]*Holding, error)
	Upsert(ctx context.Context, h *Holding) error
	ReplaceAll(ctx context.Context, portfolioID string, holdings []*Holding) error
	Update(ctx context.Context, h *Holding) error
}

// UniverseRepository reads universes and their constituents.
type UniverseRepository interface {
	GetByID(ctx context.Context, id string) (*Universe, error)
	ListConstituents(ctx context.Context, universeID string, activeOnly bool) ([]*UniverseConstituent, error)
}

// ProfileRepository persists constraint profiles. Activation deactivates
// any other active profile for the user in the same transaction.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*ConstraintProfile, error)
	GetActive(ctx context.Context, userID string) (*ConstraintProfile, error)
	Create(ctx context.Context, p *ConstraintProfile) error
	// CreateVersion inserts a new version of an existing profile and
	// returns it; the prior version is left untouched for audit.
	CreateVersion(ctx context.Context, p *ConstraintProfile) (*ConstraintProfile, error)
	Activate(ctx context.Context, userID, profileID string) error
}

// NotificationRepository persists workflow notifications with read tracking.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}
