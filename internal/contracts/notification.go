package contracts

import "time"

// NotificationCategory identifies the workflow event a notification reports.
type NotificationCategory string

const (
	NotifyPrecompute         NotificationCategory = "T-3_PRECOMPUTE"
	NotifyStaged             NotificationCategory = "T-1_STAGED"
	NotifyFinalized          NotificationCategory = "T_FINALIZED"
	NotifyDataStale          NotificationCategory = "DATA_STALE"
	NotifyRunFailed          NotificationCategory = "RUN_FAILED"
	NotifyConstraintViolated NotificationCategory = "CONSTRAINT_VIOLATED"
)

// NotificationPriority orders notifications for display.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityMedium NotificationPriority = "MEDIUM"
	PriorityHigh   NotificationPriority = "HIGH"
)

// DefaultPriority returns the priority assigned to a category when the
// caller does not override it.
func (c NotificationCategory) DefaultPriority() NotificationPriority {
	switch c {
	case NotifyFinalized, NotifyDataStale, NotifyRunFailed, NotifyConstraintViolated:
		return PriorityHigh
	case NotifyPrecompute, NotifyStaged:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Notification is a persisted, per-user workflow event with read tracking.
type Notification struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	RunID  string `json:"run_id,omitempty"`

	Category NotificationCategory `json:"category"`
	Priority NotificationPriority `json:"priority"`

	Title   string `json:"title"`
	Message string `json:"message"`

	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
