package contracts

import "time"

// RunType distinguishes scheduled month-end runs from on-demand runs.
type RunType string

const (
	RunTypeScheduled RunType = "SCHEDULED"
	RunTypeOffCycle  RunType = "OFF_CYCLE"
)

// RunStatus is the workflow state of a recommendation run.
type RunStatus string

const (
	StatusScheduled  RunStatus = "SCHEDULED"
	StatusPreCompute RunStatus = "PRE_COMPUTE"
	StatusStaged     RunStatus = "STAGED"
	StatusRunning    RunStatus = "RUNNING"
	StatusFinalized  RunStatus = "FINALIZED"
	StatusFailed     RunStatus = "FAILED"
	StatusArchived   RunStatus = "ARCHIVED"
)

// order assigns each non-terminal status a position in the forward-only
// progression. FAILED and ARCHIVED are handled separately.
var statusOrder = map[RunStatus]int{
	StatusScheduled:  0,
	StatusPreCompute: 1,
	StatusStaged:     2,
	StatusRunning:    3,
	StatusFinalized:  4,
}

// IsTerminal reports whether no further forward transition exists.
func (s RunStatus) IsTerminal() bool {
	return s == StatusFinalized || s == StatusFailed || s == StatusArchived
}

// CanTransitionTo reports whether a run may move from s to next. Status only
// moves forward, with two exceptions: any non-terminal status may fail, and
// FINALIZED or FAILED runs may be archived.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if next == StatusFailed {
		return !s.IsTerminal()
	}
	if next == StatusArchived {
		return s == StatusFinalized || s == StatusFailed
	}

	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// RunDecision records whether a finalized run proposes trades.
const (
	DecisionPending = "PENDING"
	DecisionTrade   = "TRADE"
	DecisionNoTrade = "NO_TRADE"
)

// Run is one unit of workflow state: a scheduled or off-cycle
// recommendation computation for a single portfolio.
type Run struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	PortfolioID    string `json:"portfolio_id"`
	UniverseID     string `json:"universe_id"`
	ProfileID      string `json:"profile_id"`
	ProfileVersion int    `json:"profile_version"`

	RunType RunType   `json:"run_type"`
	Status  RunStatus `json:"status"`

	ScheduledDate time.Time  `json:"scheduled_date"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMs    int64      `json:"execution_duration_ms,omitempty"`

	RecommendationCount int `json:"recommendation_count"`
	ExclusionCount      int `json:"exclusion_count"`

	ExpectedTurnoverPct float64 `json:"expected_turnover_pct"`
	EstimatedCostBps    float64 `json:"estimated_cost_bps"`
	ExpectedAlphaBps    float64 `json:"expected_alpha_bps"`

	Decision       string `json:"decision"`
	DecisionReason string `json:"decision_reason,omitempty"`

	// PreviousRunID links to the prior finalized run for the same user,
	// used for change classification.
	PreviousRunID string `json:"previous_run_id,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	DataFreshnessCheckPassed         bool `json:"data_freshness_check_passed"`
	ConstraintFeasibilityCheckPassed bool `json:"constraint_feasibility_check_passed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStatusUpdate is the payload broadcast to the real-time channel
// whenever a run's status changes.
type RunStatusUpdate struct {
	RunID               string     `json:"runId"`
	Status              RunStatus  `json:"status"`
	Progress            int        `json:"progress"` // 0-100
	Stage               string     `json:"stage"`
	Timestamp           time.Time  `json:"timestamp"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
}
