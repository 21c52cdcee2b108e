package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/stockmonitor/monthend/internal/workflow"
	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// The month-end triggers all fire daily at 01:00 UTC and gate on a date
// guard: each one acts only when today lands on its offset from the
// month-end date. Cron alone cannot express "third-to-last day of the
// month", so the guard lives in Run.
const monthEndSchedule = "0 0 1 * * *"

// monthEndJob carries the pieces shared by the three triggers.
type monthEndJob struct {
	workflow *workflow.MonthEnd
	config   *config.Config
	clock    workflow.Clock
	logger   *logger.Logger
}

// daysToMonthEnd returns how many calendar days remain until the current
// month-end. 0 means today is the month-end.
func (j *monthEndJob) daysToMonthEnd() int {
	now := j.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthEnd := workflow.MonthEndDate(now)
	return int(monthEnd.Sub(today).Hours() / 24)
}

func (j *monthEndJob) guard(name string, offset int) bool {
	if !j.config.Batch.Enabled {
		j.logger.WithField("job", name).Debug("Batch execution disabled, skipping")
		return false
	}
	if days := j.daysToMonthEnd(); days != offset {
		j.logger.WithFields(map[string]interface{}{
			"job":               name,
			"days_to_month_end": days,
		}).Debug("Not this trigger's day, skipping")
		return false
	}
	return true
}

func (j *monthEndJob) report(name string, result *workflow.BatchResult) error {
	if result.Failed > 0 {
		return fmt.Errorf("%s completed with %d failures (first: %v)", name, result.Failed, result.Errors[0])
	}
	return nil
}

// PrecomputeJob fires the T-3 trigger: create the scheduled cohort and
// warm caches.
type PrecomputeJob struct {
	monthEndJob
}

// NewPrecomputeJob creates the T-3 trigger job
func NewPrecomputeJob(wf *workflow.MonthEnd, cfg *config.Config, clock workflow.Clock, log *logger.Logger) *PrecomputeJob {
	if clock == nil {
		clock = workflow.RealClock{}
	}
	return &PrecomputeJob{monthEndJob{workflow: wf, config: cfg, clock: clock, logger: log}}
}

// Name returns the job name
func (j *PrecomputeJob) Name() string {
	return "monthend_precompute"
}

// Schedule returns the cron schedule (daily at 1 AM UTC)
func (j *PrecomputeJob) Schedule() string {
	return monthEndSchedule
}

// Run executes the T-3 trigger when today is three days before month-end
func (j *PrecomputeJob) Run(ctx context.Context) error {
	if !j.guard(j.Name(), 3) {
		return nil
	}
	result, err := j.workflow.RunT3(ctx)
	if err != nil {
		return fmt.Errorf("T-3 trigger: %w", err)
	}
	return j.report(j.Name(), result)
}

// StagingJob fires the T-1 trigger: freshness checks and staging.
type StagingJob struct {
	monthEndJob
}

// NewStagingJob creates the T-1 trigger job
func NewStagingJob(wf *workflow.MonthEnd, cfg *config.Config, clock workflow.Clock, log *logger.Logger) *StagingJob {
	if clock == nil {
		clock = workflow.RealClock{}
	}
	return &StagingJob{monthEndJob{workflow: wf, config: cfg, clock: clock, logger: log}}
}

// Name returns the job name
func (j *StagingJob) Name() string {
	return "monthend_staging"
}

// Schedule returns the cron schedule (daily at 1 AM UTC)
func (j *StagingJob) Schedule() string {
	return monthEndSchedule
}

// Run executes the T-1 trigger when today is one day before month-end
func (j *StagingJob) Run(ctx context.Context) error {
	if !j.guard(j.Name(), 1) {
		return nil
	}
	result, err := j.workflow.RunT1(ctx)
	if err != nil {
		return fmt.Errorf("T-1 trigger: %w", err)
	}
	return j.report(j.Name(), result)
}

// FinalizationJob fires the T trigger: pipeline execution and
// finalization on the month-end day itself.
type FinalizationJob struct {
	monthEndJob
}

// NewFinalizationJob creates the T trigger job
func NewFinalizationJob(wf *workflow.MonthEnd, cfg *config.Config, clock workflow.Clock, log *logger.Logger) *FinalizationJob {
	if clock == nil {
		clock = workflow.RealClock{}
	}
	return &FinalizationJob{monthEndJob{workflow: wf, config: cfg, clock: clock, logger: log}}
}

// Name returns the job name
func (j *FinalizationJob) Name() string {
	return "monthend_finalization"
}

// Schedule returns the cron schedule (daily at 1 AM UTC)
func (j *FinalizationJob) Schedule() string {
	return monthEndSchedule
}

// Run executes the T trigger on the month-end day
func (j *FinalizationJob) Run(ctx context.Context) error {
	if !j.guard(j.Name(), 0) {
		return nil
	}
	result, err := j.workflow.RunT(ctx)
	if err != nil {
		return fmt.Errorf("T trigger: %w", err)
	}
	return j.report(j.Name(), result)
}
