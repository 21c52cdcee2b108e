package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockmonitor/monthend/internal/scheduler"
	"github.com/stockmonitor/monthend/internal/scheduler/jobs"
	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Start the month-end job scheduler",
	Long: `Start the cron scheduler that drives the month-end protocol.

Jobs:
  monthend_precompute    - T-3 trigger (daily at 01:00 UTC, date-guarded)
  monthend_staging       - T-1 trigger (daily at 01:00 UTC, date-guarded)
  monthend_finalization  - T trigger (daily at 01:00 UTC, date-guarded)
  portfolio_revaluation  - weekday holdings revaluation
  notification_cleanup   - weekly read-notification pruning

Set BATCH_ENABLED=false to keep jobs registered but inert.

Example:
  go run ./cmd/monthend scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)
	log.WithField("env", cfg.Env).Info("Initializing scheduler")

	svc, err := buildServices(cfg, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)

	jobList := []scheduler.Job{
		jobs.NewPrecomputeJob(svc.monthEnd, cfg, nil, log),
		jobs.NewStagingJob(svc.monthEnd, cfg, nil, log),
		jobs.NewFinalizationJob(svc.monthEnd, cfg, nil, log),
		jobs.NewRevaluationJob(svc.portfolios, svc.calculator, log),
		jobs.NewNotificationCleanupJob(svc.notifications, log),
	}
	for _, job := range jobList {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name(), err)
		}
	}

	sched.Start()
	log.WithField("jobs", len(jobList)).Info("Scheduler started")
	fmt.Println("Scheduler running. Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc.close(ctx)

	log.Info("Scheduler stopped")
	return nil
}
