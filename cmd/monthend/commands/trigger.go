package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockmonitor/monthend/internal/workflow"
	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// triggerCmd fires one stage of the month-end protocol by hand. Meant
// for operators recovering from a missed cron fire.
var triggerCmd = &cobra.Command{
	Use:   "trigger [t3|t1|t|offcycle]",
	Short: "Fire a month-end trigger manually",
	Long: `Fire one stage of the month-end protocol outside its schedule.

The stage triggers (t3, t1, t) act on the current month-end cohort and
keep their idempotency guards, so re-firing a stage that already ran is
safe. offcycle creates and executes an on-demand run for one user.

Examples:
  go run ./cmd/monthend trigger t3
  go run ./cmd/monthend trigger t
  go run ./cmd/monthend trigger offcycle --user 7f9c0a12`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

var triggerUser string

func init() {
	rootCmd.AddCommand(triggerCmd)

	triggerCmd.Flags().StringVar(&triggerUser, "user", "", "user id (required for offcycle)")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	svc, err := buildServices(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	defer svc.close(ctx)

	switch args[0] {
	case "t3":
		result, err := svc.monthEnd.RunT3(ctx)
		return report("T-3", result, err)
	case "t1":
		result, err := svc.monthEnd.RunT1(ctx)
		return report("T-1", result, err)
	case "t":
		result, err := svc.monthEnd.RunT(ctx)
		return report("T", result, err)
	case "offcycle":
		if triggerUser == "" {
			return fmt.Errorf("--user is required for offcycle")
		}
		run, err := svc.monthEnd.TriggerOffCycle(ctx, triggerUser)
		if err != nil {
			return fmt.Errorf("off-cycle run: %w", err)
		}
		fmt.Printf("Run %s finalized: %d recommendations, decision %s\n",
			run.ID, run.RecommendationCount, run.Decision)
		return nil
	default:
		return fmt.Errorf("unknown trigger %q (want t3, t1, t, or offcycle)", args[0])
	}
}

func report(stage string, result *workflow.BatchResult, err error) error {
	if err != nil {
		return fmt.Errorf("%s trigger: %w", stage, err)
	}
	fmt.Printf("%s trigger: %d succeeded, %d failed, %d skipped\n",
		stage, result.Succeeded, result.Failed, result.Skipped)
	for _, e := range result.Errors {
		fmt.Printf("  - %v\n", e)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%s trigger completed with %d failures", stage, result.Failed)
	}
	return nil
}
