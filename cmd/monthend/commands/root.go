package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "monthend",
	Short: "Month-end portfolio recommendation service",
	Long: `Month-end recommendation pipeline and workflow service.

Runs the T-3 / T-1 / T month-end protocol: schedule runs three days
before month-end, stage them the day before, and finalize portfolio
recommendations on the month-end day.

Usage:
  go run ./cmd/monthend [command]

Examples:
  go run ./cmd/monthend api
  go run ./cmd/monthend scheduler
  go run ./cmd/monthend trigger t3
  go run ./cmd/monthend trigger offcycle --user <id>`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
