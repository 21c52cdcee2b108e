package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockmonitor/monthend/internal/api"
	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Start the HTTP API and WebSocket server.

Endpoints:
  GET  /health                          - Health check
  GET  /api/runs                        - List the caller's runs
  POST /api/runs                        - Trigger an off-cycle run
  GET  /api/runs/{id}                   - Run detail
  GET  /api/runs/{id}/recommendations   - Recommendation lines
  GET  /api/runs/{id}/exclusions        - Exclusion audit lines
  GET  /api/portfolio                   - Portfolio summary
  POST /api/portfolio/holdings/upload   - CSV holdings upload
  GET  /api/profiles/active             - Active constraint profile
  GET  /api/notifications               - Notifications
  WS   /ws/runs                         - Live run status stream

Example:
  go run ./cmd/monthend api
  go run ./cmd/monthend api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log := logger.New(cfg)
	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	svc, err := buildServices(cfg, log)
	if err != nil {
		return err
	}

	runH, holdH, profH, notifH := svc.handlers(log)
	router := api.NewRouter(runH, holdH, profH, notifH, svc.hub, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("Server running on http://localhost:%s\n", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	svc.close(ctx)

	log.Info("Server stopped")
	return nil
}
