package commands

import (
	"context"
	"fmt"

	"github.com/stockmonitor/monthend/internal/api/handlers"
	"github.com/stockmonitor/monthend/internal/constraint"
	"github.com/stockmonitor/monthend/internal/engine"
	"github.com/stockmonitor/monthend/internal/external/feeds"
	"github.com/stockmonitor/monthend/internal/holdings"
	"github.com/stockmonitor/monthend/internal/notify"
	"github.com/stockmonitor/monthend/internal/realtime"
	"github.com/stockmonitor/monthend/internal/recommend"
	"github.com/stockmonitor/monthend/internal/universe"
	"github.com/stockmonitor/monthend/internal/work"
	"github.com/stockmonitor/monthend/internal/workflow"
	"github.com/stockmonitor/monthend/pkg/config"
	"github.com/stockmonitor/monthend/pkg/database"
	"github.com/stockmonitor/monthend/pkg/httputil"
	"github.com/stockmonitor/monthend/pkg/logger"
	"github.com/stockmonitor/monthend/pkg/redis"
)

// services holds the wired application graph shared by the api,
// scheduler, and trigger commands.
type services struct {
	db    *database.DB
	cache *redis.Client

	runs          *workflow.RunRepo
	portfolios    *holdings.PortfolioRepo
	holdingRepo   *holdings.Repository
	universes     *universe.Repository
	profiles      *constraint.Repository
	notifications *notify.Repository

	calculator *holdings.Calculator
	notifier   *notify.Service
	hub        *realtime.Hub
	pipeline   *recommend.Pipeline
	monthEnd   *workflow.MonthEnd
	pool       *work.Pool
}

// buildServices connects the database and wires every component. Redis
// is optional: when disabled the precompute batch only logs.
func buildServices(cfg *config.Config, log *logger.Logger) (*services, error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database")

	s := &services{db: db}

	var warmCache *redis.Cache
	if cfg.Redis.Enabled {
		client, err := redis.New(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		s.cache = client
		warmCache = redis.NewCache(client, "monthend")
		log.Info("Connected to redis")
	}

	// Repositories
	s.runs = workflow.NewRunRepo(db.Pool)
	s.portfolios = holdings.NewPortfolioRepo(db.Pool)
	s.holdingRepo = holdings.NewRepository(db.Pool)
	s.universes = universe.NewRepository(db.Pool)
	s.profiles = constraint.NewRepository(db.Pool)
	s.notifications = notify.NewRepository(db.Pool)

	recRepo := recommend.NewRepository(db.Pool)
	exclRepo := recommend.NewExclusionRepo(db.Pool)

	// External feeds
	httpClient := httputil.New(cfg, log)
	prices := feeds.NewPriceClient(cfg, httpClient, log)
	fx := feeds.NewFxClient(cfg, httpClient, log)

	var earnings recommend.EarningsSource
	if cfg.Feeds.EarningsBaseURL != "" {
		earnings = feeds.NewEarningsClient(cfg, httpClient, log)
	}

	// Services
	s.calculator = holdings.NewCalculator(s.portfolios, s.holdingRepo, prices, fx, log)
	s.notifier = notify.NewService(s.notifications, nil, log)
	s.hub = realtime.NewHub(log)
	s.pool = work.NewPool(log)

	s.pipeline = recommend.NewPipeline(
		s.runs, recRepo, exclRepo,
		s.portfolios, s.holdingRepo, s.universes, s.profiles,
		engine.NewEvaluator(), nil, earnings, s.hub, log)

	batch := workflow.NewCohortBatch(s.runs, s.universes, prices, warmCache, nil, log)
	s.monthEnd = workflow.NewMonthEnd(
		s.runs, s.portfolios, s.pipeline, s.notifier,
		nil, batch, s.hub, nil, log)

	return s, nil
}

// handlers builds the HTTP handler set over the wired services.
func (s *services) handlers(log *logger.Logger) (*handlers.RunHandler, *handlers.HoldingHandler, *handlers.ProfileHandler, *handlers.NotificationHandler) {
	recRepo := recommend.NewRepository(s.db.Pool)
	exclRepo := recommend.NewExclusionRepo(s.db.Pool)

	runH := handlers.NewRunHandler(s.runs, recRepo, exclRepo, s.monthEnd, s.pool, log)
	holdH := handlers.NewHoldingHandler(s.portfolios, s.holdingRepo, s.calculator, log)
	profH := handlers.NewProfileHandler(s.profiles, log)
	notifH := handlers.NewNotificationHandler(s.notifications, log)
	return runH, holdH, profH, notifH
}

// close releases connections in reverse dependency order.
func (s *services) close(ctx context.Context) {
	s.pool.Shutdown()
	s.hub.Shutdown(ctx)
	if s.cache != nil {
		s.cache.Close()
	}
	s.db.Close()
}
