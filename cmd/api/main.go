package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/forge-tickets/internal/api/http"
	"github.com/spec-kit/forge-tickets/internal/api/http/handlers"
	"github.com/spec-kit/forge-tickets/internal/auth"
	"github.com/spec-kit/forge-tickets/internal/config"
	"github.com/spec-kit/forge-tickets/internal/domain"
	"github.com/spec-kit/forge-tickets/internal/events"
	"github.com/spec-kit/forge-tickets/internal/index"
	"github.com/spec-kit/forge-tickets/internal/observability"
	"github.com/spec-kit/forge-tickets/internal/persistence"
	"github.com/spec-kit/forge-tickets/internal/repository"
	"github.com/spec-kit/forge-tickets/internal/service"
	"github.com/spec-kit/forge-tickets/internal/vcs"
	"github.com/spec-kit/forge-tickets/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	changeLog := repository.NewChangeLogStore(pool)
	milestoneStore := repository.NewMilestoneStore(pool)
	snapshotCache := repository.NewSnapshotCache(redis.Client, 15*time.Minute)
	indexer := index.NewMemoryIndexer()
	dispatcher := events.NewInMemoryDispatcher()
	probe := vcs.NewGitProbe(cfg.VCS.ReposRoot, logger)
	metrics := observability.NewMetrics()

	policy := domain.ReviewPolicy{RequireApproval: cfg.Review.RequireApproval}

	ticketService := service.NewTicketService(service.TicketDependencies{
		ChangeLog:   changeLog,
		Cache:       snapshotCache,
		Indexer:     indexer,
		Dispatcher:  dispatcher,
		Probe:       probe,
		DiffTimeout: cfg.Merge.DiffTimeout(),
	})
	mergeService := service.NewMergeService(service.MergeDependencies{
		ChangeLog:    changeLog,
		Cache:        snapshotCache,
		Indexer:      indexer,
		Dispatcher:   dispatcher,
		Probe:        probe,
		Metrics:      metrics,
		MergeTimeout: cfg.Merge.MergeTimeout(),
	})
	milestoneService := service.NewMilestoneService(service.MilestoneDependencies{
		Milestones: milestoneStore,
		Tickets:    ticketService,
		Indexer:    indexer,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	// the index is process-local, rebuild it from the change log
	if err := ticketService.RebuildAllIndexes(ctx); err != nil {
		logger.Warn("index rebuild incomplete", zap.Error(err))
	}

	worker.StartNotificationWorker(notificationService)
	mergeWorker := worker.NewMergeWorker(mergeService, logger, cfg.Merge.QueueSize, cfg.Merge.Workers)
	mergeWorker.Start(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Patchsets:      handlers.NewPatchsetsHandler(ticketService),
		Merge:          handlers.NewMergeHandler(mergeService, mergeWorker, policy),
		Milestones:     handlers.NewMilestonesHandler(milestoneService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	mergeWorker.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
