package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"orderflow/cmd/orderflow/config"
	"orderflow/internal/orderflow"
	"orderflow/internal/orderflow/catalog"
	"orderflow/internal/orderflow/data/database"
	"orderflow/internal/orderflow/data/dbrepository"
	"orderflow/internal/orderflow/duplicates"
	"orderflow/internal/orderflow/metrics"
	"orderflow/internal/orderflow/notifier"
	"orderflow/internal/orderflow/scheduler"
	"orderflow/internal/orderflow/service"
	"orderflow/pkg/logging"
	"orderflow/pkg/pgxstorage"
	"orderflow/pkg/rediscache"
	"orderflow/pkg/resilience"
	"orderflow/pkg/workerpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewZapLogger(zapcore.DebugLevel)
	if err != nil {
		log.Fatal(err)
	}

	dbFactory := database.NewPgxDatabaseFactory(cfg.DB)
	storage, err := pgxstorage.New(dbFactory)
	if err != nil {
		log.Fatal(err)
	}
	transactionManager := pgxstorage.NewTransactionsManager(storage)
	repository := dbrepository.New(storage, transactionManager, logger)

	sharedCache := rediscache.New(cfg.Redis)
	duplicateChecker := duplicates.NewChecker(cfg.Duplicates, sharedCache, logger)
	orderMetrics := metrics.New(prometheus.DefaultRegisterer)

	catalogClient := catalog.NewClient(cfg.Catalog, logger)
	notifierClient := notifier.NewClient(cfg.Notifier, logger)
	catalogExecutor := resilience.NewExecutor("catalog", resilience.DefaultConfig(), logger)
	notifierExecutor := resilience.NewExecutor("notifier", resilience.DefaultConfig(), logger)

	processingPool := workerpool.New(cfg.ProcessingPool, logger)
	notifyPool := workerpool.New(cfg.NotifyPool, logger)
	sweepPool := workerpool.New(cfg.SweepPool, logger)

	orderService := service.NewOrders(
		cfg.Service,
		repository,
		catalogClient,
		catalogExecutor,
		notifierClient,
		notifierExecutor,
		duplicateChecker,
		orderMetrics,
		processingPool,
		notifyPool,
		logger,
	)

	sweeper := scheduler.NewScheduler(
		cfg.Scheduler,
		repository,
		orderService,
		notifierClient,
		sweepPool,
		orderMetrics,
		logger,
	)

	server := orderflow.NewServer(cfg.Server, orderService, logger)

	rootCtx, cancelCtx := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGABRT,
	)
	defer cancelCtx()

	pools := []*workerpool.Pool{processingPool, notifyPool, sweepPool}
	if err := run(rootCtx, cfg, server, sweeper, pools, logger); err != nil {
		logger.ErrorCtx(rootCtx, "Server shutdown with error", zap.Error(err))
	} else {
		logger.InfoCtx(rootCtx, "Server shutdown gracefully")
	}
}

func run(
	rootCtx context.Context,
	cfg *config.Config,
	server *orderflow.Server,
	sweeper *scheduler.Scheduler,
	pools []*workerpool.Pool,
	logger *logging.ZapLogger,
) error {
	g, ctx := errgroup.WithContext(rootCtx)

	context.AfterFunc(ctx, func() {
		ctx, cancelCtx := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelCtx()

		<-ctx.Done()
		log.Fatal("failed to gracefully shutdown the server")
	})

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(ctx); err != nil {
			return fmt.Errorf("scheduler error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer logger.InfoCtx(ctx, "Shutting down server")
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		for _, pool := range pools {
			pool.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("goroutine error occured: %w", err)
	}

	return nil
}
