package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"    // Loads .env in development
	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/ticket-reconciler/internal/admission"
	"github.com/iliyamo/ticket-reconciler/internal/clients"
	"github.com/iliyamo/ticket-reconciler/internal/config" // Internal config loader
	"github.com/iliyamo/ticket-reconciler/internal/database"
	"github.com/iliyamo/ticket-reconciler/internal/gateway"
	"github.com/iliyamo/ticket-reconciler/internal/handler"
	"github.com/iliyamo/ticket-reconciler/internal/hold"
	"github.com/iliyamo/ticket-reconciler/internal/jobs"
	"github.com/iliyamo/ticket-reconciler/internal/ledger"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/middleware"
	"github.com/iliyamo/ticket-reconciler/internal/queue"
	"github.com/iliyamo/ticket-reconciler/internal/reconcile"
	"github.com/iliyamo/ticket-reconciler/internal/refund"
	"github.com/iliyamo/ticket-reconciler/internal/repository"
	"github.com/iliyamo/ticket-reconciler/internal/router" // Internal router setup
	"github.com/iliyamo/ticket-reconciler/internal/service"
)

func main() {
	_ = godotenv.Load()  // A missing .env is fine outside development
	cfg := config.Load() // Load environment config
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()
	if cfg.InitSchema {
		if err := repository.InitializeSchema(ctx, db); err != nil {
			logrus.WithError(err).Fatal("schema initialization failed")
		}
	}

	redisOpt := config.RedisOptions()
	rdb, err := config.NewRedisClient(ctx, redisOpt)
	if err != nil {
		logrus.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	repo := repository.New(db)
	ldg := ledger.New(repo, hold.NewRedisStore(rdb, "hold"), cfg.HoldTTL)
	gw := gateway.WithRetry(
		gateway.NewHTTPClient(cfg.GatewayURL, cfg.GatewaySecretKey, cfg.GatewayTimeout),
		gateway.RetryPolicy{MaxAttempts: cfg.GatewayRetryMax, Delay: cfg.GatewayRetryDelay},
	)
	gate := admission.New(repo,
		clients.NewNoGoClient(cfg.NoGoURL, cfg.NoGoAPIKey, cfg.VerifyTimeout),
		clients.NewFaceClient(cfg.FaceURL, cfg.FaceAPIKey, cfg.GatewayTimeout),
		cfg.VerifyTimeout,
	)
	reconciler := reconcile.New(repo, ldg, gw, service.NewPublisher(cfg.RabbitMQURL), cfg.ReconcileGrace)
	refunds := refund.New(repo, ldg, gw)

	asynqOpt := config.AsynqRedisOpt(redisOpt)
	asynqClient := asynq.NewClient(asynqOpt)
	defer asynqClient.Close()
	worker := jobs.NewWorker(asynqOpt, cfg.WorkerConcurrency,
		jobs.Schedule{Reconcile: cfg.ReconcileCron, ReleaseHolds: cfg.HoldSweepCron},
		&jobs.Handlers{Reconciler: reconciler, Refunds: refunds, Holds: ldg},
	)
	consumer := queue.NewConsumer(cfg.RabbitMQURL, cfg.PurchaseLogDir)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.RequestLogger())
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb})
	router.RegisterGate(e, handler.NewGateHandler(gate), cfg.JWTSecret, limiter)
	router.RegisterCustomer(e, handler.NewCustomerHandler(ldg), cfg.JWTSecret, limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(jobs.NewDispatcher(asynqClient), ldg), cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
	logrus.Info("shut down cleanly")
}
