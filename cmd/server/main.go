package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/qjdesk/complaint-desk/internal/config"
	"github.com/qjdesk/complaint-desk/internal/database"
	"github.com/qjdesk/complaint-desk/internal/handler"
	"github.com/qjdesk/complaint-desk/internal/lock"
	"github.com/qjdesk/complaint-desk/internal/logging"
	"github.com/qjdesk/complaint-desk/internal/middleware"
	"github.com/qjdesk/complaint-desk/internal/queue"
	"github.com/qjdesk/complaint-desk/internal/repository"
	"github.com/qjdesk/complaint-desk/internal/router"
	"github.com/qjdesk/complaint-desk/internal/service"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.Setup(cfg.Env, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.OptionsFrom(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = database.Migrate(migrateCtx, db)
	cancel()
	if err != nil {
		return err
	}

	tokens, err := utils.NewTokenIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return err
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and catalog cache disabled")
	} else {
		defer rdb.Close()
	}

	locks := lock.NewManager(10 * time.Millisecond)
	users := repository.NewUserRepo(db)
	creds := repository.NewTokenRepo(db)
	complaints := repository.NewComplaintRepo(db, cfg.FolioMaxAttempts)
	resolutions := repository.NewResolutionRepo(db)

	broker := config.LoadBrokerConfig()
	var events service.EventPublisher = service.NopPublisher{}
	if broker.Enabled() {
		events = queue.NewPublisher(broker)
	} else {
		logger.Info("RABBITMQ_URL not set; domain events are not published")
	}

	guard := service.NewSessionGuard(creds, locks, cfg.SessionCap, cfg.LockTimeout, logger)
	authSvc := service.NewAuthService(users, creds, tokens, guard, cfg.RefreshRotate, cfg.BcryptCost, logger)
	complaintSvc := service.NewComplaintService(complaints, events, logger)
	resolutionSvc := service.NewResolutionService(resolutions, events, logger)
	adminSvc := service.NewAdminService(users, creds, logger)

	opts := handler.Options{Dev: cfg.IsDev(), Timeout: cfg.DBTimeout, Log: logger}

	extractIP, err := middleware.ClientIP(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractIP
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))

	router.Register(e, router.Deps{
		Auth:         handler.NewAuthHandler(authSvc, guard.Cap(), opts),
		Complaints:   handler.NewComplaintHandler(complaintSvc, resolutionSvc, opts),
		Admin:        handler.NewAdminHandler(adminSvc, opts),
		Health:       handler.Health(db),
		Tokens:       tokens,
		Sessions:     guard,
		SessionWait:  cfg.LockTimeout + cfg.DBTimeout,
		LoginLimit:   middleware.NewTokenBucket(config.LoginRateLimit(), rdb, logger),
		SubmitLimit:  middleware.NewTokenBucket(config.SubmitRateLimit(), rdb, logger),
		CatalogCache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger),
		Log:          logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return e.Shutdown(shutdownCtx)
	})
	if broker.Enabled() && broker.ConsumeAudit {
		consumer := queue.NewAuditConsumer(broker, locks, cfg.LockTimeout, logger)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}
