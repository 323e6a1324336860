package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/database"
	"github.com/fromscratch/identity/internal/handler"
	"github.com/fromscratch/identity/internal/mail"
	"github.com/fromscratch/identity/internal/middleware"
	"github.com/fromscratch/identity/internal/oauth"
	"github.com/fromscratch/identity/internal/payment"
	"github.com/fromscratch/identity/internal/queue"
	"github.com/fromscratch/identity/internal/repository"
	"github.com/fromscratch/identity/internal/router"
	"github.com/fromscratch/identity/internal/service"
	"github.com/fromscratch/identity/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}
	store := repository.NewMySQLStore(db)

	tokens, err := utils.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	hasher := utils.NewHasher(cfg.BcryptCost)

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		pub := queue.NewAMQPPublisher(cfg.RabbitMQURL, logger)
		defer pub.Close()
		events = pub
	} else {
		logger.Info("RABBITMQ_URL not set, domain events disabled")
	}

	mailer := mail.NewSender(cfg.SendGridAPIKey, cfg.MailFrom, logger)
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeCurrency, logger)
	providers := oauth.NewRegistry(cfg)
	logger.Info("oauth providers",
		zap.Bool("google", cfg.Google.Configured()),
		zap.Bool("github", cfg.GitHub.Configured()))

	authSvc := service.NewAuthService(store, hasher, tokens, mailer, events, logger, service.AuthConfig{
		FrontendOrigin: cfg.FrontendOrigin,
		ResetTTL:       cfg.ResetTokenTTL,
	})
	planSvc := service.NewPlanService(store, logger)
	subSvc := service.NewSubscriptionService(store, gateway, events, logger, cfg.StripeCurrency)

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Info("redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendOrigin},
		AllowCredentials: true,
	}))

	session := middleware.SessionAuth(authSvc)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, authSvc, providers, logger), session, limit)
	router.RegisterSubscriptions(e, handler.NewSubscriptionHandler(planSvc, subSvc), session, cache)
	router.RegisterPayments(e, handler.NewPaymentHandler(subSvc), session)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
