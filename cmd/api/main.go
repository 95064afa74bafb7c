package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/devanshkukreja/looms-backend/api/routes"
	authsvc "github.com/devanshkukreja/looms-backend/internal/auth"
	"github.com/devanshkukreja/looms-backend/internal/cart"
	"github.com/devanshkukreja/looms-backend/internal/checkout"
	"github.com/devanshkukreja/looms-backend/internal/orders"
	"github.com/devanshkukreja/looms-backend/pkg/auth/session"
	"github.com/devanshkukreja/looms-backend/pkg/config"
	"github.com/devanshkukreja/looms-backend/pkg/db"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/metrics"
	"github.com/devanshkukreja/looms-backend/pkg/migrate"
	"github.com/devanshkukreja/looms-backend/pkg/redis"
	"github.com/devanshkukreja/looms-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		closeErr := dbClient.Close()
		return multierr.Append(err, closeErr)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return err
	}

	authRepo, err := authsvc.NewRepository(dbClient)
	if err != nil {
		return err
	}
	authService, err := authsvc.NewService(
		redisClient,
		authRepo,
		sessionManager,
		authsvc.NewLogMailer(logg),
		cfg.JWT,
		cfg.OTP,
		cfg.AuthRateLimit,
		logg,
	)
	if err != nil {
		return err
	}

	ordersRepo, err := orders.NewRepository(dbClient)
	if err != nil {
		return err
	}
	ordersService, err := orders.NewService(ordersRepo, squareClient, logg)
	if err != nil {
		return err
	}

	cartStore, err := cart.NewStore(redisClient, cfg.Checkout.Currency, logg)
	if err != nil {
		return err
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)
	orchestrator, err := checkout.NewOrchestrator(cartStore, authService, ordersService, cfg.Checkout, logg, checkoutMetrics)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			cartStore,
			orchestrator,
			ordersService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	startCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(startCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logg.Info(context.Background(), "shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
