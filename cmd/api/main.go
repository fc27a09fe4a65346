package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jalanin/wallet-backend/internal/api"
	"github.com/jalanin/wallet-backend/internal/api/handlers"
	"github.com/jalanin/wallet-backend/internal/auth"
	"github.com/jalanin/wallet-backend/internal/config"
	"github.com/jalanin/wallet-backend/internal/db"
	"github.com/jalanin/wallet-backend/internal/logger"
	"github.com/jalanin/wallet-backend/internal/metrics"
	"github.com/jalanin/wallet-backend/internal/middleware"
	"github.com/jalanin/wallet-backend/internal/mirror"
	"github.com/jalanin/wallet-backend/internal/repository/postgres"
	"github.com/jalanin/wallet-backend/internal/services"
	"github.com/jalanin/wallet-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	store := postgres.NewStore(pool)
	repos := store.Repos()

	wp := worker.NewPool(cfg.Workers)
	defer wp.Stop()

	var pusher services.Pusher = mirror.Noop{}
	if cfg.RedisURL != "" {
		rp, err := mirror.NewRedisPusher(cfg.RedisURL, cfg.MirrorPrefix, repos, log)
		if err != nil {
			log.Error("mirror connect", "err", err)
			os.Exit(1)
		}
		defer rp.Close()
		pusher = rp
	} else {
		log.Warn("no REDIS_URL set, cloud mirror disabled")
	}

	walletSvc := services.NewWalletService(repos, store, wp, pusher, log)
	incomeSvc := services.NewIncomeService(repos, store, walletSvc, log)
	userSvc := services.NewUserService(repos.Users)

	tm := auth.NewTokenManager(cfg.JWTIssuer, cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		15*time.Minute, 7*24*time.Hour)

	r := api.NewRouter(api.RouterDeps{
		Cfg: cfg,
		Auth: &handlers.AuthHandler{
			TM:     tm,
			Users:  userSvc,
			Wallet: walletSvc,
			Income: incomeSvc,
			WP:     wp,
			Log:    log,
		},
		AuthMW:    middleware.NewAuthMiddleware(tm, cfg.Env),
		UserSvc:   userSvc,
		WalletSvc: walletSvc,
		IncomeSvc: incomeSvc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
