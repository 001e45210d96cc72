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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/stepstudio/stepstudio/core"
	"github.com/stepstudio/stepstudio/pkg/audit"
	"github.com/stepstudio/stepstudio/pkg/config"
	"github.com/stepstudio/stepstudio/pkg/cookie"
	"github.com/stepstudio/stepstudio/pkg/logger"
	"github.com/stepstudio/stepstudio/pkg/pg"
	"github.com/stepstudio/stepstudio/pkg/ratelimit"
	"github.com/stepstudio/stepstudio/pkg/redis"
	"github.com/stepstudio/stepstudio/svc/auth"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// First secret signs new cookies; older ones still verify.
	CookieSecrets []string `env:"COOKIE_SECRETS,required" envSeparator:","`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	PG    pg.Config
	Redis redis.Config
	Auth  auth.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(logger.WithEnvironment(cfg.Env, "stepstudio"))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	cookies, err := cookie.New(cfg.CookieSecrets)
	if err != nil {
		return err
	}

	// Redemption rate limiting is advisory; a missing Redis degrades the
	// limiter, not the login path.
	var limiter *ratelimit.Limiter
	if rdb, err := redis.Connect(ctx, cfg.Redis); err != nil {
		log.Warn("redis unavailable, redemption rate limiting disabled", logger.Error(err))
	} else {
		defer rdb.Close()
		limiter, err = ratelimit.New(ratelimit.NewRedisStore(rdb, "stepstudio"), ratelimit.Config{
			Limit:  cfg.Auth.RedeemRateLimit,
			Window: cfg.Auth.RedeemRateWindow,
		})
		if err != nil {
			return err
		}
	}

	store := auth.NewPGStore(pool, cfg.PG.QueryTimeout)
	sink := audit.NewSlogSink(log)

	manager := auth.NewManager(store,
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithManagerLogger(log),
		auth.WithAuditSink(sink),
	)
	switcher := auth.NewRoleSwitcher(store, store,
		auth.WithSwitcherTTL(cfg.Auth.SessionTTL),
		auth.WithSwitcherLogger(log),
		auth.WithSwitcherAuditSink(sink),
	)
	tokens := auth.NewTokenService(store, cfg.Auth.BaseURL,
		auth.WithTokenLogger(log),
		auth.WithTokenAuditSink(sink),
	)
	cleaner := auth.NewCleaner(store,
		auth.WithCleanupInterval(cfg.Auth.CleanupInterval),
		auth.WithPurgeAfter(cfg.Auth.PurgeAfter),
		auth.WithCleanerLogger(log),
	)

	go cleaner.Run(ctx)

	handler := auth.NewHandler(manager, switcher, tokens, cleaner, cookies, limiter, cfg.Auth, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", healthHandler(pg.Healthcheck(pool)))
	r.Mount("/auth", handler.Router())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(errors.New("graceful shutdown failed"), err)
	}
	return nil
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			core.JSONError(w, core.ErrServiceUnavailable)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
