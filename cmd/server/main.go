package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/salvador2999/missions/internal/client"
	"github.com/salvador2999/missions/internal/config"
	"github.com/salvador2999/missions/internal/database"
	"github.com/salvador2999/missions/internal/evallog"
	"github.com/salvador2999/missions/internal/evaluation"
	"github.com/salvador2999/missions/internal/evaluator"
	"github.com/salvador2999/missions/internal/game"
	"github.com/salvador2999/missions/internal/handler/health"
	"github.com/salvador2999/missions/internal/migrations"
	"github.com/salvador2999/missions/internal/mission"
	"github.com/salvador2999/missions/internal/ratelimit"
	"github.com/salvador2999/missions/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	checks := map[string]health.Checker{}

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db, database.DialectSQLite); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	checks["sqlite"] = dbChecker{db}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Evaluation log ---
	var sinks evallog.Fanout
	switch {
	case cfg.EvaluationLogDSN == "":
		sinks = append(sinks, evallog.NewSQLStore(db, database.DialectSQLite))
	case database.IsPostgresDSN(cfg.EvaluationLogDSN):
		pg, err := database.OpenPostgres(ctx, cfg.EvaluationLogDSN)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		if err := migrations.Run(pg, database.DialectPostgres); err != nil {
			return fmt.Errorf("running postgres migrations: %w", err)
		}
		sinks = append(sinks, evallog.NewSQLStore(pg, database.DialectPostgres))
		checks["postgres"] = dbChecker{pg}
		logger.Info("evaluation log in postgres")
	default:
		return errors.New("EVALUATION_LOG_DSN must be a postgres URL or keyword DSN")
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sb, err := evallog.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return fmt.Errorf("creating supabase client: %w", err)
		}
		sinks = append(sinks, sb)
		logger.Info("evaluation log mirrored to supabase")
	}

	// --- Rate limiting ---
	var (
		limitStore ratelimit.Store
		memStore   *ratelimit.MemoryStore
	)
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		limitStore = ratelimit.NewRedisStore(rdb, "missions:rate:")
		checks["redis"] = health.Optional(redisChecker{rdb})
		logger.Info("connected to redis")
	} else {
		memStore = ratelimit.NewMemoryStore()
		limitStore = memStore
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimit, cfg.RateWindow, logger)

	// --- Evaluator ---
	provider, err := evaluator.Open(ctx, cfg.Evaluator.Provider, cfg.ProviderKey(), evaluator.Settings{
		Model:       cfg.ProviderModel(),
		Temperature: cfg.Evaluator.Temperature,
		TopP:        1,
		MaxTokens:   cfg.Evaluator.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("opening evaluator: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}
	if provider == nil {
		logger.Warn("evaluator credentials missing; evaluations will be refused", "provider", cfg.Evaluator.Provider)
	} else {
		logger.Info("evaluator ready", "provider", provider.Name(), "model", cfg.ProviderModel())
	}

	svc := evaluation.NewService(evaluation.Options{
		Provider:     provider,
		Limiter:      limiter,
		Log:          sinks,
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
		MaxTextChars: cfg.MaxTextChars,
		Timeout:      cfg.Evaluator.Timeout,
	})
	checks["evaluator"] = health.Optional(health.CheckerFunc(func(context.Context) error {
		if !svc.Available() {
			return errors.New("no credentials configured")
		}
		return nil
	}))

	var transport client.Transport = client.Local{Service: svc}
	if cfg.Evaluator.Endpoint != "" {
		transport = client.NewHTTP(cfg.Evaluator.Endpoint, &http.Client{Timeout: cfg.Evaluator.Timeout + 5*time.Second}, logger)
		logger.Info("game evaluations go to remote endpoint", "endpoint", cfg.Evaluator.Endpoint)
	}

	// --- Game ---
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	progress := server.NewDocStore(db)
	broker := server.NewBroker()
	games := game.NewManager(catalog, progress, client.New(transport), broker, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
		server.AddRoutes(r, server.Deps{
			Logger:        logger,
			Evaluation:    svc,
			Games:         games,
			Broker:        broker,
			SessionCookie: cfg.Session.Cookie,
			SPADir:        cfg.SPADir,
		})
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	if memStore != nil {
		g.Go(func() error {
			return memStore.Run(gctx, cfg.RateSweepInterval)
		})
	}

	g.Go(func() error {
		return games.Run(gctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	})

	if cfg.Session.Retention > 0 {
		g.Go(func() error {
			return purgeProgress(gctx, logger, progress, cfg.Session.Retention)
		})
	}

	return g.Wait()
}

func loadCatalog(path string) (*mission.Catalog, error) {
	if path == "" {
		return mission.DefaultCatalog()
	}
	return mission.LoadCatalog(path)
}

// purgeProgress drops abandoned progress documents once a day.
func purgeProgress(ctx context.Context, logger *slog.Logger, store *server.DocStore, retention time.Duration) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := store.Purge(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("purging progress", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged stale progress", "count", n)
			}
		}
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
