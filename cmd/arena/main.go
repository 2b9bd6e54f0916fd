package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mixh8/Truth-Bench/internal/api"
	"github.com/mixh8/Truth-Bench/internal/config"
	"github.com/mixh8/Truth-Bench/internal/engine"
	"github.com/mixh8/Truth-Bench/internal/kalshi"
	"github.com/mixh8/Truth-Bench/internal/market"
	"github.com/mixh8/Truth-Bench/internal/metrics"
	"github.com/mixh8/Truth-Bench/internal/portfolio"
	"github.com/mixh8/Truth-Bench/internal/predict"
	"github.com/mixh8/Truth-Bench/internal/risk"
	"github.com/mixh8/Truth-Bench/internal/scoring"
	"github.com/mixh8/Truth-Bench/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("ARENA_CONFIG"), "path to YAML config")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "err", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	st, cleanup, err := openStore(context.Background(), cfg.Storage)
	if err != nil {
		slog.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Market data ---
	kc := kalshi.NewClient(cfg.Market.BaseURL, cfg.Market.APIKey,
		kalshi.WithTimeout(cfg.Market.Timeout),
		kalshi.WithLogger(logger),
	)
	feed := market.NewKalshiFeed(kc,
		market.WithTopN(cfg.Market.TopN),
		market.WithLookupConcurrency(cfg.Market.LookupConcurrency),
		market.WithFeedLogger(logger),
	)
	cache := market.NewCache(feed,
		market.WithTTL(cfg.Market.TTL),
		market.WithCacheLogger(logger),
	)

	// --- Prediction oracle ---
	oracle := predict.NewClient(cfg.Predictor.BaseURL,
		predict.WithTimeout(cfg.Predictor.Timeout),
		predict.WithLogger(logger),
	)

	// --- Portfolios and risk ---
	policy := risk.NewPolicy(cfg.Risk)
	portfolios := portfolio.NewStore(cfg.Trading.Models, cfg.Trading.InitialCapital, policy, cfg.Trading.HistoryWindow)

	forecasts := scoring.NewForecastBook()

	// --- WebSocket hub ---
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	wsHub := api.NewWSHub()
	go wsHub.Run(rootCtx)

	// --- Coordinator ---
	coord := engine.NewCoordinator(engine.Config{
		Mode:                engine.Mode(cfg.Trading.Mode),
		Interval:            cfg.Trading.Interval,
		Jitter:              cfg.Trading.Jitter,
		CandidatesPerModel:  cfg.Trading.CandidatesPerModel,
		PredictionTimeout:   cfg.Trading.PredictionTimeout,
		PersistTimeout:      cfg.Trading.PersistTimeout,
		SimulatedVolatility: cfg.Trading.SimulatedVolatility,
		ReasoningLength:     cfg.Trading.ReasoningLength,
	}, portfolios, policy, cache, oracle, st,
		engine.WithLogger(logger),
		engine.WithPublisher(wsHub),
		engine.WithForecasts(forecasts),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coord.Run(rootCtx); err != nil {
			slog.Error("coordinator error", "err", err)
		}
	}()

	// --- Status API ---
	periodsPerYear := float64(365*24*time.Hour) / float64(cfg.Trading.Interval)
	svc := api.NewService(portfolios, st, forecasts, periodsPerYear)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for the dashboard.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"truthbench","mode":%q,"ws_clients":%d}`, cfg.Trading.Mode, wsHub.ClientCount())
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r, wsHub)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("truthbench listening", "port", cfg.Server.Port, "mode", cfg.Trading.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down truthbench...")
	stop()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("truthbench stopped")
}

// openStore builds the configured persistence backend, optionally fronted by
// a Redis read-through cache.
func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, []func(), error) {
	var (
		st      store.Store
		cleanup []func()
	)

	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case "sqlite":
		lite, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
	default:
		slog.Warn("using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			for _, fn := range cleanup {
				fn()
			}
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled")
	}

	return st, cleanup, nil
}
