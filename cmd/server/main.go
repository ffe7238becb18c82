package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/creaturebot/market-engine/internal/config"
	"github.com/creaturebot/market-engine/internal/database"
	"github.com/creaturebot/market-engine/internal/market"
	"github.com/creaturebot/market-engine/internal/member"
	"github.com/creaturebot/market-engine/internal/metrics"
	"github.com/creaturebot/market-engine/internal/notify"
	"github.com/creaturebot/market-engine/internal/species"
	"github.com/creaturebot/market-engine/internal/store"
	"github.com/creaturebot/market-engine/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	catalog := species.MustLoad()

	// --- Initialize stores ---
	var listings store.Store
	var members member.Store
	var cleanup []func()

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		if err := database.RunMigrations(ctx, pool); err != nil {
			slog.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		listings = store.NewPostgresStore(pool)
		members = member.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			slog.Error("create sqlite directory", "err", err)
			os.Exit(1)
		}
		db, err := database.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			slog.Error("sqlite open failed", "path", cfg.Store.SQLitePath, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { db.Close() })
		listings = store.NewSQLiteStore(db)
		members = member.NewSQLiteStore(db)
		slog.Info("opened SQLite store", "path", cfg.Store.SQLitePath)

	default:
		slog.Warn("using in-memory store (data will not persist)")
		listings = store.NewMemoryStore()
		members = member.NewMemoryStore()
	}

	// Wrap listings with Redis read-through cache if configured.
	if cfg.Cache.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		listings = store.NewCachedStore(listings, rdb, cfg.Cache.TTL)
		slog.Info("Redis cache enabled", "ttl", cfg.Cache.TTL)
	}

	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Seller notifications ---
	var notifier market.Notifier = notify.LogNotifier{}
	if cfg.Discord.Token != "" {
		dn, err := notify.NewDiscordNotifier(cfg.Discord.Token)
		if err != nil {
			slog.Error("discord session failed", "err", err)
			os.Exit(1)
		}
		notifier = dn
		slog.Info("Discord sale notifications enabled")
	} else {
		slog.Info("no discord token configured, seller DMs disabled")
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run(ctx)

	// --- Engine and HTTP service ---
	engine := market.NewEngine(listings, members, catalog, notifier, wsHub, market.Config{
		MaxPrice:      cfg.Market.MaxPrice,
		PageSize:      cfg.Market.PageSize,
		NotifyTimeout: cfg.Market.NotifyTimeout,
	})
	tradeSvc := trade.NewService(engine, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+trade.UserHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", tradeSvc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stop()
	engine.Wait()
	fmt.Println("market-engine stopped")
}
