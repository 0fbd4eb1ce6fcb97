package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/seat-hold-engine/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/seat-hold-engine/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/seat-hold-engine/internal/adapters/redis"
	"github.com/robertarktes/seat-hold-engine/internal/allocation"
	"github.com/robertarktes/seat-hold-engine/internal/availability"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/config"
	"github.com/robertarktes/seat-hold-engine/internal/hold"
	httphandler "github.com/robertarktes/seat-hold-engine/internal/http"
	"github.com/robertarktes/seat-hold-engine/internal/idempotency"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"github.com/robertarktes/seat-hold-engine/internal/purchase"
	"github.com/robertarktes/seat-hold-engine/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	store := crdb.NewStore(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("seats")
	charts := mongoadapter.NewChartRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	seatLocks := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(seatLocks)

	clk := clock.NewSystem()
	manager := hold.NewManager(store, clk, logger, hold.WithTTL(cfg.HoldTTL))
	view := availability.NewView(store, clk)
	selector := allocation.NewSelector(view)
	finalizer := purchase.NewFinalizer(store, clk, logger)

	handlers := httphandler.NewHandlers(cfg, manager, selector, view, finalizer, charts, seatLocks, idemp, audit)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-ctx.Done():
		}
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("Server exiting")
}
