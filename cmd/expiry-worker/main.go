package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/seat-hold-engine/internal/adapters/crdb"
	"github.com/robertarktes/seat-hold-engine/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/seat-hold-engine/internal/adapters/redis"
	"github.com/robertarktes/seat-hold-engine/internal/clock"
	"github.com/robertarktes/seat-hold-engine/internal/config"
	"github.com/robertarktes/seat-hold-engine/internal/domain"
	"github.com/robertarktes/seat-hold-engine/internal/observability"
	"github.com/robertarktes/seat-hold-engine/internal/sweeper"
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

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	seatLocks := redisadapter.NewCache(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	notifier := &sweepNotifier{pub: rabbitPub, seatLocks: seatLocks}
	sw := sweeper.New(store, clock.NewSystem(), logger, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sw.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// sweepNotifier fans reclaimed holds out to rabbit and drops their advisory
// redis locks so the seats read as free everywhere.
type sweepNotifier struct {
	pub       *rabbit.Publisher
	seatLocks *redisadapter.Cache
}

func (n *sweepNotifier) HoldsExpired(ctx context.Context, holds []domain.SeatHold) error {
	for _, h := range holds {
		n.seatLocks.ReleaseSeatLock(ctx, h.EventID.String(), h.SeatID)
	}
	return n.pub.HoldsExpired(ctx, holds)
}
