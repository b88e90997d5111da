package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/tour-package-bookings/internal/config"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/robertarktes/tour-package-bookings/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "tours-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger().WithField("component", "outbox")

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	if pending, err := repo.PendingOutbox(context.Background()); err == nil {
		logger.WithField("pending", pending).Info("outbox backlog at startup")
	}

	publisher := outbox.NewPublisher(repo, rabbitPub, logger, outbox.Options{Interval: cfg.OutboxInterval})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher.Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
