package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/redis"
	"github.com/robertarktes/tour-package-bookings/internal/config"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/notify"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const queue = "tours.notifications"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "tours-notifier")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger().WithField("component", "notifier")

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.EmailEnabled() {
		notifier = notify.NewEmailNotifier(notify.EmailOptions{
			APIKey:      cfg.BrevoAPIKey,
			SenderEmail: cfg.EmailSender,
			SenderName:  cfg.EmailSenderName,
			RatePerSec:  cfg.EmailRatePerSec,
		})
	} else {
		logger.Warn("email not configured, notifications are only logged")
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	keys := []string{
		string(domain.EventBookingCreated),
		string(domain.EventPaymentSubmitted),
		string(domain.EventBookingConfirmed),
		string(domain.EventPaymentRejected),
		string(domain.EventBookingCancelled),
		string(domain.EventRemainderPaid),
		string(domain.EventNotesUpdated),
	}
	consumer, err := rabbit.NewConsumer(conn, queue, keys)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", queue, err)
	}

	dispatcher := notify.NewDispatcher(redisCache, audit, notifier, logger)
	logger.WithField("queue", queue).Info("notifier started")
	dispatcher.Consume(ctx, deliveries)
	logger.Info("Shutdown notifier")
}
