package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/redis"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/config"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
)

// The expiry worker cancels pending bookings that never received a payment, on a cron schedule.
// Cancellations go through the booking service, so each one writes an outbox event.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "tours-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger().WithField("component", "expiry")

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	svc := booking.NewService(repo, redisCache, logger, booking.Options{
		Timeout:             cfg.PersistenceTimeout,
		DefaultCancelReason: cfg.DefaultCancelReason,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(cfg.ExpirySchedule, func() {
		n, err := svc.ExpireStale(ctx, cfg.PendingTTL)
		if err != nil {
			logger.WithError(err).Error("expiry sweep failed")
			return
		}
		logger.WithField("expired", n).Debug("expiry sweep finished")
	})
	if err != nil {
		log.Fatalf("invalid EXPIRY_SCHEDULE %q: %v", cfg.ExpirySchedule, err)
	}

	logger.WithFields(map[string]interface{}{
		"schedule":    cfg.ExpirySchedule,
		"pending_ttl": cfg.PendingTTL.String(),
	}).Info("expiry worker started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Shutdown expiry worker")
}
