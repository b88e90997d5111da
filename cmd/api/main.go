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
	"github.com/robertarktes/tour-package-bookings/internal/adapters/cloudinary"
	"github.com/robertarktes/tour-package-bookings/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/redis"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/catalog"
	"github.com/robertarktes/tour-package-bookings/internal/config"
	httphandler "github.com/robertarktes/tour-package-bookings/internal/http"
	"github.com/robertarktes/tour-package-bookings/internal/idempotency"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
	"github.com/robertarktes/tour-package-bookings/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "tours-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	if err := crdb.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	crdbRepo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	details := mongoadapter.NewDetailsRepository(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisClient, logger)

	var proofs httphandler.ProofUploader
	if cfg.CloudinaryURL != "" {
		store, err := cloudinary.NewProofStore(cfg.CloudinaryURL)
		if err != nil {
			log.Fatalf("failed to configure cloudinary: %v", err)
		}
		proofs = store
	} else {
		logger.Warn("CLOUDINARY_URL not set, payment proof uploads disabled")
	}

	bookings := booking.NewService(crdbRepo, redisCache, logger, booking.Options{
		Timeout:             cfg.PersistenceTimeout,
		DefaultCancelReason: cfg.DefaultCancelReason,
	})
	packages := catalog.NewService(crdbRepo, details, redisCache, logger, catalog.Options{
		Timeout:  cfg.PersistenceTimeout,
		CacheTTL: cfg.AvailabilityCacheTTL,
	})

	auth, err := httphandler.NewAuthenticator(cfg.JWTPublicKey, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to configure authentication: %v", err)
	}

	handlers := httphandler.NewHandlers(bookings, packages, proofs,
		httphandler.Check{Name: "crdb", Ping: crdbRepo.Ping},
		httphandler.Check{Name: "redis", Ping: redisCache.Ping},
		httphandler.Check{Name: "mongo", Ping: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
	)

	r := httphandler.SetupRouter(handlers, logger, auth, rl, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
