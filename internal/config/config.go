package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	JWTSecret    string
	OTLPEndpoint string

	PersistenceTimeout   time.Duration
	PendingTTL           time.Duration
	ExpirySchedule       string
	OutboxInterval       time.Duration
	AvailabilityCacheTTL time.Duration
	IdempotencyTTL       time.Duration
	DefaultCancelReason  string

	CloudinaryURL   string
	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string
	EmailRatePerSec float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MONGO_DB", "tours")
	v.SetDefault("PERSISTENCE_TIMEOUT", "5s")
	v.SetDefault("PENDING_TTL", "72h")
	v.SetDefault("EXPIRY_SCHEDULE", "@every 10m")
	v.SetDefault("OUTBOX_INTERVAL", "5s")
	v.SetDefault("AVAILABILITY_CACHE_TTL", "30s")
	v.SetDefault("IDEMPOTENCY_TTL", "1h")
	v.SetDefault("EMAIL_RATE_PER_SEC", 5)
	v.SetDefault("DEFAULT_CANCEL_REASON", "Cancelled by admin")

	cfg := &Config{
		HTTPAddr:     v.GetString("HTTP_ADDR"),
		CRDBDSN:      v.GetString("CRDB_DSN"),
		MongoURI:     v.GetString("MONGO_URI"),
		MongoDB:      v.GetString("MONGO_DB"),
		RedisAddr:    v.GetString("REDIS_ADDR"),
		RabbitURL:    v.GetString("RABBIT_URL"),
		JWTPublicKey: v.GetString("JWT_PUBLIC_KEY"),
		JWTSecret:    v.GetString("JWT_SECRET"),
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		PersistenceTimeout:   v.GetDuration("PERSISTENCE_TIMEOUT"),
		PendingTTL:           v.GetDuration("PENDING_TTL"),
		ExpirySchedule:       v.GetString("EXPIRY_SCHEDULE"),
		OutboxInterval:       v.GetDuration("OUTBOX_INTERVAL"),
		AvailabilityCacheTTL: v.GetDuration("AVAILABILITY_CACHE_TTL"),
		IdempotencyTTL:       v.GetDuration("IDEMPOTENCY_TTL"),
		DefaultCancelReason:  v.GetString("DEFAULT_CANCEL_REASON"),

		CloudinaryURL:   v.GetString("CLOUDINARY_URL"),
		BrevoAPIKey:     v.GetString("BREVO_API_KEY"),
		EmailSender:     v.GetString("EMAIL_SENDER"),
		EmailSenderName: v.GetString("EMAIL_SENDER_NAME"),
		EmailRatePerSec: v.GetFloat64("EMAIL_RATE_PER_SEC"),
	}

	if cfg.PersistenceTimeout <= 0 {
		return nil, errors.Newf("PERSISTENCE_TIMEOUT must be positive, got %s", cfg.PersistenceTimeout)
	}
	if cfg.PendingTTL <= 0 {
		return nil, errors.Newf("PENDING_TTL must be positive, got %s", cfg.PendingTTL)
	}
	if cfg.OutboxInterval <= 0 {
		return nil, errors.Newf("OUTBOX_INTERVAL must be positive, got %s", cfg.OutboxInterval)
	}
	return cfg, nil
}

// EmailEnabled reports whether transactional email can be sent.
func (c *Config) EmailEnabled() bool {
	return c.BrevoAPIKey != "" && c.EmailSender != ""
}
