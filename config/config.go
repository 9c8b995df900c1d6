package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port string

	DBDriver string
	DBDSN    string

	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr     string
	CatalogTTL    time.Duration
	IdempotentTTL time.Duration

	KafkaAddr   string
	OutboxTopic string

	PaymentURL       string
	PaymentSecret    string
	PaymentReturnURL string

	SMTPHost string
	SMTPPort string
	SMTPFrom string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnv("APP_PORT", "8080"),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "file:food_ordering.db?cache=shared"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		TokenTTL:  getDuration("TOKEN_TTL", 7*24*time.Hour),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		CatalogTTL:    getDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		IdempotentTTL: getDuration("IDEMPOTENCY_TTL", 10*time.Minute),

		KafkaAddr:   os.Getenv("KAFKA_ADDR"),
		OutboxTopic: getEnv("OUTBOX_TOPIC", "order.events"),

		PaymentURL:       getEnv("PAYMENT_URL", "https://sandbox.payment.local/pay"),
		PaymentSecret:    getEnv("PAYMENT_SECRET", "dev-payment-secret"),
		PaymentReturnURL: getEnv("PAYMENT_RETURN_URL", "http://localhost:8080/api/payments/callback"),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: getEnv("SMTP_PORT", "1025"),
		SMTPFrom: getEnv("SMTP_FROM", "orders@food-ordering.local"),
	}
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// getDuration accepts Go durations ("90s") or plain seconds.
func getDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return d
}
