package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port           string
	Env            string
	AllowedOrigins []string
	PublicBaseURL  string

	DatabaseURL string
	SQLitePath  string

	LogLevel  string
	LogFormat string

	DefaultProvider     string
	HybridWebhookSecret string
	MercadoPago         ProviderConfig
	PayPal              ProviderConfig

	RestockOnReversal bool

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileBatch      int

	WebhookRatePerSecond float64
	WebhookRateBurst     int

	RabbitURL      string
	RabbitExchange string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockExpiry    time.Duration
}

// ProviderConfig is everything a remote payment adapter needs. Adapters
// receive it at construction and never read the environment themselves.
type ProviderConfig struct {
	AccessToken  string
	ClientID     string
	ClientSecret string
	WebhookToken string
	BaseURL      string
	Mode         string
	Currency     string
	Timeout      time.Duration
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		Env:            getEnv("NODE_ENV", "development"),
		AllowedOrigins: getList("ALLOWED_ORIGINS"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "db/natrip.db"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DefaultProvider:     getEnv("PAYMENT_PROVIDER", "hybrid"),
		HybridWebhookSecret: getEnv("HYBRID_WEBHOOK_SECRET", ""),
		MercadoPago: ProviderConfig{
			AccessToken:  getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			WebhookToken: getEnv("MERCADOPAGO_WEBHOOK_TOKEN", ""),
			BaseURL:      getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
			Mode:         getEnv("MERCADOPAGO_MODE", "sandbox"),
			Currency:     "BRL",
			Timeout:      getDuration("MERCADOPAGO_TIMEOUT", 15*time.Second),
		},
		PayPal: ProviderConfig{
			ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getEnv("PAYPAL_SECRET", ""),
			WebhookToken: getEnv("PAYPAL_WEBHOOK_TOKEN", ""),
			BaseURL:      getEnv("PAYPAL_BASE_URL", ""),
			Mode:         getEnv("PAYPAL_MODE", "sandbox"),
			Currency:     getEnv("PAYPAL_CURRENCY", "BRL"),
			Timeout:      getDuration("PAYPAL_TIMEOUT", 15*time.Second),
		},

		RestockOnReversal: getBool("RESTOCK_ON_REVERSAL", false),

		ReconcileInterval:   getDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileStaleAfter: getDuration("RECONCILE_STALE_AFTER", 2*time.Minute),
		ReconcileBatch:      getInt("RECONCILE_BATCH", 50),

		WebhookRatePerSecond: getFloat("WEBHOOK_RATE_RPS", 10),
		WebhookRateBurst:     getInt("WEBHOOK_RATE_BURST", 20),

		RabbitURL:      getEnv("RABBIT_URL", ""),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "payment_orders"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		LockExpiry:    getDuration("LOCK_EXPIRY", 30*time.Second),
	}
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// Validate rejects settings the server must not start with. An empty hybrid
// secret accepts every webhook, which is only tolerated outside production.
func (c *Config) Validate() error {
	if c.Production() && c.HybridWebhookSecret == "" {
		return errors.New("HYBRID_WEBHOOK_SECRET is required in production")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
