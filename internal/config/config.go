package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AdminToken  string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Shopify   ShopifyConfig
	Stripe    StripeConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Email     EmailConfig
	Tasks     TaskConfig
	Recovery  RecoveryConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
}

type ShopifyConfig struct {
	StoreDomain   string
	AdminToken    string
	APIVersion    string
	WebhookSecret string
	Timeout       time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region           string
	EventStore       string
	EventsTable      string
	AlertSNSTopicARN string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type TaskConfig struct {
	PoolSize      int
	MaxAttempts   int
	RetryInterval time.Duration
}

type RateLimitConfig struct {
	CheckoutRate  float64
	CheckoutBurst int
}

type SchedulerConfig struct {
	Enabled bool
	// Jobs is a comma separated allowlist; empty runs every job.
	Jobs string
}

type RecoveryConfig struct {
	LookbackHours int
	ReplayDelay   time.Duration
}

const (
	EventStoreDatabase = "database"
	EventStoreDynamoDB = "dynamodb"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "campaignbridge"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		AdminToken:   strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Shopify: ShopifyConfig{
			StoreDomain:   strings.TrimSpace(getenv("SHOPIFY_STORE_DOMAIN", "")),
			AdminToken:    strings.TrimSpace(getenv("SHOPIFY_ADMIN_TOKEN", "")),
			APIVersion:    getenv("SHOPIFY_API_VERSION", "2024-10"),
			WebhookSecret: strings.TrimSpace(getenv("SHOPIFY_WEBHOOK_SECRET", "")),
			Timeout:       getenvDuration("SHOPIFY_TIMEOUT", 15*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "usd")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:           getenv("AWS_REGION", "us-east-1"),
			EventStore:       strings.ToLower(getenv("EVENT_STORE", EventStoreDatabase)),
			EventsTable:      strings.TrimSpace(getenv("DYNAMODB_EVENTS_TABLE", "")),
			AlertSNSTopicARN: strings.TrimSpace(getenv("ALERT_SNS_TOPIC_ARN", "")),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "orders@localhost"),
		},
		Tasks: TaskConfig{
			PoolSize:      getenvInt("TASK_POOL_SIZE", 8),
			MaxAttempts:   getenvInt("TASK_MAX_ATTEMPTS", 8),
			RetryInterval: getenvDuration("TASK_RETRY_INTERVAL", time.Minute),
		},
		Recovery: RecoveryConfig{
			LookbackHours: getenvInt("RECOVERY_LOOKBACK_HOURS", 24),
			ReplayDelay:   getenvDuration("RECOVERY_REPLAY_DELAY", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			CheckoutRate:  getenvFloat("CHECKOUT_RATE_PER_SECOND", 1),
			CheckoutBurst: getenvInt("CHECKOUT_RATE_BURST", 10),
		},
		Scheduler: SchedulerConfig{
			Enabled: getenvBool("SCHEDULER_ENABLED", true),
			Jobs:    getenv("SCHEDULER_JOBS", ""),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
