package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string

	OTLPEndpoint   string
	OTLPProtocol   string
	TracingEnabled bool
	TracingRatio   float64

	Logging LoggingConfig

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL           string
	AMQPEventExchange string

	Messaging MessagingConfig

	Escalation EscalationConfig
	Reminder   ReminderConfig
	RateLimit  RateLimitConfig

	DefaultCurrency string
	TenantCacheSize int
	TenantCacheTTL  time.Duration
}

// LoggingConfig controls the zap logger. Sampling applies per message per
// second; escalation and authorization lines are never sampled.
type LoggingConfig struct {
	Level              string
	Format             string
	SamplingInitial    int
	SamplingThereafter int
}

type MessagingConfig struct {
	Driver       string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AMQPExchange string
	AMQPRouting  string
}

type EscalationConfig struct {
	Schedule string
	Workers  int
	Timezone string
	Timeout  time.Duration
}

type ReminderConfig struct {
	MaxAttempts     int
	SendTimeout     time.Duration
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	QueueSize       int
	QueueWorkers    int
	BatchConcurrent int
}

// RateLimitConfig throttles operator-triggered reminder sends. Rate is in
// tokens per second.
type RateLimitConfig struct {
	Enabled       bool
	ReminderRate  float64
	ReminderBurst int
}

const (
	MessagingDriverLog  = "log"
	MessagingDriverSMTP = "smtp"
	MessagingDriverAMQP = "amqp"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "clinicbilling"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret:  strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:   strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		TracingEnabled: getenvBool("TRACING_ENABLED", false),
		TracingRatio:   getenvFloat("TRACING_SAMPLE_RATIO", 1),

		Logging: LoggingConfig{
			Level:              strings.ToLower(getenv("LOG_LEVEL", "info")),
			Format:             strings.ToLower(getenv("LOG_FORMAT", "json")),
			SamplingInitial:    getenvInt("LOG_SAMPLING_INITIAL", 100),
			SamplingThereafter: getenvInt("LOG_SAMPLING_THEREAFTER", 100),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "clinicbilling"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		AMQPURL:           strings.TrimSpace(getenv("AMQP_URL", "")),
		AMQPEventExchange: getenv("AMQP_EVENT_EXCHANGE", "billing.events"),

		Messaging: MessagingConfig{
			Driver:       strings.ToLower(getenv("MESSAGING_DRIVER", MessagingDriverLog)),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", ""),
			AMQPExchange: getenv("MESSAGING_AMQP_EXCHANGE", "messaging.outbound"),
			AMQPRouting:  getenv("MESSAGING_AMQP_ROUTING_KEY", "reminder.send"),
		},

		Escalation: EscalationConfig{
			Schedule: getenv("ESCALATION_SCHEDULE", "0 2 * * *"),
			Workers:  getenvInt("ESCALATION_WORKERS", 4),
			Timezone: getenv("BILLING_TIMEZONE", "UTC"),
			Timeout:  getenvDuration("ESCALATION_RUN_TIMEOUT", 10*time.Minute),
		},
		Reminder: ReminderConfig{
			MaxAttempts:     getenvInt("REMINDER_MAX_ATTEMPTS", 3),
			SendTimeout:     getenvDuration("REMINDER_SEND_TIMEOUT", 10*time.Second),
			InitialBackoff:  getenvDuration("REMINDER_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:      getenvDuration("REMINDER_MAX_BACKOFF", 10*time.Second),
			QueueSize:       getenvInt("REMINDER_QUEUE_SIZE", 256),
			QueueWorkers:    getenvInt("REMINDER_QUEUE_WORKERS", 2),
			BatchConcurrent: getenvInt("REMINDER_BATCH_CONCURRENCY", 4),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			ReminderRate:  getenvFloat("RATE_LIMIT_REMINDER_RATE", 0.5),
			ReminderBurst: getenvInt("RATE_LIMIT_REMINDER_BURST", 20),
		},

		DefaultCurrency: strings.ToUpper(getenv("DEFAULT_CURRENCY", "USD")),
		TenantCacheSize: getenvInt("TENANT_CACHE_SIZE", 1024),
		TenantCacheTTL:  getenvDuration("TENANT_CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location resolves the billing calendar timezone, falling back to UTC.
func (c EscalationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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
