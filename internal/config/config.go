// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	IngestToken    string `mapstructure:"INGEST_TOKEN"`
	Port           string `mapstructure:"PORT"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode   string `mapstructure:"DB_SCHEMA_MODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	Env            string `mapstructure:"APP_ENV"`

	TelegramBotToken    string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramPollTimeout int    `mapstructure:"TELEGRAM_POLL_TIMEOUT"`

	KafkaBrokers      string `mapstructure:"KAFKA_BROKERS"`
	KafkaGroupID      string `mapstructure:"KAFKA_GROUP_ID"`
	KafkaInboundTopic string `mapstructure:"KAFKA_INBOUND_TOPIC"`

	BlobBackend string `mapstructure:"BLOB_BACKEND"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`

	NotifyDefaultUnset    bool `mapstructure:"NOTIFY_DEFAULT_UNSET"`
	NotifyDefaultConflict bool `mapstructure:"NOTIFY_DEFAULT_CONFLICT"`

	DispatchWorkers     int `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueueSize   int `mapstructure:"DISPATCH_QUEUE_SIZE"`
	DispatchMaxAttempts int `mapstructure:"DISPATCH_MAX_ATTEMPTS"`
	DispatchBackoffMS   int `mapstructure:"DISPATCH_BACKOFF_MS"`

	Matcher             string `mapstructure:"MATCHER"`
	RuleCacheTTLSeconds int    `mapstructure:"RULE_CACHE_TTL_SECONDS"`
	UIPageSize          int    `mapstructure:"UI_PAGE_SIZE"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars and defaults cover a bare checkout.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "chatwarden")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("INGEST_TOKEN", "")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("APP_ENV", "development")

	viper.SetDefault("TELEGRAM_BOT_TOKEN", "")
	viper.SetDefault("TELEGRAM_POLL_TIMEOUT", 30)

	viper.SetDefault("KAFKA_BROKERS", "")
	viper.SetDefault("KAFKA_GROUP_ID", "chatwarden")
	viper.SetDefault("KAFKA_INBOUND_TOPIC", "chat.messages")

	viper.SetDefault("BLOB_BACKEND", "db")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("S3_ACCESS_KEY", "")
	viper.SetDefault("S3_SECRET_KEY", "")
	viper.SetDefault("S3_BUCKET", "chatwarden-media")
	viper.SetDefault("S3_USE_SSL", false)

	viper.SetDefault("NOTIFY_DEFAULT_UNSET", true)
	viper.SetDefault("NOTIFY_DEFAULT_CONFLICT", false)

	viper.SetDefault("DISPATCH_WORKERS", 4)
	viper.SetDefault("DISPATCH_QUEUE_SIZE", 1024)
	viper.SetDefault("DISPATCH_MAX_ATTEMPTS", 5)
	viper.SetDefault("DISPATCH_BACKOFF_MS", 250)

	viper.SetDefault("MATCHER", "regex")
	viper.SetDefault("RULE_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("UI_PAGE_SIZE", 20)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.BlobBackend = strings.ToLower(strings.TrimSpace(c.BlobBackend))
	c.Matcher = strings.ToLower(strings.TrimSpace(c.Matcher))
}

// IsProduction reports whether strict production checks apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Brokers splits KAFKA_BROKERS into a list. Empty means Kafka ingestion is off.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// DispatchBackoff is the base delay between transport retries.
func (c *Config) DispatchBackoff() time.Duration {
	return time.Duration(c.DispatchBackoffMS) * time.Millisecond
}

// RuleCacheTTL is how long a chat's active rule set stays cached.
func (c *Config) RuleCacheTTL() time.Duration {
	return time.Duration(c.RuleCacheTTLSeconds) * time.Second
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Matcher {
	case "", "regex", "keyword":
	default:
		return fmt.Errorf("MATCHER must be regex or keyword, got %q", c.Matcher)
	}
	switch c.BlobBackend {
	case "", "db":
	case "s3":
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return errors.New("S3_ENDPOINT and S3_BUCKET are required when BLOB_BACKEND=s3")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be db or s3, got %q", c.BlobBackend)
	}
	if c.DispatchWorkers < 0 || c.DispatchQueueSize < 0 || c.DispatchMaxAttempts < 0 {
		return errors.New("DISPATCH_* values must not be negative")
	}

	if c.IsProduction() {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.IngestToken == "" {
			log.Println("WARNING: INGEST_TOKEN is empty in production. POST /api/ingest/messages is disabled.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
