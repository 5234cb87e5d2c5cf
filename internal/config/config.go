// Package config loads process configuration from environment variables,
// with an optional TOML file layered underneath for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the rangeops core.
type Config struct {
	HTTP HTTPConfig

	MongoDB MongoDBConfig

	Queue QueueConfig

	Secrets SecretsConfig

	Leader LeaderConfig

	Scheduler SchedulerConfig

	Mailer MailerConfig

	License LicenseConfig

	Identity IdentityConfig

	Instance InstanceConfig

	RateLimit RateLimitConfig

	DataDir string
	DevMode bool
}

// HTTPConfig holds HTTP server configuration for the token-authenticated API.
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// MongoDBConfig holds MongoDB connection configuration.
type MongoDBConfig struct {
	URI      string
	Database string
}

// QueueConfig holds event-bus (wakeup hint) configuration.
type QueueConfig struct {
	Type string // "embedded", "nats", "sqs"

	NATS NATSConfig
	SQS  SQSConfig
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL     string
	DataDir string
}

// SQSConfig holds AWS SQS configuration.
type SQSConfig struct {
	QueueURL          string
	Region            string
	WaitTimeSeconds   int
	VisibilityTimeout int
}

// SecretsConfig selects and configures the source of the master encryption
// key that the worker uses to decrypt stored ciphertexts.
type SecretsConfig struct {
	Source  string // "env", "aws-secretsmanager", "vault", "file"
	DataDir string

	AWSRegion   string
	AWSSecretID string

	VaultAddr string
	VaultPath string
}

// LeaderConfig holds leader election configuration for the Scheduler.
type LeaderConfig struct {
	Enabled         bool
	InstanceID      string
	TTL             time.Duration
	RefreshInterval time.Duration
}

// SchedulerConfig holds polling and recovery intervals for the Scheduler.
type SchedulerConfig struct {
	PollInterval         time.Duration
	MisfireGraceDefault  time.Duration
	HeartbeatInterval    time.Duration
	StaleRecoveryAfter   time.Duration
}

// MailerConfig holds outbound SMTP and webhook verification settings.
type MailerConfig struct {
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	FromAddress    string
	WebhookSecret  string
	BatchSize      int
	BatchInterval  time.Duration
	MaxAttempts    int
}

// LicenseConfig holds license token/slot defaults.
type LicenseConfig struct {
	TokenTTL        time.Duration
	SlotGraceWindow time.Duration
	ReapInterval    time.Duration
}

// IdentityConfig holds identity-provider sync settings.
type IdentityConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxAttempts  int
}

// InstanceConfig holds cloud-instance reconciliation settings.
type InstanceConfig struct {
	Provider     string // "openstack", "digitalocean", "noop"
	PollInterval time.Duration
}

// RateLimitConfig holds the /license/queue/acquire attempt throttle
// settings. RedisURL is optional; unset, the throttle falls back to an
// in-process-only counter (see internal/ratelimit).
type RateLimitConfig struct {
	RedisURL    string
	MaxAttempts int
	Window      time.Duration
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        getEnvInt("HTTP_PORT", 8080),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:4200"}),
		},

		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true"),
			Database: getEnv("MONGODB_DATABASE", "rangeops"),
		},

		Queue: QueueConfig{
			Type: getEnv("QUEUE_TYPE", "embedded"),
			NATS: NATSConfig{
				URL:     getEnv("NATS_URL", "nats://localhost:4222"),
				DataDir: getEnv("NATS_DATA_DIR", "./data/nats"),
			},
			SQS: SQSConfig{
				QueueURL:          getEnv("SQS_QUEUE_URL", ""),
				Region:            getEnv("AWS_REGION", "us-east-1"),
				WaitTimeSeconds:   getEnvInt("SQS_WAIT_TIME_SECONDS", 20),
				VisibilityTimeout: getEnvInt("SQS_VISIBILITY_TIMEOUT", 120),
			},
		},

		Secrets: SecretsConfig{
			Source:      getEnv("ENCRYPTION_KEY_SOURCE", "env"),
			DataDir:     getEnv("SECRETS_DATA_DIR", "./data/secrets"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			AWSSecretID: getEnv("SECRETS_AWS_SECRET_ID", "rangeops/encryption-key"),
			VaultAddr:   getEnv("VAULT_ADDR", ""),
			VaultPath:   getEnv("VAULT_SECRET_PATH", "secret/data/rangeops"),
		},

		Leader: LeaderConfig{
			Enabled:         getEnvBool("LEADER_ELECTION_ENABLED", true),
			InstanceID:      getEnv("HOSTNAME", ""),
			TTL:             getEnvDuration("LEADER_TTL", 30*time.Second),
			RefreshInterval: getEnvDuration("LEADER_REFRESH_INTERVAL", 10*time.Second),
		},

		Scheduler: SchedulerConfig{
			PollInterval:        getEnvDuration("SCHEDULER_POLL_INTERVAL", 5*time.Second),
			MisfireGraceDefault: getEnvDuration("SCHEDULER_MISFIRE_GRACE", 60*time.Second),
			HeartbeatInterval:   getEnvDuration("SCHEDULER_HEARTBEAT_INTERVAL", 15*time.Second),
			StaleRecoveryAfter:  getEnvDuration("SCHEDULER_STALE_RECOVERY_AFTER", 5*time.Minute),
		},

		Mailer: MailerConfig{
			SMTPHost:      getEnv("SMTP_HOST", "localhost"),
			SMTPPort:      getEnvInt("SMTP_PORT", 587),
			SMTPUsername:  getEnv("SMTP_USERNAME", ""),
			SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
			FromAddress:   getEnv("MAIL_FROM_ADDRESS", "noreply@rangeops.example"),
			WebhookSecret: getEnv("MAIL_WEBHOOK_SECRET", ""),
			BatchSize:     getEnvInt("MAIL_BATCH_SIZE", 25),
			BatchInterval: getEnvDuration("MAIL_BATCH_INTERVAL", 10*time.Second),
			MaxAttempts:   getEnvInt("MAIL_MAX_ATTEMPTS", 5),
		},

		License: LicenseConfig{
			TokenTTL:        getEnvDuration("LICENSE_TOKEN_TTL", 24*time.Hour),
			SlotGraceWindow: getEnvDuration("LICENSE_SLOT_GRACE_WINDOW", 2*time.Minute),
			ReapInterval:    getEnvDuration("LICENSE_SLOT_REAP_INTERVAL", 30*time.Second),
		},

		Identity: IdentityConfig{
			BaseURL:      getEnv("IDENTITY_BASE_URL", ""),
			APIKey:       getEnv("IDENTITY_API_KEY", ""),
			PollInterval: getEnvDuration("IDENTITY_SYNC_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:  getEnvInt("IDENTITY_SYNC_MAX_ATTEMPTS", 8),
		},

		Instance: InstanceConfig{
			Provider:     getEnv("CLOUD_PROVIDER", "noop"),
			PollInterval: getEnvDuration("INSTANCE_RECONCILE_POLL_INTERVAL", 30*time.Second),
		},

		RateLimit: RateLimitConfig{
			RedisURL:    getEnv("LICENSE_ACQUIRE_RATE_LIMIT_REDIS_URL", ""),
			MaxAttempts: getEnvInt("LICENSE_ACQUIRE_RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:      getEnvDuration("LICENSE_ACQUIRE_RATE_LIMIT_WINDOW", 15*time.Minute),
		},

		DataDir: getEnv("DATA_DIR", "./data"),
		DevMode: getEnvBool("RANGEOPS_DEV", false),
	}

	return cfg, nil
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return defaultValue
}
