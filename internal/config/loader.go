package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the optional local-development config file structure.
type TOMLConfig struct {
	HTTP      TOMLHTTPConfig      `toml:"http"`
	MongoDB   TOMLMongoDBConfig   `toml:"mongodb"`
	Queue     TOMLQueueConfig     `toml:"queue"`
	Leader    TOMLLeaderConfig    `toml:"leader"`
	Secrets   TOMLSecretsConfig   `toml:"secrets"`
	Scheduler TOMLSchedulerConfig `toml:"scheduler"`
	Mailer    TOMLMailerConfig    `toml:"mailer"`
	DataDir   string              `toml:"data_dir"`
	DevMode   bool                `toml:"dev_mode"`
}

type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type TOMLMongoDBConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type TOMLQueueConfig struct {
	Type string         `toml:"type"`
	NATS TOMLNATSConfig `toml:"nats"`
	SQS  TOMLSQSConfig  `toml:"sqs"`
}

type TOMLNATSConfig struct {
	URL     string `toml:"url"`
	DataDir string `toml:"data_dir"`
}

type TOMLSQSConfig struct {
	QueueURL          string `toml:"queue_url"`
	Region            string `toml:"region"`
	WaitTimeSeconds   int    `toml:"wait_time_seconds"`
	VisibilityTimeout int    `toml:"visibility_timeout"`
}

type TOMLLeaderConfig struct {
	Enabled         bool   `toml:"enabled"`
	InstanceID      string `toml:"instance_id"`
	TTL             string `toml:"ttl"`
	RefreshInterval string `toml:"refresh_interval"`
}

// TOMLSecretsConfig represents encryption-key source configuration in TOML.
type TOMLSecretsConfig struct {
	Source      string `toml:"source"`
	DataDir     string `toml:"data_dir"`
	AWSRegion   string `toml:"aws_region"`
	AWSSecretID string `toml:"aws_secret_id"`
	VaultAddr   string `toml:"vault_addr"`
	VaultPath   string `toml:"vault_path"`
}

type TOMLSchedulerConfig struct {
	PollInterval        string `toml:"poll_interval"`
	MisfireGraceDefault string `toml:"misfire_grace_default"`
	HeartbeatInterval   string `toml:"heartbeat_interval"`
	StaleRecoveryAfter  string `toml:"stale_recovery_after"`
}

type TOMLMailerConfig struct {
	SMTPHost    string `toml:"smtp_host"`
	SMTPPort    int    `toml:"smtp_port"`
	FromAddress string `toml:"from_address"`
	BatchSize   int    `toml:"batch_size"`
}

// ConfigPaths lists the paths to search for config files.
var ConfigPaths = []string{
	"config.toml",
	"application.toml",
	"rangeops.toml",
	"./config/config.toml",
	"./config/application.toml",
	"/etc/rangeops/config.toml",
}

// LoadFromFile loads configuration from a TOML file.
func LoadFromFile(path string) (*Config, error) {
	var tomlCfg TOMLConfig

	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return tomlConfigToConfig(&tomlCfg)
}

// LoadWithFile loads configuration from file first, then overrides with env vars.
func LoadWithFile() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	configPath := os.Getenv("RANGEOPS_CONFIG")
	if configPath == "" {
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		return cfg, nil
	}

	fileCfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	return mergeConfigs(fileCfg, cfg), nil
}

func tomlConfigToConfig(tc *TOMLConfig) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        tc.HTTP.Port,
			CORSOrigins: tc.HTTP.CORSOrigins,
		},
		MongoDB: MongoDBConfig{
			URI:      tc.MongoDB.URI,
			Database: tc.MongoDB.Database,
		},
		Queue: QueueConfig{
			Type: tc.Queue.Type,
			NATS: NATSConfig{
				URL:     tc.Queue.NATS.URL,
				DataDir: tc.Queue.NATS.DataDir,
			},
			SQS: SQSConfig{
				QueueURL:          tc.Queue.SQS.QueueURL,
				Region:            tc.Queue.SQS.Region,
				WaitTimeSeconds:   tc.Queue.SQS.WaitTimeSeconds,
				VisibilityTimeout: tc.Queue.SQS.VisibilityTimeout,
			},
		},
		Secrets: SecretsConfig{
			Source:      tc.Secrets.Source,
			DataDir:     tc.Secrets.DataDir,
			AWSRegion:   tc.Secrets.AWSRegion,
			AWSSecretID: tc.Secrets.AWSSecretID,
			VaultAddr:   tc.Secrets.VaultAddr,
			VaultPath:   tc.Secrets.VaultPath,
		},
		Leader: LeaderConfig{
			Enabled:    tc.Leader.Enabled,
			InstanceID: tc.Leader.InstanceID,
		},
		Mailer: MailerConfig{
			SMTPHost:    tc.Mailer.SMTPHost,
			SMTPPort:    tc.Mailer.SMTPPort,
			FromAddress: tc.Mailer.FromAddress,
			BatchSize:   tc.Mailer.BatchSize,
		},
		DataDir: tc.DataDir,
		DevMode: tc.DevMode,
	}

	if tc.Leader.TTL != "" {
		if d, err := time.ParseDuration(tc.Leader.TTL); err == nil {
			cfg.Leader.TTL = d
		}
	}
	if tc.Leader.RefreshInterval != "" {
		if d, err := time.ParseDuration(tc.Leader.RefreshInterval); err == nil {
			cfg.Leader.RefreshInterval = d
		}
	}
	if tc.Scheduler.PollInterval != "" {
		if d, err := time.ParseDuration(tc.Scheduler.PollInterval); err == nil {
			cfg.Scheduler.PollInterval = d
		}
	}
	if tc.Scheduler.MisfireGraceDefault != "" {
		if d, err := time.ParseDuration(tc.Scheduler.MisfireGraceDefault); err == nil {
			cfg.Scheduler.MisfireGraceDefault = d
		}
	}
	if tc.Scheduler.HeartbeatInterval != "" {
		if d, err := time.ParseDuration(tc.Scheduler.HeartbeatInterval); err == nil {
			cfg.Scheduler.HeartbeatInterval = d
		}
	}
	if tc.Scheduler.StaleRecoveryAfter != "" {
		if d, err := time.ParseDuration(tc.Scheduler.StaleRecoveryAfter); err == nil {
			cfg.Scheduler.StaleRecoveryAfter = d
		}
	}

	return cfg, nil
}

// mergeConfigs merges two configs, with override taking precedence for non-zero values.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.HTTP.Port != 0 && override.HTTP.Port != 8080 {
		result.HTTP.Port = override.HTTP.Port
	}
	if len(override.HTTP.CORSOrigins) > 0 {
		result.HTTP.CORSOrigins = override.HTTP.CORSOrigins
	}

	if override.MongoDB.URI != "" && override.MongoDB.URI != "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true" {
		result.MongoDB.URI = override.MongoDB.URI
	}
	if override.MongoDB.Database != "" && override.MongoDB.Database != "rangeops" {
		result.MongoDB.Database = override.MongoDB.Database
	}

	if override.Queue.Type != "" && override.Queue.Type != "embedded" {
		result.Queue.Type = override.Queue.Type
	}
	if override.Queue.NATS.URL != "" {
		result.Queue.NATS.URL = override.Queue.NATS.URL
	}
	if override.Queue.SQS.QueueURL != "" {
		result.Queue.SQS.QueueURL = override.Queue.SQS.QueueURL
	}

	if override.Secrets.Source != "" && override.Secrets.Source != "env" {
		result.Secrets.Source = override.Secrets.Source
	}

	if override.Leader.Enabled {
		result.Leader.Enabled = true
	}
	if override.Leader.InstanceID != "" {
		result.Leader.InstanceID = override.Leader.InstanceID
	}

	if override.DataDir != "" && override.DataDir != "./data" {
		result.DataDir = override.DataDir
	}
	if override.DevMode {
		result.DevMode = true
	}

	return &result
}

// WriteExampleConfig writes an example configuration file.
func WriteExampleConfig(path string) error {
	example := `# Range Ops core configuration
# Environment variables override these settings

[http]
port = 8080
cors_origins = ["http://localhost:4200"]

[mongodb]
uri = "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true"
database = "rangeops"

[queue]
type = "embedded"  # embedded, nats, or sqs

[queue.nats]
url = "nats://localhost:4222"
data_dir = "./data/nats"

[queue.sqs]
queue_url = ""
region = "us-east-1"
wait_time_seconds = 20
visibility_timeout = 120

[leader]
enabled = true
instance_id = ""
ttl = "30s"
refresh_interval = "10s"

[secrets]
source = "env"  # env, aws-secretsmanager, vault, file
data_dir = "./data/secrets"
aws_region = ""
aws_secret_id = "rangeops/encryption-key"
vault_addr = ""
vault_path = "secret/data/rangeops"

[scheduler]
poll_interval = "5s"
misfire_grace_default = "60s"
heartbeat_interval = "15s"
stale_recovery_after = "5m"

[mailer]
smtp_host = "localhost"
smtp_port = 587
from_address = "noreply@rangeops.example"
batch_size = 25

data_dir = "./data"
dev_mode = false
`

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
