// Package secrets sources the master encryption key that the worker passes
// to internal/crypto to decrypt stored ciphertexts.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrInvalidKey     = errors.New("invalid encryption key")
	ErrProviderError  = errors.New("provider error")
)

// Provider defines the interface for secret storage backends.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// SourceType represents the type of secret provider.
type SourceType string

const (
	SourceTypeFile             SourceType = "file"
	SourceTypeAWSSecretsManager SourceType = "aws-secretsmanager"
	SourceTypeVault            SourceType = "vault"
	SourceTypeEnv              SourceType = "env"
)

// Config holds configuration for the secrets provider.
type Config struct {
	Source SourceType

	EncryptionKey string
	DataDir       string

	AWSRegion string
	AWSPrefix string

	VaultAddr string
	VaultPath string
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source:    SourceTypeEnv,
		DataDir:   "./data/secrets",
		AWSPrefix: "/rangeops/",
		VaultPath: "secret/data/rangeops",
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if s := os.Getenv("ENCRYPTION_KEY_SOURCE"); s != "" {
		cfg.Source = SourceType(strings.ToLower(s))
	}
	if k := os.Getenv("RANGEOPS_MASTER_KEY"); k != "" {
		cfg.EncryptionKey = k
	}
	if d := os.Getenv("SECRETS_DATA_DIR"); d != "" {
		cfg.DataDir = d
	}
	if r := os.Getenv("AWS_REGION"); r != "" {
		cfg.AWSRegion = r
	}
	if a := os.Getenv("VAULT_ADDR"); a != "" {
		cfg.VaultAddr = a
	}
	if p := os.Getenv("VAULT_SECRET_PATH"); p != "" {
		cfg.VaultPath = p
	}

	return cfg
}

// NewProvider creates a new secret provider based on configuration.
func NewProvider(cfg *Config) (Provider, error) {
	if cfg == nil {
		cfg = LoadConfigFromEnv()
	}

	switch cfg.Source {
	case SourceTypeFile:
		return NewEncryptedProvider(cfg.EncryptionKey, cfg.DataDir)
	case SourceTypeAWSSecretsManager:
		return NewAWSSecretsManagerProvider(cfg)
	case SourceTypeVault:
		return NewVaultProvider(cfg)
	case SourceTypeEnv:
		return NewEnvProvider("RANGEOPS_SECRET_"), nil
	default:
		return nil, fmt.Errorf("unknown secrets source: %s", cfg.Source)
	}
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates a new environment variable provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	value := os.Getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (p *EnvProvider) Set(ctx context.Context, key, value string) error {
	return fmt.Errorf("environment provider does not support Set")
}

func (p *EnvProvider) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("environment provider does not support Delete")
}

func (p *EnvProvider) Name() string {
	return "env"
}
