package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// RedisConfig enables cross-process token refresh locking when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// AMQPConfig enables message.synced events when URL is set.
type AMQPConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

// OAuthClientConfig holds one provider's registered client.
type OAuthClientConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`

	// Tenant is used by Outlook only. Defaults to "common".
	Tenant string `mapstructure:"tenant" yaml:"tenant"`
}

// OAuthConfig is built once at startup and handed to the token manager
// and adapters that need it.
type OAuthConfig struct {
	Gmail   OAuthClientConfig `mapstructure:"gmail" yaml:"gmail"`
	Outlook OAuthClientConfig `mapstructure:"outlook" yaml:"outlook"`

	// StateSecret signs the state parameter of authorization URLs.
	StateSecret string        `mapstructure:"state_secret" yaml:"state_secret"`
	StateTTL    time.Duration `mapstructure:"state_ttl" yaml:"state_ttl"`

	// RefreshSkew refreshes tokens this long before they expire.
	RefreshSkew time.Duration `mapstructure:"refresh_skew" yaml:"refresh_skew"`
}

// AIConfig selects the completion backend.
type AIConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string        `mapstructure:"provider" yaml:"provider"`
	Model    string        `mapstructure:"model" yaml:"model"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SyncConfig bounds each sync cycle.
type SyncConfig struct {
	BatchSize       int           `mapstructure:"batch_size" yaml:"batch_size"`
	AnnotateWorkers int           `mapstructure:"annotate_workers" yaml:"annotate_workers"`
	PollIntervalSec int           `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout" yaml:"cycle_timeout"`
}

// SecretsConfig holds the key used to seal credentials at rest.
type SecretsConfig struct {
	// EncryptionKey is a base64-encoded 32-byte key. Empty disables sealing.
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	AMQP     AMQPConfig     `mapstructure:"amqp" yaml:"amqp"`
	OAuth    OAuthConfig    `mapstructure:"oauth" yaml:"oauth"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Secrets  SecretsConfig  `mapstructure:"secrets" yaml:"secrets"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultConfigPath returns ~/.config/unibox/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "unibox", "config.yaml")
}

// DefaultDatabasePath returns ~/.config/unibox/unibox.db.
func DefaultDatabasePath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "unibox.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", DefaultDatabasePath())
	v.SetDefault("amqp.exchange", "unibox")
	v.SetDefault("oauth.outlook.tenant", "common")
	v.SetDefault("oauth.state_ttl", 15*time.Minute)
	v.SetDefault("oauth.refresh_skew", time.Minute)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.annotate_workers", 4)
	v.SetDefault("sync.poll_interval_sec", 300)
	v.SetDefault("sync.cycle_timeout", 2*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", ":9090")

	// Keys without a default still need registering for env overrides
	// to reach Unmarshal.
	for _, key := range []string{
		"redis.addr", "redis.password", "amqp.url",
		"oauth.gmail.client_id", "oauth.gmail.client_secret", "oauth.gmail.redirect_url",
		"oauth.outlook.client_id", "oauth.outlook.client_secret", "oauth.outlook.redirect_url",
		"oauth.state_secret", "ai.api_key", "ai.base_url", "secrets.encryption_key",
	} {
		_ = v.BindEnv(key)
	}
}

// LoadConfig reads configuration from the given YAML file using Viper,
// then applies UNIBOX_* environment overrides. A missing file yields the
// defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("unibox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.BatchSize <= 0 || cfg.Sync.BatchSize > 50 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.AnnotateWorkers <= 0 {
		cfg.Sync.AnnotateWorkers = 1
	}

	return cfg, nil
}

// SaveConfig writes cfg to a YAML file at path, creating parent
// directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("redis", cfg.Redis)
	v.Set("amqp", cfg.AMQP)
	v.Set("oauth", cfg.OAuth)
	v.Set("ai", cfg.AI)
	v.Set("sync", cfg.Sync)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
