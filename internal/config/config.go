package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ignite/keylock/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KeyBackend selects the store behind the KeyStore.
type KeyBackend string

const (
	BackendPostgres KeyBackend = "postgres"
	BackendRedis    KeyBackend = "redis"
	BackendMemory   KeyBackend = "memory"
)

// Config holds all configuration for the engine.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Database   DatabaseConfig        `yaml:"database"`
	Redis      RedisConfig           `yaml:"redis"`
	Keys       KeysConfig            `yaml:"keys"`
	Categories []domain.CategoryInfo `yaml:"categories"`
	Rules      RulesConfig           `yaml:"rules"`
	Engine     EngineConfig          `yaml:"engine"`
	Sweeper    SweeperConfig         `yaml:"sweeper"`
	Archive    ArchiveConfig         `yaml:"archive"`
	Log        LogConfig             `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port" env:"SERVER_PORT"`
	Host                string   `yaml:"host" env:"SERVER_HOST"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`

	// AdminTokens are "name:token" bearer tokens for /api/v1/admin. Empty
	// leaves the admin endpoints open, which is only meant for local runs.
	AdminTokens []string `yaml:"admin_tokens" env:"ADMIN_TOKENS" envSeparator:","`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// KeysConfig selects the key store backend.
type KeysConfig struct {
	Backend KeyBackend `yaml:"backend" env:"KEY_BACKEND"`
}

// RulesConfig controls the rule catalog cache.
type RulesConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the active-rule cache TTL.
func (c RulesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// EngineConfig holds join coordination settings.
type EngineConfig struct {
	ParticipationLookbackDays  int `yaml:"participation_lookback_days"`
	CompensationTimeoutSeconds int `yaml:"compensation_timeout_seconds"`
	RequestTimeoutSeconds      int `yaml:"request_timeout_seconds"`
}

// ParticipationLookback returns how far back ended participations are loaded
// for cooldown rules.
func (c EngineConfig) ParticipationLookback() time.Duration {
	return time.Duration(c.ParticipationLookbackDays) * 24 * time.Hour
}

// CompensationTimeout bounds the rollback release after a failed join.
func (c EngineConfig) CompensationTimeout() time.Duration {
	return time.Duration(c.CompensationTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single join/leave request.
func (c EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SweeperConfig holds maintenance worker settings.
type SweeperConfig struct {
	IntervalSeconds      int `yaml:"interval_seconds"`
	OrphanLockAgeHours   int `yaml:"orphan_lock_age_hours"`
	ViolationExpiryDays  int `yaml:"violation_expiry_days"`
	LeaderLockTTLSeconds int `yaml:"leader_lock_ttl_seconds"`
}

// Interval returns the sweep interval.
func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// OrphanLockAge returns how long a lock may exist without an active
// participation before it is reaped.
func (c SweeperConfig) OrphanLockAge() time.Duration {
	return time.Duration(c.OrphanLockAgeHours) * time.Hour
}

// ViolationExpiry returns how long a pending violation waits for review.
func (c SweeperConfig) ViolationExpiry() time.Duration {
	return time.Duration(c.ViolationExpiryDays) * 24 * time.Hour
}

// LeaderLockTTL returns the distributed lock TTL for one sweep.
func (c SweeperConfig) LeaderLockTTL() time.Duration {
	return time.Duration(c.LeaderLockTTLSeconds) * time.Second
}

// ArchiveConfig enables the DynamoDB violation archive.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ARCHIVE_ENABLED"`
	DynamoDBTable string `yaml:"dynamodb_table" env:"ARCHIVE_DYNAMODB_TABLE"`
	AWSRegion     string `yaml:"aws_region" env:"AWS_REGION"`
	AWSProfile    string `yaml:"aws_profile"`
	TTLDays       int    `yaml:"ttl_days"`

	// Static credentials. Empty means the default AWS credential chain.
	AccessKey string `yaml:"access_key" env:"ARCHIVE_AWS_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"ARCHIVE_AWS_SECRET_KEY"`

	// Endpoint overrides the DynamoDB endpoint, e.g. DynamoDB Local.
	Endpoint string `yaml:"endpoint" env:"ARCHIVE_DYNAMODB_ENDPOINT"`
}

// TTL is the archive item lifetime.
func (c ArchiveConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Keys.Backend == "" {
		cfg.Keys.Backend = BackendPostgres
	}
	if cfg.Rules.CacheTTLSeconds == 0 {
		cfg.Rules.CacheTTLSeconds = 30
	}
	if cfg.Engine.ParticipationLookbackDays == 0 {
		cfg.Engine.ParticipationLookbackDays = 90
	}
	if cfg.Engine.CompensationTimeoutSeconds == 0 {
		cfg.Engine.CompensationTimeoutSeconds = 10
	}
	if cfg.Engine.RequestTimeoutSeconds == 0 {
		cfg.Engine.RequestTimeoutSeconds = 10
	}
	if cfg.Sweeper.IntervalSeconds == 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
	if cfg.Sweeper.OrphanLockAgeHours == 0 {
		cfg.Sweeper.OrphanLockAgeHours = 24
	}
	if cfg.Sweeper.ViolationExpiryDays == 0 {
		cfg.Sweeper.ViolationExpiryDays = 30
	}
	if cfg.Sweeper.LeaderLockTTLSeconds == 0 {
		cfg.Sweeper.LeaderLockTTLSeconds = 120
	}
	if cfg.Archive.AWSRegion == "" {
		cfg.Archive.AWSRegion = "us-east-1"
	}
	if cfg.Archive.TTLDays == 0 {
		cfg.Archive.TTLDays = 365
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that defaults cannot fix.
func (cfg *Config) Validate() error {
	switch cfg.Keys.Backend {
	case BackendPostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("keys.backend=postgres requires database.url")
		}
	case BackendRedis:
		if cfg.Redis.URL == "" {
			return fmt.Errorf("keys.backend=redis requires redis.url")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown keys.backend %q", cfg.Keys.Backend)
	}
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("at least one category must be configured")
	}
	seen := make(map[string]bool, len(cfg.Categories))
	for _, c := range cfg.Categories {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Category] {
			return fmt.Errorf("category %q configured twice", c.Category)
		}
		seen[c.Category] = true
	}
	if cfg.Archive.Enabled && cfg.Archive.DynamoDBTable == "" {
		return fmt.Errorf("archive.enabled requires archive.dynamodb_table")
	}
	return nil
}
