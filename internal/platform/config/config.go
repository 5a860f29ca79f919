package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/solve3fi/contracts/internal/money"
)

// EnvPrefix prefixes every environment override, e.g. SOLVE_STORE_BACKEND.
const EnvPrefix = "SOLVE"

// Config holds all configuration for the pool engine and its tools
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Bootstrap     BootstrapConfig     `mapstructure:"bootstrap"`
	Tokens        map[string]string   `mapstructure:"tokens"`
	Store         StoreConfig         `mapstructure:"store"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Events        EventsConfig        `mapstructure:"events"`
	Scenarios     []string            `mapstructure:"scenarios"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`

	registry *TokenRegistry
}

// EngineConfig holds engine behaviour settings
type EngineConfig struct {
	Namespace     string `mapstructure:"namespace"`
	RetryAttempts int    `mapstructure:"retry_attempts"` // attempts after a store conflict
}

// BootstrapConfig describes the global config and fee tiers created on start
type BootstrapConfig struct {
	Enabled                       bool            `mapstructure:"enabled"`
	FeeAuthority                  string          `mapstructure:"fee_authority"`
	CollectProtocolFeesAuthority  string          `mapstructure:"collect_protocol_fees_authority"`
	RewardEmissionsSuperAuthority string          `mapstructure:"reward_emissions_super_authority"`
	DefaultProtocolFeeRate        uint16          `mapstructure:"default_protocol_fee_rate"`
	FeeTiers                      []FeeTierConfig `mapstructure:"fee_tiers"`

	authorities [3]solana.PublicKey
}

// FeeTierConfig is one fee tier to register
type FeeTierConfig struct {
	TickSpacing    uint16 `mapstructure:"tick_spacing"`
	DefaultFeeRate uint16 `mapstructure:"default_fee_rate"`
}

// Authorities returns the parsed fee, collect-protocol-fees and reward
// emissions super authorities.
func (b *BootstrapConfig) Authorities() (fee, collect, rewardSuper solana.PublicKey) {
	return b.authorities[0], b.authorities[1], b.authorities[2]
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // memory, redis or postgres
	Cache   CacheConfig `mapstructure:"cache"`
}

// CacheConfig holds the in-process record cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	MaxSize int           `mapstructure:"max_size"`
	TTL     time.Duration `mapstructure:"ttl"`
	Warm    bool          `mapstructure:"warm"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresConfig holds Postgres connection configuration
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// EventsConfig holds event publishing settings
type EventsConfig struct {
	Publisher string          `mapstructure:"publisher"` // noop or sns
	Workers   int             `mapstructure:"workers"`
	QueueSize int             `mapstructure:"queue_size"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"` // prometheus or otlp
	Endpoint string `mapstructure:"endpoint"` // otlp only
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Registry returns the token registry built from the defaults and the
// tokens section.
func (c *Config) Registry() *TokenRegistry {
	return c.registry
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine when defaults and env cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parse(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.namespace", "solve")
	v.SetDefault("engine.retry_attempts", 5)

	v.SetDefault("bootstrap.enabled", false)
	v.SetDefault("bootstrap.default_protocol_fee_rate", 300)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.cache.enabled", false)
	v.SetDefault("store.cache.max_size", 4096)
	v.SetDefault("store.cache.ttl", "60s")
	v.SetDefault("store.cache.warm", true)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "solve")

	v.SetDefault("aws.endpoint", "http://localhost:4566")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_topic_arn", "arn:aws:sns:us-east-1:000000000000:solve-pool-events")

	v.SetDefault("events.publisher", "noop")
	v.SetDefault("events.workers", 4)
	v.SetDefault("events.queue_size", 1024)
	v.SetDefault("events.rate_limit.per_second", 50)
	v.SetDefault("events.rate_limit.burst", 100)

	v.SetDefault("observability.service_name", "solve-engine")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.exporter", "prometheus")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_ratio", 1.0)

	v.SetDefault("http.port", 8080)
}

// parse converts string values into their typed forms
func (c *Config) parse() error {
	reg, err := NewTokenRegistry(c.Tokens)
	if err != nil {
		return err
	}
	c.registry = reg

	if !c.Bootstrap.Enabled {
		return nil
	}
	for i, raw := range []string{
		c.Bootstrap.FeeAuthority,
		c.Bootstrap.CollectProtocolFeesAuthority,
		c.Bootstrap.RewardEmissionsSuperAuthority,
	} {
		key, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return fmt.Errorf("invalid bootstrap authority %q: %w", raw, err)
		}
		c.Bootstrap.authorities[i] = key
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine.Namespace == "" || len(c.Engine.Namespace) > 32 {
		return fmt.Errorf("engine namespace must be 1 to 32 bytes")
	}
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("engine retry attempts must be >= 1")
	}

	if c.Bootstrap.Enabled {
		if err := money.ProtocolFeeRate(c.Bootstrap.DefaultProtocolFeeRate).Validate(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		seen := make(map[uint16]bool)
		for _, ft := range c.Bootstrap.FeeTiers {
			if ft.TickSpacing == 0 {
				return fmt.Errorf("bootstrap: fee tier tick spacing must be > 0")
			}
			if seen[ft.TickSpacing] {
				return fmt.Errorf("bootstrap: duplicate fee tier for tick spacing %d", ft.TickSpacing)
			}
			seen[ft.TickSpacing] = true
			if err := money.FeeRate(ft.DefaultFeeRate).Validate(); err != nil {
				return fmt.Errorf("bootstrap: tick spacing %d: %w", ft.TickSpacing, err)
			}
		}
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required")
		}
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}
	if c.Store.Cache.Enabled && c.Store.Cache.MaxSize <= 0 {
		return fmt.Errorf("store cache max size must be > 0")
	}

	switch c.Events.Publisher {
	case "noop":
	case "sns":
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required")
		}
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required")
		}
	default:
		return fmt.Errorf("invalid events publisher: %s", c.Events.Publisher)
	}
	if c.Events.Workers < 1 {
		return fmt.Errorf("events workers must be >= 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	switch c.Observability.Metrics.Exporter {
	case "prometheus", "otlp":
	default:
		return fmt.Errorf("invalid metrics exporter: %s", c.Observability.Metrics.Exporter)
	}

	return nil
}
