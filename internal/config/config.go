package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/transfer-indexer/internal/constants"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendPebble   = "pebble"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Notification backends
const (
	NotifyNone  = "none"
	NotifyKafka = "kafka"
	NotifyRedis = "redis"
)

// Config holds all configuration for the indexer
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Cache    CacheConfig    `yaml:"cache"`
	Metadata MetadataConfig `yaml:"metadata"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// RPCConfig holds RPC client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds storage backend configuration
type DatabaseConfig struct {
	// Backend is one of pebble, postgres, redis or memory
	Backend string `yaml:"backend"`

	// Pebble settings
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
	Cache    int    `yaml:"cache"`

	// Postgres settings
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	// Addresses is the list of Redis server addresses (supports cluster mode)
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password,omitempty"`
	DB        int      `yaml:"db"`
	Prefix    string   `yaml:"prefix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IndexerConfig holds block window configuration
type IndexerConfig struct {
	StartHeight   uint64        `yaml:"start_height"`
	WindowSize    uint64        `yaml:"window_size"`
	Confirmations uint64        `yaml:"confirmations"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`

	// Contracts restricts the log filter; empty indexes every contract
	Contracts []string `yaml:"contracts"`
}

// CacheConfig holds entity cache configuration
type CacheConfig struct {
	BatchSize           int `yaml:"batch_size"`
	PrefetchConcurrency int `yaml:"prefetch_concurrency"`
}

// MetadataConfig holds token metadata resolver configuration
type MetadataConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is in calls per second; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// MetricsConfig holds Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// NotifyConfig selects where committed windows are announced
type NotifyConfig struct {
	// Backend is one of none, kafka or redis
	Backend string `yaml:"backend"`

	Kafka KafkaConfig `yaml:"kafka"`

	// Redis reuses the database.redis connection settings when Addresses is empty
	Redis   RedisConfig `yaml:"redis"`
	Channel string      `yaml:"channel"`
}

// KafkaConfig holds Kafka producer settings
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	Compression  string   `yaml:"compression"`
	RequiredAcks int      `yaml:"required_acks"`
}

// NotifyRedis returns the Redis settings used for notifications
func (c *Config) NotifyRedis() RedisConfig {
	if len(c.Notify.Redis.Addresses) > 0 {
		return c.Notify.Redis
	}
	return c.Database.Redis
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	// Zero is meaningful for both of these, so SetDefaults leaves them alone
	cfg.Indexer.Confirmations = constants.DefaultConfirmations
	cfg.Notify.Kafka.RequiredAcks = constants.DefaultKafkaRequiredAcks
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}

	// Database defaults
	if c.Database.Backend == "" {
		c.Database.Backend = constants.DefaultBackend
	}
	if c.Database.Backend == BackendPebble && c.Database.Path == "" {
		c.Database.Path = constants.DefaultDataPath
	}
	if c.Database.Cache == 0 {
		c.Database.Cache = constants.DefaultCacheSize
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = constants.DefaultPostgresMaxConns
	}
	if c.Database.Redis.Prefix == "" {
		c.Database.Redis.Prefix = constants.DefaultRedisPrefix
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Indexer defaults
	if c.Indexer.WindowSize == 0 {
		c.Indexer.WindowSize = constants.DefaultWindowSize
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = constants.DefaultPollInterval
	}
	if c.Indexer.MaxRetries == 0 {
		c.Indexer.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Indexer.RetryDelay == 0 {
		c.Indexer.RetryDelay = constants.DefaultRetryDelay
	}

	// Cache defaults
	if c.Cache.BatchSize == 0 {
		c.Cache.BatchSize = constants.DefaultCacheBatchSize
	}
	if c.Cache.PrefetchConcurrency == 0 {
		c.Cache.PrefetchConcurrency = constants.DefaultPrefetchConcurrency
	}

	// Metadata defaults
	if c.Metadata.Timeout == 0 {
		c.Metadata.Timeout = constants.DefaultMetadataTimeout
	}
	if c.Metadata.Burst == 0 {
		c.Metadata.Burst = constants.DefaultMetadataBurst
	}

	// Metrics defaults
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = constants.DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = constants.DefaultMetricsPath
	}

	// Notify defaults
	if c.Notify.Backend == "" {
		c.Notify.Backend = constants.DefaultNotifyBackend
	}
	if c.Notify.Kafka.Topic == "" {
		c.Notify.Kafka.Topic = constants.DefaultKafkaTopic
	}
	if c.Notify.Channel == "" {
		c.Notify.Channel = constants.DefaultRedisChannel
	}
}

// LoadFromEnv loads configuration from environment variables
// Environment variables take precedence over file configuration
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if endpoint := os.Getenv("INDEXER_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if timeout := os.Getenv("INDEXER_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = duration
	}

	// Database configuration
	if backend := os.Getenv("INDEXER_DB_BACKEND"); backend != "" {
		c.Database.Backend = backend
	}
	if path := os.Getenv("INDEXER_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("INDEXER_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}
	if dsn := os.Getenv("INDEXER_DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if maxConns := os.Getenv("INDEXER_DB_MAX_CONNS"); maxConns != "" {
		val, err := strconv.ParseInt(maxConns, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_DB_MAX_CONNS: %w", err)
		}
		c.Database.MaxConns = int32(val)
	}
	if redisAddrs := os.Getenv("INDEXER_REDIS_ADDRESSES"); redisAddrs != "" {
		c.Database.Redis.Addresses = splitList(redisAddrs)
	}
	if redisPassword := os.Getenv("INDEXER_REDIS_PASSWORD"); redisPassword != "" {
		c.Database.Redis.Password = redisPassword
	}
	if redisDB := os.Getenv("INDEXER_REDIS_DB"); redisDB != "" {
		val, err := strconv.Atoi(redisDB)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_REDIS_DB: %w", err)
		}
		c.Database.Redis.DB = val
	}
	if prefix := os.Getenv("INDEXER_REDIS_PREFIX"); prefix != "" {
		c.Database.Redis.Prefix = prefix
	}

	// Log configuration
	if level := os.Getenv("INDEXER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("INDEXER_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Indexer configuration
	if startHeight := os.Getenv("INDEXER_START_HEIGHT"); startHeight != "" {
		val, err := strconv.ParseUint(startHeight, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_START_HEIGHT: %w", err)
		}
		c.Indexer.StartHeight = val
	}
	if windowSize := os.Getenv("INDEXER_WINDOW_SIZE"); windowSize != "" {
		val, err := strconv.ParseUint(windowSize, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_WINDOW_SIZE: %w", err)
		}
		c.Indexer.WindowSize = val
	}
	if confirmations := os.Getenv("INDEXER_CONFIRMATIONS"); confirmations != "" {
		val, err := strconv.ParseUint(confirmations, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_CONFIRMATIONS: %w", err)
		}
		c.Indexer.Confirmations = val
	}
	if pollInterval := os.Getenv("INDEXER_POLL_INTERVAL"); pollInterval != "" {
		duration, err := time.ParseDuration(pollInterval)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_POLL_INTERVAL: %w", err)
		}
		c.Indexer.PollInterval = duration
	}
	if maxRetries := os.Getenv("INDEXER_MAX_RETRIES"); maxRetries != "" {
		val, err := strconv.Atoi(maxRetries)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_MAX_RETRIES: %w", err)
		}
		c.Indexer.MaxRetries = val
	}
	if contracts := os.Getenv("INDEXER_CONTRACTS"); contracts != "" {
		c.Indexer.Contracts = splitList(contracts)
	}

	// Cache configuration
	if batchSize := os.Getenv("INDEXER_CACHE_BATCH_SIZE"); batchSize != "" {
		val, err := strconv.Atoi(batchSize)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_CACHE_BATCH_SIZE: %w", err)
		}
		c.Cache.BatchSize = val
	}
	if concurrency := os.Getenv("INDEXER_CACHE_PREFETCH_CONCURRENCY"); concurrency != "" {
		val, err := strconv.Atoi(concurrency)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_CACHE_PREFETCH_CONCURRENCY: %w", err)
		}
		c.Cache.PrefetchConcurrency = val
	}

	// Metadata configuration
	if timeout := os.Getenv("INDEXER_METADATA_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_METADATA_TIMEOUT: %w", err)
		}
		c.Metadata.Timeout = duration
	}
	if rate := os.Getenv("INDEXER_METADATA_RATE_LIMIT"); rate != "" {
		val, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_METADATA_RATE_LIMIT: %w", err)
		}
		c.Metadata.RateLimit = val
	}

	// Metrics configuration
	if enabled := os.Getenv("INDEXER_METRICS_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = val
	}
	if addr := os.Getenv("INDEXER_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}

	// Notify configuration
	if backend := os.Getenv("INDEXER_NOTIFY_BACKEND"); backend != "" {
		c.Notify.Backend = backend
	}
	if brokers := os.Getenv("INDEXER_KAFKA_BROKERS"); brokers != "" {
		c.Notify.Kafka.Brokers = splitList(brokers)
	}
	if topic := os.Getenv("INDEXER_KAFKA_TOPIC"); topic != "" {
		c.Notify.Kafka.Topic = topic
	}
	if compression := os.Getenv("INDEXER_KAFKA_COMPRESSION"); compression != "" {
		c.Notify.Kafka.Compression = compression
	}
	if acks := os.Getenv("INDEXER_KAFKA_REQUIRED_ACKS"); acks != "" {
		val, err := strconv.Atoi(acks)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_KAFKA_REQUIRED_ACKS: %w", err)
		}
		c.Notify.Kafka.RequiredAcks = val
	}
	if channel := os.Getenv("INDEXER_NOTIFY_CHANNEL"); channel != "" {
		c.Notify.Channel = channel
	}

	return nil
}

func splitList(v string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	switch c.Database.Backend {
	case BackendPebble:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the postgres backend")
		}
	case BackendRedis:
		if len(c.Database.Redis.Addresses) == 0 {
			return fmt.Errorf("redis addresses are required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid database backend %q, must be one of: pebble, postgres, redis, memory", c.Database.Backend)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Indexer.WindowSize == 0 {
		return fmt.Errorf("window size must be positive")
	}
	if c.Indexer.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	for _, contract := range c.Indexer.Contracts {
		if !common.IsHexAddress(contract) {
			return fmt.Errorf("invalid contract address %q", contract)
		}
	}

	if c.Cache.BatchSize <= 0 {
		return fmt.Errorf("cache batch size must be positive")
	}
	if c.Cache.PrefetchConcurrency <= 0 {
		return fmt.Errorf("cache prefetch concurrency must be positive")
	}

	if c.Metadata.Timeout <= 0 {
		return fmt.Errorf("metadata timeout must be positive")
	}
	if c.Metadata.RateLimit < 0 {
		return fmt.Errorf("metadata rate limit cannot be negative")
	}

	switch c.Notify.Backend {
	case NotifyNone:
	case NotifyKafka:
		if len(c.Notify.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required for kafka notifications")
		}
		if c.Notify.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required for kafka notifications")
		}
		switch c.Notify.Kafka.RequiredAcks {
		case -1, 0, 1:
		default:
			return fmt.Errorf("invalid kafka required acks %d, must be one of: -1, 0, 1", c.Notify.Kafka.RequiredAcks)
		}
	case NotifyRedis:
		if len(c.NotifyRedis().Addresses) == 0 {
			return fmt.Errorf("redis addresses are required for redis notifications")
		}
		if c.Notify.Channel == "" {
			return fmt.Errorf("redis channel is required for redis notifications")
		}
	default:
		return fmt.Errorf("invalid notify backend %q, must be one of: none, kafka, redis", c.Notify.Backend)
	}

	return nil
}

// Load loads configuration from file and environment variables
// Priority: overrides > environment variables > config file > defaults
func Load(configFile string, overrides ...func(*Config)) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	for _, override := range overrides {
		override(cfg)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
