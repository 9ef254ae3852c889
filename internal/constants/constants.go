package constants

import "time"

// Cache Constants
const (
	// DefaultCacheBatchSize is the maximum number of ids per bulk store read
	DefaultCacheBatchSize = 50

	// DefaultPrefetchConcurrency is the number of bulk reads in flight during a prefetch
	DefaultPrefetchConcurrency = 4

	// DefaultUnsupportedContractsSize bounds the skip list of contracts whose
	// metadata cannot be resolved
	DefaultUnsupportedContractsSize = 4096
)

// RPC Constants
const (
	// DefaultRPCTimeout is the default timeout for establishing the RPC connection
	DefaultRPCTimeout = 30 * time.Second
)

// Metadata Constants
const (
	// DefaultMetadataTimeout bounds every metadata contract call
	DefaultMetadataTimeout = 2 * time.Second

	// DefaultMetadataRateLimit is the metadata call rate (calls per second, 0 disables)
	DefaultMetadataRateLimit = 0

	// DefaultMetadataBurst is the metadata limiter burst size
	DefaultMetadataBurst = 10
)

// Indexer Constants
const (
	// DefaultWindowSize is the number of blocks processed per window
	DefaultWindowSize = 100

	// DefaultConfirmations is the number of blocks kept behind the chain head
	DefaultConfirmations = 12

	// DefaultPollInterval is how long to wait when caught up with the head
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxRetries is the default maximum number of retries for a failed window
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = 1 * time.Second

	// CheckpointID is the id of the single checkpoint row
	CheckpointID = "latest"
)

// Storage Constants
const (
	// DefaultBackend is the storage backend used when none is configured
	DefaultBackend = "pebble"

	// DefaultDataPath is the default Pebble data directory
	DefaultDataPath = "./data"

	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB for PebbleDB
	DefaultWriteBuffer = 64 // MB

	// DefaultCompactionConcurrency is the default number of concurrent compactions
	DefaultCompactionConcurrency = 4

	// DefaultRedisPrefix namespaces entity keys in Redis
	DefaultRedisPrefix = "indexer"

	// DefaultPostgresMaxConns is the default pgx pool size
	DefaultPostgresMaxConns = 10
)

// Metrics Server Constants
const (
	// DefaultMetricsAddr is the default listen address of the metrics server
	DefaultMetricsAddr = ":9090"

	// DefaultMetricsPath is the default metrics endpoint path
	DefaultMetricsPath = "/metrics"

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second
)

// Notification Constants
const (
	// DefaultNotifyBackend disables window notifications
	DefaultNotifyBackend = "none"

	// DefaultKafkaTopic is the topic committed windows are written to
	DefaultKafkaTopic = "indexer.windows"

	// DefaultKafkaRequiredAcks waits for all in-sync replicas
	DefaultKafkaRequiredAcks = -1

	// DefaultRedisChannel is the pub/sub channel committed windows are published on
	DefaultRedisChannel = "indexer:windows"
)

// Size Constants
const (
	// BytesPerKB represents bytes in a kilobyte
	BytesPerKB = 1024

	// BytesPerMB represents bytes in a megabyte
	BytesPerMB = 1024 * BytesPerKB
)
