package cache

import (
	"fmt"

	"github.com/0xmhha/transfer-indexer/internal/constants"
)

// Config holds entity cache configuration
type Config struct {
	// BatchSize is the maximum number of ids per bulk store read
	BatchSize int

	// PrefetchConcurrency bounds the bulk reads in flight during one Prefetch
	PrefetchConcurrency int
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() *Config {
	return &Config{
		BatchSize:           constants.DefaultCacheBatchSize,
		PrefetchConcurrency: constants.DefaultPrefetchConcurrency,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PrefetchConcurrency <= 0 {
		return fmt.Errorf("prefetch concurrency must be positive")
	}
	return nil
}
