package storage

import (
	"errors"
	"fmt"

	"github.com/0xmhha/transfer-indexer/internal/constants"
)

// ErrInvalidConfig is returned when a Pebble configuration is unusable
var ErrInvalidConfig = errors.New("invalid pebble config")

// Config holds the Pebble options the entity stores care about.
// Sizes are in MB.
type Config struct {
	Path     string
	ReadOnly bool

	Cache        int
	WriteBuffer  int
	MaxOpenFiles int

	// Compactions bounds concurrent background compactions
	Compactions int
}

// DefaultConfig returns a Config rooted at path
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		Cache:        constants.DefaultCacheSize,
		WriteBuffer:  constants.DefaultWriteBuffer,
		MaxOpenFiles: constants.DefaultMaxOpenFiles,
		Compactions:  constants.DefaultCompactionConcurrency,
	}
}

// Validate reports the first unusable setting
func (c *Config) Validate() error {
	switch {
	case c.Path == "":
		return fmt.Errorf("%w: empty path", ErrInvalidConfig)
	case c.Cache < 0, c.WriteBuffer < 0, c.MaxOpenFiles < 0:
		return fmt.Errorf("%w: negative size", ErrInvalidConfig)
	case c.Compactions < 1:
		return fmt.Errorf("%w: compactions must be at least 1", ErrInvalidConfig)
	}
	return nil
}
