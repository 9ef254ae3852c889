package pipeline

import (
	"fmt"
	"time"

	"github.com/0xmhha/transfer-indexer/internal/constants"
)

// Config holds processor configuration
type Config struct {
	// StartHeight is the first block indexed when no checkpoint exists
	StartHeight uint64

	// WindowSize is the number of blocks per processing window
	WindowSize uint64

	// Confirmations is how far behind the head the processor stays
	Confirmations uint64

	// PollInterval is the wait when caught up with the head
	PollInterval time.Duration

	// MaxRetries is the number of retries of a failed window before Run fails
	MaxRetries int

	// RetryDelay is the wait between retries
	RetryDelay time.Duration

	// SkipListSize bounds the set of contracts whose metadata cannot be read
	SkipListSize int
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() *Config {
	return &Config{
		WindowSize:    constants.DefaultWindowSize,
		Confirmations: constants.DefaultConfirmations,
		PollInterval:  constants.DefaultPollInterval,
		MaxRetries:    constants.DefaultMaxRetries,
		RetryDelay:    constants.DefaultRetryDelay,
		SkipListSize:  constants.DefaultUnsupportedContractsSize,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WindowSize == 0 {
		return fmt.Errorf("window size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.SkipListSize <= 0 {
		return fmt.Errorf("skip list size must be positive")
	}
	return nil
}
