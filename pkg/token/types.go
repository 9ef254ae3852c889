package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/transfer-indexer/internal/constants"
)

var (
	// ErrUnsupportedStandard is returned when no call surface exists for a standard
	ErrUnsupportedStandard = errors.New("unsupported token standard")

	// ErrMetadataTimeout is returned when a metadata call exceeds its bound
	ErrMetadataTimeout = errors.New("metadata call timed out")

	// ErrCallReverted is returned when the contract rejected a metadata call
	ErrCallReverted = errors.New("metadata call reverted")

	// ErrInvalidResponse is returned when a call result cannot be decoded
	ErrInvalidResponse = errors.New("invalid metadata response")
)

// Method names of the metadata call surface
const (
	MethodName     = "name"
	MethodSymbol   = "symbol"
	MethodDecimals = "decimals"
)

// Metadata is the descriptive data read from a token contract.
// Decimals is nil for standards that declare none.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals *uint8
}

// Config holds resolver configuration
type Config struct {
	// Timeout bounds every individual contract call
	Timeout time.Duration

	// RateLimit caps contract calls per second; zero disables limiting
	RateLimit float64

	// Burst is the limiter bucket size
	Burst int
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:   constants.DefaultMetadataTimeout,
		RateLimit: constants.DefaultMetadataRateLimit,
		Burst:     constants.DefaultMetadataBurst,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimit > 0 && c.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting is enabled")
	}
	return nil
}
