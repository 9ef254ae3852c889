// Package notify announces committed windows to downstream consumers.
// Publishing happens after the commit is durable, so consumers may see a
// window only once it is readable from the store.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventType identifies the only event published
const EventType = "window_committed"

// Errors
var (
	// ErrInvalidConfiguration indicates invalid publisher configuration
	ErrInvalidConfiguration = errors.New("invalid publisher configuration")

	// ErrPublishFailed wraps backend publish errors
	ErrPublishFailed = errors.New("failed to publish event")
)

var publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "indexer",
	Subsystem: "notify",
	Name:      "published_total",
	Help:      "Window events published by backend and result",
}, []string{"backend", "result"})

// WindowCommitted describes a window whose entities and checkpoint are stored
type WindowCommitted struct {
	From        uint64    `json:"from"`
	To          uint64    `json:"to"`
	Transfers   int       `json:"transfers"`
	NewAccounts int       `json:"new_accounts"`
	NewTokens   int       `json:"new_tokens"`
	Skipped     int       `json:"skipped"`
	CommittedAt time.Time `json:"committed_at"`
}

// Publisher delivers window events
type Publisher interface {
	Publish(ctx context.Context, ev *WindowCommitted) error
	Close() error
}

// Encode serializes an event as JSON
func Encode(ev *WindowCommitted) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", EventType, err)
	}
	return data, nil
}

// Decode parses an event produced by Encode
func Decode(data []byte) (*WindowCommitted, error) {
	var ev WindowCommitted
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", EventType, err)
	}
	return &ev, nil
}

func record(backend string, err error) error {
	if err != nil {
		publishedTotal.WithLabelValues(backend, "error").Inc()
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, backend, err)
	}
	publishedTotal.WithLabelValues(backend, "ok").Inc()
	return nil
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, *WindowCommitted) error { return nil }

// Close implements Publisher
func (Nop) Close() error { return nil }
