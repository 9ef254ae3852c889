// Package cache implements the per-window entity cache that sits between the
// event loop and the store. Reads are deferred and batched through a prefetch
// queue; writes are buffered in the resident map until Flush.
package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/0xmhha/transfer-indexer/pkg/batch"
	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cache holds the entities of one kind for one processing window.
// Every operation takes the cache lock for its whole duration, so a Get
// issued while a Prefetch is running waits for it and then sees its result.
type Cache[E entity.Entity] struct {
	mu       sync.Mutex
	kind     string
	config   Config
	store    storage.Store[E]
	queue    []string
	resident map[string]E
	logger   *zap.Logger
}

// New creates an unbound cache. Zero config fields fall back to defaults.
func New[E entity.Entity](kind string, cfg *Config, logger *zap.Logger) *Cache[E] {
	if logger == nil {
		logger = zap.NewNop()
	}

	config := *DefaultConfig()
	if cfg != nil {
		if cfg.BatchSize != 0 {
			config.BatchSize = cfg.BatchSize
		}
		if cfg.PrefetchConcurrency != 0 {
			config.PrefetchConcurrency = cfg.PrefetchConcurrency
		}
	}

	return &Cache[E]{
		kind:     kind,
		config:   config,
		resident: make(map[string]E),
		logger:   logger.With(zap.String("kind", kind)),
	}
}

// NewBound creates a cache already bound to store
func NewBound[E entity.Entity](kind string, store storage.Store[E], cfg *Config, logger *zap.Logger) (*Cache[E], error) {
	c := New[E](kind, cfg, logger)
	if err := c.Bind(store); err != nil {
		return nil, err
	}
	return c, nil
}

// Bind associates the cache with a store
func (c *Cache[E]) Bind(store storage.Store[E]) error {
	if store == nil {
		return fmt.Errorf("bind %s cache: store cannot be nil", c.kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	return nil
}

// Kind returns the entity kind name the cache was created for
func (c *Cache[E]) Kind() string {
	return c.kind
}

// Add inserts or replaces the resident entry for e. No I/O.
func (c *Cache[E]) Add(e E) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return ErrUnbound
	}
	c.resident[e.EntityID()] = e
	residentEntities.WithLabelValues(c.kind).Set(float64(len(c.resident)))
	return nil
}

// Register queues ids for the next Prefetch. Duplicates are accepted and
// collapsed when the queue is drained. No I/O.
func (c *Cache[E]) Register(ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return ErrUnbound
	}
	c.queue = append(c.queue, ids...)
	return nil
}

// Prefetch resolves every queued id that is not yet resident with bulk store
// reads of at most BatchSize ids each. Ids missing from the store stay absent.
// If any read fails nothing is applied and the queue is kept for a retry.
func (c *Cache[E]) Prefetch(ctx context.Context, opts ...storage.LoadOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return ErrUnbound
	}
	if len(c.queue) == 0 {
		return nil
	}

	ids := c.unresolved()
	if len(ids) == 0 {
		c.queue = nil
		return nil
	}

	chunks, err := batch.Split(ids, c.config.BatchSize)
	if err != nil {
		return err
	}

	start := time.Now()
	results := make([][]E, batch.Count(len(ids), c.config.BatchSize))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.PrefetchConcurrency)

	i := 0
	for chunk := range chunks {
		slot := i
		g.Go(func() error {
			found, err := c.store.GetMany(gctx, chunk, opts...)
			storeRequestsTotal.WithLabelValues(c.kind, opGetMany, resultLabel(err)).Inc()
			if err != nil {
				return err
			}
			results[slot] = found
			return nil
		})
		i++
	}

	if err := g.Wait(); err != nil {
		c.logger.Warn("Prefetch failed",
			zap.Int("ids", len(ids)),
			zap.Int("chunks", len(results)),
			zap.Error(err))
		return fmt.Errorf("%w: prefetch %s: %w", ErrStoreRead, c.kind, err)
	}

	found := 0
	for _, chunk := range results {
		for _, e := range chunk {
			c.resident[e.EntityID()] = e
			found++
		}
	}
	c.queue = nil

	prefetchDuration.WithLabelValues(c.kind).Observe(time.Since(start).Seconds())
	residentEntities.WithLabelValues(c.kind).Set(float64(len(c.resident)))

	c.logger.Debug("Prefetched entities",
		zap.Int("requested", len(ids)),
		zap.Int("found", found),
		zap.Int("chunks", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

// unresolved returns the queued ids that are not resident, deduplicated in
// first-seen order. Caller must hold c.mu.
func (c *Cache[E]) unresolved() []string {
	seen := make(map[string]struct{}, len(c.queue))
	ids := make([]string, 0, len(c.queue))
	for _, id := range c.queue {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := c.resident[id]; ok {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Get returns the resident entity for id, falling back to a single store
// read. A missing entity is reported as (zero, false, nil).
// A resident entity is returned as is, even if opts ask for relations it
// was not loaded with.
func (c *Cache[E]) Get(ctx context.Context, id string, opts ...storage.LoadOption) (E, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero E
	if c.store == nil {
		return zero, false, ErrUnbound
	}

	if e, ok := c.resident[id]; ok {
		hitsTotal.WithLabelValues(c.kind).Inc()
		return e, true, nil
	}
	missesTotal.WithLabelValues(c.kind).Inc()

	e, err := c.store.Get(ctx, id, opts...)
	if err != nil {
		if storage.IsNotFound(err) {
			storeRequestsTotal.WithLabelValues(c.kind, opGet, resultOK).Inc()
			return zero, false, nil
		}
		storeRequestsTotal.WithLabelValues(c.kind, opGet, resultError).Inc()
		return zero, false, fmt.Errorf("%w: get %s %s: %w", ErrStoreRead, c.kind, id, err)
	}
	storeRequestsTotal.WithLabelValues(c.kind, opGet, resultOK).Inc()

	c.resident[id] = e
	residentEntities.WithLabelValues(c.kind).Set(float64(len(c.resident)))
	return e, true, nil
}

// Flush writes every resident entity to the store in one bulk write, ordered
// by id, then empties the cache. On failure the cache is left untouched so
// the caller can retry.
func (c *Cache[E]) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return ErrUnbound
	}
	if len(c.resident) == 0 {
		c.queue = nil
		return nil
	}

	values := c.sortedValues()
	err := c.store.PutMany(ctx, values)
	storeRequestsTotal.WithLabelValues(c.kind, opPutMany, resultLabel(err)).Inc()
	if err != nil {
		c.logger.Error("Flush failed, keeping resident entities",
			zap.Int("entities", len(values)),
			zap.Error(err))
		return fmt.Errorf("%w: flush %s: %w", ErrStoreWrite, c.kind, err)
	}

	c.resident = make(map[string]E)
	c.queue = nil

	flushedEntitiesTotal.WithLabelValues(c.kind).Add(float64(len(values)))
	residentEntities.WithLabelValues(c.kind).Set(0)

	c.logger.Debug("Flushed entities", zap.Int("entities", len(values)))
	return nil
}

// Stage adds every resident entity, ordered by id, to u. The cache keeps
// them until Committed is called, so a failed unit can be retried or the
// cache reset.
func (c *Cache[E]) Stage(u storage.Unit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return ErrUnbound
	}
	writer, ok := c.store.(storage.UnitWriter[E])
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoUnit, c.kind)
	}
	if len(c.resident) == 0 {
		return nil
	}

	values := c.sortedValues()
	if err := writer.Stage(u, values); err != nil {
		return fmt.Errorf("%w: stage %s: %w", ErrStoreWrite, c.kind, err)
	}

	c.logger.Debug("Staged entities", zap.Int("entities", len(values)))
	return nil
}

// Committed empties the cache after the unit it was staged into committed
func (c *Cache[E]) Committed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	flushedEntitiesTotal.WithLabelValues(c.kind).Add(float64(len(c.resident)))
	c.resident = make(map[string]E)
	c.queue = nil
	residentEntities.WithLabelValues(c.kind).Set(0)
}

// Reset drops the resident map and the queue without writing anything
func (c *Cache[E]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resident = make(map[string]E)
	c.queue = nil
	residentEntities.WithLabelValues(c.kind).Set(0)
}

// Peek returns the resident entity for id without touching the store
func (c *Cache[E]) Peek(id string) (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.resident[id]
	return e, ok
}

// Has reports whether id is resident
func (c *Cache[E]) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.resident[id]
	return ok
}

// Len returns the number of resident entities
func (c *Cache[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resident)
}

// Pending returns the number of queued ids, duplicates included
func (c *Cache[E]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Values returns the resident entities ordered by id
func (c *Cache[E]) Values() []E {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedValues()
}

func (c *Cache[E]) sortedValues() []E {
	ids := make([]string, 0, len(c.resident))
	for id := range c.resident {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	values := make([]E, len(ids))
	for i, id := range ids {
		values[i] = c.resident[id]
	}
	return values
}
