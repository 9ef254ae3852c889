package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/0xmhha/transfer-indexer/internal/constants"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// countCheckInterval is how many keys Count scans between context checks
const countCheckInterval = 1024

// PebbleStore owns the Pebble database behind every per-kind EntityStore
type PebbleStore struct {
	db       *pebble.DB
	readOnly bool
	logger   *zap.Logger
	closed   atomic.Bool
}

// NewPebbleStore opens (or creates) the database at cfg.Path
func NewPebbleStore(cfg *Config) (*PebbleStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	compactions := cfg.Compactions
	db, err := pebble.Open(cfg.Path, &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) * constants.BytesPerMB),
		MemTableSize:             uint64(cfg.WriteBuffer) * constants.BytesPerMB,
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MaxConcurrentCompactions: func() int { return compactions },
		ReadOnly:                 cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", cfg.Path, err)
	}

	return &PebbleStore{db: db, readOnly: cfg.ReadOnly, logger: zap.NewNop()}, nil
}

// SetLogger sets the logger used for storage diagnostics
func (s *PebbleStore) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.logger = logger
}

func (s *PebbleStore) ensureWritable() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *PebbleStore) ensureOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close releases the database. Calling it again is a no-op.
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	m := s.db.Metrics()
	s.logger.Debug("Closing pebble",
		zap.Int64("disk_bytes", int64(m.DiskSpaceUsage())),
		zap.Int64("compactions", m.Compact.Count))
	return s.db.Close()
}

// Count returns how many entities of kind are stored
func (s *PebbleStore) Count(ctx context.Context, kind string) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	prefix := EntityKeyPrefix(kind)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementPrefix(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("iterate %s: %w", kind, err)
	}
	defer iter.Close()

	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		if n%countCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, iter.Error()
}

func isPebbleNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// NewUnit opens a write batch that every EntityStore over s can stage into
func (s *PebbleStore) NewUnit(ctx context.Context) (Unit, error) {
	if err := s.ensureWritable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pebbleUnit{store: s, batch: s.db.NewBatch()}, nil
}

type pebbleUnit struct {
	store *PebbleStore
	batch *pebble.Batch
	done  bool
}

func (u *pebbleUnit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitDone
	}
	if err := u.store.ensureWritable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	count := u.batch.Count()
	if err := u.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	u.Discard()

	u.store.logger.Debug("Committed unit", zap.Uint32("entries", count))
	return nil
}

func (u *pebbleUnit) Discard() {
	if u.done {
		return
	}
	u.done = true
	_ = u.batch.Close()
}
