package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"go.uber.org/zap"
)

// Ensure EntityStore implements Store
var _ Store[*entity.Account] = (*EntityStore[*entity.Account])(nil)

// EntityStore is the typed view of a PebbleStore for one entity kind.
// Relation options are ignored here; wrap the store with WithHydrator to
// load relations.
type EntityStore[E entity.Entity] struct {
	store *PebbleStore
	kind  entity.Kind[E]
}

// NewEntityStore creates a typed store for kind
func NewEntityStore[E entity.Entity](store *PebbleStore, kind entity.Kind[E]) *EntityStore[E] {
	return &EntityStore[E]{store: store, kind: kind}
}

// GetMany reads ids from a single snapshot so the result is consistent
// even while a flush is committing
func (s *EntityStore[E]) GetMany(ctx context.Context, ids []string, _ ...LoadOption) ([]E, error) {
	if err := s.store.ensureOpen(); err != nil {
		return nil, err
	}

	snap := s.store.db.NewSnapshot()
	defer snap.Close()

	result := make([]E, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e, err := s.read(snap, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		result = append(result, e)
	}

	s.store.logger.Debug("Read entities",
		zap.String("kind", s.kind.Name),
		zap.Int("requested", len(ids)),
		zap.Int("found", len(result)))

	return result, nil
}

// Get reads a single entity
func (s *EntityStore[E]) Get(ctx context.Context, id string, _ ...LoadOption) (E, error) {
	var zero E
	if err := s.store.ensureOpen(); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return s.read(s.store.db, id)
}

// PutMany writes all entities in one synced batch
func (s *EntityStore[E]) PutMany(ctx context.Context, entities []E) error {
	if len(entities) == 0 {
		return s.store.ensureWritable()
	}

	u, err := s.store.NewUnit(ctx)
	if err != nil {
		return err
	}
	defer u.Discard()

	if err := s.Stage(u, entities); err != nil {
		return err
	}
	return u.Commit(ctx)
}

// Stage adds the entities to a unit opened by the same PebbleStore
func (s *EntityStore[E]) Stage(u Unit, entities []E) error {
	pu, ok := u.(*pebbleUnit)
	if !ok || pu.store != s.store {
		return ErrForeignUnit
	}

	for _, e := range entities {
		data, err := EncodeEntity(e)
		if err != nil {
			return err
		}
		if err := pu.batch.Set(EntityKey(s.kind.Name, e.EntityID()), data, nil); err != nil {
			return fmt.Errorf("failed to stage %s %s: %w", s.kind.Name, e.EntityID(), err)
		}
	}
	return nil
}

// pebbleReader is satisfied by both *pebble.DB and *pebble.Snapshot
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func (s *EntityStore[E]) read(r pebbleReader, id string) (E, error) {
	var zero E

	value, closer, err := r.Get(EntityKey(s.kind.Name, id))
	if err != nil {
		if isPebbleNotFound(err) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("failed to get %s %s: %w", s.kind.Name, id, err)
	}
	defer closer.Close()

	return DecodeEntity(s.kind, value)
}
