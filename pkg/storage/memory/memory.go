// Package memory provides an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
)

// Store keeps encoded entities in a map. Values are copied on every read and
// write so callers never share pointers with the store.
type Store[E entity.Entity] struct {
	mu   sync.Mutex
	kind entity.Kind[E]
	data map[string][]byte

	readErr  error
	writeErr error

	getManyCalls [][]string
	getCalls     []string
	putManyCalls int
}

// Compile-time interface checks.
var (
	_ storage.UnitStore[*entity.Account] = (*Store[*entity.Account])(nil)
	_ storage.Committer                  = (*Committer)(nil)
)

// New creates an empty store for kind
func New[E entity.Entity](kind entity.Kind[E]) *Store[E] {
	return &Store[E]{
		kind: kind,
		data: make(map[string][]byte),
	}
}

// GetMany implements storage.Reader
func (s *Store[E]) GetMany(ctx context.Context, ids []string, _ ...storage.LoadOption) ([]E, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getManyCalls = append(s.getManyCalls, slices.Clone(ids))
	if s.readErr != nil {
		return nil, s.readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]E, 0, len(ids))
	for _, id := range ids {
		raw, ok := s.data[id]
		if !ok {
			continue
		}
		e, err := storage.DecodeEntity(s.kind, raw)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// Get implements storage.Reader
func (s *Store[E]) Get(ctx context.Context, id string, _ ...storage.LoadOption) (E, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero E
	s.getCalls = append(s.getCalls, id)
	if s.readErr != nil {
		return zero, s.readErr
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	raw, ok := s.data[id]
	if !ok {
		return zero, storage.ErrNotFound
	}
	return storage.DecodeEntity(s.kind, raw)
}

// PutMany implements storage.Writer. Entities are encoded before anything is
// stored so a failure leaves the store untouched.
func (s *Store[E]) PutMany(ctx context.Context, entities []E) error {
	if err := s.checkWrite(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged, err := encodeAll(entities)
	if err != nil {
		return err
	}
	s.apply(staged)
	return nil
}

// Stage implements storage.UnitWriter for units opened by a Committer
func (s *Store[E]) Stage(u storage.Unit, entities []E) error {
	mu, ok := u.(*unit)
	if !ok {
		return storage.ErrForeignUnit
	}
	if mu.done {
		return storage.ErrUnitDone
	}

	staged, err := encodeAll(entities)
	if err != nil {
		return err
	}
	mu.ops = append(mu.ops, unitOp{
		check: s.checkWrite,
		apply: func() { s.apply(staged) },
	})
	return nil
}

// checkWrite counts a write attempt and reports the injected failure
func (s *Store[E]) checkWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putManyCalls++
	return s.writeErr
}

func (s *Store[E]) apply(staged map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, raw := range staged {
		s.data[id] = raw
	}
}

func encodeAll[E entity.Entity](entities []E) (map[string][]byte, error) {
	staged := make(map[string][]byte, len(entities))
	for _, e := range entities {
		raw, err := storage.EncodeEntity(e)
		if err != nil {
			return nil, err
		}
		staged[e.EntityID()] = raw
	}
	return staged, nil
}

// Seed writes entities directly, bypassing failure injection and call tracking
func (s *Store[E]) Seed(entities ...E) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entities {
		raw, err := storage.EncodeEntity(e)
		if err != nil {
			panic(err)
		}
		s.data[e.EntityID()] = raw
	}
}

// FailReads makes every subsequent read return err; nil clears it
func (s *Store[E]) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailWrites makes every subsequent PutMany, and every unit commit that
// staged into s, return err; nil clears it
func (s *Store[E]) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Len returns the number of stored entities
func (s *Store[E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// GetManyCalls returns the id sets passed to GetMany, in call order
func (s *Store[E]) GetManyCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.getManyCalls)
}

// GetCalls returns the ids passed to Get, in call order
func (s *Store[E]) GetCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.getCalls)
}

// PutManyCalls returns how many writes were attempted, counting each unit
// commit that staged into s once
func (s *Store[E]) PutManyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putManyCalls
}

// ResetCalls clears call tracking
func (s *Store[E]) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getManyCalls = nil
	s.getCalls = nil
	s.putManyCalls = 0
}
