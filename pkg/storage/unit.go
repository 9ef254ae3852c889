package storage

import (
	"context"
	"errors"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
)

// ErrForeignUnit is returned when a store is asked to stage into a Unit
// opened by a different backend
var ErrForeignUnit = errors.New("unit belongs to another backend")

// ErrUnitDone is returned when a committed or discarded Unit is reused
var ErrUnitDone = errors.New("unit already committed or discarded")

// Ensure the backends' stores can join a unit
var _ UnitStore[*entity.Account] = (*EntityStore[*entity.Account])(nil)
var _ Committer = (*PebbleStore)(nil)

// Unit collects writes of several entity kinds and applies them together:
// after Commit either every staged entity is stored or none is
type Unit interface {
	Commit(ctx context.Context) error

	// Discard drops the staged writes. It is a no-op after Commit.
	Discard()
}

// Committer opens units on one backend
type Committer interface {
	NewUnit(ctx context.Context) (Unit, error)
}

// UnitWriter stages writes of one kind into a Unit
type UnitWriter[E entity.Entity] interface {
	// Stage queues an upsert of entities in u. Nothing is visible until
	// u is committed.
	Stage(u Unit, entities []E) error
}

// UnitStore is a Store whose writes can join a Unit
type UnitStore[E entity.Entity] interface {
	Store[E]
	UnitWriter[E]
}
