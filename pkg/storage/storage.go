package storage

import (
	"context"
	"errors"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
)

// Common errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when stored data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")

	// ErrUnknownRelation is returned when WithRelations names a relation
	// the entity kind does not have
	ErrUnknownRelation = errors.New("unknown relation")
)

// Reader reads entities of one kind
type Reader[E entity.Entity] interface {
	// GetMany returns the entities that exist among ids, in no particular order.
	// Missing ids are not an error.
	GetMany(ctx context.Context, ids []string, opts ...LoadOption) ([]E, error)

	// Get returns a single entity, or ErrNotFound
	Get(ctx context.Context, id string, opts ...LoadOption) (E, error)
}

// Writer writes entities of one kind
type Writer[E entity.Entity] interface {
	// PutMany upserts all entities atomically: either every entity is
	// written or none is
	PutMany(ctx context.Context, entities []E) error
}

// Store is the persistence collaborator of the entity cache
type Store[E entity.Entity] interface {
	Reader[E]
	Writer[E]
}

// LoadOptions controls how entities are read
type LoadOptions struct {
	// Relations lists the relations to eager-load
	Relations []string
}

// LoadOption configures LoadOptions
type LoadOption func(*LoadOptions)

// WithRelations requests eager loading of the named relations
func WithRelations(relations ...string) LoadOption {
	return func(o *LoadOptions) {
		o.Relations = append(o.Relations, relations...)
	}
}

// ApplyLoadOptions folds opts into a LoadOptions value
func ApplyLoadOptions(opts ...LoadOption) LoadOptions {
	var o LoadOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
