// Package entity defines the records materialized by the indexer and the
// descriptors stores use to persist them.
package entity

// Entity is any record with a unique string identifier
type Entity interface {
	EntityID() string
}

// Kind describes an entity type to generic stores
type Kind[E Entity] struct {
	// Name is the stable kind name used in keys and table names
	Name string

	// New allocates an empty entity for decoding
	New func() E
}

// Built-in kinds
var (
	AccountKind    = Kind[*Account]{Name: "account", New: func() *Account { return new(Account) }}
	TokenKind      = Kind[*Token]{Name: "token", New: func() *Token { return new(Token) }}
	TransferKind   = Kind[*Transfer]{Name: "transfer", New: func() *Transfer { return new(Transfer) }}
	CheckpointKind = Kind[*Checkpoint]{Name: "checkpoint", New: func() *Checkpoint { return new(Checkpoint) }}
)
