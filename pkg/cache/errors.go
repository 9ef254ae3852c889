package cache

import "errors"

var (
	// ErrUnbound is returned when a cache is used before Bind
	ErrUnbound = errors.New("cache is not bound to a store")

	// ErrStoreRead wraps failures of store reads issued by the cache
	ErrStoreRead = errors.New("store read failed")

	// ErrStoreWrite wraps failures of the flush write
	ErrStoreWrite = errors.New("store write failed")

	// ErrNoUnit is returned by Stage when the bound store cannot join a unit
	ErrNoUnit = errors.New("store does not support units")
)
