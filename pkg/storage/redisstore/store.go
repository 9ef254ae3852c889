// Package redisstore implements the entity stores on Redis. Entities are
// stored as JSON strings under {prefix}:kind:id. The prefix is a hash tag so
// every key of one index shares a cluster slot: MGET and the MULTI/EXEC of a
// unit spanning several kinds both work against clusters.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis connection configuration
type Config struct {
	// Addresses is one address for standalone mode or several for cluster mode
	Addresses []string

	Password string
	DB       int

	// Prefix namespaces every key
	Prefix string
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("no redis addresses configured")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Store implements storage.Store for one entity kind using Redis.
type Store[E entity.Entity] struct {
	client redis.UniversalClient
	kind   entity.Kind[E]
	prefix string
	logger *zap.Logger
}

// Compile-time interface checks.
var (
	_ storage.UnitStore[*entity.Account] = (*Store[*entity.Account])(nil)
	_ storage.Committer                  = (*Committer)(nil)
)

// NewStore creates a store for kind
func NewStore[E entity.Entity](client redis.UniversalClient, kind entity.Kind[E], prefix string, logger *zap.Logger) *Store[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[E]{
		client: client,
		kind:   kind,
		prefix: prefix,
		logger: logger.With(zap.String("kind", kind.Name)),
	}
}

// Key returns the Redis key of id
func (s *Store[E]) Key(id string) string {
	return fmt.Sprintf("{%s}:%s:%s", s.prefix, s.kind.Name, id)
}

// GetMany reads ids with a single MGET; missing keys are skipped
func (s *Store[E]) GetMany(ctx context.Context, ids []string, _ ...storage.LoadOption) ([]E, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.Key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %s: %w", s.kind.Name, err)
	}

	result := make([]E, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %T at %s", storage.ErrInvalidData, v, keys[i])
		}
		e, err := storage.DecodeEntity(s.kind, []byte(raw))
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// Get reads one entity. Returns ErrNotFound if the key does not exist.
func (s *Store[E]) Get(ctx context.Context, id string, _ ...storage.LoadOption) (E, error) {
	var zero E

	raw, err := s.client.Get(ctx, s.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, storage.ErrNotFound
		}
		return zero, fmt.Errorf("get %s: %w", s.kind.Name, err)
	}
	return storage.DecodeEntity(s.kind, raw)
}

// PutMany writes entities in one MULTI/EXEC transaction
func (s *Store[E]) PutMany(ctx context.Context, entities []E) error {
	if len(entities) == 0 {
		return nil
	}

	u := &unit{client: s.client}
	if err := s.Stage(u, entities); err != nil {
		return err
	}
	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("write %s: %w", s.kind.Name, err)
	}

	s.logger.Debug("Wrote entities", zap.Int("count", len(entities)))
	return nil
}

// Stage encodes entities into a unit opened on the same client
func (s *Store[E]) Stage(u storage.Unit, entities []E) error {
	ru, ok := u.(*unit)
	if !ok || ru.client != s.client {
		return storage.ErrForeignUnit
	}
	if ru.done {
		return storage.ErrUnitDone
	}

	for _, e := range entities {
		raw, err := storage.EncodeEntity(e)
		if err != nil {
			return err
		}
		ru.sets = append(ru.sets, keyValue{key: s.Key(e.EntityID()), value: raw})
	}
	return nil
}
