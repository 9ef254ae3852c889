package postgres

import (
	"context"
	"fmt"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"go.uber.org/zap"
)

// Store implements storage.Store for one entity kind using PostgreSQL.
type Store[E entity.Entity] struct {
	pool   *Pool
	table  Table[E]
	logger *zap.Logger
}

// Compile-time interface checks.
var (
	_ storage.UnitStore[*entity.Account] = (*Store[*entity.Account])(nil)
	_ storage.Committer                  = (*Pool)(nil)
)

// NewStore creates a store backed by table.
func NewStore[E entity.Entity](pool *Pool, table Table[E], logger *zap.Logger) *Store[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[E]{
		pool:   pool,
		table:  table,
		logger: logger.With(zap.String("table", table.Name)),
	}
}

// GetMany returns the entities among ids that exist. Relations are loaded
// by the storage hydrator, not here.
func (s *Store[E]) GetMany(ctx context.Context, ids []string, _ ...storage.LoadOption) ([]E, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, s.table.selectByIDs(), ids)
	if err != nil {
		return nil, fmt.Errorf("get many from %s: %w", s.table.Name, err)
	}
	defer rows.Close()

	result := make([]E, 0, len(ids))
	for rows.Next() {
		e, err := s.table.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table.Name, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.table.Name, err)
	}
	return result, nil
}

// Get retrieves one entity by id. Returns ErrNotFound if not exists.
func (s *Store[E]) Get(ctx context.Context, id string, _ ...storage.LoadOption) (E, error) {
	e, err := s.table.Scan(s.pool.QueryRow(ctx, s.table.selectByID(), id))
	if err != nil {
		var zero E
		if isNotFoundError(err) {
			return zero, storage.ErrNotFound
		}
		return zero, fmt.Errorf("get from %s: %w", s.table.Name, err)
	}
	return e, nil
}

// PutMany upserts entities atomically: every row is sent in one batch inside
// a single transaction.
func (s *Store[E]) PutMany(ctx context.Context, entities []E) error {
	if len(entities) == 0 {
		return nil
	}

	u, err := s.pool.NewUnit(ctx)
	if err != nil {
		return err
	}
	defer u.Discard()

	if err := s.Stage(u, entities); err != nil {
		return err
	}
	if err := u.Commit(ctx); err != nil {
		return err
	}

	s.logger.Debug("Upserted rows", zap.Int("rows", len(entities)))
	return nil
}

// Stage queues upserts of entities in a unit opened by the same pool
func (s *Store[E]) Stage(u storage.Unit, entities []E) error {
	pu, ok := u.(*unit)
	if !ok || pu.pool != s.pool {
		return storage.ErrForeignUnit
	}
	if pu.done {
		return storage.ErrUnitDone
	}

	query := s.table.upsert()
	for _, e := range entities {
		pu.batch.Queue(query, s.table.Values(e)...)
		pu.tables = append(pu.tables, s.table.Name)
	}
	return nil
}

// Stores bundles the per-kind stores sharing one pool
type Stores struct {
	Accounts    *Store[*entity.Account]
	Tokens      *Store[*entity.Token]
	Transfers   *Store[*entity.Transfer]
	Checkpoints *Store[*entity.Checkpoint]
}

// NewStores creates a store for every built-in kind
func NewStores(pool *Pool, logger *zap.Logger) *Stores {
	return &Stores{
		Accounts:    NewStore(pool, AccountTable, logger),
		Tokens:      NewStore(pool, TokenTable, logger),
		Transfers:   NewStore(pool, TransferTable, logger),
		Checkpoints: NewStore(pool, CheckpointTable, logger),
	}
}
