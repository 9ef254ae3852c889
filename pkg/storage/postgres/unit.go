package postgres

import (
	"context"
	"fmt"

	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/jackc/pgx/v5"
)

// NewUnit opens a unit whose upserts run in one transaction on commit.
// Rows of any table backed by p can be staged into it.
func (p *Pool) NewUnit(ctx context.Context) (storage.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unit{pool: p, batch: &pgx.Batch{}}, nil
}

type unit struct {
	pool   *Pool
	batch  *pgx.Batch
	tables []string
	done   bool
}

func (u *unit) Commit(ctx context.Context) error {
	if u.done {
		return storage.ErrUnitDone
	}
	if u.batch.Len() == 0 {
		u.Discard()
		return nil
	}

	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, u.batch)
	for _, table := range u.tables {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert into %s: %w", table, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	u.Discard()
	return nil
}

func (u *unit) Discard() {
	u.done = true
	u.batch = &pgx.Batch{}
	u.tables = nil
}
