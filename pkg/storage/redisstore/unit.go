package redisstore

import (
	"context"

	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// Committer opens units on one client. Every store staging into a unit must
// share the client and the key prefix so the transaction stays in one slot.
type Committer struct {
	client redis.UniversalClient
}

// NewCommitter creates a Committer for client
func NewCommitter(client redis.UniversalClient) *Committer {
	return &Committer{client: client}
}

// NewUnit implements storage.Committer
func (c *Committer) NewUnit(ctx context.Context) (storage.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unit{client: c.client}, nil
}

type keyValue struct {
	key   string
	value []byte
}

// unit buffers SETs and sends them in one MULTI/EXEC on commit
type unit struct {
	client redis.UniversalClient
	sets   []keyValue
	done   bool
}

func (u *unit) Commit(ctx context.Context) error {
	if u.done {
		return storage.ErrUnitDone
	}
	if len(u.sets) == 0 {
		u.Discard()
		return nil
	}

	_, err := u.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, kv := range u.sets {
			pipe.Set(ctx, kv.key, kv.value, 0)
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.Discard()
	return nil
}

func (u *unit) Discard() {
	u.done = true
	u.sets = nil
}
