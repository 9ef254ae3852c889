package cache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/0xmhha/transfer-indexer/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountCache(t *testing.T, batchSize int) (*Cache[*entity.Account], *memory.Store[*entity.Account]) {
	t.Helper()

	store := memory.New(entity.AccountKind)
	c, err := NewBound[*entity.Account](entity.AccountKind.Name, store, &Config{BatchSize: batchSize}, nil)
	require.NoError(t, err)
	return c, store
}

func account(id string, sent uint64) *entity.Account {
	return &entity.Account{ID: id, SentCount: sent, TransferCount: sent}
}

// failingChunkStore fails GetMany whenever the chunk contains a given id
type failingChunkStore struct {
	*memory.Store[*entity.Account]
	poison string
}

func (s *failingChunkStore) GetMany(ctx context.Context, ids []string, opts ...storage.LoadOption) ([]*entity.Account, error) {
	if slices.Contains(ids, s.poison) {
		return nil, errors.New("connection reset")
	}
	return s.Store.GetMany(ctx, ids, opts...)
}

// countingStore records the peak number of concurrent GetMany calls
type countingStore struct {
	*memory.Store[*entity.Account]
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *countingStore) GetMany(ctx context.Context, ids []string, opts ...storage.LoadOption) ([]*entity.Account, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return s.Store.GetMany(ctx, ids, opts...)
}

func TestCache_Unbound(t *testing.T) {
	ctx := context.Background()
	c := New[*entity.Account](entity.AccountKind.Name, nil, nil)

	assert.ErrorIs(t, c.Add(account("a", 0)), ErrUnbound)
	assert.ErrorIs(t, c.Register("a"), ErrUnbound)
	assert.ErrorIs(t, c.Prefetch(ctx), ErrUnbound)
	assert.ErrorIs(t, c.Flush(ctx), ErrUnbound)

	_, ok, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrUnbound)
	assert.False(t, ok)

	assert.Error(t, c.Bind(nil))
}

func TestCache_DefaultsAppliedForZeroConfig(t *testing.T) {
	c := New[*entity.Account]("account", &Config{}, nil)
	assert.Equal(t, *DefaultConfig(), c.config)
	assert.Equal(t, "account", c.Kind())
}

func TestCache_AddIsVisibleWithoutIO(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Add(account("a", 1)))

	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.SentCount)

	assert.Empty(t, store.GetCalls())
	assert.Empty(t, store.GetManyCalls())
	assert.Zero(t, store.PutManyCalls())
}

func TestCache_LastAddWins(t *testing.T) {
	ctx := context.Background()
	c, _ := newAccountCache(t, 2)

	require.NoError(t, c.Add(account("a", 1)))
	require.NoError(t, c.Add(account("a", 7)))

	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.SentCount)
	assert.Equal(t, 1, c.Len())
}

func TestCache_AddedEntityShadowsStore(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)
	store.Seed(account("a", 1))

	require.NoError(t, c.Add(account("a", 5)))
	require.NoError(t, c.Register("a"))
	require.NoError(t, c.Prefetch(ctx))

	got, _, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.SentCount)
	assert.Empty(t, store.GetManyCalls(), "resident ids must not be read again")
}

func TestCache_RegisterIsLazy(t *testing.T) {
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Register("a", "b", "a"))
	assert.Equal(t, 3, c.Pending())
	assert.Empty(t, store.GetManyCalls())
}

func TestCache_PrefetchEmptyQueue(t *testing.T) {
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Prefetch(context.Background()))
	assert.Empty(t, store.GetManyCalls())
}

func TestCache_PrefetchDedupesAndChunks(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)
	store.Seed(account("a", 1), account("b", 2), account("c", 3))

	require.NoError(t, c.Register("a", "b", "c"))
	require.NoError(t, c.Register("a", "b", "c"))
	require.NoError(t, c.Prefetch(ctx))

	calls := store.GetManyCalls()
	require.Len(t, calls, 2)
	assert.ElementsMatch(t, [][]string{{"a", "b"}, {"c"}}, calls)

	assert.Equal(t, 3, c.Len())
	assert.Zero(t, c.Pending())
	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, c.Has(id), id)
	}

	// Everything is resident now; a second pass issues no reads.
	require.NoError(t, c.Register("a", "b", "c"))
	require.NoError(t, c.Prefetch(ctx))
	assert.Len(t, store.GetManyCalls(), 2)
	assert.Zero(t, c.Pending())
}

func TestCache_PrefetchMissingIDStaysAbsent(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 50)
	store.Seed(account("a", 1))

	require.NoError(t, c.Register("a", "ghost"))
	require.NoError(t, c.Prefetch(ctx))

	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("ghost"))

	_, ok, err := c.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"ghost"}, store.GetCalls())
}

func TestCache_PrefetchChunkFailureAppliesNothing(t *testing.T) {
	ctx := context.Background()
	inner := memory.New(entity.AccountKind)
	inner.Seed(account("a", 1), account("b", 2), account("c", 3))
	store := &failingChunkStore{Store: inner, poison: "c"}

	c, err := NewBound[*entity.Account]("account", store, &Config{BatchSize: 2}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Register("a", "b", "c"))
	err = c.Prefetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreRead)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Zero(t, c.Len(), "no chunk may be applied when another fails")
	assert.Equal(t, 3, c.Pending(), "queue is kept for a retry")

	store.poison = ""
	require.NoError(t, c.Prefetch(ctx))
	assert.Equal(t, 3, c.Len())
	assert.Zero(t, c.Pending())
}

func TestCache_PrefetchConcurrencyIsBounded(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New(entity.AccountKind)}

	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		store.Seed(account(id, uint64(i)))
		ids = append(ids, id)
	}

	c, err := NewBound[*entity.Account]("account", store, &Config{BatchSize: 1, PrefetchConcurrency: 3}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Register(ids...))
	require.NoError(t, c.Prefetch(ctx))

	assert.Equal(t, 20, c.Len())
	assert.Len(t, store.GetManyCalls(), 20)
	assert.LessOrEqual(t, store.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, store.peak.Load(), int32(1))
}

func TestCache_GetFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)
	store.Seed(account("a", 4))

	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), got.SentCount)
	assert.True(t, c.Has("a"))

	// Second read is served from the resident map.
	_, _, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, store.GetCalls())
}

func TestCache_GetStoreError(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)
	store.FailReads(errors.New("timeout"))

	_, ok, err := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreRead)
}

func TestCache_FlushWritesOnceInIDOrder(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Add(account("y", 2)))
	require.NoError(t, c.Add(account("x", 1)))
	require.NoError(t, c.Register("z"))

	values := c.Values()
	require.Len(t, values, 2)
	assert.Equal(t, "x", values[0].ID)
	assert.Equal(t, "y", values[1].ID)

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 1, store.PutManyCalls())
	assert.Equal(t, 2, store.Len())
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Pending())

	got, err := store.Get(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.SentCount)
}

func TestCache_FlushEmptyIsNoop(t *testing.T) {
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Flush(context.Background()))
	assert.Zero(t, store.PutManyCalls())
}

func TestCache_FlushFailureKeepsResidentMap(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)
	store.FailWrites(errors.New("disk full"))

	require.NoError(t, c.Add(account("x", 1)))
	require.NoError(t, c.Add(account("y", 2)))
	require.NoError(t, c.Register("q"))

	err := c.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)

	values := c.Values()
	require.Len(t, values, 2)
	assert.Equal(t, account("x", 1), values[0])
	assert.Equal(t, account("y", 2), values[1])
	assert.Equal(t, 1, c.Pending())
	assert.Zero(t, store.Len())

	store.FailWrites(nil)
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 2, store.Len())
}

func TestCache_StageKeepsEntitiesUntilCommitted(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Add(account("y", 2)))
	require.NoError(t, c.Add(account("x", 1)))

	u, err := memory.NewCommitter().NewUnit(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Stage(u))
	assert.Equal(t, 2, c.Len())
	assert.Zero(t, store.Len())

	require.NoError(t, u.Commit(ctx))
	c.Committed()

	assert.Zero(t, c.Len())
	assert.Equal(t, 2, store.Len())
}

func TestCache_StageFailedUnitLeavesStoreEmpty(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 2)
	store.FailWrites(errors.New("disk full"))

	require.NoError(t, c.Add(account("x", 1)))

	u, err := memory.NewCommitter().NewUnit(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Stage(u))
	require.Error(t, u.Commit(ctx))

	assert.Equal(t, 1, c.Len())
	assert.Zero(t, store.Len())
}

// plainStore hides the unit support of the wrapped store
type plainStore struct {
	storage.Store[*entity.Account]
}

func TestCache_StageNeedsUnitStore(t *testing.T) {
	ctx := context.Background()
	c, err := NewBound[*entity.Account](entity.AccountKind.Name, plainStore{memory.New(entity.AccountKind)}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Add(account("x", 1)))

	u, err := memory.NewCommitter().NewUnit(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Stage(u), ErrNoUnit)

	assert.ErrorIs(t, New[*entity.Account]("account", nil, nil).Stage(u), ErrUnbound)
}

func TestCache_Reset(t *testing.T) {
	c, store := newAccountCache(t, 2)

	require.NoError(t, c.Add(account("x", 1)))
	require.NoError(t, c.Register("y"))
	c.Reset()

	assert.Zero(t, c.Len())
	assert.Zero(t, c.Pending())
	assert.Zero(t, store.PutManyCalls())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, store := newAccountCache(t, 4)
	store.Seed(account("a", 1), account("b", 2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Register("a", "b")
			_ = c.Prefetch(ctx)
			_, _, _ = c.Get(ctx, "a")
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, c.Len())
}

func TestCache_PeekDoesNotReadStore(t *testing.T) {
	c, store := newAccountCache(t, 2)
	store.Seed(account("a", 1))

	_, ok := c.Peek("a")
	assert.False(t, ok)
	assert.Empty(t, store.GetCalls())

	require.NoError(t, c.Add(account("b", 2)))
	got, ok := c.Peek("b")
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.SentCount)
}
