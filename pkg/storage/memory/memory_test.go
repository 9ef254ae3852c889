package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(entity.AccountKind)

	require.NoError(t, s.PutMany(ctx, []*entity.Account{{ID: "a", SentCount: 2}}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.SentCount)

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	many, err := s.GetMany(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, many, 1)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New(entity.AccountKind)

	acc := &entity.Account{ID: "a"}
	require.NoError(t, s.PutMany(ctx, []*entity.Account{acc}))
	acc.SentCount = 99

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, got.SentCount)
}

func TestStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New(entity.AccountKind)
	s.Seed(&entity.Account{ID: "a"})

	boom := errors.New("boom")
	s.FailWrites(boom)
	assert.ErrorIs(t, s.PutMany(ctx, []*entity.Account{{ID: "b"}}), boom)
	assert.Equal(t, 1, s.Len())

	s.FailReads(boom)
	_, err := s.GetMany(ctx, []string{"a"})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, [][]string{{"a"}}, s.GetManyCalls())
	assert.Equal(t, 1, s.PutManyCalls())

	s.ResetCalls()
	assert.Empty(t, s.GetManyCalls())
}

func TestUnit_AppliesAllKindsTogether(t *testing.T) {
	ctx := context.Background()
	accounts := New(entity.AccountKind)
	tokens := New(entity.TokenKind)

	u, err := NewCommitter().NewUnit(ctx)
	require.NoError(t, err)
	require.NoError(t, accounts.Stage(u, []*entity.Account{{ID: "a"}}))
	require.NoError(t, tokens.Stage(u, []*entity.Token{{ID: "t"}}))

	assert.Zero(t, accounts.Len(), "staged writes are invisible before commit")

	require.NoError(t, u.Commit(ctx))
	assert.Equal(t, 1, accounts.Len())
	assert.Equal(t, 1, tokens.Len())

	assert.ErrorIs(t, u.Commit(ctx), storage.ErrUnitDone)
}

func TestUnit_OneFailingStoreWritesNothing(t *testing.T) {
	ctx := context.Background()
	accounts := New(entity.AccountKind)
	tokens := New(entity.TokenKind)

	boom := errors.New("boom")
	tokens.FailWrites(boom)

	u, err := NewCommitter().NewUnit(ctx)
	require.NoError(t, err)
	require.NoError(t, accounts.Stage(u, []*entity.Account{{ID: "a"}}))
	require.NoError(t, tokens.Stage(u, []*entity.Token{{ID: "t"}}))

	assert.ErrorIs(t, u.Commit(ctx), boom)
	assert.Zero(t, accounts.Len())
	assert.Zero(t, tokens.Len())
}

type otherUnit struct{}

func (otherUnit) Commit(context.Context) error { return nil }
func (otherUnit) Discard()                     {}

func TestUnit_RejectsForeignUnit(t *testing.T) {
	s := New(entity.AccountKind)
	err := s.Stage(otherUnit{}, []*entity.Account{{ID: "a"}})
	assert.ErrorIs(t, err, storage.ErrForeignUnit)
}
