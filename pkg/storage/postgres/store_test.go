package postgres

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Upsert(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO checkpoints (id, height) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET height = EXCLUDED.height",
		CheckpointTable.upsert())
	assert.Contains(t, TokenTable.upsert(), "$7::text::numeric")
	assert.Contains(t, TransferTable.selectByIDs(), "amount::text")
	assert.Contains(t, TransferTable.selectByIDs(), "WHERE id = ANY($1)")
}

func TestStore_AccountsRoundTripAndUpsert(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool, AccountTable, nil)

	require.NoError(t, store.PutMany(ctx, []*entity.Account{
		{ID: "0xaa", TransferCount: 1, SentCount: 1},
		{ID: "0xbb", TransferCount: 1, ReceivedCount: 1},
	}))

	got, err := store.GetMany(ctx, []string{"0xaa", "0xbb", "0xcc"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, store.PutMany(ctx, []*entity.Account{
		{ID: "0xaa", TransferCount: 5, SentCount: 3, ReceivedCount: 2},
	}))

	a, err := store.Get(ctx, "0xaa")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), a.TransferCount)
	assert.Equal(t, uint64(3), a.SentCount)
	assert.Equal(t, uint64(2), a.ReceivedCount)

	_, err = store.Get(ctx, "0xcc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_TokenDecimalsNilVersusZero(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool, TokenTable, nil)

	zero := uint8(0)
	contract := common.HexToAddress("0x76BE3b62873462d2142405439777e971754E8E77")
	tokens := []*entity.Token{
		{ID: "erc20", Contract: contract, Standard: entity.StandardERC20, Name: "Z", Symbol: "Z", Decimals: &zero, FirstSeenBlock: 1},
		{
			ID:             entity.TokenID(contract, entity.StandardERC1155, big.NewInt(7)),
			Contract:       contract,
			Standard:       entity.StandardERC1155,
			AssetID:        big.NewInt(7),
			FirstSeenBlock: 2,
		},
	}
	require.NoError(t, store.PutMany(ctx, tokens))

	erc20, err := store.Get(ctx, "erc20")
	require.NoError(t, err)
	require.NotNil(t, erc20.Decimals)
	assert.Zero(t, *erc20.Decimals)
	assert.Nil(t, erc20.AssetID)
	assert.Equal(t, contract, erc20.Contract)

	multi, err := store.Get(ctx, tokens[1].ID)
	require.NoError(t, err)
	assert.Nil(t, multi.Decimals)
	require.NotNil(t, multi.AssetID)
	assert.Equal(t, int64(7), multi.AssetID.Int64())
}

func TestStore_TransferLargeAmount(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool, TransferTable, nil)

	amount, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	tx := common.HexToHash("0x01")
	transfer := &entity.Transfer{
		ID:          entity.TransferID(tx, 3, -1),
		BlockNumber: 100,
		TxHash:      tx,
		LogIndex:    3,
		FromID:      "0xaa",
		ToID:        "0xbb",
		TokenID:     "0xcc",
		Amount:      amount,
	}
	require.NoError(t, store.PutMany(ctx, []*entity.Transfer{transfer}))

	got, err := store.Get(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, amount.Cmp(got.Amount))
	assert.Equal(t, tx, got.TxHash)
	assert.Equal(t, uint(3), got.LogIndex)
}

func TestStore_PutManyIsAtomic(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool, TransferTable, nil)

	// 80 digits overflows NUMERIC(78, 0)
	overflow, ok := new(big.Int).SetString("1"+strings.Repeat("0", 79), 10)
	require.True(t, ok)

	err := store.PutMany(ctx, []*entity.Transfer{
		{ID: "ok", TxHash: common.HexToHash("0x01"), FromID: "a", ToID: "b", TokenID: "t", Amount: big.NewInt(1)},
		{ID: "bad", TxHash: common.HexToHash("0x02"), FromID: "a", ToID: "b", TokenID: "t", Amount: overflow},
	})
	require.Error(t, err)

	got, err := store.GetMany(ctx, []string{"ok", "bad"})
	require.NoError(t, err)
	assert.Empty(t, got, "failed batch must not leave rows behind")
}

func TestUnit_FailureRollsBackEveryTable(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	stores := NewStores(pool, nil)

	overflow, ok := new(big.Int).SetString("1"+strings.Repeat("0", 79), 10)
	require.True(t, ok)

	u, err := pool.NewUnit(ctx)
	require.NoError(t, err)
	defer u.Discard()

	require.NoError(t, stores.Accounts.Stage(u, []*entity.Account{{ID: "0xaa", SentCount: 1, TransferCount: 1}}))
	require.NoError(t, stores.Checkpoints.Stage(u, []*entity.Checkpoint{{ID: "indexer", Height: 9}}))
	require.NoError(t, stores.Transfers.Stage(u, []*entity.Transfer{
		{ID: "bad", TxHash: common.HexToHash("0x02"), FromID: "a", ToID: "b", TokenID: "t", Amount: overflow},
	}))

	err = u.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfers")

	_, err = stores.Accounts.Get(ctx, "0xaa")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = stores.Checkpoints.Get(ctx, "indexer")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnit_CommitsEveryTable(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	stores := NewStores(pool, nil)

	u, err := pool.NewUnit(ctx)
	require.NoError(t, err)
	require.NoError(t, stores.Accounts.Stage(u, []*entity.Account{{ID: "0xaa", SentCount: 1, TransferCount: 1}}))
	require.NoError(t, stores.Checkpoints.Stage(u, []*entity.Checkpoint{{ID: "indexer", Height: 9}}))
	require.NoError(t, u.Commit(ctx))

	cp, err := stores.Checkpoints.Get(ctx, "indexer")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cp.Height)

	assert.ErrorIs(t, u.Commit(ctx), storage.ErrUnitDone)
}
