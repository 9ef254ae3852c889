// Package testutil builds chain fixtures for tests. Event signatures are
// hashed here from their canonical form rather than taken from the decoder,
// so decoder tests check against an independent source.
package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Event signatures
var (
	TransferSig       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalSig       = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	TransferSingleSig = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	TransferBatchSig  = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
)

var (
	uint256Type, _      = abi.NewType("uint256", "", nil)
	uint256SliceType, _ = abi.NewType("uint256[]", "", nil)

	singleData = abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
	batchData  = abi.Arguments{{Type: uint256SliceType}, {Type: uint256SliceType}}
)

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// AddressTopic encodes an indexed address parameter
func AddressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// TxHash returns a deterministic transaction hash for a log position
func TxHash(block uint64, idx uint) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(idx) + 1))
}

func newLog(contract common.Address, topics []common.Hash, data []byte, block uint64, idx uint) types.Log {
	return types.Log{
		Address:     contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      TxHash(block, idx),
		Index:       idx,
	}
}

// ERC20Log builds a fungible Transfer log
func ERC20Log(contract, from, to common.Address, amount int64, block uint64, idx uint) types.Log {
	topics := []common.Hash{TransferSig, AddressTopic(from), AddressTopic(to)}
	return newLog(contract, topics, common.LeftPadBytes(big.NewInt(amount).Bytes(), 32), block, idx)
}

// ERC721Log builds a Transfer log with an indexed token id
func ERC721Log(contract, from, to common.Address, tokenID int64, block uint64, idx uint) types.Log {
	topics := []common.Hash{TransferSig, AddressTopic(from), AddressTopic(to), common.BigToHash(big.NewInt(tokenID))}
	return newLog(contract, topics, nil, block, idx)
}

// TransferSingleLog builds an ERC1155 TransferSingle log
func TransferSingleLog(contract, operator, from, to common.Address, id, value int64, block uint64, idx uint) types.Log {
	data, err := singleData.Pack(big.NewInt(id), big.NewInt(value))
	if err != nil {
		panic(err)
	}
	topics := []common.Hash{TransferSingleSig, AddressTopic(operator), AddressTopic(from), AddressTopic(to)}
	return newLog(contract, topics, data, block, idx)
}

// TransferBatchLog builds an ERC1155 TransferBatch log. ids and values are
// packed as given, so mismatched lengths produce a malformed event.
func TransferBatchLog(contract, operator, from, to common.Address, ids, values []int64, block uint64, idx uint) types.Log {
	data, err := batchData.Pack(bigInts(ids), bigInts(values))
	if err != nil {
		panic(err)
	}
	topics := []common.Hash{TransferBatchSig, AddressTopic(operator), AddressTopic(from), AddressTopic(to)}
	return newLog(contract, topics, data, block, idx)
}

func bigInts(vs []int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}
