package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	token = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	from  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	to    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// TestSignatures checks the well-known topic hashes
func TestSignatures(t *testing.T) {
	tests := []struct {
		name string
		got  common.Hash
		want string
	}{
		{"Transfer", TransferSig, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		{"Approval", ApprovalSig, "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"},
		{"TransferSingle", TransferSingleSig, "0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62"},
		{"TransferBatch", TransferBatchSig, "0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != common.HexToHash(tt.want) {
				t.Errorf("%s = %s, want %s", tt.name, tt.got.Hex(), tt.want)
			}
		})
	}
}

// TestNewTestLogger tests creating a test logger
func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	if logger == nil {
		t.Fatal("NewTestLogger() returned nil")
	}
	logger.Warn("visible in verbose test output")
}

// TestERC20Log tests the fungible transfer layout
func TestERC20Log(t *testing.T) {
	log := ERC20Log(token, from, to, 500, 7, 3)

	if len(log.Topics) != 3 {
		t.Fatalf("expected 3 topics, got %d", len(log.Topics))
	}
	if common.BytesToAddress(log.Topics[1].Bytes()) != from {
		t.Errorf("from topic = %s", log.Topics[1].Hex())
	}
	if new(big.Int).SetBytes(log.Data).Int64() != 500 {
		t.Errorf("amount = %x", log.Data)
	}
	if log.BlockNumber != 7 || log.Index != 3 || log.TxHash != TxHash(7, 3) {
		t.Errorf("unexpected position %+v", log)
	}
}

// TestERC721Log tests the indexed token id
func TestERC721Log(t *testing.T) {
	log := ERC721Log(token, from, to, 42, 1, 0)

	if len(log.Topics) != 4 {
		t.Fatalf("expected 4 topics, got %d", len(log.Topics))
	}
	if log.Topics[3].Big().Int64() != 42 {
		t.Errorf("token id = %s", log.Topics[3].Hex())
	}
	if len(log.Data) != 0 {
		t.Errorf("expected empty data, got %x", log.Data)
	}
}

// TestTransferSingleLog tests the ERC1155 single layout
func TestTransferSingleLog(t *testing.T) {
	log := TransferSingleLog(token, from, from, to, 9, 4, 2, 1)

	if len(log.Topics) != 4 || log.Topics[0] != TransferSingleSig {
		t.Fatalf("unexpected topics %v", log.Topics)
	}
	if len(log.Data) != 64 {
		t.Fatalf("expected 64 bytes of data, got %d", len(log.Data))
	}
	if new(big.Int).SetBytes(log.Data[:32]).Int64() != 9 || new(big.Int).SetBytes(log.Data[32:]).Int64() != 4 {
		t.Errorf("unexpected data %x", log.Data)
	}
}

// TestTransferBatchLog tests the ERC1155 batch layout
func TestTransferBatchLog(t *testing.T) {
	log := TransferBatchLog(token, from, from, to, []int64{1, 2}, []int64{10, 20}, 2, 1)

	values, err := batchData.Unpack(log.Data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	ids := values[0].([]*big.Int)
	amounts := values[1].([]*big.Int)
	if len(ids) != 2 || ids[1].Int64() != 2 || amounts[0].Int64() != 10 {
		t.Errorf("unexpected batch ids=%v amounts=%v", ids, amounts)
	}
}
