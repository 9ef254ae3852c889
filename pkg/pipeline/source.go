package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogSource supplies transfer logs and the chain head
type LogSource interface {
	// Logs returns the transfer logs of blocks [from, to], ordered by
	// block number and log index
	Logs(ctx context.Context, from, to uint64) ([]types.Log, error)

	// Head returns the latest block number
	Head(ctx context.Context) (uint64, error)
}

// ChainClient is the node surface RPCSource needs; *ethclient.Client
// satisfies it
type ChainClient interface {
	ethereum.LogFilterer
	ethereum.BlockNumberReader
}

// RPCSource reads logs with eth_getLogs
type RPCSource struct {
	client    ChainClient
	contracts []common.Address
}

// NewRPCSource creates a source. An empty contracts list watches every contract.
func NewRPCSource(client ChainClient, contracts ...common.Address) *RPCSource {
	return &RPCSource{client: client, contracts: contracts}
}

// Logs implements LogSource
func (s *RPCSource) Logs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.contracts,
		Topics:    [][]common.Hash{{TransferTopic, TransferSingleTopic, TransferBatchTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs [%d, %d]: %w", from, to, err)
	}

	slices.SortStableFunc(logs, func(a, b types.Log) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return logs, nil
}

// Head implements LogSource
func (s *RPCSource) Head(ctx context.Context) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return head, nil
}
