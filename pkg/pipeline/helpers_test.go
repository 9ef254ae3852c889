package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0xmhha/transfer-indexer/internal/testutil"
	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/notify"
	"github.com/0xmhha/transfer-indexer/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	zeroAddr  = common.Address{}
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	daiAddr   = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	nftAddr   = common.HexToAddress("0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D")
	multiAddr = common.HexToAddress("0x76BE3b62873462d2142405439777e971754E8E77")
	approval  = testutil.ApprovalSig
)

var (
	addrTopic = testutil.AddressTopic
	erc20Log  = testutil.ERC20Log
	erc721Log = testutil.ERC721Log
	txHash    = testutil.TxHash
)

// transferSingleLog and transferBatchLog use alice as the operator
func transferSingleLog(contract, from, to common.Address, id, value int64, block uint64, idx uint) types.Log {
	return testutil.TransferSingleLog(contract, alice, from, to, id, value, block, idx)
}

func transferBatchLog(contract, from, to common.Address, ids, values []int64, block uint64, idx uint) types.Log {
	return testutil.TransferBatchLog(contract, alice, from, to, ids, values, block, idx)
}

// --- Fake LogSource ---

type fakeSource struct {
	mu      sync.Mutex
	logs    []types.Log
	head    uint64
	headErr error
	logsErr error
}

func (s *fakeSource) Logs(_ context.Context, from, to uint64) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.logsErr != nil {
		return nil, s.logsErr
	}
	var out []types.Log
	for _, l := range s.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeSource) Head(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, s.headErr
}

// --- Fake MetadataResolver ---

type fakeResolver struct {
	mu       sync.Mutex
	metadata map[common.Address]*token.Metadata
	errs     map[common.Address]error
	calls    map[common.Address]int
}

func newFakeResolver() *fakeResolver {
	eighteen := uint8(18)
	return &fakeResolver{
		metadata: map[common.Address]*token.Metadata{
			daiAddr:   {Name: "Dai Stablecoin", Symbol: "DAI", Decimals: &eighteen},
			nftAddr:   {Name: "Apes", Symbol: "APE"},
			multiAddr: {Name: "Items", Symbol: "ITM"},
		},
		errs:  make(map[common.Address]error),
		calls: make(map[common.Address]int),
	}
}

func (r *fakeResolver) Resolve(_ context.Context, contract common.Address, standard entity.ContractStandard, _ uint64) (*token.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[contract]++
	if err, ok := r.errs[contract]; ok {
		return nil, err
	}
	md, ok := r.metadata[contract]
	if !ok {
		return nil, errors.New("no metadata")
	}
	cp := *md
	if !standard.HasDecimals() {
		cp.Decimals = nil
	}
	return &cp, nil
}

func (r *fakeResolver) callCount(contract common.Address) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[contract]
}

func (r *fakeResolver) fail(contract common.Address, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[contract] = fmt.Errorf("resolve %s: %w", contract.Hex(), err)
}

// recordingPublisher keeps every announced window
type recordingPublisher struct {
	mu      sync.Mutex
	err     error
	windows []notify.WindowCommitted
}

func (r *recordingPublisher) Publish(_ context.Context, w *notify.WindowCommitted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.windows = append(r.windows, *w)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []notify.WindowCommitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.WindowCommitted(nil), r.windows...)
}
