package pipeline

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrUnknownEvent is returned for logs that are not token transfers
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedEvent is returned for transfer logs whose payload cannot be decoded
	ErrMalformedEvent = errors.New("malformed transfer event")
)

const erc1155EventsABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"operator","type":"address"},
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"id","type":"uint256"},
		{"indexed":false,"name":"value","type":"uint256"}
	],"name":"TransferSingle","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"operator","type":"address"},
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"ids","type":"uint256[]"},
		{"indexed":false,"name":"values","type":"uint256[]"}
	],"name":"TransferBatch","type":"event"}
]`

var erc1155ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc1155EventsABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Event signatures. ERC-20 and ERC-721 share Transfer and differ by topic count.
var (
	TransferTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	TransferSingleTopic = erc1155ABI.Events["TransferSingle"].ID
	TransferBatchTopic  = erc1155ABI.Events["TransferBatch"].ID
)

// Event is one decoded token movement. A TransferBatch log yields one Event
// per (id, value) pair.
type Event struct {
	Contract common.Address
	Standard entity.ContractStandard
	From     common.Address
	To       common.Address

	// AssetID is the ERC-721 token id or the ERC-1155 id, nil for ERC-20
	AssetID *big.Int
	Amount  *big.Int

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint

	// BatchIndex is the position inside a TransferBatch, -1 otherwise
	BatchIndex int
}

// TokenID returns the id of the token entity the event moves
func (e *Event) TokenID() string {
	return entity.TokenID(e.Contract, e.Standard, e.AssetID)
}

// TransferID returns the id of the transfer entity the event produces
func (e *Event) TransferID() string {
	return entity.TransferID(e.TxHash, e.LogIndex, e.BatchIndex)
}

// Decode turns a log into transfer events
func Decode(log types.Log) ([]Event, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	base := Event{
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		BatchIndex:  -1,
	}

	switch log.Topics[0] {
	case TransferTopic:
		switch len(log.Topics) {
		case 3:
			return decodeERC20(log, base)
		case 4:
			return decodeERC721(log, base), nil
		}
		return nil, fmt.Errorf("%w: transfer with %d topics", ErrUnknownEvent, len(log.Topics))

	case TransferSingleTopic:
		return decodeTransferSingle(log, base)

	case TransferBatchTopic:
		return decodeTransferBatch(log, base)
	}

	return nil, ErrUnknownEvent
}

func topicAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}

func decodeERC20(log types.Log, ev Event) ([]Event, error) {
	if len(log.Data) != 32 {
		return nil, fmt.Errorf("%w: erc20 value of %d bytes", ErrMalformedEvent, len(log.Data))
	}
	ev.Standard = entity.StandardERC20
	ev.From = topicAddress(log.Topics[1])
	ev.To = topicAddress(log.Topics[2])
	ev.Amount = new(big.Int).SetBytes(log.Data)
	return []Event{ev}, nil
}

func decodeERC721(log types.Log, ev Event) []Event {
	ev.Standard = entity.StandardERC721
	ev.From = topicAddress(log.Topics[1])
	ev.To = topicAddress(log.Topics[2])
	ev.AssetID = new(big.Int).SetBytes(log.Topics[3].Bytes())
	ev.Amount = big.NewInt(1)
	return []Event{ev}
}

func decodeTransferSingle(log types.Log, ev Event) ([]Event, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("%w: TransferSingle with %d topics", ErrMalformedEvent, len(log.Topics))
	}

	values, err := erc1155ABI.Unpack("TransferSingle", log.Data)
	if err != nil || len(values) != 2 {
		return nil, fmt.Errorf("%w: TransferSingle data: %v", ErrMalformedEvent, err)
	}
	id, okID := values[0].(*big.Int)
	amount, okAmount := values[1].(*big.Int)
	if !okID || !okAmount {
		return nil, fmt.Errorf("%w: TransferSingle field types", ErrMalformedEvent)
	}

	ev.Standard = entity.StandardERC1155
	ev.From = topicAddress(log.Topics[2])
	ev.To = topicAddress(log.Topics[3])
	ev.AssetID = id
	ev.Amount = amount
	return []Event{ev}, nil
}

func decodeTransferBatch(log types.Log, base Event) ([]Event, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("%w: TransferBatch with %d topics", ErrMalformedEvent, len(log.Topics))
	}

	values, err := erc1155ABI.Unpack("TransferBatch", log.Data)
	if err != nil || len(values) != 2 {
		return nil, fmt.Errorf("%w: TransferBatch data: %v", ErrMalformedEvent, err)
	}
	ids, okIDs := values[0].([]*big.Int)
	amounts, okAmounts := values[1].([]*big.Int)
	if !okIDs || !okAmounts {
		return nil, fmt.Errorf("%w: TransferBatch field types", ErrMalformedEvent)
	}
	if len(ids) != len(amounts) {
		return nil, fmt.Errorf("%w: %d ids for %d values", ErrMalformedEvent, len(ids), len(amounts))
	}

	base.Standard = entity.StandardERC1155
	base.From = topicAddress(log.Topics[2])
	base.To = topicAddress(log.Topics[3])

	events := make([]Event, len(ids))
	for i := range ids {
		ev := base
		ev.AssetID = ids[i]
		ev.Amount = amounts[i]
		ev.BatchIndex = i
		events[i] = ev
	}
	return events, nil
}
