package entity

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Relation names understood by Transfer hydration
const (
	RelationFrom  = "from"
	RelationTo    = "to"
	RelationToken = "token"
)

// Transfer is a single token movement between two accounts
type Transfer struct {
	ID          string      `json:"id"`
	BlockNumber uint64      `json:"blockNumber"`
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
	FromID      string      `json:"fromId"`
	ToID        string      `json:"toId"`
	TokenID     string      `json:"tokenId"`
	Amount      *big.Int    `json:"amount"`

	// Relations, only populated when requested
	From  *Account `json:"-"`
	To    *Account `json:"-"`
	Token *Token   `json:"-"`
}

// EntityID implements Entity
func (t *Transfer) EntityID() string { return t.ID }

// TransferID derives the transfer identifier. batchIndex is negative for
// logs carrying a single transfer.
func TransferID(txHash common.Hash, logIndex uint, batchIndex int) string {
	id := fmt.Sprintf("%s-%d", strings.ToLower(txHash.Hex()), logIndex)
	if batchIndex >= 0 {
		id = fmt.Sprintf("%s-%d", id, batchIndex)
	}
	return id
}
