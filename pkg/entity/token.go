package entity

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a fungible token contract or a single asset of a multi-asset contract
type Token struct {
	ID       string           `json:"id"`
	Contract common.Address   `json:"contract"`
	Standard ContractStandard `json:"standard"`
	Name     string           `json:"name"`
	Symbol   string           `json:"symbol"`

	// Decimals is nil for standards without a decimals concept.
	// It must never be defaulted to zero.
	Decimals *uint8 `json:"decimals"`

	// AssetID is the ERC-1155 sub-id, nil otherwise
	AssetID *big.Int `json:"assetId,omitempty"`

	// FirstSeenBlock is the block height the token was first observed at
	FirstSeenBlock uint64 `json:"firstSeenBlock"`
}

// EntityID implements Entity
func (t *Token) EntityID() string { return t.ID }

// TokenID derives the token identifier from its contract and, for multi-asset
// standards, the asset sub-id
func TokenID(contract common.Address, standard ContractStandard, assetID *big.Int) string {
	id := strings.ToLower(contract.Hex())
	if standard.MultiAsset() && assetID != nil {
		id += "-" + assetID.String()
	}
	return id
}
