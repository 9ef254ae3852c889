package entity

import "fmt"

// ContractStandard represents the token standard of a contract
type ContractStandard string

const (
	// StandardERC20 indicates an ERC-20 fungible token
	StandardERC20 ContractStandard = "ERC20"
	// StandardERC721 indicates an ERC-721 non-fungible token
	StandardERC721 ContractStandard = "ERC721"
	// StandardERC1155 indicates an ERC-1155 multi-token
	StandardERC1155 ContractStandard = "ERC1155"
)

// Valid reports whether s is one of the known standards
func (s ContractStandard) Valid() bool {
	switch s {
	case StandardERC20, StandardERC721, StandardERC1155:
		return true
	default:
		return false
	}
}

// HasDecimals reports whether tokens of this standard expose decimals()
func (s ContractStandard) HasDecimals() bool {
	switch s {
	case StandardERC20:
		return true
	default:
		return false
	}
}

// MultiAsset reports whether a contract of this standard holds several
// assets addressed by a sub-id
func (s ContractStandard) MultiAsset() bool {
	return s == StandardERC1155
}

// ParseStandard parses a standard name, case-sensitive
func ParseStandard(v string) (ContractStandard, error) {
	s := ContractStandard(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown contract standard %q", v)
	}
	return s, nil
}
