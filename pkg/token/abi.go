package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// metadataABI covers the optional ERC-20 / ERC-721 metadata getters
const metadataABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// legacyMetadataABI is the pre-standard variant returning bytes32 (MKR, SAI)
const legacyMetadataABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

var (
	parsedMetadataABI       = mustParseABI(metadataABI)
	parsedLegacyMetadataABI = mustParseABI(legacyMetadataABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
