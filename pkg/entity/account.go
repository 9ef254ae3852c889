package entity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Account is a chain address that took part in at least one transfer
type Account struct {
	ID            string `json:"id"`
	TransferCount uint64 `json:"transferCount"`
	SentCount     uint64 `json:"sentCount"`
	ReceivedCount uint64 `json:"receivedCount"`
}

// EntityID implements Entity
func (a *Account) EntityID() string { return a.ID }

// NewAccount creates an account with zeroed counters
func NewAccount(addr common.Address) *Account {
	return &Account{ID: AccountID(addr)}
}

// AccountID returns the identifier of an address, lowercase hex
func AccountID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// RecordSent bumps the counters for an outgoing transfer
func (a *Account) RecordSent() {
	a.SentCount++
	a.TransferCount++
}

// RecordReceived bumps the counters for an incoming transfer
func (a *Account) RecordReceived() {
	a.ReceivedCount++
	a.TransferCount++
}

// RecordSelfTransfer bumps the counters for a transfer the account sent to
// itself. It is one transfer with both a sent and a received leg.
func (a *Account) RecordSelfTransfer() {
	a.SentCount++
	a.ReceivedCount++
	a.TransferCount++
}
