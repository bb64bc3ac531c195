package bank

import (
	"fmt"

	"github.com/offlinecheck/checkbook/wallet"
)

const accountIDVersion = byte(0x00)

// deriveAccountID produces a short, human-legible account identifier from
// an owner's name and a per-bank sequence number, using wallet's
// hash-then-checksum-then-Base58 address shape (originally built for
// public-key addresses) applied here to an account owner's name since
// accounts have no key of their own.
func deriveAccountID(bankID uint32, owner string, seq uint64) string {
	payload := []byte(fmt.Sprintf("%d:%s:%d", bankID, owner, seq))
	hash160 := wallet.PublicKeyHash(payload)

	versioned := append([]byte{accountIDVersion}, hash160...)
	checksum := wallet.Checksum(versioned)
	full := append(versioned, checksum...)
	return string(wallet.Base58Encode(full))
}

// Account is a bank-held account: a named owner, a credit limit, a
// running balance, and the devices registered against it (spec.md 3).
type Account struct {
	ID        string
	Owner     string
	MaxCredit uint32
	Balance   int64
	Devices   map[string]*DeviceData // keyed by PEM-encoded device public key
}

func newAccount(id, owner string, maxCredit uint32) *Account {
	return &Account{
		ID:        id,
		Owner:     owner,
		MaxCredit: maxCredit,
		Devices:   make(map[string]*DeviceData),
	}
}

// TotalUnspentCheckValue sums the face value of every check this
// account's devices still hold unspent at this bank.
func (a *Account) TotalUnspentCheckValue() uint32 {
	var total uint32
	for _, dd := range a.Devices {
		for _, c := range dd.UnspentChecks {
			total += c.Value
		}
	}
	return total
}

// TotalUnclaimedNoteValue sums the value of every note draft still
// awaiting claim against this account's devices.
func (a *Account) TotalUnclaimedNoteValue() uint32 {
	var total uint32
	for _, dd := range a.Devices {
		for _, d := range dd.AwaitingClaim {
			total += d.Value
		}
	}
	return total
}
