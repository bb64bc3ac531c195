package bank

import (
	"crypto/ecdsa"

	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// Registry is the address book of peer banks described in spec.md 3: the
// mechanism by which the bank holding a buyer's account locates the bank
// holding the seller's account during settlement.
type Registry struct {
	banks map[uint32]*Bank
}

// NewRegistry returns an empty peer-bank registry.
func NewRegistry() *Registry {
	return &Registry{banks: make(map[uint32]*Bank)}
}

// Register makes b reachable by its identifier through the registry.
func (r *Registry) Register(b *Bank) {
	r.banks[b.Identifier] = b
}

// Get returns the bank registered under id, if any.
func (r *Registry) Get(id uint32) (*Bank, bool) {
	b, ok := r.banks[id]
	return b, ok
}

// FindAccountByDevicePublicKey scans every registered bank's device index
// for pub, returning the bank and account that device is registered
// under. This is how a seller's public key, carried in a note draft with
// no accompanying bank identifier, gets resolved to a settlement target.
func (r *Registry) FindAccountByDevicePublicKey(pub *ecdsa.PublicKey) (*Bank, *Account, *DeviceData, bool) {
	key, err := xcrypto.ExportPublicKeyPEM(pub)
	if err != nil {
		return nil, nil, nil, false
	}
	for _, b := range r.banks {
		if ref, ok := b.deviceIndex[key]; ok {
			return b, ref.account, ref.data, true
		}
	}
	return nil, nil, nil, false
}
