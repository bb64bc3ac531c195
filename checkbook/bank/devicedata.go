package bank

import (
	"crypto/ecdsa"

	"github.com/offlinecheck/checkbook/checkbook/certificate"
	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/note"
)

// DeviceData is everything a bank tracks about one registered device:
// its public key, the certificate vouching for its registration, its
// per-check counter, its remaining monthly spending cap, the checks it
// issued that are still unspent, and the note drafts claimed against it
// but not yet settled (spec.md 3).
type DeviceData struct {
	PublicKey        *ecdsa.PublicKey
	Certificate      certificate.Certificate
	CheckCounter     uint64
	MonthlyCap       uint32
	Cap              int64
	IssuedCheckValue uint32
	UnspentChecks    map[string]check.Check
	AwaitingClaim    map[string]note.Draft
}

func newDeviceData(pub *ecdsa.PublicKey, monthlyCap uint32, cert certificate.Certificate) *DeviceData {
	return &DeviceData{
		PublicKey:     pub,
		Certificate:   cert,
		MonthlyCap:    monthlyCap,
		Cap:           int64(monthlyCap),
		UnspentChecks: make(map[string]check.Check),
		AwaitingClaim: make(map[string]note.Draft),
	}
}
