package bank

import (
	"github.com/offlinecheck/checkbook/checkbook/certificate"
	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// DeviceSnapshot is the gob-friendly form of a DeviceData, wire-encoding
// its checks, draft claims, and certificate rather than their decoded
// ecdsa structures (see persistence/ledger).
type DeviceSnapshot struct {
	PublicKeyPEM      string
	CertificateWire   []byte
	CheckCounter      uint64
	MonthlyCap        uint32
	Cap               int64
	IssuedCheckValue  uint32
	UnspentWire       [][]byte
	AwaitingClaimWire [][]byte
}

// AccountSnapshot is the gob-friendly form of an Account.
type AccountSnapshot struct {
	ID        string
	Owner     string
	MaxCredit uint32
	Balance   int64
	Devices   []DeviceSnapshot
}

// Snapshot is the gob-friendly form of a whole Bank, everything needed to
// restore it except its peer registry (rebuilt by the caller).
type Snapshot struct {
	Identifier    uint32
	PrivateKeyPEM string
	NextAccSeq    uint64
	Accounts      []AccountSnapshot
}

// Snapshot captures b's full state in a serializable form.
func (b *Bank) Snapshot() (Snapshot, error) {
	privPEM, err := xcrypto.ExportPrivateKeyPEM(b.privateKey)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Identifier:    b.Identifier,
		PrivateKeyPEM: privPEM,
		NextAccSeq:    b.nextAccSeq,
	}

	for _, a := range b.accounts {
		as := AccountSnapshot{ID: a.ID, Owner: a.Owner, MaxCredit: a.MaxCredit, Balance: a.Balance}
		for key, dd := range a.Devices {
			certWire, err := dd.Certificate.Encode()
			if err != nil {
				return Snapshot{}, err
			}
			ds := DeviceSnapshot{
				PublicKeyPEM:     key,
				CertificateWire:  certWire,
				CheckCounter:     dd.CheckCounter,
				MonthlyCap:       dd.MonthlyCap,
				Cap:              dd.Cap,
				IssuedCheckValue: dd.IssuedCheckValue,
			}
			for _, c := range dd.UnspentChecks {
				w, err := c.Encode()
				if err != nil {
					return Snapshot{}, err
				}
				ds.UnspentWire = append(ds.UnspentWire, w)
			}
			for _, d := range dd.AwaitingClaim {
				w, err := d.Encode()
				if err != nil {
					return Snapshot{}, err
				}
				ds.AwaitingClaimWire = append(ds.AwaitingClaimWire, w)
			}
			as.Devices = append(as.Devices, ds)
		}
		snap.Accounts = append(snap.Accounts, as)
	}
	return snap, nil
}

// Restore rebuilds a Bank from a Snapshot, re-registering it with
// registry if non-nil.
func Restore(snap Snapshot, cfg config.Config, clk clock.Clock, registry *Registry) (*Bank, error) {
	priv, err := xcrypto.ImportPrivateKeyPEM(snap.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	b := &Bank{
		Identifier:  snap.Identifier,
		privateKey:  priv,
		publicKey:   &priv.PublicKey,
		cfg:         cfg,
		clk:         clk,
		registry:    registry,
		accounts:    make(map[string]*Account),
		deviceIndex: make(map[string]deviceRef),
		nextAccSeq:  snap.NextAccSeq,
	}

	for _, as := range snap.Accounts {
		a := newAccount(as.ID, as.Owner, as.MaxCredit)
		a.Balance = as.Balance
		for _, ds := range as.Devices {
			pub, err := xcrypto.ImportPublicKeyPEM(ds.PublicKeyPEM)
			if err != nil {
				return nil, err
			}
			cert, rest, err := certificate.Decode(ds.CertificateWire)
			if err != nil {
				return nil, err
			}
			if len(rest) != 0 {
				return nil, errs.ErrMalformedEncoding
			}
			dd := newDeviceData(pub, ds.MonthlyCap, cert)
			dd.CheckCounter = ds.CheckCounter
			dd.Cap = ds.Cap
			dd.IssuedCheckValue = ds.IssuedCheckValue
			for _, w := range ds.UnspentWire {
				c, rest, err := check.Decode(w)
				if err != nil {
					return nil, err
				}
				if len(rest) != 0 {
					return nil, errs.ErrMalformedEncoding
				}
				dd.UnspentChecks[c.CanonicalKey()] = c
			}
			for _, w := range ds.AwaitingClaimWire {
				d, err := note.DecodeDraft(w)
				if err != nil {
					return nil, err
				}
				key, err := d.CanonicalKey()
				if err != nil {
					return nil, err
				}
				dd.AwaitingClaim[key] = d
			}
			a.Devices[ds.PublicKeyPEM] = dd
			b.deviceIndex[ds.PublicKeyPEM] = deviceRef{account: a, data: dd}
		}
		b.accounts[a.ID] = a
	}

	if registry != nil {
		registry.Register(b)
	}
	return b, nil
}
