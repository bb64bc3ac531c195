package device

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// deviceFile mirrors the teacher's wallet file path pattern
// (wallet/wallets.go's walletFile), one file per device identity.
const deviceFile = "./tmp/device_%s.data"

// snapshot is the gob-friendly envelope a Device serializes to. A
// *ecdsa.PrivateKey and *ecdsa.PublicKey don't gob-encode on their own
// (elliptic.Curve is an unexported interface value); the teacher solves
// this for its Wallet by hand-encoding the private scalar D
// (wallet/wallet.go's GobEncode/GobDecode). Here the PKCS8/PKIX PEM
// encodings xcrypto already provides serve the same purpose and are
// reused instead of re-deriving the scalar trick.
type snapshot struct {
	PrivateKeyPEM string
	BankKeysPEM   map[uint32]string
	Counter       uint64
	Online        bool
	UnspentWire   [][]byte // each entry is one check.Check.Encode()
}

// SaveFile persists the device's identity, known banks, counter, and
// unspent check inventory to disk under label.
func (d *Device) SaveFile(label string) error {
	privPEM, err := xcrypto.ExportPrivateKeyPEM(d.privateKey)
	if err != nil {
		return err
	}

	bankKeysPEM := make(map[uint32]string, len(d.bankKeys))
	for id, pub := range d.bankKeys {
		pem, err := xcrypto.ExportPublicKeyPEM(pub)
		if err != nil {
			return err
		}
		bankKeysPEM[id] = pem
	}

	var wires [][]byte
	for _, bucket := range d.unspentByValue {
		for _, c := range bucket {
			w, err := c.Encode()
			if err != nil {
				return err
			}
			wires = append(wires, w)
		}
	}

	snap := snapshot{
		PrivateKeyPEM: privPEM,
		BankKeysPEM:   bankKeysPEM,
		Counter:       d.counter,
		Online:        d.online,
		UnspentWire:   wires,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return err
	}
	return os.WriteFile(fmt.Sprintf(deviceFile, label), buf.Bytes(), 0644)
}

// LoadDevice reconstructs a Device previously saved under label.
func LoadDevice(label string, cfg config.Config, clk clock.Clock) (*Device, error) {
	content, err := os.ReadFile(fmt.Sprintf(deviceFile, label))
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&snap); err != nil {
		return nil, err
	}

	priv, err := xcrypto.ImportPrivateKeyPEM(snap.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	d := New(priv, cfg, clk)
	d.counter = snap.Counter
	d.online = snap.Online

	for id, pem := range snap.BankKeysPEM {
		pub, err := xcrypto.ImportPublicKeyPEM(pem)
		if err != nil {
			return nil, err
		}
		d.bankKeys[id] = pub
	}

	for _, wire := range snap.UnspentWire {
		c, rest, err := check.Decode(wire)
		if err != nil {
			return nil, err
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("device: trailing bytes in stored check")
		}
		d.unspentByValue[c.Value] = append(d.unspentByValue[c.Value], c)
	}

	return d, nil
}
