// Package check implements the bank-signed bearer token of spec.md 3/4.3.
// It plays the role the teacher's blockchain.TxOutput plays for a UTXO
// chain ("an indivisible unit of value that can be spent") but is signed
// by the issuing bank rather than merely locked to a public key hash, and
// carries its own expiration.
package check

import (
	"crypto/ecdsa"

	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// Check is a bank-signed authorization for OwnerPublicKey to spend up to
// Value minor units, identified by (BankID, Identifier) and bearing an
// expiration date. Checks are immutable value types; compare with Equal,
// never by pointer identity (spec.md 9).
type Check struct {
	BankID         uint32
	OwnerPublicKey *ecdsa.PublicKey
	Value          uint32
	Identifier     uint64
	ExpirationDate codec.Date
	Signature      []byte
}

// UnsignedEncode produces the canonical encoding the bank's signature
// covers: spec.md 4.3, exactly u32 || string || u32 || u64 || string.
func (c Check) UnsignedEncode() ([]byte, error) {
	pubPEM, err := xcrypto.ExportPublicKeyPEM(c.OwnerPublicKey)
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = codec.EncodeU32(buf, c.BankID)
	buf = codec.EncodeString(buf, pubPEM)
	buf = codec.EncodeU32(buf, c.Value)
	buf = codec.EncodeU64(buf, c.Identifier)
	buf = codec.EncodeDate(buf, c.ExpirationDate)
	return buf, nil
}

// Encode produces the full wire form: unsigned encoding followed by the
// length-prefixed signature.
func (c Check) Encode() ([]byte, error) {
	buf, err := c.UnsignedEncode()
	if err != nil {
		return nil, err
	}
	return codec.EncodeBytes(buf, c.Signature), nil
}

// Decode parses a Check from the front of b, returning the remainder.
func Decode(b []byte) (Check, []byte, error) {
	bankID, rest, err := codec.DecodeU32(b)
	if err != nil {
		return Check{}, nil, err
	}
	pubPEM, rest, err := codec.DecodeString(rest)
	if err != nil {
		return Check{}, nil, err
	}
	pub, err := xcrypto.ImportPublicKeyPEM(pubPEM)
	if err != nil {
		return Check{}, nil, errs.ErrMalformedEncoding
	}
	value, rest, err := codec.DecodeU32(rest)
	if err != nil {
		return Check{}, nil, err
	}
	identifier, rest, err := codec.DecodeU64(rest)
	if err != nil {
		return Check{}, nil, err
	}
	expiration, rest, err := codec.DecodeDate(rest)
	if err != nil {
		return Check{}, nil, err
	}
	sig, rest, err := codec.DecodeBytes(rest)
	if err != nil {
		return Check{}, nil, err
	}
	return Check{
		BankID:         bankID,
		OwnerPublicKey: pub,
		Value:          value,
		Identifier:     identifier,
		ExpirationDate: expiration,
		Signature:      sig,
	}, rest, nil
}

// Sign sets Signature to the issuing bank's signature over the unsigned
// canonical encoding.
func (c *Check) Sign(bankPrivateKey *ecdsa.PrivateKey) error {
	unsigned, err := c.UnsignedEncode()
	if err != nil {
		return err
	}
	sig, err := xcrypto.Sign(unsigned, bankPrivateKey)
	if err != nil {
		return err
	}
	c.Signature = sig
	return nil
}

// IsSignatureAuthentic reports whether Signature verifies over the
// unsigned canonical encoding under the issuing bank's public key.
func (c Check) IsSignatureAuthentic(bankPublicKey *ecdsa.PublicKey) bool {
	unsigned, err := c.UnsignedEncode()
	if err != nil {
		return false
	}
	return xcrypto.Verify(unsigned, c.Signature, bankPublicKey)
}

// Expired reports whether today is past the check's expiration date.
func (c Check) Expired(today codec.Date) bool {
	return today.After(c.ExpirationDate)
}

// Unredeemable reports whether today is past expiration plus the grace
// period DaysValid (spec.md 3), after which the check can never settle.
func (c Check) Unredeemable(today codec.Date, cfg config.Config) bool {
	return today.After(c.ExpirationDate.AddDays(cfg.DaysValid))
}

// CanonicalKey is a stable string identity for c, suitable as a map key for
// the set<Check> collections spec.md 3 describes (unspent_checks,
// awaiting_claim membership tests). It folds in all six identity fields,
// each length-prefixed so no field can bleed into its neighbor.
func (c Check) CanonicalKey() string {
	pubPEM, err := xcrypto.ExportPublicKeyPEM(c.OwnerPublicKey)
	if err != nil {
		pubPEM = ""
	}
	var buf []byte
	buf = codec.EncodeU32(buf, c.BankID)
	buf = codec.EncodeString(buf, pubPEM)
	buf = codec.EncodeU32(buf, c.Value)
	buf = codec.EncodeU64(buf, c.Identifier)
	buf = codec.EncodeString(buf, c.ExpirationDate.String())
	buf = codec.EncodeBytes(buf, c.Signature)
	return string(buf)
}

// Equal compares two checks structurally across all six fields.
func (c Check) Equal(other Check) bool {
	return c.BankID == other.BankID &&
		xcrypto.SamePublicKey(c.OwnerPublicKey, other.OwnerPublicKey) &&
		c.Value == other.Value &&
		c.Identifier == other.Identifier &&
		c.ExpirationDate.Equal(other.ExpirationDate) &&
		string(c.Signature) == string(other.Signature)
}
