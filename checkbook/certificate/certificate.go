// Package certificate implements the DeviceCertificate of spec.md 6: proof,
// issued by a bank at device registration, that a given public key belongs
// to a device the bank has vouched for.
package certificate

import (
	"crypto/ecdsa"
	"unicode"

	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// Certificate vouches that DevicePublicKey belongs to a registered device,
// signed by the issuing bank.
type Certificate struct {
	DevicePublicKey *ecdsa.PublicKey
	Message         string
	ValidUntil      codec.Date
	Signature       []byte
}

// unsignedEncode produces the signing domain of spec.md 6:
// string(ahd_pubkey_PEM) || string(message) || string(valid_until_DDMMYYYY).
func (c Certificate) unsignedEncode() ([]byte, error) {
	pubPEM, err := xcrypto.ExportPublicKeyPEM(c.DevicePublicKey)
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = codec.EncodeString(buf, pubPEM)
	buf = codec.EncodeString(buf, c.Message)
	buf = codec.EncodeDate(buf, c.ValidUntil)
	return buf, nil
}

// Issue builds and signs a certificate for devicePublicKey under the
// bank's private key.
func Issue(devicePublicKey *ecdsa.PublicKey, message string, validUntil codec.Date, bankPrivateKey *ecdsa.PrivateKey) (Certificate, error) {
	if !validMessage(message) {
		return Certificate{}, errs.NewInvalidCertificate("message")
	}
	c := Certificate{DevicePublicKey: devicePublicKey, Message: message, ValidUntil: validUntil}
	unsigned, err := c.unsignedEncode()
	if err != nil {
		return Certificate{}, err
	}
	sig, err := xcrypto.Sign(unsigned, bankPrivateKey)
	if err != nil {
		return Certificate{}, err
	}
	c.Signature = sig
	return c, nil
}

func validMessage(message string) bool {
	for _, r := range message {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Validate checks that valid_until has not passed, the device public key
// matches, the message consists only of letters and whitespace, and the
// signature verifies under the bank's public key.
func (c Certificate) Validate(today codec.Date, devicePublicKey *ecdsa.PublicKey, bankPublicKey *ecdsa.PublicKey) error {
	if today.After(c.ValidUntil) {
		return errs.NewInvalidCertificate("expired")
	}
	if !xcrypto.SamePublicKey(c.DevicePublicKey, devicePublicKey) {
		return errs.NewInvalidCertificate("key_mismatch")
	}
	if !validMessage(c.Message) {
		return errs.NewInvalidCertificate("message")
	}
	unsigned, err := c.unsignedEncode()
	if err != nil {
		return errs.NewInvalidCertificate("encoding")
	}
	if !xcrypto.Verify(unsigned, c.Signature, bankPublicKey) {
		return errs.NewInvalidCertificate("signature")
	}
	return nil
}

// ValidateNow validates c against the clock's current date.
func (c Certificate) ValidateNow(clk clock.Clock, devicePublicKey *ecdsa.PublicKey, bankPublicKey *ecdsa.PublicKey) error {
	return c.Validate(clk.Today(), devicePublicKey, bankPublicKey)
}

// Encode produces a wire form: unsigned encoding followed by the signature.
func (c Certificate) Encode() ([]byte, error) {
	unsigned, err := c.unsignedEncode()
	if err != nil {
		return nil, err
	}
	return codec.EncodeBytes(unsigned, c.Signature), nil
}

// Decode parses a Certificate from the front of b, returning the remainder.
func Decode(b []byte) (Certificate, []byte, error) {
	pubPEM, rest, err := codec.DecodeString(b)
	if err != nil {
		return Certificate{}, nil, err
	}
	pub, err := xcrypto.ImportPublicKeyPEM(pubPEM)
	if err != nil {
		return Certificate{}, nil, errs.ErrMalformedEncoding
	}
	message, rest, err := codec.DecodeString(rest)
	if err != nil {
		return Certificate{}, nil, err
	}
	validUntil, rest, err := codec.DecodeDate(rest)
	if err != nil {
		return Certificate{}, nil, err
	}
	sig, rest, err := codec.DecodeBytes(rest)
	if err != nil {
		return Certificate{}, nil, err
	}
	return Certificate{DevicePublicKey: pub, Message: message, ValidUntil: validUntil, Signature: sig}, rest, nil
}
