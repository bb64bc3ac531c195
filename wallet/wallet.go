// Package wallet provides the Base58 address-encoding primitives shared by
// the checkbook/bank package's account ID derivation: SHA256 -> RIPEMD160
// -> version byte -> checksum -> Base58, the same "hash160 then address"
// shape Bitcoin-style wallets use, minus the key-pair management a
// checkbook account has no use for (checkbook/device owns device keys via
// internal/xcrypto instead).
package wallet

import (
	"bytes"
	"crypto/sha256"
	"log"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// checksumLength is the number of checksum bytes appended to an address
// payload before Base58 encoding.
const checksumLength = 4

// PublicKeyHash hashes a DER- or PEM-derived public key blob down to its
// 20-byte RIPEMD160(SHA256(pubKey)) digest.
func PublicKeyHash(pubKey []byte) []byte {
	pubHash := sha256.Sum256(pubKey)

	hasher := ripemd160.New()
	if _, err := hasher.Write(pubHash[:]); err != nil {
		log.Panic(err)
	}
	return hasher.Sum(nil)
}

// Checksum returns the first checksumLength bytes of SHA256(SHA256(payload)).
func Checksum(payload []byte) []byte {
	firstHash := sha256.Sum256(payload)
	secondHash := sha256.Sum256(firstHash[:])
	return secondHash[:checksumLength]
}

// ValidateAddress reports whether address Base58-decodes to a
// [version][hash][checksum] triple whose checksum matches.
func ValidateAddress(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != 1+20+checksumLength {
		return false
	}

	version := decoded[0]
	hash := decoded[1 : len(decoded)-checksumLength]
	actualChecksum := decoded[len(decoded)-checksumLength:]

	targetChecksum := Checksum(append([]byte{version}, hash...))
	return bytes.Equal(actualChecksum, targetChecksum)
}
