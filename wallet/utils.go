package wallet

import (
	"log"

	"github.com/mr-tron/base58"
)

// Base58Encode encodes input as a Base58 string, returned as bytes for
// consistency with Base58Decode's input type.
func Base58Encode(input []byte) []byte {
	return []byte(base58.Encode(input))
}

// Base58Decode reverses Base58Encode.
func Base58Decode(input []byte) []byte {
	decode, err := base58.Decode(string(input))
	if err != nil {
		log.Panic(err)
	}
	return decode
}
