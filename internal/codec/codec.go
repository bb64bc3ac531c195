// Package codec implements the bijective wire encoding shared by checks,
// promissory-note drafts, notes, and device certificates (spec.md 4.1).
// Every primitive has an Encode that appends to a growing byte slice and a
// Decode that returns (value, remainder, error); MalformedEncoding is
// returned on short input or invalid UTF-8, never a panic, since this is
// core code on the wire-interop boundary.
package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/offlinecheck/checkbook/internal/errs"
)

// EncodeU32 appends v as 4 little-endian bytes.
func EncodeU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeU32 reads 4 little-endian bytes from the front of b.
func DecodeU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errs.ErrMalformedEncoding
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], nil
}

// EncodeU64 appends v as 8 little-endian bytes.
func EncodeU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeU64 reads 8 little-endian bytes from the front of b.
func DecodeU64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errs.ErrMalformedEncoding
	}
	return binary.LittleEndian.Uint64(b[:8]), b[8:], nil
}

// EncodeBytes appends a 4-byte little-endian length prefix followed by raw.
func EncodeBytes(buf []byte, raw []byte) []byte {
	buf = EncodeU32(buf, uint32(len(raw)))
	return append(buf, raw...)
}

// DecodeBytes reads a length-prefixed byte string from the front of b.
func DecodeBytes(b []byte) ([]byte, []byte, error) {
	n, rest, err := DecodeU32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < uint64(n) {
		return nil, nil, errs.ErrMalformedEncoding
	}
	raw := make([]byte, n)
	copy(raw, rest[:n])
	return raw, rest[n:], nil
}

// EncodeString UTF-8 encodes s and writes it as bytes.
func EncodeString(buf []byte, s string) []byte {
	return EncodeBytes(buf, []byte(s))
}

// DecodeString reads a bytes field and validates it as UTF-8.
func DecodeString(b []byte) (string, []byte, error) {
	raw, rest, err := DecodeBytes(b)
	if err != nil {
		return "", nil, err
	}
	if !utf8.Valid(raw) {
		return "", nil, errs.ErrMalformedEncoding
	}
	return string(raw), rest, nil
}

// EncodeDate renders d as DDMMYYYY and writes it as a string field.
func EncodeDate(buf []byte, d Date) []byte {
	return EncodeString(buf, d.String())
}

// DecodeDate reads a string field and parses it as DDMMYYYY.
func DecodeDate(b []byte) (Date, []byte, error) {
	s, rest, err := DecodeString(b)
	if err != nil {
		return Date{}, nil, err
	}
	d, err := ParseDate(s)
	if err != nil {
		return Date{}, nil, err
	}
	return d, rest, nil
}
