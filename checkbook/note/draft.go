// Package note implements the promissory-note draft and the fully signed
// promissory note of spec.md 3/4.4/4.5. Where the teacher's Transaction
// glues together TxInputs referencing prior outputs, a Draft glues
// together (Check, amount) entries committed against a stated payment —
// the same "prove you can cover this" shape, minus any block or chain.
package note

import (
	"crypto/ecdsa"

	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// Entry commits a Check against part of a draft's total value.
type Entry struct {
	Check  check.Check
	Amount uint32
}

// Draft is the unsigned agreement composed by the seller and populated by
// the buyer (spec.md 3/4.4).
type Draft struct {
	SellerPublicKey *ecdsa.PublicKey
	Identifier      uint64
	Value           uint32
	TransactionDate codec.Date
	Entries         []Entry
}

// Encode produces the wire form of spec.md 4.4: seller key, identifier,
// value, transaction date, then each (check, amount) entry back to back
// with no trailing length marker — decoding runs until input is exhausted.
func (d Draft) Encode() ([]byte, error) {
	pubPEM, err := xcrypto.ExportPublicKeyPEM(d.SellerPublicKey)
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = codec.EncodeString(buf, pubPEM)
	buf = codec.EncodeU64(buf, d.Identifier)
	buf = codec.EncodeU32(buf, d.Value)
	buf = codec.EncodeDate(buf, d.TransactionDate)
	for _, e := range d.Entries {
		checkWire, err := e.Check.Encode()
		if err != nil {
			return nil, err
		}
		buf = codec.EncodeBytes(buf, checkWire)
		buf = codec.EncodeU32(buf, e.Amount)
	}
	return buf, nil
}

// DecodeDraft parses a Draft from b, consuming the entire input.
func DecodeDraft(b []byte) (Draft, error) {
	pubPEM, rest, err := codec.DecodeString(b)
	if err != nil {
		return Draft{}, err
	}
	pub, err := xcrypto.ImportPublicKeyPEM(pubPEM)
	if err != nil {
		return Draft{}, errs.ErrMalformedEncoding
	}
	identifier, rest, err := codec.DecodeU64(rest)
	if err != nil {
		return Draft{}, err
	}
	value, rest, err := codec.DecodeU32(rest)
	if err != nil {
		return Draft{}, err
	}
	txDate, rest, err := codec.DecodeDate(rest)
	if err != nil {
		return Draft{}, err
	}
	var entries []Entry
	for len(rest) > 0 {
		checkWire, r2, err := codec.DecodeBytes(rest)
		if err != nil {
			return Draft{}, err
		}
		c, remainder, err := check.Decode(checkWire)
		if err != nil {
			return Draft{}, err
		}
		if len(remainder) != 0 {
			return Draft{}, errs.ErrMalformedEncoding
		}
		amount, r3, err := codec.DecodeU32(r2)
		if err != nil {
			return Draft{}, err
		}
		entries = append(entries, Entry{Check: c, Amount: amount})
		rest = r3
	}
	return Draft{
		SellerPublicKey: pub,
		Identifier:      identifier,
		Value:           value,
		TransactionDate: txDate,
		Entries:         entries,
	}, nil
}

// AppendCheck attaches c to the draft for amount minor units. amount must
// not exceed c.Value (spec.md 3).
func (d *Draft) AppendCheck(c check.Check, amount uint32) error {
	if amount > c.Value {
		return errs.NewInvalidNote("check_value")
	}
	d.Entries = append(d.Entries, Entry{Check: c, Amount: amount})
	return nil
}

// TotalCheckValue sums the committed amounts across all entries.
func (d Draft) TotalCheckValue() uint32 {
	var total uint32
	for _, e := range d.Entries {
		total += e.Amount
	}
	return total
}

// IsClaimable reports whether today is within DaysValid days of the
// draft's transaction date (spec.md 4.4, glossary "claimable").
func (d Draft) IsClaimable(today codec.Date, cfg config.Config) bool {
	return today.Sub(d.TransactionDate) <= cfg.DaysValid
}

// AffectsMonthlyCap reports whether the draft's transaction date falls in
// today's calendar month (spec.md 4.4, glossary "affects monthly cap").
func (d Draft) AffectsMonthlyCap(today codec.Date) bool {
	return d.TransactionDate.SameMonth(today)
}

// CanonicalKey identifies a draft by its seller and identifier, the pair
// spec.md 4.4 requires to be unique per seller device, independent of
// which checks end up committed against it.
func (d Draft) CanonicalKey() (string, error) {
	pubPEM, err := xcrypto.ExportPublicKeyPEM(d.SellerPublicKey)
	if err != nil {
		return "", err
	}
	var buf []byte
	buf = codec.EncodeString(buf, pubPEM)
	buf = codec.EncodeU64(buf, d.Identifier)
	return string(buf), nil
}

// SingleBankID returns the shared bank_id across all embedded checks, and
// false if the draft has no entries or the checks span more than one
// bank. spec.md 9's open question on notes spanning multiple banks is
// resolved by rejecting mixed-bank drafts outright (see note.go's
// HasSingleBank, used by protocol verification).
func (d Draft) SingleBankID() (uint32, bool) {
	if len(d.Entries) == 0 {
		return 0, false
	}
	id := d.Entries[0].Check.BankID
	for _, e := range d.Entries[1:] {
		if e.Check.BankID != id {
			return 0, false
		}
	}
	return id, true
}
