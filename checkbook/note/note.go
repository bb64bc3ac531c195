package note

import (
	"crypto/ecdsa"

	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// Note is a Draft's encoded bytes plus the seller's and buyer's signatures
// (spec.md 3/4.5). Signing is byte-oriented and stateless at the wire
// level: SignSeller and SignBuyer take and return wire bytes directly,
// mirroring how the teacher's TrimmedCopy-based signing never mutates a
// transaction in place mid-flow.
type Note struct {
	DraftBytes      []byte
	SellerSignature []byte
	BuyerSignature  []byte
}

// Encode produces the wire form of spec.md 4.5.
func (n Note) Encode() []byte {
	var buf []byte
	buf = codec.EncodeBytes(buf, n.DraftBytes)
	buf = codec.EncodeBytes(buf, n.SellerSignature)
	buf = codec.EncodeBytes(buf, n.BuyerSignature)
	return buf
}

// DecodeNote parses a Note from the front of b, returning the remainder.
func DecodeNote(b []byte) (Note, []byte, error) {
	draftBytes, rest, err := codec.DecodeBytes(b)
	if err != nil {
		return Note{}, nil, err
	}
	sellerSig, rest, err := codec.DecodeBytes(rest)
	if err != nil {
		return Note{}, nil, err
	}
	buyerSig, rest, err := codec.DecodeBytes(rest)
	if err != nil {
		return Note{}, nil, err
	}
	return Note{DraftBytes: draftBytes, SellerSignature: sellerSig, BuyerSignature: buyerSig}, rest, nil
}

// NewFromDraftBytes starts an unsigned note wrapping draftBytes.
func NewFromDraftBytes(draftBytes []byte) Note {
	return Note{DraftBytes: draftBytes}
}

// SignSeller decodes noteBytes, signs the draft bytes as the seller, and
// re-encodes. The domain is exactly the draft's encoded bytes.
func SignSeller(noteBytes []byte, sellerPrivateKey *ecdsa.PrivateKey) ([]byte, error) {
	n, rest, err := DecodeNote(noteBytes)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errs.ErrMalformedEncoding
	}
	sig, err := xcrypto.Sign(n.DraftBytes, sellerPrivateKey)
	if err != nil {
		return nil, err
	}
	n.SellerSignature = sig
	return n.Encode(), nil
}

// SignBuyer decodes noteBytes, signs draft_bytes||seller_signature as the
// buyer, and re-encodes. Chaining the seller signature into the buyer's
// domain means the buyer can never be induced to sign a draft for which
// no seller ever committed.
func SignBuyer(noteBytes []byte, buyerPrivateKey *ecdsa.PrivateKey) ([]byte, error) {
	n, rest, err := DecodeNote(noteBytes)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errs.ErrMalformedEncoding
	}
	domain := append(append([]byte{}, n.DraftBytes...), n.SellerSignature...)
	sig, err := xcrypto.Sign(domain, buyerPrivateKey)
	if err != nil {
		return nil, err
	}
	n.BuyerSignature = sig
	return n.Encode(), nil
}

// Draft decodes the note's embedded draft bytes.
func (n Note) Draft() (Draft, error) {
	return DecodeDraft(n.DraftBytes)
}

// IsSellerSignatureAuthentic verifies SellerSignature over DraftBytes.
func (n Note) IsSellerSignatureAuthentic(sellerPublicKey *ecdsa.PublicKey) bool {
	return xcrypto.Verify(n.DraftBytes, n.SellerSignature, sellerPublicKey)
}

// buyerIdentity recovers the buyer's public key from the owner of the
// first embedded check, as spec.md 4.5 mandates.
func (n Note) buyerIdentity() (*ecdsa.PublicKey, error) {
	d, err := n.Draft()
	if err != nil {
		return nil, err
	}
	if len(d.Entries) == 0 {
		return nil, errs.NewInvalidNote("check_value")
	}
	return d.Entries[0].Check.OwnerPublicKey, nil
}

// IsBuyerSignatureAuthentic verifies BuyerSignature over
// DraftBytes||SellerSignature under the buyer's recovered public key.
func (n Note) IsBuyerSignatureAuthentic() (bool, error) {
	buyerPub, err := n.buyerIdentity()
	if err != nil {
		return false, err
	}
	domain := append(append([]byte{}, n.DraftBytes...), n.SellerSignature...)
	return xcrypto.Verify(domain, n.BuyerSignature, buyerPub), nil
}

// HasCorrectTotalCheckValue reports whether the draft's entry amounts sum
// to its stated value.
func (n Note) HasCorrectTotalCheckValue() (bool, error) {
	d, err := n.Draft()
	if err != nil {
		return false, err
	}
	return d.TotalCheckValue() == d.Value, nil
}

// HasCorrectCheckValues reports whether every entry's amount does not
// exceed its check's face value.
func (n Note) HasCorrectCheckValues() (bool, error) {
	d, err := n.Draft()
	if err != nil {
		return false, err
	}
	for _, e := range d.Entries {
		if e.Amount > e.Check.Value {
			return false, nil
		}
	}
	return true, nil
}

// HasCorrectTransactionDate reports whether the draft's transaction date
// equals today, per the clock abstraction of spec.md 9.
func (n Note) HasCorrectTransactionDate(clk clock.Clock) (bool, error) {
	d, err := n.Draft()
	if err != nil {
		return false, err
	}
	return d.TransactionDate.Equal(clk.Today()), nil
}

// HasSingleBank reports whether every embedded check shares one bank_id.
// Resolves spec.md 9's open question on notes spanning multiple banks by
// rejecting mixed-bank notes rather than silently permitting them.
func (n Note) HasSingleBank() (bool, error) {
	d, err := n.Draft()
	if err != nil {
		return false, err
	}
	_, ok := d.SingleBankID()
	return ok, nil
}
