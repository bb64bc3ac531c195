// Package protocol wires the device and bank packages together into the
// end-to-end flows spec.md 4.8 describes: a seller and buyer exchanging a
// promissory note entirely offline, then either party later handing it in
// or redeeming it against the bank(s) involved. Where the teacher's cli.go
// glues wallet.Wallet and blockchain.Blockchain into user-facing commands,
// this package glues device.Device and bank.Bank into the payment
// protocol itself, independent of any particular CLI or transport.
package protocol

import (
	"github.com/offlinecheck/checkbook/checkbook/bank"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/device"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/internal/errs"
)

// CreatePromissoryNote runs the full offline exchange of spec.md 4.8: the
// seller opens a draft for amount, the buyer commits checks against it,
// and both sign in the mandated order (seller first, buyer chained over
// the seller's signature). The result is a fully signed Note ready to be
// verified, handed in, or redeemed.
func CreatePromissoryNote(seller *device.Device, buyer *device.Device, amount uint32) (note.Note, error) {
	draft := seller.DraftPromissoryNote(amount)
	if err := buyer.AddPayment(&draft); err != nil {
		return note.Note{}, err
	}
	draftBytes, err := draft.Encode()
	if err != nil {
		return note.Note{}, err
	}

	n := note.NewFromDraftBytes(draftBytes)

	signedBySeller, err := note.SignSeller(n.Encode(), seller.PrivateKey())
	if err != nil {
		return note.Note{}, err
	}
	fullySigned, err := note.SignBuyer(signedBySeller, buyer.PrivateKey())
	if err != nil {
		return note.Note{}, err
	}
	final, rest, err := note.DecodeNote(fullySigned)
	if err != nil {
		return note.Note{}, err
	}
	if len(rest) != 0 {
		return note.Note{}, errs.ErrMalformedEncoding
	}
	return final, nil
}

// VerifyPromissoryNote re-runs every predicate spec.md 4.5/4.8 requires
// before a note is trusted: both signatures, the draft's internal
// arithmetic, that its transaction date is today's (per clk), that it
// doesn't span banks, that every embedded check is itself authentic, and
// that the device holding each check still carries a currently valid
// registration certificate (spec.md 6) with its issuing bank. registry
// resolves the issuing bank of each check by its BankID.
func VerifyPromissoryNote(n note.Note, clk clock.Clock, registry *bank.Registry) error {
	d, err := n.Draft()
	if err != nil {
		return err
	}
	if !n.IsSellerSignatureAuthentic(d.SellerPublicKey) {
		return errs.NewInvalidSignature("seller")
	}
	if ok, err := n.IsBuyerSignatureAuthentic(); err != nil {
		return err
	} else if !ok {
		return errs.NewInvalidSignature("buyer")
	}
	if ok, err := n.HasCorrectTotalCheckValue(); err != nil {
		return err
	} else if !ok {
		return errs.NewInvalidNote("total_value")
	}
	if ok, err := n.HasCorrectCheckValues(); err != nil {
		return err
	} else if !ok {
		return errs.NewInvalidNote("check_value")
	}
	if ok, err := n.HasCorrectTransactionDate(clk); err != nil {
		return err
	} else if !ok {
		return errs.NewInvalidNote("transaction_date")
	}
	if ok, err := n.HasSingleBank(); err != nil {
		return err
	} else if !ok {
		return errs.NewInvalidNote("mixed_bank")
	}

	for _, e := range d.Entries {
		b, ok := registry.Get(e.Check.BankID)
		if !ok {
			return errs.NewInvalidNote("check_value")
		}
		if !e.Check.IsSignatureAuthentic(b.PublicKey()) {
			return errs.NewInvalidSignature("bank")
		}
		cert, ok := b.DeviceCertificate(e.Check.OwnerPublicKey)
		if !ok {
			return errs.NewInvalidCertificate("unregistered")
		}
		if err := cert.ValidateNow(clk, e.Check.OwnerPublicKey, b.PublicKey()); err != nil {
			return err
		}
	}
	return nil
}

// HandIn submits n to every bank registered in buyer's known-bank
// registry, the tentative settlement step of spec.md 4.7. Requires buyer
// to be online, per spec.md 4.8.
func HandIn(n note.Note, buyer *device.Device, registry *bank.Registry) error {
	if !buyer.IsOnline() {
		return errs.ErrOffline
	}
	for _, bankID := range buyer.KnownBankIDs() {
		b, ok := registry.Get(bankID)
		if !ok {
			continue
		}
		if err := b.HandInPromissoryNote(n); err != nil {
			return err
		}
	}
	return nil
}

// Redeem submits n to every bank registered in seller's known-bank
// registry for final settlement, per spec.md 4.7.
func Redeem(n note.Note, seller *device.Device, registry *bank.Registry) error {
	for _, bankID := range seller.KnownBankIDs() {
		b, ok := registry.Get(bankID)
		if !ok {
			continue
		}
		if err := b.RedeemPromissoryNote(n); err != nil {
			return err
		}
	}
	return nil
}

// Transfer composes the full settlement of spec.md 4.8: requires buyer
// online (else Offline), hands n in at every bank known to the buyer,
// then redeems it at every bank known to the seller.
func Transfer(n note.Note, seller *device.Device, buyer *device.Device, registry *bank.Registry) error {
	if !buyer.IsOnline() {
		return errs.ErrOffline
	}
	if err := HandIn(n, buyer, registry); err != nil {
		return err
	}
	return Redeem(n, seller, registry)
}
