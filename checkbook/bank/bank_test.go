package bank

import (
	"errors"
	"testing"

	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/checkbook/device"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

func newTestBank(t *testing.T, id uint32, clk clock.Clock, registry *Registry) *Bank {
	t.Helper()
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return New(id, priv, config.Default(), clk, registry)
}

func newTestDevice(t *testing.T, cfg config.Config, clk clock.Clock) *device.Device {
	t.Helper()
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return device.New(priv, cfg, clk)
}

// fullySign composes and signs a note directly against bank+device state,
// independent of the protocol package, so bank-level tests don't need to
// import their sibling.
func fullySign(t *testing.T, seller, buyer *device.Device, amount uint32) note.Note {
	t.Helper()
	draft := seller.DraftPromissoryNote(amount)
	if err := buyer.AddPayment(&draft); err != nil {
		t.Fatalf("AddPayment: %v", err)
	}
	draftBytes, err := draft.Encode()
	if err != nil {
		t.Fatalf("Draft.Encode: %v", err)
	}
	n := note.NewFromDraftBytes(draftBytes)
	signedBySeller, err := note.SignSeller(n.Encode(), seller.PrivateKey())
	if err != nil {
		t.Fatalf("SignSeller: %v", err)
	}
	fullySigned, err := note.SignBuyer(signedBySeller, buyer.PrivateKey())
	if err != nil {
		t.Fatalf("SignBuyer: %v", err)
	}
	final, rest, err := note.DecodeNote(fullySigned)
	if err != nil {
		t.Fatalf("DecodeNote: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes after decoding signed note")
	}
	return final
}

// TestKnownBankRegistration is spec.md 8 scenario 1: a fresh device
// doesn't recognize a bank until it registers it.
func TestKnownBankRegistration(t *testing.T) {
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	cfg := config.Default()
	d := newTestDevice(t, cfg, clk)

	if d.IsKnownBank(42) {
		t.Fatal("fresh device should not know bank 42")
	}
	bankPriv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	d.RegisterBank(42, &bankPriv.PublicKey)
	if !d.IsKnownBank(42) {
		t.Fatal("expected bank 42 to be known after registration")
	}
	got, ok := d.BankPublicKey(42)
	if !ok || !xcrypto.SamePublicKey(got, &bankPriv.PublicKey) {
		t.Fatal("BankPublicKey did not return the registered key")
	}
}

// TestHappyPathTransfer is spec.md 8 scenario 2.
func TestHappyPathTransfer(t *testing.T) {
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	cfg := config.Default()
	registry := NewRegistry()
	b := newTestBank(t, 42, clk, registry)

	buyerAccount := b.AddAccount("buyer", nil)
	buyerAccount.Balance = 1000
	sellerAccount := b.AddAccount("seller", nil)

	buyer := newTestDevice(t, cfg, clk)
	seller := newTestDevice(t, cfg, clk)
	cap := uint32(1000)
	if _, err := b.AddDevice(buyerAccount, buyer.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(buyer): %v", err)
	}
	if _, err := b.AddDevice(sellerAccount, seller.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(seller): %v", err)
	}

	c, err := b.IssueCheck(buyer.PublicKey(), 10)
	if err != nil {
		t.Fatalf("IssueCheck: %v", err)
	}
	if err := buyer.AddUnspentCheck(c); err != nil {
		t.Fatalf("AddUnspentCheck: %v", err)
	}

	n := fullySign(t, seller, buyer, 10)
	if err := b.HandInPromissoryNote(n); err != nil {
		t.Fatalf("HandInPromissoryNote: %v", err)
	}
	if err := b.RedeemPromissoryNote(n); err != nil {
		t.Fatalf("RedeemPromissoryNote: %v", err)
	}

	if buyer.TotalUnspentCheckValue() != 0 {
		t.Fatalf("buyer unspent checks: got %d, want 0", buyer.TotalUnspentCheckValue())
	}
	d, err := n.Draft()
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if d.Identifier != 0 {
		t.Fatalf("seller's first note identifier: got %d, want 0", d.Identifier)
	}
	if buyerAccount.Balance != 990 {
		t.Fatalf("buyer balance: got %d, want 990", buyerAccount.Balance)
	}
	if sellerAccount.Balance != 10 {
		t.Fatalf("seller balance: got %d, want 10", sellerAccount.Balance)
	}
}

// TestDoubleSpendDetection is spec.md 8 scenario 3: re-adding a spent check
// and attempting to transfer it again must raise Fraud, not silently
// succeed or silently no-op.
func TestDoubleSpendDetection(t *testing.T) {
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	cfg := config.Default()
	registry := NewRegistry()
	b := newTestBank(t, 42, clk, registry)

	buyerAccount := b.AddAccount("buyer", nil)
	buyerAccount.Balance = 1000
	sellerAccount := b.AddAccount("seller", nil)

	buyer := newTestDevice(t, cfg, clk)
	seller := newTestDevice(t, cfg, clk)
	cap := uint32(1000)
	if _, err := b.AddDevice(buyerAccount, buyer.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(buyer): %v", err)
	}
	if _, err := b.AddDevice(sellerAccount, seller.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(seller): %v", err)
	}

	c, err := b.IssueCheck(buyer.PublicKey(), 10)
	if err != nil {
		t.Fatalf("IssueCheck: %v", err)
	}
	if err := buyer.AddUnspentCheck(c); err != nil {
		t.Fatalf("AddUnspentCheck: %v", err)
	}

	n := fullySign(t, seller, buyer, 10)
	if err := b.HandInPromissoryNote(n); err != nil {
		t.Fatalf("HandInPromissoryNote: %v", err)
	}
	if err := b.RedeemPromissoryNote(n); err != nil {
		t.Fatalf("RedeemPromissoryNote: %v", err)
	}

	// Re-add the same (already-consumed) check and try to spend it again.
	if err := buyer.AddUnspentCheck(c); err != nil {
		t.Fatalf("AddUnspentCheck (replay): %v", err)
	}
	n2 := fullySign(t, seller, buyer, 10)
	if err := b.HandInPromissoryNote(n2); err != nil {
		t.Fatalf("HandInPromissoryNote (replay): %v", err)
	}
	err = b.RedeemPromissoryNote(n2)
	if !errors.Is(err, errs.ErrFraud) {
		t.Fatalf("RedeemPromissoryNote (replay): got %v, want Fraud", err)
	}
}

// TestCapEnforcement is spec.md 8 scenario 4.
func TestCapEnforcement(t *testing.T) {
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	cfg := config.Default()
	registry := NewRegistry()
	b := newTestBank(t, 42, clk, registry)

	buyerAccount := b.AddAccount("buyer", nil)
	buyerAccount.Balance = 1000
	sellerAccount := b.AddAccount("seller", nil)

	buyer := newTestDevice(t, cfg, clk)
	seller := newTestDevice(t, cfg, clk)
	cap := uint32(20)
	if _, err := b.AddDevice(buyerAccount, buyer.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(buyer): %v", err)
	}
	if _, err := b.AddDevice(sellerAccount, seller.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(seller): %v", err)
	}

	for i := 0; i < 2; i++ {
		c, err := b.IssueCheck(buyer.PublicKey(), 10)
		if err != nil {
			t.Fatalf("IssueCheck #%d: %v", i, err)
		}
		if err := buyer.AddUnspentCheck(c); err != nil {
			t.Fatalf("AddUnspentCheck #%d: %v", i, err)
		}
	}

	n := fullySign(t, seller, buyer, 10)
	if err := b.HandInPromissoryNote(n); err != nil {
		t.Fatalf("HandInPromissoryNote: %v", err)
	}
	if err := b.RedeemPromissoryNote(n); err != nil {
		t.Fatalf("RedeemPromissoryNote: %v", err)
	}

	if _, err := b.IssueCheck(buyer.PublicKey(), 10); !errors.Is(err, errs.ErrCapExceeded) {
		t.Fatalf("third IssueCheck: got %v, want CapExceeded", err)
	}

	b.ResetIssuedCheckValueCounters()

	if _, err := b.IssueCheck(buyer.PublicKey(), 10); err != nil {
		t.Fatalf("IssueCheck after reset: %v", err)
	}
	if _, err := b.IssueCheck(buyer.PublicKey(), 10); !errors.Is(err, errs.ErrCapExceeded) {
		t.Fatalf("IssueCheck after reset, second call: got %v, want CapExceeded", err)
	}
}

// TestConservationAcrossSettlement checks spec.md 8's conservation
// property: settling a note moves value between accounts, it never
// creates or destroys it.
func TestConservationAcrossSettlement(t *testing.T) {
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	cfg := config.Default()
	registry := NewRegistry()
	b := newTestBank(t, 1, clk, registry)

	buyerAccount := b.AddAccount("buyer", nil)
	buyerAccount.Balance = 500
	sellerAccount := b.AddAccount("seller", nil)
	sellerAccount.Balance = 50

	buyer := newTestDevice(t, cfg, clk)
	seller := newTestDevice(t, cfg, clk)
	cap := uint32(500)
	if _, err := b.AddDevice(buyerAccount, buyer.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(buyer): %v", err)
	}
	if _, err := b.AddDevice(sellerAccount, seller.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(seller): %v", err)
	}

	before := buyerAccount.Balance + sellerAccount.Balance

	c, err := b.IssueCheck(buyer.PublicKey(), 75)
	if err != nil {
		t.Fatalf("IssueCheck: %v", err)
	}
	if err := buyer.AddUnspentCheck(c); err != nil {
		t.Fatalf("AddUnspentCheck: %v", err)
	}
	n := fullySign(t, seller, buyer, 75)
	if err := b.HandInPromissoryNote(n); err != nil {
		t.Fatalf("HandInPromissoryNote: %v", err)
	}
	if err := b.RedeemPromissoryNote(n); err != nil {
		t.Fatalf("RedeemPromissoryNote: %v", err)
	}

	after := buyerAccount.Balance + sellerAccount.Balance
	if after != before {
		t.Fatalf("conservation violated: before %d, after %d", before, after)
	}
}

// TestRedeemAloneSettlesWithoutHandIn exercises spec.md 5's ordering rule
// that hand-in and redeem are idempotent in the order (hand-in, redeem) or
// (redeem alone) — a seller can redeem directly without the buyer ever
// handing the note in first.
func TestRedeemAloneSettlesWithoutHandIn(t *testing.T) {
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	cfg := config.Default()
	registry := NewRegistry()
	b := newTestBank(t, 7, clk, registry)

	buyerAccount := b.AddAccount("buyer", nil)
	buyerAccount.Balance = 100
	sellerAccount := b.AddAccount("seller", nil)

	buyer := newTestDevice(t, cfg, clk)
	seller := newTestDevice(t, cfg, clk)
	cap := uint32(100)
	if _, err := b.AddDevice(buyerAccount, buyer.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(buyer): %v", err)
	}
	if _, err := b.AddDevice(sellerAccount, seller.PublicKey(), &cap); err != nil {
		t.Fatalf("AddDevice(seller): %v", err)
	}

	c, err := b.IssueCheck(buyer.PublicKey(), 25)
	if err != nil {
		t.Fatalf("IssueCheck: %v", err)
	}
	if err := buyer.AddUnspentCheck(c); err != nil {
		t.Fatalf("AddUnspentCheck: %v", err)
	}
	n := fullySign(t, seller, buyer, 25)

	if err := b.RedeemPromissoryNote(n); err != nil {
		t.Fatalf("RedeemPromissoryNote without prior hand-in: %v", err)
	}
	if sellerAccount.Balance != 25 || buyerAccount.Balance != 75 {
		t.Fatalf("unexpected balances after redeem-alone: buyer=%d seller=%d", buyerAccount.Balance, sellerAccount.Balance)
	}

	// A second redemption of the same note is now a double-redeem.
	if err := b.RedeemPromissoryNote(n); !errors.Is(err, errs.ErrFraud) {
		t.Fatalf("second redeem: got %v, want Fraud", err)
	}
}
