package device

import (
	"testing"

	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

func newTestDevice(t *testing.T) (*Device, func(value uint32) check.Check) {
	t.Helper()
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	bankPriv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := config.Default()
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	d := New(priv, cfg, clk)

	var seq uint64
	mint := func(value uint32) check.Check {
		c := check.Check{
			BankID:         1,
			OwnerPublicKey: d.PublicKey(),
			Value:          value,
			Identifier:     seq,
			ExpirationDate: clk.Today().AddDays(cfg.CheckExpirationDays),
		}
		seq++
		if err := c.Sign(bankPriv); err != nil {
			t.Fatalf("Sign: %v", err)
		}
		return c
	}
	return d, mint
}

func stockInventory(t *testing.T, d *Device, mint func(uint32) check.Check, counts map[uint32]int) {
	t.Helper()
	for value, n := range counts {
		for i := 0; i < n; i++ {
			if err := d.AddUnspentCheck(mint(value)); err != nil {
				t.Fatalf("AddUnspentCheck(%d): %v", value, err)
			}
		}
	}
}

func TestAddUnspentCheckRejectsWrongOwner(t *testing.T) {
	d, mint := newTestDevice(t)
	c := mint(10)
	otherPriv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c.OwnerPublicKey = &otherPriv.PublicKey
	if err := d.AddUnspentCheck(c); err == nil {
		t.Fatal("expected error adding a check owned by a different key")
	}
}

func TestTotalUnspentCheckValue(t *testing.T) {
	d, mint := newTestDevice(t)
	stockInventory(t, d, mint, map[uint32]int{5: 3, 10: 2, 20: 2, 50: 1, 100: 1})
	want := uint32(5*3 + 10*2 + 20*2 + 50 + 100)
	if got := d.TotalUnspentCheckValue(); got != want {
		t.Fatalf("TotalUnspentCheckValue: got %d, want %d", got, want)
	}
}

// TestSequentialTransfersCoverInventory exercises the scenario spec.md 4.6
// walks through by hand: a {5:3,10:2,20:2,50:1,100:1} inventory spending
// 99, then 15, then 55, then 51 in sequence, each payment exactly covered
// from whatever remains after the previous one.
func TestSequentialTransfersCoverInventory(t *testing.T) {
	d, mint := newTestDevice(t)
	stockInventory(t, d, mint, map[uint32]int{5: 3, 10: 2, 20: 2, 50: 1, 100: 1})

	amounts := []uint32{99, 15, 55, 51}
	for _, amount := range amounts {
		draft := d.DraftPromissoryNote(amount)
		if err := d.AddPayment(&draft); err != nil {
			t.Fatalf("AddPayment(%d): %v", amount, err)
		}
		if draft.TotalCheckValue() != amount {
			t.Fatalf("AddPayment(%d): committed total %d, want %d", amount, draft.TotalCheckValue(), amount)
		}
		for _, e := range draft.Entries {
			if e.Amount > e.Check.Value {
				t.Fatalf("AddPayment(%d): entry amount %d exceeds check value %d", amount, e.Amount, e.Check.Value)
			}
			if e.Amount == 0 {
				t.Fatalf("AddPayment(%d): entry with zero amount", amount)
			}
		}
	}
}

func TestAddPaymentZeroIsNoOp(t *testing.T) {
	d, mint := newTestDevice(t)
	stockInventory(t, d, mint, map[uint32]int{10: 1})
	before := d.TotalUnspentCheckValue()

	draft := d.DraftPromissoryNote(0)
	if err := d.AddPayment(&draft); err != nil {
		t.Fatalf("AddPayment(0): %v", err)
	}
	if len(draft.Entries) != 0 {
		t.Fatalf("AddPayment(0): expected no entries, got %d", len(draft.Entries))
	}
	if d.TotalUnspentCheckValue() != before {
		t.Fatal("AddPayment(0) altered the device's inventory")
	}
}

func TestAddPaymentInsufficientFunds(t *testing.T) {
	d, mint := newTestDevice(t)
	stockInventory(t, d, mint, map[uint32]int{10: 1})

	draft := d.DraftPromissoryNote(50)
	if err := d.AddPayment(&draft); err == nil {
		t.Fatal("expected insufficient-funds error")
	}
	// Inventory must be untouched by the failed attempt.
	if d.TotalUnspentCheckValue() != 10 {
		t.Fatalf("inventory mutated by failed AddPayment: got %d, want 10", d.TotalUnspentCheckValue())
	}
}

func TestAddPaymentRejectsNonEmptyDraft(t *testing.T) {
	d, mint := newTestDevice(t)
	stockInventory(t, d, mint, map[uint32]int{10: 2})

	draft := d.DraftPromissoryNote(10)
	if err := draft.AppendCheck(mint(10), 10); err != nil {
		t.Fatalf("AppendCheck: %v", err)
	}
	if err := d.AddPayment(&draft); err == nil {
		t.Fatal("expected error calling AddPayment on a draft that already carries entries")
	}
}

func TestRemoveExpiredChecksDropsPastExpiration(t *testing.T) {
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	bankPriv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := config.Default()
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	d := New(priv, cfg, clk)

	expired := check.Check{
		BankID:         1,
		OwnerPublicKey: d.PublicKey(),
		Value:          10,
		Identifier:     1,
		ExpirationDate: codec.Date{Day: 1, Month: 1, Year: 2026},
	}
	if err := expired.Sign(bankPriv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := d.AddUnspentCheck(expired); err != nil {
		t.Fatalf("AddUnspentCheck: %v", err)
	}

	d.RemoveExpiredChecks()
	if d.TotalUnspentCheckValue() != 0 {
		t.Fatal("expected expired check to be removed from inventory")
	}
}

func TestDraftPromissoryNoteIdentifierIncrements(t *testing.T) {
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := config.Default()
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	d := New(priv, cfg, clk)

	a := d.DraftPromissoryNote(10)
	b := d.DraftPromissoryNote(20)
	if a.Identifier == b.Identifier {
		t.Fatal("expected strictly increasing draft identifiers")
	}
}

func TestRegisterBankAndKnownBankIDs(t *testing.T) {
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	bankPriv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := config.Default()
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	d := New(priv, cfg, clk)

	if d.IsKnownBank(1) {
		t.Fatal("bank should not be known before registration")
	}
	d.RegisterBank(1, &bankPriv.PublicKey)
	if !d.IsKnownBank(1) {
		t.Fatal("bank should be known after registration")
	}
	ids := d.KnownBankIDs()
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("KnownBankIDs: got %v, want [1]", ids)
	}
}

func TestSetOnline(t *testing.T) {
	priv, err := xcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := config.Default()
	clk := clock.Fixed{Date: codec.Date{Day: 1, Month: 6, Year: 2026}}
	d := New(priv, cfg, clk)

	if d.IsOnline() {
		t.Fatal("expected new device to start offline")
	}
	d.SetOnline(true)
	if !d.IsOnline() {
		t.Fatal("expected IsOnline to reflect SetOnline(true)")
	}
}
