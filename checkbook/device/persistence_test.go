package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/internal/codec"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

func TestSaveAndLoadDeviceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

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
	d.RegisterBank(1, &bankPriv.PublicKey)
	d.SetOnline(true)

	c := check.Check{
		BankID:         1,
		OwnerPublicKey: d.PublicKey(),
		Value:          25,
		Identifier:     0,
		ExpirationDate: clk.Today().AddDays(cfg.CheckExpirationDays),
	}
	if err := c.Sign(bankPriv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := d.AddUnspentCheck(c); err != nil {
		t.Fatalf("AddUnspentCheck: %v", err)
	}
	_ = d.DraftPromissoryNote(1) // advance the counter so we can check it persists

	if err := d.SaveFile("alice"); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	loaded, err := LoadDevice("alice", cfg, clk)
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}

	if !xcrypto.SamePublicKey(loaded.PublicKey(), d.PublicKey()) {
		t.Error("loaded device has a different public key")
	}
	if loaded.counter != d.counter {
		t.Errorf("counter: got %d, want %d", loaded.counter, d.counter)
	}
	if loaded.IsOnline() != d.IsOnline() {
		t.Error("online flag did not survive the round trip")
	}
	if !loaded.IsKnownBank(1) {
		t.Error("known bank did not survive the round trip")
	}
	if loaded.TotalUnspentCheckValue() != d.TotalUnspentCheckValue() {
		t.Errorf("unspent value: got %d, want %d", loaded.TotalUnspentCheckValue(), d.TotalUnspentCheckValue())
	}
}

func TestLoadDeviceMissingFile(t *testing.T) {
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	if _, err := LoadDevice("nobody", config.Default(), clock.System{}); err == nil {
		t.Fatal("expected an error loading a device that was never saved")
	}
}
