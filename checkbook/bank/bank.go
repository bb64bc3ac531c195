// Package bank implements the issuing and settlement side of the
// checkbook protocol (spec.md 3/4.7): accounts, their registered devices,
// and the bank operations that issue checks, accept and settle
// promissory notes, and roll over monthly counters. Where the teacher's
// blockchain.Blockchain owns a UTXO set it mutates under a Badger
// transaction, a Bank owns a population of accounts and device ledgers
// it mutates directly in memory, with persistence/ledger available as an
// optional durable mirror.
package bank

import (
	"crypto/ecdsa"

	"github.com/offlinecheck/checkbook/checkbook/certificate"
	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
	"github.com/offlinecheck/checkbook/wallet"
)

type deviceRef struct {
	account *Account
	data    *DeviceData
}

// Bank is one issuing bank: its signing identity, its configuration, the
// peer registry it settles through, and the accounts and devices it
// tracks.
type Bank struct {
	Identifier uint32

	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey

	cfg config.Config
	clk clock.Clock

	registry *Registry

	accounts    map[string]*Account
	deviceIndex map[string]deviceRef
	nextAccSeq  uint64
}

// New creates a bank under the given identifier and signing key. If
// registry is non-nil the bank registers itself so peers can locate it.
func New(identifier uint32, priv *ecdsa.PrivateKey, cfg config.Config, clk clock.Clock, registry *Registry) *Bank {
	b := &Bank{
		Identifier:  identifier,
		privateKey:  priv,
		publicKey:   &priv.PublicKey,
		cfg:         cfg,
		clk:         clk,
		registry:    registry,
		accounts:    make(map[string]*Account),
		deviceIndex: make(map[string]deviceRef),
	}
	if registry != nil {
		registry.Register(b)
	}
	return b
}

// PublicKey returns the bank's signing public key.
func (b *Bank) PublicKey() *ecdsa.PublicKey { return b.publicKey }

// Account looks up an account by ID, rejecting outright any id that
// doesn't pass wallet's checksum validation (the same Base58 shape
// deriveAccountID produces) rather than falling through to a doomed map
// lookup on a mistyped identifier.
func (b *Bank) Account(id string) (*Account, bool) {
	if !wallet.ValidateAddress(id) {
		return nil, false
	}
	a, ok := b.accounts[id]
	return a, ok
}

// AddAccount opens a new account for owner with the given credit limit,
// or the config default if maxCredit is nil.
func (b *Bank) AddAccount(owner string, maxCredit *uint32) *Account {
	limit := b.cfg.DefaultMaxCredit
	if maxCredit != nil {
		limit = *maxCredit
	}
	b.nextAccSeq++
	id := deriveAccountID(b.Identifier, owner, b.nextAccSeq)
	a := newAccount(id, owner, limit)
	b.accounts[id] = a
	return a
}

// AddDevice registers devicePublicKey against account, installing the
// given monthly cap (or the config default), and keeps the signed
// DeviceCertificate vouching for the registration (spec.md 4.7/6) on the
// device's record so later note verification can hold it against the
// certificate, not just return it to be discarded.
func (b *Bank) AddDevice(account *Account, devicePublicKey *ecdsa.PublicKey, monthlyCap *uint32) (certificate.Certificate, error) {
	cap := b.cfg.DefaultDeviceCap
	if monthlyCap != nil {
		cap = *monthlyCap
	}
	key, err := xcrypto.ExportPublicKeyPEM(devicePublicKey)
	if err != nil {
		return certificate.Certificate{}, err
	}

	validUntil := b.clk.Today().AddDays(b.cfg.CertificateValidityDays)
	cert, err := certificate.Issue(devicePublicKey, "registered device", validUntil, b.privateKey)
	if err != nil {
		return certificate.Certificate{}, err
	}

	dd := newDeviceData(devicePublicKey, cap, cert)
	account.Devices[key] = dd
	b.deviceIndex[key] = deviceRef{account: account, data: dd}
	return cert, nil
}

// DeviceCertificate returns the certificate this bank issued when pub was
// registered, so callers (note verification, in particular) can validate
// it without having to thread the certificate through the wire formats
// spec.md 4/6 don't carry it in.
func (b *Bank) DeviceCertificate(pub *ecdsa.PublicKey) (certificate.Certificate, bool) {
	dd, _, ok := b.deviceDataFor(pub)
	if !ok {
		return certificate.Certificate{}, false
	}
	return dd.Certificate, true
}

func (b *Bank) deviceDataFor(pub *ecdsa.PublicKey) (*DeviceData, *Account, bool) {
	key, err := xcrypto.ExportPublicKeyPEM(pub)
	if err != nil {
		return nil, nil, false
	}
	ref, ok := b.deviceIndex[key]
	if !ok {
		return nil, nil, false
	}
	return ref.data, ref.account, true
}

func (b *Bank) allDeviceData() []*DeviceData {
	out := make([]*DeviceData, 0, len(b.deviceIndex))
	for _, ref := range b.deviceIndex {
		out = append(out, ref.data)
	}
	return out
}

// IssueCheck mints a check of the given value for devicePublicKey,
// enforcing the account's credit limit and the device's remaining
// monthly cap (spec.md 4.7).
func (b *Bank) IssueCheck(devicePublicKey *ecdsa.PublicKey, value uint32) (check.Check, error) {
	dd, account, ok := b.deviceDataFor(devicePublicKey)
	if !ok {
		return check.Check{}, errs.NewInvalidNote("check_value")
	}

	available := account.Balance - int64(account.TotalUnclaimedNoteValue()) + int64(account.MaxCredit)
	needed := int64(account.TotalUnspentCheckValue()) + int64(value)
	if available < needed {
		return check.Check{}, errs.ErrCreditExceeded
	}
	if int64(dd.IssuedCheckValue)+int64(value) > dd.Cap {
		return check.Check{}, errs.ErrCapExceeded
	}

	c := check.Check{
		BankID:         b.Identifier,
		OwnerPublicKey: devicePublicKey,
		Value:          value,
		Identifier:     dd.CheckCounter,
		ExpirationDate: b.clk.Today().AddDays(b.cfg.CheckExpirationDays),
	}
	if err := c.Sign(b.privateKey); err != nil {
		return check.Check{}, err
	}

	dd.CheckCounter++
	dd.IssuedCheckValue += value
	dd.UnspentChecks[c.CanonicalKey()] = c
	return c, nil
}

// HandInPromissoryNote is the tentative settlement step of spec.md 4.7:
// committed checks move out of unspent, and a still-claimable draft is
// parked in the buyer device's awaiting_claim set, but no balance moves
// yet.
func (b *Bank) HandInPromissoryNote(n note.Note) error {
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

	today := b.clk.Today()
	claimable := d.IsClaimable(today, b.cfg)
	affectsCap := d.AffectsMonthlyCap(today)

	draftKey, err := d.CanonicalKey()
	if err != nil {
		return err
	}

	var buyerData *DeviceData
	freshlySpent := false
	for _, e := range d.Entries {
		if e.Check.BankID != b.Identifier {
			continue
		}
		dd, _, ok := b.deviceDataFor(e.Check.OwnerPublicKey)
		if !ok {
			continue
		}
		if buyerData == nil {
			buyerData = dd
		}
		key := e.Check.CanonicalKey()
		if _, unspent := dd.UnspentChecks[key]; unspent {
			delete(dd.UnspentChecks, key)
			freshlySpent = true
			if affectsCap && claimable {
				dd.Cap -= int64(e.Amount)
			}
		}
	}

	// Only park the draft for later claim if this hand-in actually spent
	// a fresh check, or it's a retry of a draft already parked: a note
	// whose checks were already spent by some other draft never gets a
	// tentative claim of its own, so redemption still catches it as
	// Fraud instead of finding a bypass parked here by hand-in.
	if claimable && buyerData != nil {
		_, alreadyParked := buyerData.AwaitingClaim[draftKey]
		if freshlySpent || alreadyParked {
			buyerData.AwaitingClaim[draftKey] = d
		}
	}
	return nil
}

// RedeemPromissoryNote is the final settlement step of spec.md 4.7: the
// same per-check bookkeeping HandInPromissoryNote performs, plus (when
// the note is still claimable) the actual balance transfer from the
// buyer's account to the seller's, the seller's account located through
// the bank registry by its device's public key.
func (b *Bank) RedeemPromissoryNote(n note.Note) error {
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

	today := b.clk.Today()
	claimable := d.IsClaimable(today, b.cfg)
	affectsCap := d.AffectsMonthlyCap(today)
	draftKey, err := d.CanonicalKey()
	if err != nil {
		return err
	}

	var buyerData *DeviceData
	var buyerAccount *Account
	fraud := false

	for _, e := range d.Entries {
		if e.Check.BankID != b.Identifier {
			continue
		}
		dd, account, ok := b.deviceDataFor(e.Check.OwnerPublicKey)
		if !ok {
			continue
		}
		if buyerData == nil {
			buyerData, buyerAccount = dd, account
		}

		key := e.Check.CanonicalKey()
		if _, unspent := dd.UnspentChecks[key]; unspent {
			delete(dd.UnspentChecks, key)
			if affectsCap && claimable {
				dd.Cap -= int64(e.Amount)
			}
			continue
		}
		if _, awaiting := dd.AwaitingClaim[draftKey]; awaiting {
			if !claimable && affectsCap {
				dd.Cap += int64(e.Amount)
			}
			continue
		}
		if !claimable {
			continue
		}
		fraud = true
	}

	if fraud {
		return errs.ErrFraud
	}

	if claimable {
		if buyerAccount == nil {
			return errs.NewInvalidNote("check_value")
		}
		_, sellerAccount, _, found := b.registry.FindAccountByDevicePublicKey(d.SellerPublicKey)
		if !found {
			return errs.NewInvalidNote("check_value")
		}
		buyerAccount.Balance -= int64(d.Value)
		sellerAccount.Balance += int64(d.Value)
		delete(buyerData.AwaitingClaim, draftKey)
	}
	return nil
}

// ResetIssuedCheckValueCounters recomputes each device's issued_check_value
// from its currently unspent checks, the monthly procedure of spec.md 4.7.
func (b *Bank) ResetIssuedCheckValueCounters() {
	for _, dd := range b.allDeviceData() {
		var sum uint32
		for _, c := range dd.UnspentChecks {
			sum += c.Value
		}
		dd.IssuedCheckValue = sum
	}
}

// ResetMonthlySpendingCaps restores every device's cap to its monthly_cap.
func (b *Bank) ResetMonthlySpendingCaps() {
	for _, dd := range b.allDeviceData() {
		dd.Cap = int64(dd.MonthlyCap)
	}
}

// RemoveExpiredNotes drops no-longer-claimable drafts from every device's
// awaiting_claim set, crediting back any monthly cap they had debited.
func (b *Bank) RemoveExpiredNotes() {
	today := b.clk.Today()
	for _, dd := range b.allDeviceData() {
		for key, d := range dd.AwaitingClaim {
			if d.IsClaimable(today, b.cfg) {
				continue
			}
			delete(dd.AwaitingClaim, key)
			if d.AffectsMonthlyCap(today) {
				dd.Cap += int64(d.Value)
			}
		}
	}
}
