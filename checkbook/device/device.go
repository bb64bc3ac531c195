// Package device implements the account-holder device (AHD) of spec.md
// 3/4.6: the user-controlled object holding a keypair, unspent checks, and
// known-bank information, responsible for drafting notes and picking
// which checks cover a payment. The teacher's wallet.Wallet plays the
// analogous "holds the keys" role; this type additionally holds the
// spendable inventory and the check-selection algorithm a UTXO wallet
// delegates to its chain-wide UTXO index instead.
package device

import (
	"crypto/ecdsa"
	"math"
	"sort"

	"github.com/offlinecheck/checkbook/checkbook/check"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/checkbook/note"
	"github.com/offlinecheck/checkbook/internal/errs"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
)

// Device is an account-holder device: a keypair, an inventory of unspent
// checks bucketed by face value (FIFO per bucket, spec.md 9), a registry
// of known banks, and an online/offline flag.
type Device struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey

	counter uint64

	// unspentByValue buckets equal-value checks in FIFO order: push to the
	// back on AddUnspentCheck, pop from the front on selection.
	unspentByValue map[uint32][]check.Check

	bankKeys map[uint32]*ecdsa.PublicKey

	online bool

	cfg config.Config
	clk clock.Clock
}

// New constructs a Device around a freshly generated or provided keypair.
func New(privateKey *ecdsa.PrivateKey, cfg config.Config, clk clock.Clock) *Device {
	return &Device{
		privateKey:     privateKey,
		publicKey:      &privateKey.PublicKey,
		unspentByValue: make(map[uint32][]check.Check),
		bankKeys:       make(map[uint32]*ecdsa.PublicKey),
		cfg:            cfg,
		clk:            clk,
	}
}

// PublicKey returns the device's public key.
func (d *Device) PublicKey() *ecdsa.PublicKey { return d.publicKey }

// PrivateKey returns the device's private key, for signing operations.
func (d *Device) PrivateKey() *ecdsa.PrivateKey { return d.privateKey }

// RegisterBank installs a bank's public key under its identifier so the
// device can later recognize checks issued by it and attach its drafts.
func (d *Device) RegisterBank(bankID uint32, bankPublicKey *ecdsa.PublicKey) {
	d.bankKeys[bankID] = bankPublicKey
}

// IsKnownBank reports whether bankID has been registered.
func (d *Device) IsKnownBank(bankID uint32) bool {
	_, ok := d.bankKeys[bankID]
	return ok
}

// BankPublicKey returns the registered public key for bankID.
func (d *Device) BankPublicKey(bankID uint32) (*ecdsa.PublicKey, bool) {
	pk, ok := d.bankKeys[bankID]
	return pk, ok
}

// KnownBankIDs returns the identifiers of every registered bank.
func (d *Device) KnownBankIDs() []uint32 {
	ids := make([]uint32, 0, len(d.bankKeys))
	for id := range d.bankKeys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetOnline toggles the device's online/offline attribute (spec.md 5: a
// modelled device attribute, not a timeout).
func (d *Device) SetOnline(online bool) { d.online = online }

// IsOnline reports the device's online/offline attribute.
func (d *Device) IsOnline() bool { return d.online }

// AddUnspentCheck adds c to the device's inventory. Precondition:
// c.OwnerPublicKey must be this device's public key.
func (d *Device) AddUnspentCheck(c check.Check) error {
	if !xcrypto.SamePublicKey(c.OwnerPublicKey, d.publicKey) {
		return errs.NewInvalidSignature("bank")
	}
	d.unspentByValue[c.Value] = append(d.unspentByValue[c.Value], c)
	return nil
}

// TotalUnspentCheckValue sums the face value of every unspent check.
func (d *Device) TotalUnspentCheckValue() uint32 {
	var total uint32
	for v, bucket := range d.unspentByValue {
		total += v * uint32(len(bucket))
	}
	return total
}

// RemoveExpiredChecks discards checks whose expiration has passed,
// keeping the device's spendable set current. AddPayment calls this
// first, per spec.md 4.6.
func (d *Device) RemoveExpiredChecks() {
	today := d.clk.Today()
	for v, bucket := range d.unspentByValue {
		kept := bucket[:0]
		for _, c := range bucket {
			if !c.Expired(today) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(d.unspentByValue, v)
		} else {
			d.unspentByValue[v] = kept
		}
	}
}

// DraftPromissoryNote constructs a fresh draft at (this device's public
// key, a strictly increasing identifier, amount, today) and advances the
// device's counter so (seller_pubkey, identifier) stays unique per device.
func (d *Device) DraftPromissoryNote(amount uint32) note.Draft {
	identifier := d.counter
	d.counter++
	return note.Draft{
		SellerPublicKey: d.publicKey,
		Identifier:      identifier,
		Value:           amount,
		TransactionDate: d.clk.Today(),
	}
}

// AddPayment selects checks from the device's inventory and appends them
// to draft until the committed total equals draft.Value (spec.md 4.6).
// Preconditions: draft.TotalCheckValue() == 0 and draft.Value does not
// exceed the device's total unspent check value; draft.Value == 0 is a
// no-op.
func (d *Device) AddPayment(draft *note.Draft) error {
	if draft.TotalCheckValue() != 0 {
		return errs.NewInvalidNote("total_value")
	}
	if draft.Value == 0 {
		return nil
	}
	d.RemoveExpiredChecks()
	if draft.Value > d.TotalUnspentCheckValue() {
		return errs.ErrInsufficientFunds
	}

	entries, err := d.selectChecks(draft.Value)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := draft.AppendCheck(e.Check, e.Amount); err != nil {
			return err
		}
	}
	return nil
}

// popFront removes and returns the oldest check of the given face value.
func (d *Device) popFront(value uint32) (check.Check, bool) {
	bucket := d.unspentByValue[value]
	if len(bucket) == 0 {
		return check.Check{}, false
	}
	c := bucket[0]
	rest := bucket[1:]
	if len(rest) == 0 {
		delete(d.unspentByValue, value)
	} else {
		d.unspentByValue[value] = rest
	}
	return c, true
}

// returnUnspent pushes a check back to the front of its bucket, undoing a
// popFront (used by the fallback algorithm's fold-back pass).
func (d *Device) returnUnspent(c check.Check) {
	d.unspentByValue[c.Value] = append([]check.Check{c}, d.unspentByValue[c.Value]...)
}

func gcdPair(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func gcdOf(values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	g := values[0]
	for _, v := range values[1:] {
		g = gcdPair(g, v)
	}
	return g
}

// dpState is one cell of the shortest-sequence table built in selectChecks.
type dpState struct {
	length int
	counts map[uint32]int // rescaled face value -> count used to reach this total
}

// selectChecks implements the check-selection algorithm of spec.md 4.6:
// minimize both overpayment and number of checks used, under the
// constraint that a chosen face value can't be used more often than it is
// available in the device's inventory.
func (d *Device) selectChecks(value uint32) ([]note.Entry, error) {
	V := uint64(value)
	maxFace := uint64(math.Ceil(float64(V) * (1 + d.cfg.MaxOvercharge)))

	available := make(map[uint64]int) // face value -> count, excluding oversized
	var faceValues []uint64
	for v, bucket := range d.unspentByValue {
		if len(bucket) == 0 {
			continue
		}
		fv := uint64(v)
		if fv >= maxFace {
			continue
		}
		available[fv] = len(bucket)
		faceValues = append(faceValues, fv)
	}
	sort.Slice(faceValues, func(i, j int) bool { return faceValues[i] < faceValues[j] })

	if len(faceValues) == 0 {
		return d.selectChecksFallback(value)
	}

	g := gcdOf(faceValues)
	rescaledAvailable := make(map[uint32]int, len(faceValues))
	var rescaledValues []uint32
	for _, fv := range faceValues {
		rv := uint32(fv / g)
		rescaledAvailable[rv] = available[fv]
		rescaledValues = append(rescaledValues, rv)
	}
	sort.Slice(rescaledValues, func(i, j int) bool { return rescaledValues[i] < rescaledValues[j] })

	minValuePrime := float64(rescaledValues[0])
	maxValuePrime := float64(rescaledValues[len(rescaledValues)-1])
	Vf := float64(V) / float64(g)
	inner := math.Max(Vf*d.cfg.MaxOvercharge, minValuePrime)
	if inner > maxValuePrime {
		inner = maxValuePrime
	}
	capUnits := int(math.Ceil(Vf + inner))
	vTop := int((V + g - 1) / g) // ceil(V/g)
	if vTop > capUnits {
		capUnits = vTop
	}

	m := make([]*dpState, capUnits+1)
	m[0] = &dpState{length: 0, counts: map[uint32]int{}}
	for t := 1; t <= capUnits; t++ {
		for _, rv := range rescaledValues {
			if t < int(rv) {
				continue
			}
			prev := m[t-int(rv)]
			if prev == nil {
				continue
			}
			if prev.counts[rv]+1 > rescaledAvailable[rv] {
				continue
			}
			candidateLen := prev.length + 1
			if m[t] != nil && candidateLen >= m[t].length {
				continue
			}
			counts := make(map[uint32]int, len(prev.counts)+1)
			for k, v := range prev.counts {
				counts[k] = v
			}
			counts[rv]++
			m[t] = &dpState{length: candidateLen, counts: counts}
		}
	}

	bestT := -1
	bestScore := math.Inf(1)
	for t := vTop; t <= capUnits; t++ {
		if m[t] == nil {
			continue
		}
		score := float64(uint64(t)*g) - float64(V) + float64(m[t].length)*d.cfg.CheckPunishment
		if score < bestScore {
			bestScore = score
			bestT = t
		}
	}
	if bestT == -1 {
		return d.selectChecksFallback(value)
	}

	// Flatten the winning state's counts into individual rescaled units,
	// ascending, then pop FIFO checks and assign amounts by consuming the
	// remaining target as we go (spec.md 4.6 step 5).
	var units []uint32
	for _, rv := range rescaledValues {
		for i := 0; i < m[bestT].counts[rv]; i++ {
			units = append(units, rv)
		}
	}

	var entries []note.Entry
	remaining := V
	for _, rv := range units {
		faceValue := uint32(uint64(rv) * g)
		c, ok := d.popFront(faceValue)
		if !ok {
			return nil, errs.ErrInsufficientFunds
		}
		amt := uint64(c.Value)
		if amt > remaining {
			amt = remaining
		}
		remaining -= amt
		entries = append(entries, note.Entry{Check: c, Amount: uint32(amt)})
	}
	return entries, nil
}

// selectChecksFallback implements spec.md 4.6's fallback algorithm, used
// when no candidate face values survive the oversized-value exclusion
// (e.g. only oversized checks remain in the device's inventory).
func (d *Device) selectChecksFallback(value uint32) ([]note.Entry, error) {
	var faceValues []uint32
	for v, bucket := range d.unspentByValue {
		if len(bucket) > 0 {
			faceValues = append(faceValues, v)
		}
	}
	sort.Slice(faceValues, func(i, j int) bool { return faceValues[i] > faceValues[j] })

	var chosen []note.Entry
	remaining := value
	for _, v := range faceValues {
		for remaining > 0 && v <= remaining {
			c, ok := d.popFront(v)
			if !ok {
				break
			}
			chosen = append(chosen, note.Entry{Check: c, Amount: v})
			remaining -= v
		}
	}

	if remaining > 0 {
		bestValue, found := uint32(0), false
		for v, bucket := range d.unspentByValue {
			if len(bucket) == 0 || v < remaining {
				continue
			}
			if !found || v < bestValue {
				bestValue, found = v, true
			}
		}
		if !found {
			for _, e := range chosen {
				d.returnUnspent(e.Check)
			}
			return nil, errs.ErrInsufficientFunds
		}
		c, _ := d.popFront(bestValue)
		chosen = append(chosen, note.Entry{Check: c, Amount: remaining})
		overpaySlack := bestValue - remaining
		remaining = 0

		sinkIdx := len(chosen) - 1
		for i := sinkIdx - 1; i >= 0; i-- {
			e := chosen[i]
			if e.Check.Value <= overpaySlack {
				d.returnUnspent(e.Check)
				chosen[sinkIdx].Amount += e.Amount
				overpaySlack -= e.Check.Value
				chosen = append(chosen[:i], chosen[i+1:]...)
				sinkIdx--
			}
		}
	}

	if remaining > 0 {
		for _, e := range chosen {
			d.returnUnspent(e.Check)
		}
		return nil, errs.ErrInsufficientFunds
	}
	return chosen, nil
}
