// Package config holds the bank-scoped tunables of the checkbook protocol
// (spec.md 6). The teacher hard-codes its handful of constants as package
// vars (blockchain.dbPath, network.protocol); caps genuinely vary per bank
// here, so they travel as an injectable struct instead.
package config

// Config collects the protocol's configuration constants. Zero value is
// invalid; use Default() for spec.md's documented defaults.
type Config struct {
	// CheckExpirationDays is how many days after issuance a check's
	// ExpirationDate is set to.
	CheckExpirationDays int
	// DaysValid is how many days beyond expiration (or beyond a note's
	// transaction date) a check or note remains claimable/redeemable.
	DaysValid int
	// MaxOvercharge bounds acceptable overpayment in the check-selection
	// algorithm, e.g. 0.1 for 10%.
	MaxOvercharge float64
	// CheckPunishment weights the cost of using one more check in the
	// check-selection algorithm's scoring function.
	CheckPunishment float64
	// DefaultDeviceCap is the cap.monthly_cap installed by AddDevice when
	// the caller doesn't specify one.
	DefaultDeviceCap uint32
	// DefaultMaxCredit is the max_credit installed on a fresh Account.
	DefaultMaxCredit uint32
	// CertificateValidityDays is how many days a DeviceCertificate issued
	// at device registration remains valid for.
	CertificateValidityDays int
}

// Default returns spec.md's documented default configuration.
func Default() Config {
	return Config{
		CheckExpirationDays: 100,
		DaysValid:           10,
		MaxOvercharge:       0.1,
		CheckPunishment:     0.5,
		DefaultDeviceCap:    1000,
		DefaultMaxCredit:    0,

		CertificateValidityDays: 365,
	}
}
