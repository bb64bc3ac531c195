// Package clock answers spec.md 9's open question on transaction-date
// checking: has_correct_transaction_date compares a draft's date against
// "today", which makes a note unverifiable a day later unless "today" is
// an injectable abstraction rather than a direct time.Now() call.
package clock

import (
	"time"

	"github.com/offlinecheck/checkbook/internal/codec"
)

// Clock produces the current date as seen by the protocol.
type Clock interface {
	Today() codec.Date
}

// System is the real-time clock, used by default outside of tests.
type System struct{}

// Today returns the current UTC calendar day.
func (System) Today() codec.Date {
	return codec.DateFromTime(time.Now())
}

// Fixed pins the clock to a single date, for deterministic tests.
type Fixed struct {
	Date codec.Date
}

// Today returns the pinned date.
func (f Fixed) Today() codec.Date {
	return f.Date
}
