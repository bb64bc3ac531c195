package codec

import (
	"fmt"
	"time"

	"github.com/offlinecheck/checkbook/internal/errs"
)

// Date is a calendar day with no time-of-day component, rendered on the
// wire as the 8-character string DDMMYYYY per spec.md 4.1.
type Date struct {
	Day   int
	Month int
	Year  int
}

// DateFromTime truncates a time.Time to its UTC calendar day.
func DateFromTime(t time.Time) Date {
	t = t.UTC()
	y, m, d := t.Date()
	return Date{Day: d, Month: int(m), Year: y}
}

// String renders the date as DDMMYYYY.
func (d Date) String() string {
	return fmt.Sprintf("%02d%02d%04d", d.Day, d.Month, d.Year)
}

// ParseDate parses the DDMMYYYY format produced by String.
func ParseDate(s string) (Date, error) {
	if len(s) != 8 {
		return Date{}, errs.ErrMalformedEncoding
	}
	var d, m, y int
	if _, err := fmt.Sscanf(s[0:2], "%02d", &d); err != nil {
		return Date{}, errs.ErrMalformedEncoding
	}
	if _, err := fmt.Sscanf(s[2:4], "%02d", &m); err != nil {
		return Date{}, errs.ErrMalformedEncoding
	}
	if _, err := fmt.Sscanf(s[4:8], "%04d", &y); err != nil {
		return Date{}, errs.ErrMalformedEncoding
	}
	date := Date{Day: d, Month: m, Year: y}
	if !date.valid() {
		return Date{}, errs.ErrMalformedEncoding
	}
	return date, nil
}

func (d Date) valid() bool {
	t := d.toTime()
	y, m, day := t.Date()
	return y == d.Year && int(m) == d.Month && day == d.Day
}

func (d Date) toTime() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateFromTime(d.toTime().AddDate(0, 0, n))
}

// Sub returns the number of days between d and other (d - other).
func (d Date) Sub(other Date) int {
	return int(d.toTime().Sub(other.toTime()).Hours() / 24)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.toTime().Before(other.toTime())
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.toTime().After(other.toTime())
}

// Equal reports whether d and other name the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Day == other.Day && d.Month == other.Month && d.Year == other.Year
}

// SameMonth reports whether d and other fall in the same calendar month.
func (d Date) SameMonth(other Date) bool {
	return d.Year == other.Year && d.Month == other.Month
}
