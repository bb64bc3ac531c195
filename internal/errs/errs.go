// Package errs collects the error taxonomy shared across the checkbook
// core. Every core operation returns one of these instead of panicking;
// panics are reserved for the non-core cmd/ bootstrapping, matching the
// teacher's own Handle(err)/log.Panic convention there.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for kinds that carry no extra context. Use errors.Is.
var (
	ErrMalformedEncoding = errors.New("checkbook: malformed encoding")
	ErrInsufficientFunds = errors.New("checkbook: insufficient funds")
	ErrCreditExceeded    = errors.New("checkbook: credit exceeded")
	ErrCapExceeded       = errors.New("checkbook: cap exceeded")
	ErrFraud             = errors.New("checkbook: fraud detected")
	ErrOffline           = errors.New("checkbook: device is offline")
)

// InvalidSignatureError reports which signature in a chain failed to verify.
type InvalidSignatureError struct {
	Which string // "seller", "buyer", or "bank"
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("checkbook: invalid %s signature", e.Which)
}

func (e *InvalidSignatureError) Is(target error) bool {
	_, ok := target.(*InvalidSignatureError)
	return ok
}

// NewInvalidSignature builds an InvalidSignatureError for the given party.
func NewInvalidSignature(which string) error {
	return &InvalidSignatureError{Which: which}
}

// InvalidNoteError reports which predicate a promissory note failed.
type InvalidNoteError struct {
	Reason string // "total_value", "check_value", "transaction_date", "mixed_bank"
}

func (e *InvalidNoteError) Error() string {
	return fmt.Sprintf("checkbook: invalid note (%s)", e.Reason)
}

func (e *InvalidNoteError) Is(target error) bool {
	_, ok := target.(*InvalidNoteError)
	return ok
}

// NewInvalidNote builds an InvalidNoteError for the given reason.
func NewInvalidNote(reason string) error {
	return &InvalidNoteError{Reason: reason}
}

// InvalidCertificateError reports why a device certificate failed validation.
type InvalidCertificateError struct {
	Reason string
}

func (e *InvalidCertificateError) Error() string {
	return fmt.Sprintf("checkbook: invalid certificate (%s)", e.Reason)
}

func (e *InvalidCertificateError) Is(target error) bool {
	_, ok := target.(*InvalidCertificateError)
	return ok
}

// NewInvalidCertificate builds an InvalidCertificateError for the given reason.
func NewInvalidCertificate(reason string) error {
	return &InvalidCertificateError{Reason: reason}
}
