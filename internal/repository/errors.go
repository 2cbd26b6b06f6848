// Package repository owns transactional access to guest, reservation
// and payment-record storage. The write paths call the WEB_QR_* stored
// procedures, which report a domain status string (and sometimes a
// status_type discriminator) in their result set; repositories decode
// those into tagged Outcome results so that callers branch on an
// enumeration instead of comparing strings.
package repository

import "errors"

// ErrNoResult is returned when a stored procedure yields no status row
// at all. That means the procedure contract was violated, not that the
// business operation was rejected.
var ErrNoResult = errors.New("stored procedure returned no result row")

// Outcome classifies a stored-procedure status row.
type Outcome int

const (
	// OutcomeSuccess - the procedure reported STATUS = "SUCCESS".
	OutcomeSuccess Outcome = iota
	// OutcomeRejected - a business-rule rejection; the raw status
	// string carries the reason (slot taken, duplicate mobile, ...).
	OutcomeRejected
	// OutcomeConflict - the procedure flagged a double-booking race or
	// an already-finalized payment via status_type.
	OutcomeConflict
)

const statusSuccess = "SUCCESS"

// outcomeOf derives the Outcome from a status string and the optional
// status_type discriminator column.
func outcomeOf(status, statusType string) Outcome {
	switch {
	case statusType == "conflict":
		return OutcomeConflict
	case status == statusSuccess:
		return OutcomeSuccess
	default:
		return OutcomeRejected
	}
}
