// Package dberr defines the engine's discriminated error values. Transaction
// policy violations abort the offending transaction and surface a
// TxnAbortError carrying the reason; resource exhaustion and protocol
// violations surface ordinary wrapped errors or boolean failures.
package dberr

import (
	"errors"
	"fmt"

	"github.com/Ou-Rui/my-bustub/pkg/primitives"
)

// AbortReason classifies why a transaction was aborted by the engine.
type AbortReason int

const (
	// AbortReasonUnknown is the zero value; a transaction aborted by its
	// caller rather than by engine policy carries this reason.
	AbortReasonUnknown AbortReason = iota

	// LockOnShrinking: a new lock was requested after the transaction
	// entered its shrinking phase.
	LockOnShrinking

	// SharedOnReadUncommitted: a shared lock was requested under the
	// read-uncommitted isolation level, where shared locks are meaningless.
	SharedOnReadUncommitted

	// UpgradeConflict: a second upgrade was requested on a record that
	// already has a pending upgrade.
	UpgradeConflict

	// Deadlock: the transaction was chosen as the victim of a deadlock
	// cycle by the background detector.
	Deadlock
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case SharedOnReadUncommitted:
		return "LOCKSHARED_ON_READ_UNCOMMITTED"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case Deadlock:
		return "DEADLOCK"
	default:
		return "UNKNOWN"
	}
}

// TxnAbortError reports that the engine aborted a transaction. It is distinct
// from ordinary boolean failure: callers must treat the transaction as dead.
type TxnAbortError struct {
	TxnID  primitives.TxnID
	Reason AbortReason
}

func (e *TxnAbortError) Error() string {
	return fmt.Sprintf("transaction %d aborted: %s", e.TxnID, e.Reason)
}

// NewTxnAbort builds a TxnAbortError for the given transaction and reason.
func NewTxnAbort(txnID primitives.TxnID, reason AbortReason) *TxnAbortError {
	return &TxnAbortError{TxnID: txnID, Reason: reason}
}

// IsAbort reports whether err is a transaction abort, returning the typed
// error when it is.
func IsAbort(err error) (*TxnAbortError, bool) {
	var abort *TxnAbortError
	if errors.As(err, &abort) {
		return abort, true
	}
	return nil, false
}

// ErrOutOfMemory is returned when the buffer pool cannot supply a frame in a
// context with no fallback, such as a B+Tree structural change mid-flight.
var ErrOutOfMemory = errors.New("buffer pool exhausted: all frames pinned")
