// Package transaction pkg/transaction/errors.go provides errors for the transaction package.

package transaction

import "errors"

var (
	// ErrTxActive is returned by Begin while another transaction is
	// active in the same process.
	ErrTxActive = errors.New("another transaction is already active")

	// ErrTxFinished means commit or rollback was already called.
	ErrTxFinished = errors.New("transaction already finished")

	// ErrRollbackIncomplete aggregates undo-step failures; rollback is
	// best-effort and never stops at the first failure.
	ErrRollbackIncomplete = errors.New("rollback completed with failures")

	errNoServiceManager = errors.New("no service manager configured")
)
