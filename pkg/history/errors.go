// Package history pkg/history/errors.go provides errors for the history package.

package history

import "errors"

var (
	ErrFailedOpenDB    = errors.New("failed to open database")
	ErrFailedToInit    = errors.New("failed to initialize schema")
	ErrFailedToEnable  = errors.New("failed to enable WAL mode")
	ErrFailedToInsert  = errors.New("failed to insert")
	ErrFailedToQuery   = errors.New("failed to query")
	ErrFailedToScan    = errors.New("failed to scan")
	ErrFailedToBeginTx = errors.New("failed to begin transaction")
	ErrFailedToClean   = errors.New("failed to clean")
	ErrSessionNotFound = errors.New("session not found")
)
