// internal/util/errors.go
package util

import "errors"

// Common application-specific errors.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input provided")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateEntry    = errors.New("duplicate entry") // Unique-constraint violation surfaced as a benign signal
	ErrDuplicateEvent    = errors.New("duplicate event")
	ErrOutOfOrder        = errors.New("out-of-order transition")
	ErrLimitExceeded     = errors.New("transaction limit exceeded")
	ErrProviderTimeout   = errors.New("provider call timed out")
	ErrProviderUnavail   = errors.New("provider unavailable")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInconsistentState = errors.New("inconsistent ledger state")
)

// IsError reports whether err matches the target sentinel error.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
