package ledger

import "errors"

// Expected, typed outcomes of ledger operations. Anything else that
// escapes the service is a storage or transport failure and maps to an
// internal error at the HTTP layer; the atomic commit in the store
// guarantees those leave no half-applied balance change.
var (
	ErrContentNotFound = errors.New("content not found")
	ErrUserNotFound    = errors.New("user not found")
	// ErrAlreadyPurchased is an idempotent rejection: the unlock
	// already happened and retrying will not charge again.
	ErrAlreadyPurchased = errors.New("content already purchased")
	ErrInvalidAmount    = errors.New("amount must be positive")
)
