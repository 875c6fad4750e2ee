package store

import (
	"errors"
	"fmt"
	"time"

	"studyvault/pkg/domain"
)

var (
	// ErrUserNotFound reports an unknown user id inside a balance operation.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicatePurchase reports a second purchase row for the same
	// (user, content) pair, surfaced by the storage-level uniqueness check.
	ErrDuplicatePurchase = errors.New("purchase already recorded")
)

// InsufficientFundsError is returned when a debit would drive a balance
// below zero. It carries both amounts so callers can render the shortfall.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient tokens: required %d, available %d", e.Required, e.Available)
}

// UnlockMutation describes the full effect of one content unlock. The
// store applies it as a single atomic unit: debit the buyer by Price,
// credit the creator by Split.Creator, insert the Purchase and Earning
// rows. The buyer's balance is re-checked against Price inside the same
// transaction that writes it.
type UnlockMutation struct {
	BuyerID    string
	CreatorID  string
	ContentID  string
	Price      int64
	Split      domain.Distribution
	PurchaseID string
	EarningID  string
	Now        time.Time
}

// UnlockReceipt reports the committed outcome of an UnlockMutation.
type UnlockReceipt struct {
	NewBalance int64
}

// SpendReceipt reports the balances around a committed generic debit.
type SpendReceipt struct {
	PreviousBalance int64
	NewBalance      int64
}

// ContentFilter narrows catalog listings. Empty fields match everything.
type ContentFilter struct {
	Subject     string
	Topic       string
	ContentType domain.ContentType
}

// Store defines persistence for users, content, and the token ledger.
// Balances are mutated only through ApplyUnlock and ApplySpend; both are
// all-or-nothing with respect to every row they touch.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByExternalID(externalID string) (domain.User, bool, error)

	// content catalog
	SaveContent(domain.Content) error
	GetContent(id string) (domain.Content, bool, error)
	ListContent(f ContentFilter) ([]domain.Content, error)

	// ledger
	HasPurchase(userID, contentID string) (bool, error)
	ListPurchasesByUser(userID string) ([]domain.Purchase, error)
	ListEarningsByCreator(creatorID string) ([]domain.Earning, error)
	ApplyUnlock(m UnlockMutation) (UnlockReceipt, error)
	ApplySpend(userID string, amount int64) (SpendReceipt, error)

	// exam mode
	SaveExamInput(domain.ExamInput) error
	GetExamInput(id string) (domain.ExamInput, bool, error)
	SavePrediction(domain.ExamPrediction) error
	ListPredictionsByUser(userID string) ([]domain.ExamPrediction, error)
}
