package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"studyvault/internal/store"
	"studyvault/internal/util"
	"studyvault/pkg/domain"
	"studyvault/pkg/pricing"
)

const defaultGrantTTL = 2 * time.Hour

// GrantIssuer turns a committed purchase into a time-limited retrieval
// URL. Implemented by the object-storage client; failures after commit
// are non-fatal because the URL is derived state.
type GrantIssuer interface {
	ContentURL(ctx context.Context, c domain.Content, ttl time.Duration) (string, error)
}

// Config wires the ledger service dependencies.
type Config struct {
	Store    store.Store
	Grants   GrantIssuer
	Policy   pricing.Policy
	GrantTTL time.Duration
}

// Service coordinates every balance-changing operation. No other code
// path writes token balances.
type Service struct {
	store    store.Store
	grants   GrantIssuer
	policy   pricing.Policy
	grantTTL time.Duration
}

// New constructs the service, defaulting to the platform rates.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger: store required")
	}
	policy := cfg.Policy
	if policy == (pricing.Policy{}) {
		policy = pricing.DefaultPolicy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	ttl := cfg.GrantTTL
	if ttl <= 0 {
		ttl = defaultGrantTTL
	}
	return &Service{
		store:    cfg.Store,
		grants:   cfg.Grants,
		policy:   policy,
		grantTTL: ttl,
	}, nil
}

// HasUnlocked reports whether the user may access the content: either a
// purchase row exists or the user is the content's creator. Creator
// access is the one capability rule that bypasses the purchase check.
func (s *Service) HasUnlocked(userID, contentID string) (bool, error) {
	content, ok, err := s.store.GetContent(contentID)
	if err != nil {
		return false, fmt.Errorf("get content: %w", err)
	}
	if !ok {
		return false, ErrContentNotFound
	}
	if content.CreatorID == userID {
		return true, nil
	}
	has, err := s.store.HasPurchase(userID, contentID)
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return has, nil
}

// Balance returns the user's current token balance.
func (s *Service) Balance(userID string) (int64, error) {
	user, ok, err := s.store.GetUserByID(userID)
	if err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return 0, ErrUserNotFound
	}
	return user.TokenBalance, nil
}

// Unlock purchases content for the user. The mutation itself is atomic
// inside the store: the precondition checks here are a fast path, and
// both the balance and the (user, content) uniqueness are re-validated
// at commit time to close the read-then-write races.
//
// Unlock is deliberately not idempotent on retry after success: a second
// call fails with ErrAlreadyPurchased instead of charging twice.
func (s *Service) Unlock(ctx context.Context, userID, contentID string) (domain.UnlockResult, error) {
	content, ok, err := s.store.GetContent(contentID)
	if err != nil {
		return domain.UnlockResult{}, fmt.Errorf("get content: %w", err)
	}
	if !ok {
		return domain.UnlockResult{}, ErrContentNotFound
	}

	unlocked, err := s.HasUnlocked(userID, contentID)
	if err != nil {
		return domain.UnlockResult{}, err
	}
	if unlocked {
		return domain.UnlockResult{}, ErrAlreadyPurchased
	}

	balance, err := s.Balance(userID)
	if err != nil {
		return domain.UnlockResult{}, err
	}
	if balance < content.PriceTokens {
		return domain.UnlockResult{}, &store.InsufficientFundsError{
			Required:  content.PriceTokens,
			Available: balance,
		}
	}

	split, err := pricing.Split(content.PriceTokens, s.policy)
	if err != nil {
		return domain.UnlockResult{}, fmt.Errorf("split price: %w", err)
	}

	receipt, err := s.store.ApplyUnlock(store.UnlockMutation{
		BuyerID:    userID,
		CreatorID:  content.CreatorID,
		ContentID:  content.ID,
		Price:      content.PriceTokens,
		Split:      split,
		PurchaseID: util.NewID(),
		EarningID:  util.NewID(),
		Now:        time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePurchase) {
			return domain.UnlockResult{}, ErrAlreadyPurchased
		}
		if errors.Is(err, store.ErrUserNotFound) {
			return domain.UnlockResult{}, ErrUserNotFound
		}
		return domain.UnlockResult{}, err
	}

	result := domain.UnlockResult{
		Content:      content,
		NewBalance:   receipt.NewBalance,
		Distribution: split,
	}

	// The ledger is committed; a grant failure only costs the caller a
	// refetch of the content detail.
	if s.grants != nil {
		url, err := s.grants.ContentURL(ctx, content, s.grantTTL)
		if err != nil {
			slog.Warn("access grant failed after committed unlock",
				"content_id", content.ID, "user_id", userID, "err", err)
		} else {
			result.AccessURL = url
		}
	}
	return result, nil
}

// Spend debits tokens for non-content expenditure. No purchase or
// earning rows are created.
func (s *Service) Spend(userID string, amount int64, reason string) (domain.SpendResult, error) {
	if amount <= 0 {
		return domain.SpendResult{}, ErrInvalidAmount
	}
	if _, err := s.Balance(userID); err != nil {
		return domain.SpendResult{}, err
	}
	receipt, err := s.store.ApplySpend(userID, amount)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return domain.SpendResult{}, ErrUserNotFound
		}
		return domain.SpendResult{}, err
	}
	if reason == "" {
		reason = "General purchase"
	}
	return domain.SpendResult{
		PreviousBalance: receipt.PreviousBalance,
		NewBalance:      receipt.NewBalance,
		AmountSpent:     amount,
		Reason:          reason,
	}, nil
}

// Transactions projects the wallet history for the user: purchases for
// students, earnings for creators.
func (s *Service) Transactions(user domain.User) ([]domain.Transaction, error) {
	switch user.Role {
	case domain.RoleCreator:
		earnings, err := s.store.ListEarningsByCreator(user.ID)
		if err != nil {
			return nil, fmt.Errorf("list earnings: %w", err)
		}
		txs := make([]domain.Transaction, 0, len(earnings))
		for _, e := range earnings {
			txs = append(txs, domain.Transaction{
				ID:           e.ID,
				Type:         domain.TxEarning,
				Amount:       e.TokensEarned,
				ContentID:    e.ContentID,
				ContentTitle: s.contentTitle(e.ContentID),
				Date:         e.CreatedAt,
			})
		}
		return txs, nil
	default:
		purchases, err := s.store.ListPurchasesByUser(user.ID)
		if err != nil {
			return nil, fmt.Errorf("list purchases: %w", err)
		}
		txs := make([]domain.Transaction, 0, len(purchases))
		for _, p := range purchases {
			txs = append(txs, domain.Transaction{
				ID:           p.ID,
				Type:         domain.TxPurchase,
				Amount:       -p.TokensSpent,
				ContentID:    p.ContentID,
				ContentTitle: s.contentTitle(p.ContentID),
				Date:         p.CreatedAt,
			})
		}
		return txs, nil
	}
}

func (s *Service) contentTitle(contentID string) string {
	c, ok, err := s.store.GetContent(contentID)
	if err != nil || !ok {
		return ""
	}
	return c.Title
}
