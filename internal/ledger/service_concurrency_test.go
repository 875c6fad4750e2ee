package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"studyvault/internal/store"
)

// A buyer whose balance covers exactly one of N items must end up with
// exactly one purchase no matter how the N unlocks interleave.
func TestConcurrentUnlocksSingleSuccess(t *testing.T) {
	const n = 8
	prices := make([]int64, n)
	for i := range prices {
		prices[i] = 15
	}
	svc, m, _ := newTestService(t, 15, prices...)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Unlock(context.Background(), "buyer", fmt.Sprintf("content-%d", i+1))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var insufficient *store.InsufficientFundsError
		if !errors.As(err, &insufficient) && !errors.Is(err, ErrAlreadyPurchased) {
			t.Fatalf("unexpected failure kind: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("%d unlocks succeeded, want exactly 1", successes)
	}

	buyer, _, _ := m.GetUserByID("buyer")
	if buyer.TokenBalance != 0 {
		t.Fatalf("final buyer balance = %d, want 0", buyer.TokenBalance)
	}
	creator, _, _ := m.GetUserByID("creator")
	if creator.TokenBalance != 9 {
		t.Fatalf("final creator balance = %d, want 9", creator.TokenBalance)
	}
}

// Repeated concurrent unlocks of one item must commit at most once.
func TestConcurrentUnlocksSamePairAtMostOnce(t *testing.T) {
	svc, m, _ := newTestService(t, 100, 15)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Unlock(context.Background(), "buyer", "content-1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrAlreadyPurchased) {
			t.Fatalf("unexpected failure kind: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("%d unlocks succeeded for one pair, want 1", successes)
	}

	buyer, _, _ := m.GetUserByID("buyer")
	if buyer.TokenBalance != 85 {
		t.Fatalf("balance = %d, want 85 (debited once)", buyer.TokenBalance)
	}
	earnings, _ := m.ListEarningsByCreator("creator")
	if len(earnings) != 1 {
		t.Fatalf("%d earnings recorded, want 1", len(earnings))
	}
}
