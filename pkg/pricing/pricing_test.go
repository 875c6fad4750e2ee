package pricing

import (
	"errors"
	"testing"
)

func TestSplitDefaultRates(t *testing.T) {
	cases := []struct {
		price                     int64
		creator, platform, aiPool int64
	}{
		{price: 15, creator: 9, platform: 2, aiPool: 4},
		{price: 7, creator: 4, platform: 1, aiPool: 2},
		{price: 1, creator: 0, platform: 0, aiPool: 1},
		{price: 100, creator: 60, platform: 15, aiPool: 25},
		{price: 999, creator: 599, platform: 149, aiPool: 251},
	}
	for _, tc := range cases {
		d, err := Split(tc.price, DefaultPolicy)
		if err != nil {
			t.Fatalf("Split(%d): %v", tc.price, err)
		}
		if d.Creator != tc.creator || d.Platform != tc.platform || d.AIPool != tc.aiPool {
			t.Fatalf("Split(%d) = %+v, want {%d %d %d}", tc.price, d, tc.creator, tc.platform, tc.aiPool)
		}
	}
}

func TestSplitConservation(t *testing.T) {
	for price := int64(1); price <= 5000; price++ {
		d, err := Split(price, DefaultPolicy)
		if err != nil {
			t.Fatalf("Split(%d): %v", price, err)
		}
		if sum := d.Creator + d.Platform + d.AIPool; sum != price {
			t.Fatalf("Split(%d): shares sum to %d", price, sum)
		}
		if d.Creator < 0 || d.Platform < 0 || d.AIPool < 0 {
			t.Fatalf("Split(%d): negative share %+v", price, d)
		}
	}
}

func TestSplitRejectsNonPositivePrice(t *testing.T) {
	for _, price := range []int64{0, -1, -100} {
		if _, err := Split(price, DefaultPolicy); !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("Split(%d) err = %v, want ErrInvalidPrice", price, err)
		}
	}
}

func TestSplitRejectsBadPolicy(t *testing.T) {
	bad := []Policy{
		{CreatorShareBps: -1, PlatformShareBps: 1500},
		{CreatorShareBps: 6000, PlatformShareBps: -1},
		{CreatorShareBps: 9000, PlatformShareBps: 2000},
	}
	for _, p := range bad {
		if _, err := Split(10, p); err == nil {
			t.Fatalf("Split with policy %+v: expected error", p)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	first, err := Split(37, DefaultPolicy)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Split(37, DefaultPolicy)
		if err != nil {
			t.Fatalf("Split: %v", err)
		}
		if again != first {
			t.Fatalf("Split not deterministic: %+v vs %+v", again, first)
		}
	}
}
