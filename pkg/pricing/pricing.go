package pricing

import (
	"errors"
	"fmt"

	"studyvault/pkg/domain"
)

const bpsDenominator = 10000

// ErrInvalidPrice rejects non-positive prices before any split is computed.
var ErrInvalidPrice = errors.New("price must be a positive token amount")

// Policy holds the revenue-share rates in basis points so that every
// share is computed with integer floor arithmetic. The AI pool absorbs
// the rounding remainder, which keeps the three shares summing exactly
// to the price.
type Policy struct {
	CreatorShareBps  int64
	PlatformShareBps int64
}

// DefaultPolicy mirrors the platform rates: 60% creator, 15% platform,
// remainder (25% plus rounding) to the AI pool.
var DefaultPolicy = Policy{
	CreatorShareBps:  6000,
	PlatformShareBps: 1500,
}

// Validate checks the rates describe a well-formed split.
func (p Policy) Validate() error {
	if p.CreatorShareBps < 0 || p.PlatformShareBps < 0 {
		return fmt.Errorf("pricing: negative share rate")
	}
	if p.CreatorShareBps+p.PlatformShareBps > bpsDenominator {
		return fmt.Errorf("pricing: creator and platform shares exceed 100%%")
	}
	return nil
}

// Split computes the three-way distribution of price under the policy.
// Pure and deterministic; safe to call any number of times.
func Split(price int64, p Policy) (domain.Distribution, error) {
	if price <= 0 {
		return domain.Distribution{}, ErrInvalidPrice
	}
	if err := p.Validate(); err != nil {
		return domain.Distribution{}, err
	}
	creator := price * p.CreatorShareBps / bpsDenominator
	platform := price * p.PlatformShareBps / bpsDenominator
	return domain.Distribution{
		Creator:  creator,
		Platform: platform,
		AIPool:   price - creator - platform,
	}, nil
}
