package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"solana-signal-trader/internal/domain"
	"solana-signal-trader/internal/execution"
	"solana-signal-trader/internal/position"
)

// ErrNoPrice is returned when the quote yields no usable price.
var ErrNoPrice = errors.New("no price data")

// Quoter prices a swap without executing it.
type Quoter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*execution.Quote, error)
}

// Pricer converts a small sell quote of the held token into a unit price.
type Pricer struct {
	quoter          Quoter
	fundingMint     string
	fundingDecimals int
	referenceTokens uint64
	slippageBps     int
}

// NewPricer creates a Pricer quoting referenceTokens whole tokens into fundingMint.
func NewPricer(q Quoter, fundingMint string, fundingDecimals int, referenceTokens uint64, slippageBps int) *Pricer {
	if referenceTokens == 0 {
		referenceTokens = DefaultReferenceTokens
	}
	return &Pricer{
		quoter:          q,
		fundingMint:     fundingMint,
		fundingDecimals: fundingDecimals,
		referenceTokens: referenceTokens,
		slippageBps:     slippageBps,
	}
}

// ReferenceAmount returns the raw amount quoted for a token with the given decimals.
func (p *Pricer) ReferenceAmount(decimals int) uint64 {
	amount := p.referenceTokens
	for i := 0; i < decimals; i++ {
		if amount > math.MaxUint64/10 {
			return math.MaxUint64
		}
		amount *= 10
	}
	return amount
}

// Price returns funding units per whole token of the held asset.
func (p *Pricer) Price(ctx context.Context, pos *domain.Position) (float64, error) {
	ref := p.ReferenceAmount(pos.Decimals)

	q, err := p.quoter.Quote(ctx, pos.TokenID, p.fundingMint, ref, p.slippageBps)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	if q == nil || q.OutAmount == 0 {
		return 0, ErrNoPrice
	}

	return position.FillPrice(q.OutAmount, p.fundingDecimals, ref, pos.Decimals), nil
}
