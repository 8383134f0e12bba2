/*

Constant-product AMM simulator. It stands in for the external swap venue in
sim mode and in tests, honoring the same minimum-output and deadline contract
a live router would.

*/

package venue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/logger"
	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrUnknownPair          = errors.New("pair not traded by this pool")
	ErrInsufficientOutput   = errors.New("swap output below minimum")
	ErrDeadlineExceeded     = errors.New("swap deadline exceeded")
	ErrZeroSwapInput        = errors.New("swap input must be positive")
	ErrEmptyRecipient       = errors.New("swap recipient cannot be empty")
	ErrInvalidPoolLiquidity = errors.New("pool reserves must be positive")
)

// Deadlines carry second granularity, matching block timestamps: a swap with
// deadline d is accepted until a full second past d.
const deadlineGranularity = time.Second

// AMMPool is an x*y=k pool over exactly one asset pair.
type AMMPool struct {
	mu       sync.Mutex
	assetA   types.Asset
	assetB   types.Asset
	reserveA sdkmath.Int
	reserveB sdkmath.Int
}

func NewAMMPool(a, b types.Asset, reserveA, reserveB sdkmath.Int) (*AMMPool, error) {
	if a.Denom == b.Denom {
		return nil, fmt.Errorf("pool assets must differ, got %s twice", a.Denom)
	}
	if reserveA.IsNil() || reserveB.IsNil() || !reserveA.IsPositive() || !reserveB.IsPositive() {
		return nil, fmt.Errorf("%w: %s / %s", ErrInvalidPoolLiquidity, reserveA, reserveB)
	}
	return &AMMPool{assetA: a, assetB: b, reserveA: reserveA, reserveB: reserveB}, nil
}

// SwapExact trades amountIn of from for to against the pool reserves. The
// produced amount is reserveOut*in/(reserveIn+in), truncating; if it falls
// below minOut the swap fails and the reserves are untouched.
func (p *AMMPool) SwapExact(
	amountIn, minOut sdkmath.Int,
	from, to types.Asset,
	recipient string,
	deadline time.Time,
) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return zero, zero, fmt.Errorf("%w: %s", ErrZeroSwapInput, amountIn)
	}
	if recipient == "" {
		return zero, zero, ErrEmptyRecipient
	}
	if !deadline.IsZero() && time.Since(deadline) > deadlineGranularity {
		return zero, zero, fmt.Errorf("%w: deadline %s", ErrDeadlineExceeded, deadline.Format(time.RFC3339))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var reserveIn, reserveOut *sdkmath.Int
	switch {
	case from.Denom == p.assetA.Denom && to.Denom == p.assetB.Denom:
		reserveIn, reserveOut = &p.reserveA, &p.reserveB
	case from.Denom == p.assetB.Denom && to.Denom == p.assetA.Denom:
		reserveIn, reserveOut = &p.reserveB, &p.reserveA
	default:
		return zero, zero, fmt.Errorf("%w: %s -> %s", ErrUnknownPair, from.Denom, to.Denom)
	}

	produced := reserveOut.Mul(amountIn).Quo(reserveIn.Add(amountIn))
	if !minOut.IsNil() && produced.LT(minOut) {
		return zero, zero, fmt.Errorf("%w: produced %s %s, minimum %s",
			ErrInsufficientOutput, produced, to.Denom, minOut)
	}

	*reserveIn = reserveIn.Add(amountIn)
	*reserveOut = reserveOut.Sub(produced)

	ammLogger := logger.GetForComponent("amm_pool")
	ammLogger.Debug().
		Str("from", from.Denom).
		Str("to", to.Denom).
		Str("amountIn", amountIn.String()).
		Str("amountOut", produced.String()).
		Msg("Swap executed")

	return amountIn, produced, nil
}

// Reserves returns the current reserves, for inspection.
func (p *AMMPool) Reserves() (sdkmath.Int, sdkmath.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveA, p.reserveB
}
