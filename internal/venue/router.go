package venue

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/types"
)

// SettlingRouter executes swaps against an inner venue and settles the
// realized amounts through custody, so vault balances track the ledger after
// every rebalance. The pool account it settles against must be funded to
// mirror the venue's reserves.
type SettlingRouter struct {
	inner    SwapRouter
	custody  *MemoryCustody
	poolAddr string
}

func NewSettlingRouter(inner SwapRouter, custody *MemoryCustody, poolAddr string) (*SettlingRouter, error) {
	if inner == nil {
		return nil, fmt.Errorf("settling router needs an inner venue")
	}
	if custody == nil {
		return nil, fmt.Errorf("settling router needs a custody collaborator")
	}
	if poolAddr == "" {
		return nil, fmt.Errorf("settling router pool address cannot be empty")
	}
	return &SettlingRouter{inner: inner, custody: custody, poolAddr: poolAddr}, nil
}

func (r *SettlingRouter) SwapExact(
	amountIn, minOut sdkmath.Int,
	from, to types.Asset,
	recipient string,
	deadline time.Time,
) (sdkmath.Int, sdkmath.Int, error) {
	consumed, produced, err := r.inner.SwapExact(amountIn, minOut, from, to, recipient, deadline)
	if err != nil {
		return consumed, produced, err
	}
	if err := r.custody.SettleSwap(from, consumed, to, produced, r.poolAddr); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("swap settlement failed: %w", err)
	}
	return consumed, produced, nil
}
