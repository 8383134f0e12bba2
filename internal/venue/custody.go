package venue

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrInsufficientFunds = errors.New("holder balance insufficient")
	ErrZeroTransfer      = errors.New("transfer amount must be positive")
)

// MemoryCustody is an in-memory custody collaborator for sim mode and tests.
// It tracks external token balances per holder, native balances, and issued
// approvals. The vault address is the custody account funds move in and out
// of.
type MemoryCustody struct {
	mu        sync.Mutex
	vault     string
	wrapped   types.Asset
	balances  map[string]map[string]sdkmath.Int // denom -> holder -> balance
	native    map[string]sdkmath.Int            // holder -> native balance
	approvals map[string]map[string]bool        // denom -> spender -> approved
}

func NewMemoryCustody(vault string, wrapped types.Asset) (*MemoryCustody, error) {
	if vault == "" {
		return nil, fmt.Errorf("custody vault address cannot be empty")
	}
	if err := wrapped.Validate(); err != nil {
		return nil, err
	}
	return &MemoryCustody{
		vault:     vault,
		wrapped:   wrapped,
		balances:  make(map[string]map[string]sdkmath.Int),
		native:    make(map[string]sdkmath.Int),
		approvals: make(map[string]map[string]bool),
	}, nil
}

// Fund credits a holder with an external token balance. Sim/test setup only.
func (c *MemoryCustody) Fund(asset types.Asset, holder string, amount sdkmath.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(asset.Denom, holder, amount)
}

// FundNative credits a holder with native currency. Sim/test setup only.
func (c *MemoryCustody) FundNative(holder string, amount sdkmath.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.native[holder] = c.nativeOf(holder).Add(amount)
}

// BalanceOf returns holder's external balance of denom.
func (c *MemoryCustody) BalanceOf(denom, holder string) sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceOf(denom, holder)
}

// WrapNative burns the user's native balance and credits the vault with the
// wrapped asset 1:1.
func (c *MemoryCustody) WrapNative(user string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrZeroTransfer, amount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	have := c.nativeOf(user)
	if have.LT(amount) {
		return fmt.Errorf("%w: %s has %s native, wrapping %s", ErrInsufficientFunds, user, have, amount)
	}
	c.native[user] = have.Sub(amount)
	c.credit(c.wrapped.Denom, c.vault, amount)
	return nil
}

func (c *MemoryCustody) TransferIn(asset types.Asset, from string, amount sdkmath.Int) error {
	return c.transfer(asset.Denom, from, c.vault, amount)
}

func (c *MemoryCustody) TransferOut(asset types.Asset, to string, amount sdkmath.Int) error {
	return c.transfer(asset.Denom, c.vault, to, amount)
}

// SettleSwap moves a realized swap through custody: the consumed leg goes
// from the vault to the pool account and the produced leg comes back. The
// pool account must be funded to mirror the venue's reserves.
func (c *MemoryCustody) SettleSwap(from types.Asset, consumed sdkmath.Int, to types.Asset, produced sdkmath.Int, poolAddr string) error {
	if err := c.transfer(from.Denom, c.vault, poolAddr, consumed); err != nil {
		return fmt.Errorf("settling consumed leg: %w", err)
	}
	if err := c.transfer(to.Denom, poolAddr, c.vault, produced); err != nil {
		return fmt.Errorf("settling produced leg: %w", err)
	}
	return nil
}

func (c *MemoryCustody) ApproveUnlimited(asset types.Asset, spender string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.approvals[asset.Denom] == nil {
		c.approvals[asset.Denom] = make(map[string]bool)
	}
	c.approvals[asset.Denom][spender] = true
	return nil
}

func (c *MemoryCustody) RevokeApproval(asset types.Asset, spender string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.approvals[asset.Denom] != nil {
		delete(c.approvals[asset.Denom], spender)
	}
	return nil
}

// Approved reports whether spender holds an allowance over denom.
func (c *MemoryCustody) Approved(denom, spender string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approvals[denom][spender]
}

func (c *MemoryCustody) transfer(denom, from, to string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrZeroTransfer, amount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	have := c.balanceOf(denom, from)
	if have.LT(amount) {
		return fmt.Errorf("%w: %s has %s %s, transferring %s", ErrInsufficientFunds, from, have, denom, amount)
	}
	c.balances[denom][from] = have.Sub(amount)
	c.credit(denom, to, amount)
	return nil
}

func (c *MemoryCustody) balanceOf(denom, holder string) sdkmath.Int {
	if c.balances[denom] == nil {
		return sdkmath.ZeroInt()
	}
	bal, ok := c.balances[denom][holder]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return bal
}

func (c *MemoryCustody) nativeOf(holder string) sdkmath.Int {
	bal, ok := c.native[holder]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return bal
}

func (c *MemoryCustody) credit(denom, holder string, amount sdkmath.Int) {
	if c.balances[denom] == nil {
		c.balances[denom] = make(map[string]sdkmath.Int)
	}
	cur, ok := c.balances[denom][holder]
	if !ok {
		cur = sdkmath.ZeroInt()
	}
	c.balances[denom][holder] = cur.Add(amount)
}
