/*

Per-user portfolio bookkeeping. The store is the permanent record of holdings:
seeded from the allocation preference on first deposit, credited on later
deposits, mutated by realized swap amounts, and purged entirely on withdrawal.

*/

package ledger

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrNoPortfolio         = errors.New("user has no portfolio")
	ErrPortfolioExists     = errors.New("user already has a portfolio")
	ErrAssetNotInPortfolio = errors.New("asset not found in portfolio")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("portfolio balance insufficient")
)

// Store holds every user's portfolio.
type Store struct {
	mu         sync.RWMutex
	portfolios map[string]types.Portfolio
}

func NewStore() *Store {
	return &Store{portfolios: make(map[string]types.Portfolio)}
}

// Seed creates a portfolio from the user's allocation entries, crediting the
// deposited asset's slot with amount and every other slot with zero. The
// entry order becomes the portfolio's fixed holding order.
func (s *Store) Seed(user string, entries []types.AllocationEntry, depositDenom string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrZeroAmount, amount)
	}

	holdings := make([]types.Holding, len(entries))
	credited := false
	for i, e := range entries {
		bal := sdkmath.ZeroInt()
		if e.Asset.Denom == depositDenom {
			bal = amount
			credited = true
		}
		holdings[i] = types.Holding{Asset: e.Asset, Balance: bal}
	}
	if !credited {
		return fmt.Errorf("%w: %s not in allocation preference", ErrAssetNotInPortfolio, depositDenom)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[user]; ok {
		return fmt.Errorf("%w: %s", ErrPortfolioExists, user)
	}
	s.portfolios[user] = types.Portfolio{Owner: user, Holdings: holdings}
	return nil
}

// Credit adds amount to the matching holding of an existing portfolio. A
// deposit of an asset the portfolio does not track indicates an
// allocation/portfolio mismatch and is rejected.
func (s *Store) Credit(user, denom string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrZeroAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[user]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPortfolio, user)
	}
	i := p.IndexOf(denom)
	if i < 0 {
		return fmt.Errorf("%w: %s for user %s", ErrAssetNotInPortfolio, denom, user)
	}
	p.Holdings[i].Balance = p.Holdings[i].Balance.Add(amount)
	s.portfolios[user] = p
	return nil
}

// ApplySwap decrements the source holding by the amount the venue actually
// consumed and increments the destination by the amount it actually produced.
// Estimated amounts never touch the ledger; only realized ones do.
func (s *Store) ApplySwap(user, fromDenom, toDenom string, consumed, produced sdkmath.Int) error {
	if consumed.IsNil() || produced.IsNil() {
		return fmt.Errorf("%w: nil swap amount", ErrZeroAmount)
	}
	if consumed.IsNegative() || produced.IsNegative() {
		return fmt.Errorf("%w: consumed %s, produced %s", ErrZeroAmount, consumed, produced)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[user]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPortfolio, user)
	}
	from := p.IndexOf(fromDenom)
	to := p.IndexOf(toDenom)
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrAssetNotInPortfolio, fromDenom)
	}
	if to < 0 {
		return fmt.Errorf("%w: %s", ErrAssetNotInPortfolio, toDenom)
	}
	if p.Holdings[from].Balance.LT(consumed) {
		return fmt.Errorf("%w: have %s %s, swap consumed %s",
			ErrInsufficientBalance, p.Holdings[from].Balance, fromDenom, consumed)
	}
	p.Holdings[from].Balance = p.Holdings[from].Balance.Sub(consumed)
	p.Holdings[to].Balance = p.Holdings[to].Balance.Add(produced)
	s.portfolios[user] = p
	return nil
}

// Get returns a deep copy of the user's portfolio.
func (s *Store) Get(user string) (types.Portfolio, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[user]
	if !ok {
		return types.Portfolio{}, false
	}
	return p.Clone(), true
}

// Purge deletes the user's record entirely, returning the final holdings so
// the caller can transfer them out. Purging an absent user returns false.
func (s *Store) Purge(user string) ([]types.Holding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[user]
	if !ok {
		return nil, false
	}
	delete(s.portfolios, user)
	return p.Clone().Holdings, true
}

// Restore reinstates a previously captured portfolio, replacing whatever is
// stored. Used to roll internal state back when an operation fails after
// mutating the ledger.
func (s *Store) Restore(p types.Portfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.Owner] = p.Clone()
}

// Delete removes the user's record without returning holdings.
func (s *Store) Delete(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portfolios, user)
}

// Snapshot deep-copies the whole store, for all-or-nothing sweep semantics.
func (s *Store) Snapshot() map[string]types.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]types.Portfolio, len(s.portfolios))
	for user, p := range s.portfolios {
		snap[user] = p.Clone()
	}
	return snap
}

// RestoreAll replaces the store contents with a snapshot.
func (s *Store) RestoreAll(snap map[string]types.Portfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios = make(map[string]types.Portfolio, len(snap))
	for user, p := range snap {
		s.portfolios[user] = p.Clone()
	}
}
