package registry

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrAllocationNotSet   = errors.New("allocation preference not set")
	ErrAllocationEmpty    = errors.New("allocation must contain at least one entry")
	ErrTooManyAssets      = errors.New("allocation exceeds max supported assets")
	ErrDuplicateAsset     = errors.New("allocation lists the same asset twice")
	ErrZeroFraction       = errors.New("allocation fraction must be positive")
	ErrFractionSum        = errors.New("allocation fractions must sum to exactly 100%")
	ErrUnknownAllocAsset  = errors.New("allocation references an asset outside the allow-list")
	ErrNilAllocationStore = errors.New("allocation store requires an asset config")
)

// AllocationStore keeps each user's declared target allocation. A set call
// replaces the whole preference atomically; there is no partial update. The
// preference outlives the portfolio so a user can withdraw fully and later
// redeposit against the same target split.
type AllocationStore struct {
	mu     sync.RWMutex
	assets *AssetConfig
	prefs  map[string][]types.AllocationEntry
}

func NewAllocationStore(assets *AssetConfig) (*AllocationStore, error) {
	if assets == nil {
		return nil, ErrNilAllocationStore
	}
	return &AllocationStore{
		assets: assets,
		prefs:  make(map[string][]types.AllocationEntry),
	}, nil
}

// Set validates and stores a user's target allocation. Entries are resolved
// against the allow-list so stored entries always carry full asset
// descriptors; fractions must be positive and sum to exactly types.Scale.
func (s *AllocationStore) Set(user string, entries []types.AllocationEntry) error {
	if user == "" {
		return fmt.Errorf("user address cannot be empty")
	}
	if len(entries) == 0 {
		return ErrAllocationEmpty
	}
	if len(entries) > types.MaxPortfolioAssets {
		return fmt.Errorf("%w: %d entries, max %d", ErrTooManyAssets, len(entries), types.MaxPortfolioAssets)
	}

	resolved := make([]types.AllocationEntry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	total := sdkmath.ZeroInt()
	for _, e := range entries {
		asset, ok := s.assets.Get(e.Asset.Denom)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAllocAsset, e.Asset.Denom)
		}
		if seen[asset.Denom] {
			return fmt.Errorf("%w: %s", ErrDuplicateAsset, asset.Denom)
		}
		seen[asset.Denom] = true
		if e.Fraction.IsNil() || !e.Fraction.IsPositive() {
			return fmt.Errorf("%w: %s for %s", ErrZeroFraction, e.Fraction, asset.Denom)
		}
		total = total.Add(e.Fraction)
		resolved = append(resolved, types.AllocationEntry{Asset: asset, Fraction: e.Fraction})
	}
	if !total.Equal(types.Scale) {
		return fmt.Errorf("%w: got %s, want %s", ErrFractionSum, total, types.Scale)
	}

	s.mu.Lock()
	s.prefs[user] = resolved
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the user's allocation entries.
func (s *AllocationStore) Get(user string) ([]types.AllocationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.prefs[user]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAllocationNotSet, user)
	}
	out := make([]types.AllocationEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Has reports whether the user has declared an allocation.
func (s *AllocationStore) Has(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.prefs[user]
	return ok
}
