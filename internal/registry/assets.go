/*

Owner-gated supported-asset allow-list. This is the explicit configuration
object behind every user operation: an asset must be allowed here before it can
appear in an allocation preference or a deposit.

*/

package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrNotOwner        = errors.New("caller is not the owner")
	ErrAssetNotAllowed = errors.New("asset is not on the supported allow-list")
	ErrAssetExists     = errors.New("asset is already allowed")
	ErrMaxAssetsFixed  = errors.New("max supported asset count is fixed at two")
)

// AssetConfig is the global allow-list. Mutations are owner-gated; reads are
// open to every component.
type AssetConfig struct {
	mu      sync.RWMutex
	owner   string
	allowed map[string]types.Asset
}

func NewAssetConfig(owner string) (*AssetConfig, error) {
	if owner == "" {
		return nil, fmt.Errorf("asset config owner cannot be empty")
	}
	return &AssetConfig{
		owner:   owner,
		allowed: make(map[string]types.Asset),
	}, nil
}

// Allow adds an asset to the allow-list. Re-allowing a known denom is an
// error so a descriptor cannot be silently replaced under live portfolios.
func (c *AssetConfig) Allow(caller string, asset types.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	if _, ok := c.allowed[asset.Denom]; ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, asset.Denom)
	}
	c.allowed[asset.Denom] = asset
	return nil
}

// Revoke removes an asset from the allow-list. Revoking an unknown denom is
// an error, not a no-op, so a typo cannot pass silently.
func (c *AssetConfig) Revoke(caller, denom string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	if _, ok := c.allowed[denom]; !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotAllowed, denom)
	}
	delete(c.allowed, denom)
	return nil
}

// SetMaxAssets exists for interface completeness: the engine supports exactly
// two assets and any other value is rejected.
func (c *AssetConfig) SetMaxAssets(caller string, n int) error {
	c.mu.RLock()
	owner := c.owner
	c.mu.RUnlock()
	if caller != owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	if n != types.MaxPortfolioAssets {
		return fmt.Errorf("%w: got %d", ErrMaxAssetsFixed, n)
	}
	return nil
}

// Get resolves a denom to its full descriptor.
func (c *AssetConfig) Get(denom string) (types.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	asset, ok := c.allowed[denom]
	return asset, ok
}

// IsAllowed reports whether denom is on the allow-list.
func (c *AssetConfig) IsAllowed(denom string) bool {
	_, ok := c.Get(denom)
	return ok
}

// List returns every allowed asset. Order is unspecified.
func (c *AssetConfig) List() []types.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Asset, 0, len(c.allowed))
	for _, a := range c.allowed {
		out = append(out, a)
	}
	return out
}
