/*

Core asset and allocation types shared by every package. The engine manages
exactly two assets: one priced by an external oracle and one pegged 1:1 to USD.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Scale is the canonical fixed-point unit: 10^18 represents 100% for
// allocation fractions and one whole dollar for 18-decimal USD values.
var Scale = sdkmath.NewIntWithDecimal(1, 18)

// MaxPortfolioAssets is the number of assets a portfolio may hold.
const MaxPortfolioAssets = 2

// AssetClass tags how an asset's USD value is derived. Classification happens
// once, when an asset enters the allow-list, so value conversion and swap
// direction logic never compare raw identifiers.
type AssetClass int

const (
	// AssetVolatile is priced by the oracle feed.
	AssetVolatile AssetClass = iota
	// AssetPegged is valued 1:1 with USD, scaled only by its decimals.
	AssetPegged
)

func (c AssetClass) String() string {
	switch c {
	case AssetVolatile:
		return "volatile"
	case AssetPegged:
		return "pegged"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Asset describes one supported token.
type Asset struct {
	Denom    string     `json:"denom"`    // e.g., "weth"
	Symbol   string     `json:"symbol"`   // e.g., "WETH"
	Decimals uint8      `json:"decimals"` // native precision, e.g. 18
	Class    AssetClass `json:"class"`
}

// Validate checks the descriptor is well formed.
func (a Asset) Validate() error {
	if a.Denom == "" {
		return fmt.Errorf("asset denom cannot be empty")
	}
	if a.Decimals > 18 {
		return fmt.Errorf("asset %s: decimals %d exceed 18", a.Denom, a.Decimals)
	}
	if a.Class != AssetVolatile && a.Class != AssetPegged {
		return fmt.Errorf("asset %s: unknown class %d", a.Denom, int(a.Class))
	}
	return nil
}

// AllocationEntry is one leg of a user's target allocation. Fraction is
// expressed against Scale, so 5*10^17 is 50%.
type AllocationEntry struct {
	Asset    Asset       `json:"asset"`
	Fraction sdkmath.Int `json:"fraction"`
}
