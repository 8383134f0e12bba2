/*

Fixed-point value conversion between native asset balances and the canonical
18-decimal USD representation. All divisions truncate toward zero; every USD
value in the codebase comes through this package so the rounding rule is
uniform.

*/

package pricing

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrUnsupportedAsset  = errors.New("asset class has no value conversion")
	ErrNegativeBalance   = errors.New("balance cannot be negative")
	ErrNegativeUsdValue  = errors.New("usd value cannot be negative")
	ErrNilAmount         = errors.New("amount is nil")
	ErrPricePrecision    = errors.New("oracle price decimals exceed 18")
	ErrZeroScaledPrice   = errors.New("oracle price truncates to zero at 18 decimals")
	ErrConverterNoOracle = errors.New("converter requires an oracle")
)

// Converter turns asset balances into 18-decimal USD values and back. The
// oracle is read fresh on every volatile conversion; nothing is cached.
type Converter struct {
	oracle Oracle
}

func NewConverter(oracle Oracle) (*Converter, error) {
	if oracle == nil {
		return nil, ErrConverterNoOracle
	}
	return &Converter{oracle: oracle}, nil
}

// UsdValue returns the 18-decimal USD value of balance native units of asset.
func (c *Converter) UsdValue(asset types.Asset, balance sdkmath.Int) (sdkmath.Int, error) {
	if balance.IsNil() {
		return sdkmath.ZeroInt(), ErrNilAmount
	}
	if balance.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s of %s", ErrNegativeBalance, balance, asset.Denom)
	}

	switch asset.Class {
	case types.AssetVolatile:
		price, err := c.normalizedPrice()
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		// balance * price18 / 10^decimals
		return balance.Mul(price).Quo(pow10(asset.Decimals)), nil
	case types.AssetPegged:
		return balance.Mul(pow10(18 - asset.Decimals)), nil
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s (%s)", ErrUnsupportedAsset, asset.Denom, asset.Class)
	}
}

// AmountForUsd is the inverse of UsdValue: it converts an 18-decimal USD value
// into a native-decimal amount of asset, truncating toward zero. It sizes the
// input leg of a rebalancing swap.
func (c *Converter) AmountForUsd(asset types.Asset, usdValue sdkmath.Int) (sdkmath.Int, error) {
	if usdValue.IsNil() {
		return sdkmath.ZeroInt(), ErrNilAmount
	}
	if usdValue.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNegativeUsdValue, usdValue)
	}

	switch asset.Class {
	case types.AssetVolatile:
		price, err := c.normalizedPrice()
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return usdValue.Mul(pow10(asset.Decimals)).Quo(price), nil
	case types.AssetPegged:
		return usdValue.Quo(pow10(18 - asset.Decimals)), nil
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s (%s)", ErrUnsupportedAsset, asset.Denom, asset.Class)
	}
}

// normalizedPrice reads the oracle and rescales the quote to 18 decimals.
// A non-positive price is an oracle failure and always propagates; it must
// never collapse into a silent zero value that masks a real imbalance.
func (c *Converter) normalizedPrice() (sdkmath.Int, error) {
	price, decimals, _, err := c.oracle.LatestPrice()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: got %s", ErrInvalidOraclePrice, price)
	}
	if decimals > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d", ErrPricePrecision, decimals)
	}
	normalized := price.Mul(pow10(18 - decimals))
	if normalized.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroScaledPrice
	}
	return normalized, nil
}

func pow10(exp uint8) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, int(exp))
}
