package pricing

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	testVolatile = types.Asset{Denom: "weth", Symbol: "WETH", Decimals: 18, Class: types.AssetVolatile}
	testPegged   = types.Asset{Denom: "usdc", Symbol: "USDC", Decimals: 6, Class: types.AssetPegged}
)

type failingOracle struct{ err error }

func (o failingOracle) LatestPrice() (sdkmath.Int, uint8, time.Time, error) {
	return sdkmath.ZeroInt(), 0, time.Time{}, o.err
}

func newTestConverter(t *testing.T, price int64, priceDecimals uint8) (*Converter, *StaticOracle) {
	t.Helper()
	oracle, err := NewStaticOracle(sdkmath.NewInt(price), priceDecimals)
	require.NoError(t, err)
	conv, err := NewConverter(oracle)
	require.NoError(t, err)
	return conv, oracle
}

func TestUsdValueVolatile(t *testing.T) {
	// $3000 quoted with 8 decimals, the common oracle feed precision.
	conv, _ := newTestConverter(t, 3000_00000000, 8)

	tests := []struct {
		name    string
		balance sdkmath.Int
		want    sdkmath.Int
	}{
		{
			name:    "one whole unit",
			balance: sdkmath.NewIntWithDecimal(1, 18),
			want:    sdkmath.NewIntWithDecimal(3000, 18),
		},
		{
			name:    "half unit",
			balance: sdkmath.NewIntWithDecimal(5, 17),
			want:    sdkmath.NewIntWithDecimal(1500, 18),
		},
		{
			name:    "zero balance",
			balance: sdkmath.ZeroInt(),
			want:    sdkmath.ZeroInt(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.UsdValue(testVolatile, tt.balance)
			require.NoError(t, err)
			require.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestUsdValuePegged(t *testing.T) {
	conv, _ := newTestConverter(t, 3000_00000000, 8)

	// 1.0 USDC in 6-decimal native units is exactly one 18-decimal dollar.
	got, err := conv.UsdValue(testPegged, sdkmath.NewInt(1_000_000))
	require.NoError(t, err)
	require.True(t, sdkmath.NewIntWithDecimal(1, 18).Equal(got))

	// No oracle involvement: a broken oracle must not affect pegged values.
	broken, err := NewConverter(failingOracle{err: errors.New("feed down")})
	require.NoError(t, err)
	got, err = broken.UsdValue(testPegged, sdkmath.NewInt(2_500_000))
	require.NoError(t, err)
	require.True(t, sdkmath.NewIntWithDecimal(25, 17).Equal(got))
}

func TestUsdValueOracleFailures(t *testing.T) {
	t.Run("zero price", func(t *testing.T) {
		conv, oracle := newTestConverter(t, 1, 8)
		oracle.SetPrice(sdkmath.ZeroInt())
		_, err := conv.UsdValue(testVolatile, sdkmath.NewIntWithDecimal(1, 18))
		require.ErrorIs(t, err, ErrInvalidOraclePrice)
	})

	t.Run("negative price", func(t *testing.T) {
		conv, oracle := newTestConverter(t, 1, 8)
		oracle.SetPrice(sdkmath.NewInt(-5))
		_, err := conv.UsdValue(testVolatile, sdkmath.NewIntWithDecimal(1, 18))
		require.ErrorIs(t, err, ErrInvalidOraclePrice)
	})

	t.Run("feed error propagates", func(t *testing.T) {
		conv, err := NewConverter(failingOracle{err: errors.New("timeout")})
		require.NoError(t, err)
		_, err = conv.UsdValue(testVolatile, sdkmath.NewIntWithDecimal(1, 18))
		require.ErrorIs(t, err, ErrOracleUnavailable)
	})
}

func TestUsdValueUnsupportedClass(t *testing.T) {
	conv, _ := newTestConverter(t, 3000_00000000, 8)
	bad := types.Asset{Denom: "mystery", Decimals: 18, Class: types.AssetClass(7)}
	_, err := conv.UsdValue(bad, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestUsdValueRejectsNegativeBalance(t *testing.T) {
	conv, _ := newTestConverter(t, 3000_00000000, 8)
	_, err := conv.UsdValue(testVolatile, sdkmath.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeBalance)
}

func TestAmountForUsdInvertsUsdValue(t *testing.T) {
	conv, _ := newTestConverter(t, 3000_00000000, 8)

	t.Run("volatile", func(t *testing.T) {
		// $1500 should buy exactly half a unit at $3000.
		amount, err := conv.AmountForUsd(testVolatile, sdkmath.NewIntWithDecimal(1500, 18))
		require.NoError(t, err)
		require.True(t, sdkmath.NewIntWithDecimal(5, 17).Equal(amount))
	})

	t.Run("pegged", func(t *testing.T) {
		amount, err := conv.AmountForUsd(testPegged, sdkmath.NewIntWithDecimal(42, 18))
		require.NoError(t, err)
		require.True(t, sdkmath.NewInt(42_000_000).Equal(amount))
	})

	t.Run("truncates toward zero", func(t *testing.T) {
		// $1 of a $3000 asset truncates rather than rounding up.
		amount, err := conv.AmountForUsd(testVolatile, sdkmath.NewIntWithDecimal(1, 18))
		require.NoError(t, err)
		expected := sdkmath.NewIntWithDecimal(1, 36).Quo(sdkmath.NewIntWithDecimal(3000, 18))
		require.True(t, expected.Equal(amount))
	})
}

func TestRoundTripDriftIsOneSided(t *testing.T) {
	// Truncation may lose value but must never create it.
	conv, _ := newTestConverter(t, 2999_99999999, 8)
	balance := sdkmath.NewInt(1_234_567_890_123_456_789)

	value, err := conv.UsdValue(testVolatile, balance)
	require.NoError(t, err)
	back, err := conv.AmountForUsd(testVolatile, value)
	require.NoError(t, err)
	require.True(t, back.LTE(balance), "round trip grew balance: %s -> %s", balance, back)
}

func TestStaticOracleRejectsBadInitialPrice(t *testing.T) {
	_, err := NewStaticOracle(sdkmath.ZeroInt(), 8)
	require.ErrorIs(t, err, ErrInvalidOraclePrice)
}
