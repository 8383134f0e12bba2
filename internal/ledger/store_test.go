package ledger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	weth = types.Asset{Denom: "weth", Symbol: "WETH", Decimals: 18, Class: types.AssetVolatile}
	usdc = types.Asset{Denom: "usdc", Symbol: "USDC", Decimals: 6, Class: types.AssetPegged}
)

func halfEntries() []types.AllocationEntry {
	half := types.Scale.QuoRaw(2)
	return []types.AllocationEntry{
		{Asset: weth, Fraction: half},
		{Asset: usdc, Fraction: half},
	}
}

func TestSeed(t *testing.T) {
	s := NewStore()
	amount := sdkmath.NewIntWithDecimal(1, 18)
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", amount))

	p, ok := s.Get("alice")
	require.True(t, ok)
	require.Equal(t, "alice", p.Owner)
	require.Len(t, p.Holdings, 2)

	// Deposit slot funded, counterpart at zero, order follows the entries.
	require.Equal(t, "weth", p.Holdings[0].Asset.Denom)
	require.True(t, p.Holdings[0].Balance.Equal(amount))
	require.Equal(t, "usdc", p.Holdings[1].Asset.Denom)
	require.True(t, p.Holdings[1].Balance.IsZero())
}

func TestSeedRejections(t *testing.T) {
	s := NewStore()

	err := s.Seed("alice", halfEntries(), "weth", sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrZeroAmount)

	err = s.Seed("alice", halfEntries(), "dai", sdkmath.NewInt(100))
	require.ErrorIs(t, err, ErrAssetNotInPortfolio)

	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))
	err = s.Seed("alice", halfEntries(), "usdc", sdkmath.NewInt(100))
	require.ErrorIs(t, err, ErrPortfolioExists)
}

func TestCredit(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))

	require.NoError(t, s.Credit("alice", "usdc", sdkmath.NewInt(250)))
	require.NoError(t, s.Credit("alice", "weth", sdkmath.NewInt(50)))

	p, _ := s.Get("alice")
	require.True(t, p.Holdings[0].Balance.Equal(sdkmath.NewInt(150)))
	require.True(t, p.Holdings[1].Balance.Equal(sdkmath.NewInt(250)))

	require.ErrorIs(t, s.Credit("alice", "dai", sdkmath.NewInt(1)), ErrAssetNotInPortfolio)
	require.ErrorIs(t, s.Credit("bob", "weth", sdkmath.NewInt(1)), ErrNoPortfolio)
	require.ErrorIs(t, s.Credit("alice", "weth", sdkmath.ZeroInt()), ErrZeroAmount)
}

func TestApplySwap(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(1000)))

	require.NoError(t, s.ApplySwap("alice", "weth", "usdc", sdkmath.NewInt(400), sdkmath.NewInt(1190)))

	p, _ := s.Get("alice")
	require.True(t, p.Holdings[0].Balance.Equal(sdkmath.NewInt(600)))
	require.True(t, p.Holdings[1].Balance.Equal(sdkmath.NewInt(1190)))
}

func TestApplySwapInsufficientBalance(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))

	err := s.ApplySwap("alice", "weth", "usdc", sdkmath.NewInt(101), sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// Failed swap leaves both slots untouched.
	p, _ := s.Get("alice")
	require.True(t, p.Holdings[0].Balance.Equal(sdkmath.NewInt(100)))
	require.True(t, p.Holdings[1].Balance.IsZero())
}

func TestApplySwapUnknownAssets(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))

	require.ErrorIs(t, s.ApplySwap("alice", "dai", "usdc", sdkmath.NewInt(1), sdkmath.NewInt(1)), ErrAssetNotInPortfolio)
	require.ErrorIs(t, s.ApplySwap("alice", "weth", "dai", sdkmath.NewInt(1), sdkmath.NewInt(1)), ErrAssetNotInPortfolio)
	require.ErrorIs(t, s.ApplySwap("bob", "weth", "usdc", sdkmath.NewInt(1), sdkmath.NewInt(1)), ErrNoPortfolio)
}

func TestGetReturnsDeepCopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))

	p, _ := s.Get("alice")
	p.Holdings[0].Balance = sdkmath.NewInt(999999)

	fresh, _ := s.Get("alice")
	require.True(t, fresh.Holdings[0].Balance.Equal(sdkmath.NewInt(100)))
}

func TestPurgeAndRestore(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))
	before, _ := s.Get("alice")

	holdings, ok := s.Purge("alice")
	require.True(t, ok)
	require.Len(t, holdings, 2)
	require.True(t, holdings[0].Balance.Equal(sdkmath.NewInt(100)))
	_, ok = s.Get("alice")
	require.False(t, ok)

	// Purging again reports absence.
	_, ok = s.Purge("alice")
	require.False(t, ok)

	s.Restore(before)
	restored, ok := s.Get("alice")
	require.True(t, ok)
	require.True(t, restored.Holdings[0].Balance.Equal(sdkmath.NewInt(100)))
}

func TestSnapshotRestoreAll(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))
	require.NoError(t, s.Seed("bob", halfEntries(), "usdc", sdkmath.NewInt(500)))

	snap := s.Snapshot()

	// Mutate everything after the snapshot.
	require.NoError(t, s.ApplySwap("alice", "weth", "usdc", sdkmath.NewInt(100), sdkmath.NewInt(300)))
	s.Delete("bob")
	require.NoError(t, s.Seed("carol", halfEntries(), "weth", sdkmath.NewInt(7)))

	s.RestoreAll(snap)

	alice, ok := s.Get("alice")
	require.True(t, ok)
	require.True(t, alice.Holdings[0].Balance.Equal(sdkmath.NewInt(100)))
	require.True(t, alice.Holdings[1].Balance.IsZero())

	bob, ok := s.Get("bob")
	require.True(t, ok)
	require.True(t, bob.Holdings[1].Balance.Equal(sdkmath.NewInt(500)))

	_, ok = s.Get("carol")
	require.False(t, ok)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", halfEntries(), "weth", sdkmath.NewInt(100)))

	snap := s.Snapshot()
	captured := snap["alice"]
	captured.Holdings[0].Balance = sdkmath.ZeroInt()

	p, _ := s.Get("alice")
	require.True(t, p.Holdings[0].Balance.Equal(sdkmath.NewInt(100)))
}
