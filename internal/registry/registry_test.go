package registry

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/keeperlabs/rebalancer/internal/types"
)

const testOwner = "owner-addr"

var (
	wethAsset = types.Asset{Denom: "weth", Symbol: "WETH", Decimals: 18, Class: types.AssetVolatile}
	usdcAsset = types.Asset{Denom: "usdc", Symbol: "USDC", Decimals: 6, Class: types.AssetPegged}
)

func newTestAssetConfig(t *testing.T) *AssetConfig {
	t.Helper()
	cfg, err := NewAssetConfig(testOwner)
	require.NoError(t, err)
	require.NoError(t, cfg.Allow(testOwner, wethAsset))
	require.NoError(t, cfg.Allow(testOwner, usdcAsset))
	return cfg
}

func TestAssetConfigOwnerGate(t *testing.T) {
	cfg, err := NewAssetConfig(testOwner)
	require.NoError(t, err)

	err = cfg.Allow("intruder", wethAsset)
	require.ErrorIs(t, err, ErrNotOwner)
	require.False(t, cfg.IsAllowed("weth"))

	require.NoError(t, cfg.Allow(testOwner, wethAsset))
	require.True(t, cfg.IsAllowed("weth"))

	err = cfg.Revoke("intruder", "weth")
	require.ErrorIs(t, err, ErrNotOwner)
	require.True(t, cfg.IsAllowed("weth"))
}

func TestAssetConfigAllowRevoke(t *testing.T) {
	cfg, err := NewAssetConfig(testOwner)
	require.NoError(t, err)

	require.NoError(t, cfg.Allow(testOwner, wethAsset))

	// Re-allowing must fail rather than overwrite the descriptor.
	altered := wethAsset
	altered.Decimals = 8
	err = cfg.Allow(testOwner, altered)
	require.ErrorIs(t, err, ErrAssetExists)
	got, ok := cfg.Get("weth")
	require.True(t, ok)
	require.Equal(t, uint8(18), got.Decimals)

	require.NoError(t, cfg.Revoke(testOwner, "weth"))
	require.False(t, cfg.IsAllowed("weth"))

	// Revoking an unknown denom surfaces the typo.
	err = cfg.Revoke(testOwner, "weth")
	require.ErrorIs(t, err, ErrAssetNotAllowed)
}

func TestAssetConfigRejectsInvalidDescriptor(t *testing.T) {
	cfg, err := NewAssetConfig(testOwner)
	require.NoError(t, err)

	bad := types.Asset{Denom: "weird", Decimals: 24, Class: types.AssetVolatile}
	require.Error(t, cfg.Allow(testOwner, bad))
	require.Error(t, cfg.Allow(testOwner, types.Asset{Symbol: "NONAME", Decimals: 6, Class: types.AssetPegged}))
}

func TestSetMaxAssets(t *testing.T) {
	cfg := newTestAssetConfig(t)

	require.NoError(t, cfg.SetMaxAssets(testOwner, types.MaxPortfolioAssets))
	require.ErrorIs(t, cfg.SetMaxAssets(testOwner, 3), ErrMaxAssetsFixed)
	require.ErrorIs(t, cfg.SetMaxAssets(testOwner, 1), ErrMaxAssetsFixed)
	require.ErrorIs(t, cfg.SetMaxAssets("intruder", 2), ErrNotOwner)
}

func halfSplit() []types.AllocationEntry {
	half := types.Scale.QuoRaw(2)
	return []types.AllocationEntry{
		{Asset: wethAsset, Fraction: half},
		{Asset: usdcAsset, Fraction: half},
	}
}

func TestAllocationSetAndGet(t *testing.T) {
	store, err := NewAllocationStore(newTestAssetConfig(t))
	require.NoError(t, err)

	require.False(t, store.Has("alice"))
	_, err = store.Get("alice")
	require.ErrorIs(t, err, ErrAllocationNotSet)

	require.NoError(t, store.Set("alice", halfSplit()))
	require.True(t, store.Has("alice"))

	entries, err := store.Get("alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Fraction.Add(entries[1].Fraction).Equal(types.Scale))

	// Get hands out a copy; mutating it must not corrupt the store.
	entries[0].Fraction = sdkmath.ZeroInt()
	fresh, err := store.Get("alice")
	require.NoError(t, err)
	require.True(t, fresh[0].Fraction.IsPositive())
}

func TestAllocationReplaceIsAtomic(t *testing.T) {
	store, err := NewAllocationStore(newTestAssetConfig(t))
	require.NoError(t, err)
	require.NoError(t, store.Set("alice", halfSplit()))

	// A rejected update leaves the previous preference intact.
	bad := []types.AllocationEntry{
		{Asset: wethAsset, Fraction: types.Scale},
		{Asset: usdcAsset, Fraction: types.Scale},
	}
	require.ErrorIs(t, store.Set("alice", bad), ErrFractionSum)

	entries, err := store.Get("alice")
	require.NoError(t, err)
	require.True(t, entries[0].Fraction.Equal(types.Scale.QuoRaw(2)))

	// A valid update replaces the whole preference.
	skewed := []types.AllocationEntry{
		{Asset: wethAsset, Fraction: types.Scale.QuoRaw(10).MulRaw(7)},
		{Asset: usdcAsset, Fraction: types.Scale.QuoRaw(10).MulRaw(3)},
	}
	require.NoError(t, store.Set("alice", skewed))
	entries, err = store.Get("alice")
	require.NoError(t, err)
	require.True(t, entries[0].Fraction.Equal(types.Scale.QuoRaw(10).MulRaw(7)))
}

func TestAllocationValidation(t *testing.T) {
	store, err := NewAllocationStore(newTestAssetConfig(t))
	require.NoError(t, err)

	half := types.Scale.QuoRaw(2)
	tests := []struct {
		name    string
		entries []types.AllocationEntry
		wantErr error
	}{
		{
			name:    "empty",
			entries: nil,
			wantErr: ErrAllocationEmpty,
		},
		{
			name: "too many entries",
			entries: []types.AllocationEntry{
				{Asset: wethAsset, Fraction: half},
				{Asset: usdcAsset, Fraction: half.QuoRaw(2)},
				{Asset: types.Asset{Denom: "dai", Decimals: 18, Class: types.AssetPegged}, Fraction: half.QuoRaw(2)},
			},
			wantErr: ErrTooManyAssets,
		},
		{
			name: "unknown asset",
			entries: []types.AllocationEntry{
				{Asset: types.Asset{Denom: "dai"}, Fraction: types.Scale},
			},
			wantErr: ErrUnknownAllocAsset,
		},
		{
			name: "duplicate asset",
			entries: []types.AllocationEntry{
				{Asset: wethAsset, Fraction: half},
				{Asset: wethAsset, Fraction: half},
			},
			wantErr: ErrDuplicateAsset,
		},
		{
			name: "zero fraction",
			entries: []types.AllocationEntry{
				{Asset: wethAsset, Fraction: sdkmath.ZeroInt()},
				{Asset: usdcAsset, Fraction: types.Scale},
			},
			wantErr: ErrZeroFraction,
		},
		{
			name: "sum below scale",
			entries: []types.AllocationEntry{
				{Asset: wethAsset, Fraction: half},
				{Asset: usdcAsset, Fraction: half.SubRaw(1)},
			},
			wantErr: ErrFractionSum,
		},
		{
			name: "sum above scale",
			entries: []types.AllocationEntry{
				{Asset: wethAsset, Fraction: half},
				{Asset: usdcAsset, Fraction: half.AddRaw(1)},
			},
			wantErr: ErrFractionSum,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, store.Set("bob", tt.entries), tt.wantErr)
			require.False(t, store.Has("bob"))
		})
	}
}

func TestAllocationFractionSumErrorCarriesTotal(t *testing.T) {
	store, err := NewAllocationStore(newTestAssetConfig(t))
	require.NoError(t, err)

	entries := []types.AllocationEntry{
		{Asset: wethAsset, Fraction: types.Scale.QuoRaw(2)},
		{Asset: usdcAsset, Fraction: types.Scale.QuoRaw(4)},
	}
	err = store.Set("alice", entries)
	require.ErrorIs(t, err, ErrFractionSum)
	require.Contains(t, err.Error(), "750000000000000000")
}

func TestAllocationResolvesDescriptorsFromAllowList(t *testing.T) {
	store, err := NewAllocationStore(newTestAssetConfig(t))
	require.NoError(t, err)

	// Callers only need to name the denom; the stored entry carries the
	// full descriptor from the allow-list.
	entries := []types.AllocationEntry{
		{Asset: types.Asset{Denom: "weth"}, Fraction: types.Scale.QuoRaw(2)},
		{Asset: types.Asset{Denom: "usdc"}, Fraction: types.Scale.QuoRaw(2)},
	}
	require.NoError(t, store.Set("alice", entries))

	stored, err := store.Get("alice")
	require.NoError(t, err)
	require.Equal(t, types.AssetVolatile, stored[0].Asset.Class)
	require.Equal(t, uint8(18), stored[0].Asset.Decimals)
	require.Equal(t, types.AssetPegged, stored[1].Asset.Class)
	require.Equal(t, uint8(6), stored[1].Asset.Decimals)
}

func TestMemberSetAddRemove(t *testing.T) {
	set := NewMemberSet()

	require.True(t, set.Add("alice"))
	require.True(t, set.Add("bob"))
	require.True(t, set.Add("carol"))
	require.Equal(t, 3, set.Len())

	// Adding an existing member is a no-op.
	require.False(t, set.Add("bob"))
	require.Equal(t, 3, set.Len())

	require.True(t, set.Remove("alice"))
	require.False(t, set.Contains("alice"))
	require.Equal(t, 2, set.Len())

	// Removing an absent member is a no-op.
	require.False(t, set.Remove("alice"))

	// Swap-and-pop keeps the survivors enumerable.
	require.ElementsMatch(t, []string{"bob", "carol"}, set.List())
	for i := 0; i < set.Len(); i++ {
		member, ok := set.At(i)
		require.True(t, ok)
		require.True(t, set.Contains(member))
	}
}

func TestMemberSetRemoveLastElement(t *testing.T) {
	set := NewMemberSet()
	set.Add("alice")
	set.Add("bob")

	require.True(t, set.Remove("bob"))
	require.ElementsMatch(t, []string{"alice"}, set.List())
	require.True(t, set.Remove("alice"))
	require.Equal(t, 0, set.Len())

	_, ok := set.At(0)
	require.False(t, ok)
}

func TestMemberSetInterleaved(t *testing.T) {
	set := NewMemberSet()
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range users {
		set.Add(u)
	}
	set.Remove("u2")
	set.Remove("u5")
	set.Add("u6")
	set.Remove("u1")

	require.ElementsMatch(t, []string{"u3", "u4", "u6"}, set.List())
	require.Equal(t, 3, set.Len())

	// Every index resolves to a real member and every member is reachable.
	seen := make(map[string]bool)
	for i := 0; i < set.Len(); i++ {
		member, ok := set.At(i)
		require.True(t, ok)
		require.False(t, seen[member])
		seen[member] = true
	}
	require.Len(t, seen, 3)
}
