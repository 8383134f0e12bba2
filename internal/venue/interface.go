package venue

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/types"
)

// SwapRouter is the swap venue boundary. Implementations must report the
// amounts actually consumed and produced; the engine treats those realized
// amounts as ground truth for ledger updates.
type SwapRouter interface {
	SwapExact(
		amountIn, minOut sdkmath.Int,
		from, to types.Asset,
		recipient string,
		deadline time.Time,
	) (consumed, produced sdkmath.Int, err error)
}

// Custody is the token transfer and approval boundary.
type Custody interface {
	// WrapNative converts amount of attached native currency into the wrapped
	// asset, credited to the vault.
	WrapNative(user string, amount sdkmath.Int) error

	// TransferIn pulls amount of asset from the user into vault custody.
	TransferIn(asset types.Asset, from string, amount sdkmath.Int) error

	// TransferOut pays amount of asset from vault custody to the user.
	TransferOut(asset types.Asset, to string, amount sdkmath.Int) error

	// ApproveUnlimited grants spender an unlimited allowance over asset.
	// Issued when an asset joins the allow-list.
	ApproveUnlimited(asset types.Asset, spender string) error

	// RevokeApproval withdraws spender's allowance over asset. Issued when an
	// asset leaves the allow-list.
	RevokeApproval(asset types.Asset, spender string) error
}
