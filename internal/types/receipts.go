/*

Observability records produced by the engine: one SwapReceipt per executed
swap and one SweepSnapshot per keeper-triggered sweep. Both are persisted to
the database and served over the web API.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// SwapReceipt records the realized outcome of a single rebalancing swap.
// AmountIn/AmountOut are the amounts the venue actually consumed and produced,
// which are the ground truth for ledger updates.
type SwapReceipt struct {
	SweepID        string      `json:"sweep_id,omitempty"` // empty for deposit-triggered swaps
	User           string      `json:"user"`
	FromDenom      string      `json:"from_denom"`
	ToDenom        string      `json:"to_denom"`
	AmountIn       sdkmath.Int `json:"amount_in"`
	AmountOut      sdkmath.Int `json:"amount_out"`
	ExcessValueUsd sdkmath.Int `json:"excess_value_usd"` // 18-decimal USD value moved
	Timestamp      time.Time   `json:"timestamp"`
}

// SweepSnapshot summarizes one scheduler-triggered pass over the member set.
type SweepSnapshot struct {
	SweepID         string        `json:"sweep_id"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	MembersScanned  int           `json:"members_scanned"`
	UsersRebalanced int           `json:"users_rebalanced"`
	SwapsExecuted   int           `json:"swaps_executed"`
	Receipts        []SwapReceipt `json:"receipts"`
}
