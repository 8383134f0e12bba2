package engine

import (
	"fmt"

	"github.com/keeperlabs/rebalancer/internal/planner"
	"github.com/keeperlabs/rebalancer/internal/types"
)

// Rebalance brings the user's portfolio back inside the allocation band,
// executing zero or more swaps. Calling it on an already-balanced portfolio
// is a successful no-op.
func (e *Engine) Rebalance(user string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.rebalanceLocked(user, "")
	return err
}

// rebalanceLocked is the executor. Preconditions (allocation set, two-asset
// portfolio) are validated before any swap so a malformed portfolio aborts
// the whole operation rather than rebalancing partially. The ledger is
// updated from the venue's realized amounts immediately after each swap.
func (e *Engine) rebalanceLocked(user, sweepID string) ([]types.SwapReceipt, error) {
	assessment, err := e.assessLocked(user)
	if err != nil {
		return nil, err
	}
	if assessment.TotalValueUsd.IsZero() {
		return nil, nil
	}

	actions, err := planner.PlanSwaps(assessment, e.converter)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, nil
	}

	receipts := make([]types.SwapReceipt, 0, len(actions))
	for _, action := range actions {
		deadline := e.nowFn().Add(e.params.DeadlineGrace)
		consumed, produced, err := e.router.SwapExact(
			action.AmountIn, e.params.SwapMinOut,
			action.From, action.To,
			e.params.VaultAddr, deadline,
		)
		if err != nil {
			return receipts, fmt.Errorf("swap %s -> %s for %s failed: %w",
				action.From.Denom, action.To.Denom, user, err)
		}
		if err := e.ledger.ApplySwap(user, action.From.Denom, action.To.Denom, consumed, produced); err != nil {
			return receipts, err
		}

		receipt := types.SwapReceipt{
			SweepID:        sweepID,
			User:           user,
			FromDenom:      action.From.Denom,
			ToDenom:        action.To.Denom,
			AmountIn:       consumed,
			AmountOut:      produced,
			ExcessValueUsd: action.ExcessValueUsd,
			Timestamp:      e.nowFn(),
		}
		receipts = append(receipts, receipt)
		swapsExecuted.Inc()
		e.recordSwap(receipt)

		e.log.Info().
			Str("user", user).
			Str("from", receipt.FromDenom).
			Str("to", receipt.ToDenom).
			Str("amountIn", consumed.String()).
			Str("amountOut", produced.String()).
			Str("excessUsd", action.ExcessValueUsd.String()).
			Msg("Rebalancing swap executed")
	}

	e.log.Info().
		Str("user", user).
		Int("swaps", len(receipts)).
		Msg("Portfolio updated")
	return receipts, nil
}

// recordSwap persists a receipt. Persistence is observability, not
// correctness: failures are logged and the operation continues.
func (e *Engine) recordSwap(receipt types.SwapReceipt) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordSwap(receipt); err != nil {
		e.log.Error().Err(err).Str("user", receipt.User).Msg("Failed to persist swap receipt")
	}
}
