package planner

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/analyzer"
	"github.com/keeperlabs/rebalancer/internal/logger"
	"github.com/keeperlabs/rebalancer/internal/pricing"
	"github.com/keeperlabs/rebalancer/internal/types"
)

var (
	ErrNoCounterparty = errors.New("no under-allocated asset to receive the swap")
	ErrNilConverter   = errors.New("planner requires a converter")
)

// SwapAction is one concrete swap the executor should perform: move
// ExcessValueUsd out of From by selling AmountIn native units for To.
type SwapAction struct {
	From           types.Asset
	To             types.Asset
	AmountIn       sdkmath.Int
	ExcessValueUsd sdkmath.Int
}

// PlanSwaps converts an assessment into swap actions. Each asset is evaluated
// independently: anything above its band contributes one action sized by its
// excess USD value (current value minus target-implied value). In a two-asset
// portfolio at most one asset can be over its band, but the loop does not rely
// on that.
func PlanSwaps(assessment analyzer.Assessment, conv *pricing.Converter) ([]SwapAction, error) {
	if conv == nil {
		return nil, ErrNilConverter
	}
	planLogger := logger.GetForComponent("swap_planner")

	if assessment.TotalValueUsd.IsZero() {
		return nil, nil
	}

	var actions []SwapAction
	for _, d := range assessment.Assets {
		if !d.OverBand {
			continue
		}

		// Target-implied value, truncating like every other USD computation.
		targetValue := d.TargetFraction.Mul(assessment.TotalValueUsd).Quo(types.Scale)
		excess := d.ValueUsd.Sub(targetValue)
		if !excess.IsPositive() {
			// Over the band by fraction but not by truncated value; nothing to move.
			continue
		}

		to, err := pickDestination(assessment, d.Asset.Denom)
		if err != nil {
			return nil, err
		}

		amountIn, err := conv.AmountForUsd(d.Asset, excess)
		if err != nil {
			return nil, err
		}
		if !amountIn.IsPositive() {
			planLogger.Debug().
				Str("asset", d.Asset.Denom).
				Str("excessUsd", excess.String()).
				Msg("Excess value truncates to zero input amount, skipping")
			continue
		}
		if amountIn.GT(d.Balance) {
			// Truncation in the inverse conversion can only shrink the amount,
			// so this indicates corrupted state rather than rounding.
			return nil, fmt.Errorf("planned input %s %s exceeds balance %s",
				amountIn, d.Asset.Denom, d.Balance)
		}

		planLogger.Info().
			Str("from", d.Asset.Denom).
			Str("to", to.Denom).
			Str("amountIn", amountIn.String()).
			Str("excessUsd", excess.String()).
			Msg("Planned rebalancing swap")

		actions = append(actions, SwapAction{
			From:           d.Asset,
			To:             to,
			AmountIn:       amountIn,
			ExcessValueUsd: excess,
		})
	}
	return actions, nil
}

// pickDestination chooses the asset with the largest value shortfall versus
// its target. With two assets this is simply the other one, but computing the
// shortfall keeps the rule valid for any asset count.
func pickDestination(assessment analyzer.Assessment, fromDenom string) (types.Asset, error) {
	var best types.Asset
	bestShortfall := sdkmath.ZeroInt()
	found := false
	for _, d := range assessment.Assets {
		if d.Asset.Denom == fromDenom {
			continue
		}
		targetValue := d.TargetFraction.Mul(assessment.TotalValueUsd).Quo(types.Scale)
		shortfall := targetValue.Sub(d.ValueUsd)
		if !found || shortfall.GT(bestShortfall) {
			best = d.Asset
			bestShortfall = shortfall
			found = true
		}
	}
	if !found {
		return types.Asset{}, fmt.Errorf("%w: selling %s", ErrNoCounterparty, fromDenom)
	}
	return best, nil
}
