/*

This file contains the drift evaluation for a user portfolio: per-asset USD
values, current allocation fractions, and the band check that decides whether
a rebalance is due.

*/

package analyzer

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/keeperlabs/rebalancer/internal/pricing"
	"github.com/keeperlabs/rebalancer/internal/types"
)

var ErrInvalidPortfolio = errors.New("portfolio is missing or malformed")
var ErrAllocationMissing = errors.New("allocation preference required for drift evaluation")
var ErrInvalidThreshold = errors.New("threshold must be a positive fraction below 100%")

// AssetDrift is the evaluated state of one portfolio holding.
type AssetDrift struct {
	Asset           types.Asset `json:"asset"`
	Balance         sdkmath.Int `json:"balance"`
	ValueUsd        sdkmath.Int `json:"value_usd"`
	CurrentFraction sdkmath.Int `json:"current_fraction"` // of types.Scale
	TargetFraction  sdkmath.Int `json:"target_fraction"`
	Drift           sdkmath.Int `json:"drift"` // |current - target|
	BandLower       sdkmath.Int `json:"band_lower"`
	BandUpper       sdkmath.Int `json:"band_upper"`
	OutOfBand       bool        `json:"out_of_band"`
	OverBand        bool        `json:"over_band"` // current above the upper band edge
}

// Assessment is the full drift evaluation of one portfolio.
type Assessment struct {
	TotalValueUsd sdkmath.Int  `json:"total_value_usd"`
	Assets        []AssetDrift `json:"assets"`
}

// NeedsRebalancing reports whether any asset sits outside its band.
func (a Assessment) NeedsRebalancing() bool {
	for _, d := range a.Assets {
		if d.OutOfBand {
			return true
		}
	}
	return false
}

// Assess computes per-asset USD values, current fractions, and band placement
// for every holding. The acceptable band is multiplicative: threshold is a
// fraction of the target itself, so a 5% threshold on a 50% target yields a
// band of 47.5%-52.5%, not 45%-55%. The rebalance executor uses the same band,
// so it never swaps an asset this evaluation considers in tolerance.
//
// A portfolio whose total value is zero needs no rebalancing: there is nothing
// to allocate, which is a legitimate economic state rather than an error.
func Assess(
	portfolio types.Portfolio,
	targets []types.AllocationEntry,
	conv *pricing.Converter,
	threshold sdkmath.Int,
) (Assessment, error) {
	if err := validateInputs(portfolio, targets, conv, threshold); err != nil {
		return Assessment{}, err
	}

	targetByDenom := make(map[string]sdkmath.Int, len(targets))
	for _, t := range targets {
		targetByDenom[t.Asset.Denom] = t.Fraction
	}

	assessment := Assessment{
		TotalValueUsd: sdkmath.ZeroInt(),
		Assets:        make([]AssetDrift, len(portfolio.Holdings)),
	}
	for i, h := range portfolio.Holdings {
		target, ok := targetByDenom[h.Asset.Denom]
		if !ok {
			return Assessment{}, fmt.Errorf("%w: holding %s has no target fraction",
				ErrInvalidPortfolio, h.Asset.Denom)
		}
		value, err := conv.UsdValue(h.Asset, h.Balance)
		if err != nil {
			return Assessment{}, err
		}
		assessment.Assets[i] = AssetDrift{
			Asset:          h.Asset,
			Balance:        h.Balance,
			ValueUsd:       value,
			TargetFraction: target,
		}
		assessment.TotalValueUsd = assessment.TotalValueUsd.Add(value)
	}

	if assessment.TotalValueUsd.IsZero() {
		for i := range assessment.Assets {
			assessment.Assets[i].CurrentFraction = sdkmath.ZeroInt()
			assessment.Assets[i].Drift = sdkmath.ZeroInt()
			assessment.Assets[i].BandLower, assessment.Assets[i].BandUpper =
				band(assessment.Assets[i].TargetFraction, threshold)
		}
		return assessment, nil
	}

	for i := range assessment.Assets {
		d := &assessment.Assets[i]
		d.CurrentFraction = d.ValueUsd.Mul(types.Scale).Quo(assessment.TotalValueUsd)
		d.Drift = d.CurrentFraction.Sub(d.TargetFraction).Abs()
		d.BandLower, d.BandUpper = band(d.TargetFraction, threshold)
		d.OverBand = d.CurrentFraction.GT(d.BandUpper)
		d.OutOfBand = d.OverBand || d.CurrentFraction.LT(d.BandLower)
	}
	return assessment, nil
}

// band returns the acceptable range around target: target +/- target*threshold/Scale.
func band(target, threshold sdkmath.Int) (lower, upper sdkmath.Int) {
	tolerance := target.Mul(threshold).Quo(types.Scale)
	return target.Sub(tolerance), target.Add(tolerance)
}

func validateInputs(
	portfolio types.Portfolio,
	targets []types.AllocationEntry,
	conv *pricing.Converter,
	threshold sdkmath.Int,
) error {
	if conv == nil {
		return fmt.Errorf("converter cannot be nil")
	}
	if threshold.IsNil() || !threshold.IsPositive() || threshold.GTE(types.Scale) {
		return fmt.Errorf("%w: %s", ErrInvalidThreshold, threshold)
	}
	if len(targets) == 0 {
		return ErrAllocationMissing
	}
	if len(portfolio.Holdings) == 0 {
		return fmt.Errorf("%w: no holdings for %s", ErrInvalidPortfolio, portfolio.Owner)
	}
	if len(portfolio.Holdings) != len(targets) {
		return fmt.Errorf("%w: %d holdings vs %d allocation entries",
			ErrInvalidPortfolio, len(portfolio.Holdings), len(targets))
	}
	return nil
}
