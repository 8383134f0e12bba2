package types

import (
	sdkmath "cosmossdk.io/math"
)

// Holding is one (asset, balance) pair inside a portfolio. Balances are
// native-decimal integer amounts.
type Holding struct {
	Asset   Asset       `json:"asset"`
	Balance sdkmath.Int `json:"balance"`
}

// Portfolio is a user's current holdings. The holding order is fixed when the
// portfolio is seeded from the allocation preference at first deposit and is
// preserved across swaps and further deposits.
type Portfolio struct {
	Owner    string    `json:"owner"`
	Holdings []Holding `json:"holdings"`
}

// Clone returns a deep copy. sdkmath.Int operations never mutate their
// receiver, so copying the holding slice is sufficient isolation.
func (p Portfolio) Clone() Portfolio {
	out := Portfolio{Owner: p.Owner}
	if p.Holdings != nil {
		out.Holdings = make([]Holding, len(p.Holdings))
		copy(out.Holdings, p.Holdings)
	}
	return out
}

// IndexOf returns the holding index for denom, or -1.
func (p Portfolio) IndexOf(denom string) int {
	for i, h := range p.Holdings {
		if h.Asset.Denom == denom {
			return i
		}
	}
	return -1
}

// HasPositiveBalance reports whether any holding is above zero.
func (p Portfolio) HasPositiveBalance() bool {
	for _, h := range p.Holdings {
		if h.Balance.IsPositive() {
			return true
		}
	}
	return false
}
