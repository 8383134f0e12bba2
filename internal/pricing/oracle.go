package pricing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidOraclePrice = errors.New("oracle returned a non-positive price")
	ErrOracleUnavailable  = errors.New("oracle unavailable")
)

// Oracle is the price feed for the volatile asset. Staleness policy is the
// feed's own responsibility; callers only reject non-positive prices.
type Oracle interface {
	// LatestPrice returns the current price, the number of decimals the price
	// is quoted in, and the feed's last update time.
	LatestPrice() (price sdkmath.Int, decimals uint8, updatedAt time.Time, err error)
}

// StaticOracle is an in-process feed with a settable price. It backs sim mode
// and tests.
type StaticOracle struct {
	mu        sync.RWMutex
	price     sdkmath.Int
	decimals  uint8
	updatedAt time.Time
}

// NewStaticOracle creates a feed quoting price with the given decimals.
func NewStaticOracle(price sdkmath.Int, decimals uint8) (*StaticOracle, error) {
	if price.IsNil() || !price.IsPositive() {
		return nil, fmt.Errorf("%w: initial price %s", ErrInvalidOraclePrice, price)
	}
	return &StaticOracle{
		price:     price,
		decimals:  decimals,
		updatedAt: time.Now(),
	}, nil
}

// SetPrice replaces the quoted price. Non-positive prices are stored as-is so
// tests can exercise the downstream error path.
func (o *StaticOracle) SetPrice(price sdkmath.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
	o.updatedAt = time.Now()
}

func (o *StaticOracle) LatestPrice() (sdkmath.Int, uint8, time.Time, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price, o.decimals, o.updatedAt, nil
}
