/*

The engine orchestrates every state-changing operation: allocation updates,
deposits, withdrawals, rebalancing, and the scheduler-facing sweep. A single
mutex serializes all operations, reproducing the execution environment the
design assumes: no two user operations are ever in flight at once, so the
deposit/withdraw critical sections are non-reentrant by construction.

*/

package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/keeperlabs/rebalancer/internal/analyzer"
	"github.com/keeperlabs/rebalancer/internal/ledger"
	"github.com/keeperlabs/rebalancer/internal/logger"
	"github.com/keeperlabs/rebalancer/internal/pricing"
	"github.com/keeperlabs/rebalancer/internal/registry"
	"github.com/keeperlabs/rebalancer/internal/types"
	"github.com/keeperlabs/rebalancer/internal/venue"
)

var (
	ErrZeroDeposit          = errors.New("deposit amount must be positive")
	ErrNativeAmountMismatch = errors.New("declared amount does not equal attached native value")
	ErrWrongNativeAsset     = errors.New("native deposits must use the wrapped native asset")
	ErrNotRegistered        = errors.New("user is not a registered member")
	ErrEmptyPortfolio       = errors.New("portfolio is empty or fully zero")
	ErrTriggerNotNeeded     = errors.New("trigger conditions not satisfied")
	ErrInvalidEngineConfig  = errors.New("engine configuration invalid")
)

// Threshold bounds: drift tolerance must sit between 1% and 10%.
var (
	minThreshold = types.Scale.QuoRaw(100)
	maxThreshold = types.Scale.QuoRaw(10)
)

// Params are the construction-time engine settings. Threshold and Interval
// are immutable for the life of the engine.
type Params struct {
	// Threshold is the drift tolerance as a fraction of types.Scale,
	// applied multiplicatively around each target fraction.
	Threshold sdkmath.Int
	// Interval is the minimum time between scheduled sweeps.
	Interval time.Duration
	// SwapMinOut is the minimum-output floor passed to every swap. It is a
	// nominal guard, not a computed slippage bound; deployments should size
	// it deliberately.
	SwapMinOut sdkmath.Int
	// DeadlineGrace is added to "now" to form each swap's deadline. Zero
	// means no grace window.
	DeadlineGrace time.Duration

	Owner              string
	VaultAddr          string
	RouterAddr         string
	WrappedNativeDenom string
}

// Config wires the engine's collaborators.
type Config struct {
	Params      Params
	Assets      *registry.AssetConfig
	Allocations *registry.AllocationStore
	Members     *registry.MemberSet
	Ledger      *ledger.Store
	Converter   *pricing.Converter
	Router      venue.SwapRouter
	Custody     venue.Custody
	// Recorder persists receipts and sweep snapshots. Optional; persistence
	// failures are logged, never fatal to the operation that produced them.
	Recorder Recorder
}

// Recorder receives the engine's observability records.
type Recorder interface {
	RecordSwap(receipt types.SwapReceipt) error
	RecordSweep(snapshot types.SweepSnapshot) error
}

// Engine is the rebalancing core.
type Engine struct {
	mu sync.Mutex

	params      Params
	assets      *registry.AssetConfig
	allocations *registry.AllocationStore
	members     *registry.MemberSet
	ledger      *ledger.Store
	converter   *pricing.Converter
	router      venue.SwapRouter
	custody     venue.Custody
	recorder    Recorder

	lastRun time.Time
	nowFn   func() time.Time
	log     zerolog.Logger
}

func New(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEngineConfig, err)
	}

	e := &Engine{
		params:      cfg.Params,
		assets:      cfg.Assets,
		allocations: cfg.Allocations,
		members:     cfg.Members,
		ledger:      cfg.Ledger,
		converter:   cfg.Converter,
		router:      cfg.Router,
		custody:     cfg.Custody,
		recorder:    cfg.Recorder,
		nowFn:       time.Now,
		log:         logger.GetForComponent("engine"),
	}

	if e.params.SwapMinOut.Equal(sdkmath.OneInt()) {
		e.log.Warn().Msg("Swap minimum output is the nominal 1-unit floor; this is not a slippage bound")
	}

	e.log.Info().
		Str("threshold", e.params.Threshold.String()).
		Dur("interval", e.params.Interval).
		Msg("Engine created")
	return e, nil
}

func validateConfig(cfg Config) error {
	p := cfg.Params
	if p.Threshold.IsNil() || p.Threshold.LT(minThreshold) || p.Threshold.GT(maxThreshold) {
		return fmt.Errorf("threshold %s outside [%s, %s]", p.Threshold, minThreshold, maxThreshold)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("rebalance interval must be positive, got %s", p.Interval)
	}
	if p.SwapMinOut.IsNil() || !p.SwapMinOut.IsPositive() {
		return fmt.Errorf("swap minimum output must be positive, got %s", p.SwapMinOut)
	}
	if p.Owner == "" || p.VaultAddr == "" || p.RouterAddr == "" {
		return fmt.Errorf("owner, vault, and router addresses are required")
	}
	if p.WrappedNativeDenom == "" {
		return fmt.Errorf("wrapped native denom is required")
	}
	if cfg.Assets == nil || cfg.Allocations == nil || cfg.Members == nil || cfg.Ledger == nil {
		return fmt.Errorf("asset config, allocation store, member set, and ledger are required")
	}
	if cfg.Converter == nil {
		return fmt.Errorf("converter is required")
	}
	if cfg.Router == nil || cfg.Custody == nil {
		return fmt.Errorf("swap router and custody collaborators are required")
	}
	return nil
}

// --- Administrative surface (owner-gated) ---

// AllowAsset adds an asset to the allow-list and grants the swap router an
// unlimited allowance over it. If the approval fails the allow-list change is
// undone so the two never diverge.
func (e *Engine) AllowAsset(caller string, asset types.Asset) error {
	if err := e.assets.Allow(caller, asset); err != nil {
		return err
	}
	if err := e.custody.ApproveUnlimited(asset, e.params.RouterAddr); err != nil {
		if revertErr := e.assets.Revoke(e.params.Owner, asset.Denom); revertErr != nil {
			e.log.Error().Err(revertErr).Str("asset", asset.Denom).Msg("Failed to revert allow-list after approval failure")
		}
		return fmt.Errorf("router approval for %s failed: %w", asset.Denom, err)
	}
	e.log.Info().Str("asset", asset.Denom).Str("class", asset.Class.String()).Msg("Asset allowed")
	return nil
}

// RevokeAsset removes an asset from the allow-list and withdraws the router's
// allowance.
func (e *Engine) RevokeAsset(caller, denom string) error {
	asset, ok := e.assets.Get(denom)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrAssetNotAllowed, denom)
	}
	if err := e.assets.Revoke(caller, denom); err != nil {
		return err
	}
	if err := e.custody.RevokeApproval(asset, e.params.RouterAddr); err != nil {
		e.log.Error().Err(err).Str("asset", denom).Msg("Approval revocation failed after allow-list removal")
		return err
	}
	e.log.Info().Str("asset", denom).Msg("Asset revoked")
	return nil
}

// SetMaxAssets accepts only the fixed asset count of two.
func (e *Engine) SetMaxAssets(caller string, n int) error {
	return e.assets.SetMaxAssets(caller, n)
}

// --- User-facing surface ---

// SetUserAllocation replaces the user's target allocation.
func (e *Engine) SetUserAllocation(user string, entries []types.AllocationEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.allocations.Set(user, entries); err != nil {
		return err
	}
	e.log.Info().Str("user", user).Int("assets", len(entries)).Msg("Allocation preference set")
	return nil
}

// Deposit pulls amount of denom from the user into custody, credits the
// portfolio (seeding it from the allocation preference on first deposit),
// registers the user for monitoring, and rebalances synchronously.
func (e *Engine) Deposit(user, denom string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, err := e.validateDeposit(user, denom, amount)
	if err != nil {
		return err
	}
	if err := e.custody.TransferIn(asset, user, amount); err != nil {
		return fmt.Errorf("custody transfer-in failed: %w", err)
	}
	if err := e.creditAndRebalance(user, denom, amount); err != nil {
		e.refundDeposit(asset, user, amount)
		return err
	}
	return nil
}

// DepositNative accepts native currency: the declared amount must equal the
// attached value exactly and the target asset must be the wrapped native
// form. The attached value is wrapped into custody and credited like a token
// deposit.
func (e *Engine) DepositNative(user, denom string, declared, attached sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if denom != e.params.WrappedNativeDenom {
		return fmt.Errorf("%w: got %s, wrapped native is %s", ErrWrongNativeAsset, denom, e.params.WrappedNativeDenom)
	}
	if declared.IsNil() || attached.IsNil() || !declared.Equal(attached) {
		return fmt.Errorf("%w: declared %s, attached %s", ErrNativeAmountMismatch, declared, attached)
	}
	asset, err := e.validateDeposit(user, denom, declared)
	if err != nil {
		return err
	}
	if err := e.custody.WrapNative(user, attached); err != nil {
		return fmt.Errorf("native wrap failed: %w", err)
	}
	if err := e.creditAndRebalance(user, denom, declared); err != nil {
		// The native leg was burned by the wrap; the refund is paid in the
		// wrapped form.
		e.refundDeposit(asset, user, declared)
		return err
	}
	return nil
}

// refundDeposit returns an amount already pulled into vault custody to the
// user after the deposit failed past the transfer. A refund failure leaves
// the funds stranded and is logged at error level.
func (e *Engine) refundDeposit(asset types.Asset, user string, amount sdkmath.Int) {
	if err := e.custody.TransferOut(asset, user, amount); err != nil {
		e.log.Error().Err(err).
			Str("user", user).
			Str("asset", asset.Denom).
			Str("amount", amount.String()).
			Msg("Deposit refund failed, funds stranded in vault custody")
	}
}

// validateDeposit checks every deposit precondition before any external call.
func (e *Engine) validateDeposit(user, denom string, amount sdkmath.Int) (types.Asset, error) {
	if !e.allocations.Has(user) {
		return types.Asset{}, fmt.Errorf("%w: %s", registry.ErrAllocationNotSet, user)
	}
	asset, ok := e.assets.Get(denom)
	if !ok {
		return types.Asset{}, fmt.Errorf("%w: %s", registry.ErrAssetNotAllowed, denom)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return types.Asset{}, fmt.Errorf("%w: %s", ErrZeroDeposit, amount)
	}
	return asset, nil
}

// creditAndRebalance applies the ledger credit, registers the member, and
// runs the executor. Internal state is rolled back to its pre-deposit shape
// if any step fails; callers compensate the custody transfer on error.
func (e *Engine) creditAndRebalance(user, denom string, amount sdkmath.Int) (err error) {
	prior, hadPortfolio := e.ledger.Get(user)
	wasMember := e.members.Contains(user)
	defer func() {
		if err == nil {
			return
		}
		if hadPortfolio {
			e.ledger.Restore(prior)
		} else {
			e.ledger.Delete(user)
		}
		if !wasMember {
			e.members.Remove(user)
		}
	}()

	if hadPortfolio {
		if err = e.ledger.Credit(user, denom, amount); err != nil {
			return err
		}
	} else {
		var entries []types.AllocationEntry
		entries, err = e.allocations.Get(user)
		if err != nil {
			return err
		}
		if err = e.ledger.Seed(user, entries, denom, amount); err != nil {
			return err
		}
	}

	e.members.Add(user)
	depositsTotal.Inc()
	e.log.Info().
		Str("user", user).
		Str("asset", denom).
		Str("amount", amount.String()).
		Msg("Deposit credited")

	if _, err = e.rebalanceLocked(user, ""); err != nil {
		return fmt.Errorf("post-deposit rebalance failed: %w", err)
	}
	return nil
}

// Withdraw closes the user's position: the portfolio record and membership
// are cleared before any funds move out, then every positive balance is
// transferred back. The allocation preference is preserved so a later deposit
// reuses the same target split.
func (e *Engine) Withdraw(user string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.members.Contains(user) {
		return fmt.Errorf("%w: %s", ErrNotRegistered, user)
	}
	portfolio, ok := e.ledger.Get(user)
	if !ok || !portfolio.HasPositiveBalance() {
		return fmt.Errorf("%w: %s", ErrEmptyPortfolio, user)
	}

	// State is cleared before the first outbound transfer so a reentrant
	// call cannot observe a withdrawable balance.
	holdings, _ := e.ledger.Purge(user)
	e.members.Remove(user)

	for i, h := range holdings {
		if !h.Balance.IsPositive() {
			continue
		}
		if err := e.custody.TransferOut(h.Asset, user, h.Balance); err != nil {
			// Reinstate only what the vault has not yet paid out. Earlier
			// legs already reached the user and must not become claimable
			// again.
			remaining := make([]types.Holding, len(holdings))
			copy(remaining, holdings)
			for j := 0; j < i; j++ {
				remaining[j].Balance = sdkmath.ZeroInt()
			}
			e.ledger.Restore(types.Portfolio{Owner: user, Holdings: remaining})
			e.members.Add(user)
			return fmt.Errorf("withdrawal transfer of %s %s failed: %w", h.Balance, h.Asset.Denom, err)
		}
	}

	withdrawalsTotal.Inc()
	e.log.Info().Str("user", user).Msg("Withdrawal complete, portfolio purged")
	return nil
}

// OptIn registers the user for sweep monitoring. Idempotent.
func (e *Engine) OptIn(user string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.members.Add(user)
}

// OptOut removes the user from sweep monitoring. Idempotent.
func (e *Engine) OptOut(user string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.members.Remove(user)
}

// --- Queries ---

// GetPortfolio returns the user's current holdings.
func (e *Engine) GetPortfolio(user string) (types.Portfolio, bool) {
	return e.ledger.Get(user)
}

// GetAllocation returns the user's target allocation.
func (e *Engine) GetAllocation(user string) ([]types.AllocationEntry, error) {
	return e.allocations.Get(user)
}

// Members enumerates the monitored users.
func (e *Engine) Members() []string {
	return e.members.List()
}

// Assessment evaluates the user's current drift without mutating anything.
func (e *Engine) Assessment(user string) (analyzer.Assessment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assessLocked(user)
}

// NeedsRebalancing is the read-only drift decision. It derives its answer
// from the same assessment the executor uses, so the two can never disagree.
func (e *Engine) NeedsRebalancing(user string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	assessment, err := e.assessLocked(user)
	if err != nil {
		return false, err
	}
	return assessment.NeedsRebalancing(), nil
}

func (e *Engine) assessLocked(user string) (analyzer.Assessment, error) {
	targets, err := e.allocations.Get(user)
	if err != nil {
		return analyzer.Assessment{}, err
	}
	portfolio, ok := e.ledger.Get(user)
	if !ok {
		return analyzer.Assessment{}, fmt.Errorf("%w: no portfolio for %s", analyzer.ErrInvalidPortfolio, user)
	}
	if err := e.validatePortfolio(portfolio); err != nil {
		return analyzer.Assessment{}, err
	}
	return analyzer.Assess(portfolio, targets, e.converter, e.params.Threshold)
}

// validatePortfolio enforces the two-asset shape: exactly one volatile and
// one pegged asset, both still on the allow-list.
func (e *Engine) validatePortfolio(p types.Portfolio) error {
	if len(p.Holdings) != types.MaxPortfolioAssets {
		return fmt.Errorf("%w: %d holdings, want %d", analyzer.ErrInvalidPortfolio, len(p.Holdings), types.MaxPortfolioAssets)
	}
	var volatile, pegged int
	for _, h := range p.Holdings {
		if !e.assets.IsAllowed(h.Asset.Denom) {
			return fmt.Errorf("%w: %s no longer allowed", analyzer.ErrInvalidPortfolio, h.Asset.Denom)
		}
		switch h.Asset.Class {
		case types.AssetVolatile:
			volatile++
		case types.AssetPegged:
			pegged++
		}
	}
	if volatile != 1 || pegged != 1 {
		return fmt.Errorf("%w: want one volatile and one pegged asset, got %d/%d",
			analyzer.ErrInvalidPortfolio, volatile, pegged)
	}
	return nil
}
