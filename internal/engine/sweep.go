/*

Scheduler-facing trigger surface and the keeper loop. CheckTriggerNeeded is
the cheap read-only probe an automation network polls; RunTrigger re-derives
the same condition itself (it never trusts a caller-supplied flag), then
sweeps the whole member set.

*/

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/keeperlabs/rebalancer/internal/analyzer"
	"github.com/keeperlabs/rebalancer/internal/registry"
	"github.com/keeperlabs/rebalancer/internal/types"
)

// CheckTriggerNeeded reports whether a sweep is due: the rebalance interval
// has elapsed and at least one monitored user is out of band. Scanning
// short-circuits on the first such user.
func (e *Engine) CheckTriggerNeeded() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.triggerNeededLocked()
}

func (e *Engine) triggerNeededLocked() (bool, error) {
	if e.nowFn().Sub(e.lastRun) < e.params.Interval {
		return false, nil
	}
	for _, user := range e.members.List() {
		needed, err := e.memberNeedsRebalancing(user)
		if err != nil {
			return false, err
		}
		if needed {
			return true, nil
		}
	}
	return false, nil
}

// memberNeedsRebalancing evaluates one member defensively: membership does
// not guarantee a valid allocation or portfolio, so structurally invalid
// members are skipped rather than failing the scan. Oracle failures are real
// errors and propagate.
func (e *Engine) memberNeedsRebalancing(user string) (bool, error) {
	assessment, err := e.assessLocked(user)
	if err != nil {
		if errors.Is(err, registry.ErrAllocationNotSet) || errors.Is(err, analyzer.ErrInvalidPortfolio) {
			e.log.Debug().Str("user", user).Err(err).Msg("Skipping member without evaluable state")
			return false, nil
		}
		return false, err
	}
	return assessment.NeedsRebalancing(), nil
}

// RunTrigger executes a sweep: it re-validates the trigger condition, records
// the run time, and rebalances every member whose drift is out of band. There
// is no per-user failure isolation; if any rebalance fails, the engine's
// internal state is restored to its pre-sweep snapshot and the error is
// returned. External effects of swaps that had already completed cannot be
// recalled.
func (e *Engine) RunTrigger() (types.SweepSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	needed, err := e.triggerNeededLocked()
	if err != nil {
		return types.SweepSnapshot{}, err
	}
	if !needed {
		return types.SweepSnapshot{}, ErrTriggerNotNeeded
	}

	snapshot := types.SweepSnapshot{
		SweepID:   uuid.New().String(),
		StartedAt: e.nowFn(),
	}
	sweepLog := e.log.With().Str("sweep_id", snapshot.SweepID).Logger()
	sweepLog.Info().Msg("--- Starting rebalancing sweep ---")

	priorLastRun := e.lastRun
	ledgerSnap := e.ledger.Snapshot()
	e.lastRun = e.nowFn()

	members := e.members.List()
	snapshot.MembersScanned = len(members)
	for _, user := range members {
		needed, err := e.memberNeedsRebalancing(user)
		if err != nil {
			e.ledger.RestoreAll(ledgerSnap)
			e.lastRun = priorLastRun
			sweepFailures.Inc()
			return types.SweepSnapshot{}, err
		}
		if !needed {
			continue
		}
		receipts, err := e.rebalanceLocked(user, snapshot.SweepID)
		if err != nil {
			sweepLog.Error().Err(err).Str("user", user).Msg("Sweep aborted: rebalance failed")
			e.ledger.RestoreAll(ledgerSnap)
			e.lastRun = priorLastRun
			sweepFailures.Inc()
			return types.SweepSnapshot{}, err
		}
		snapshot.UsersRebalanced++
		snapshot.SwapsExecuted += len(receipts)
		snapshot.Receipts = append(snapshot.Receipts, receipts...)
	}

	snapshot.FinishedAt = e.nowFn()
	sweepsRun.Inc()
	e.recordSweep(snapshot)

	sweepLog.Info().
		Int("membersScanned", snapshot.MembersScanned).
		Int("usersRebalanced", snapshot.UsersRebalanced).
		Int("swapsExecuted", snapshot.SwapsExecuted).
		Str("duration", snapshot.FinishedAt.Sub(snapshot.StartedAt).String()).
		Msg("--- Sweep completed ---")
	return snapshot, nil
}

func (e *Engine) recordSweep(snapshot types.SweepSnapshot) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordSweep(snapshot); err != nil {
		e.log.Error().Err(err).Str("sweep_id", snapshot.SweepID).Msg("Failed to persist sweep snapshot")
	}
}

// RunLoop polls the trigger condition until the context is cancelled. The
// first check runs immediately; poll sets how often the condition is probed,
// independent of the rebalance interval gate itself.
func (e *Engine) RunLoop(ctx context.Context, poll time.Duration) {
	e.log.Info().Dur("poll", poll).Msg("Starting keeper loop")

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		e.pollOnce()
		select {
		case <-ctx.Done():
			e.log.Info().Msg("Keeper loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) pollOnce() {
	needed, err := e.CheckTriggerNeeded()
	if err != nil {
		e.log.Error().Err(err).Msg("Trigger check failed")
		return
	}
	if !needed {
		return
	}
	if _, err := e.RunTrigger(); err != nil && !errors.Is(err, ErrTriggerNotNeeded) {
		e.log.Error().Err(err).Msg("Sweep failed")
	}
}
