package state

import (
	"github.com/keeperlabs/rebalancer/internal/types"
)

// PostgresRecorder adapts the package-level persistence functions to the
// engine's Recorder interface.
type PostgresRecorder struct{}

func NewPostgresRecorder() *PostgresRecorder {
	return &PostgresRecorder{}
}

func (PostgresRecorder) RecordSwap(receipt types.SwapReceipt) error {
	_, err := SaveSwapReceipt(receipt)
	return err
}

func (PostgresRecorder) RecordSweep(snapshot types.SweepSnapshot) error {
	_, err := SaveSweepSnapshot(snapshot)
	return err
}
