// ./internal/state/receipt_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/keeperlabs/rebalancer/internal/types"
)

// SaveSwapReceipt persists a single swap receipt.
func SaveSwapReceipt(receipt types.SwapReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO swap_receipts (
			sweep_id, user_addr, from_denom, to_denom,
			amount_in, amount_out, excess_value_usd, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING receipt_id;
	`

	sweepID := sql.NullString{String: receipt.SweepID, Valid: receipt.SweepID != ""}
	var receiptID int64
	err := DB.QueryRow(
		query,
		sweepID, receipt.User, receipt.FromDenom, receipt.ToDenom,
		receipt.AmountIn.String(), receipt.AmountOut.String(),
		receipt.ExcessValueUsd.String(), receipt.Timestamp,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save swap receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("user", receipt.User).
		Msg("Swap receipt saved to database")
	return receiptID, nil
}

// GetRecentReceipts returns up to limit receipts, newest first.
func GetRecentReceipts(limit int) ([]types.SwapReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := DB.Query(`
		SELECT COALESCE(sweep_id, ''), user_addr, from_denom, to_denom,
		       amount_in::text, amount_out::text, excess_value_usd::text, executed_at
		FROM swap_receipts
		ORDER BY executed_at DESC, receipt_id DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.SwapReceipt
	for rows.Next() {
		var r types.SwapReceipt
		var amountIn, amountOut, excessValue string
		var executedAt time.Time
		if err := rows.Scan(&r.SweepID, &r.User, &r.FromDenom, &r.ToDenom,
			&amountIn, &amountOut, &excessValue, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swap receipt: %w", err)
		}
		r.AmountIn, err = parseIntColumn(amountIn, "amount_in")
		if err != nil {
			return nil, err
		}
		r.AmountOut, err = parseIntColumn(amountOut, "amount_out")
		if err != nil {
			return nil, err
		}
		r.ExcessValueUsd, err = parseIntColumn(excessValue, "excess_value_usd")
		if err != nil {
			return nil, err
		}
		r.Timestamp = executedAt
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// SaveSweepSnapshot persists a complete sweep snapshot.
func SaveSweepSnapshot(snapshot types.SweepSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	receiptsJSON, err := json.Marshal(snapshot.Receipts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal receipts: %w", err)
	}

	query := `
		INSERT INTO sweep_snapshots (
			sweep_id, started_at, finished_at,
			members_scanned, users_rebalanced, swaps_executed, receipts
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.SweepID, snapshot.StartedAt, snapshot.FinishedAt,
		snapshot.MembersScanned, snapshot.UsersRebalanced, snapshot.SwapsExecuted,
		receiptsJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save sweep snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Str("sweep_id", snapshot.SweepID).
		Int("swaps_executed", snapshot.SwapsExecuted).
		Msg("Sweep snapshot saved to database")
	return snapshotID, nil
}

// GetRecentSweeps returns up to limit sweep snapshots, newest first.
func GetRecentSweeps(limit int) ([]types.SweepSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := DB.Query(`
		SELECT sweep_id, started_at, finished_at,
		       members_scanned, users_rebalanced, swaps_executed, COALESCE(receipts, '[]'::jsonb)
		FROM sweep_snapshots
		ORDER BY started_at DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.SweepSnapshot
	for rows.Next() {
		var (
			s            types.SweepSnapshot
			receiptsJSON []byte
		)
		if err := rows.Scan(&s.SweepID, &s.StartedAt, &s.FinishedAt,
			&s.MembersScanned, &s.UsersRebalanced, &s.SwapsExecuted, &receiptsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sweep snapshot: %w", err)
		}
		if err := json.Unmarshal(receiptsJSON, &s.Receipts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipts for sweep %s: %w", s.SweepID, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func parseIntColumn(value, column string) (sdkmath.Int, error) {
	parsed, ok := sdkmath.NewIntFromString(value)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid integer in column %s: %q", column, value)
	}
	return parsed, nil
}
