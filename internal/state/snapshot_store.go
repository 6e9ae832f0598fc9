// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dotindex/core/internal/types"
)

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	distributionJSON, err := json.Marshal(snapshot.TierDistribution)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tier_distribution: %w", err)
	}

	holdingsJSON, err := json.Marshal(snapshot.Holdings)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal holdings: %w", err)
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, params_id,
			active_tier, tier_distribution, token_count, pending_changes,
			grace_processed, tiers_refreshed,
			index_value, performance_bp, total_portfolio_value, holdings,
			total_staked, total_collected_fees
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, snapshot.ParamsID,
		snapshot.ActiveTier, distributionJSON, snapshot.TokenCount, snapshot.PendingChanges,
		snapshot.GraceProcessed, snapshot.TiersRefreshed,
		snapshot.IndexValue, snapshot.PerformanceBP, snapshot.TotalPortfolioValue, holdingsJSON,
		snapshot.TotalStaked, snapshot.TotalCollectedFees,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("cycle_id", snapshot.CycleID).
		Str("index_value", snapshot.IndexValue).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// SaveEvent journals a protocol event.
func SaveEvent(event types.EventRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO protocol_events (event_id, event_timestamp, event_type, component, payload)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err = DB.Exec(query, event.EventID, event.Timestamp, event.EventType, event.Component, payloadJSON)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetRecentEvents returns the most recent journaled events, newest first.
func GetRecentEvents(limit int) ([]types.EventRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT event_id, event_timestamp, event_type, component, payload
		FROM protocol_events
		ORDER BY event_timestamp DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []types.EventRecord
	for rows.Next() {
		var event types.EventRecord
		var payloadJSON []byte
		if err := rows.Scan(&event.EventID, &event.Timestamp, &event.EventType, &event.Component, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
