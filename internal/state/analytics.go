// ./internal/state/analytics.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dotindex/core/internal/types"
)

// ProtocolSummary represents high-level protocol statistics
type ProtocolSummary struct {
	IndexValue          string `json:"index_value"`
	PerformanceBP       int32  `json:"performance_bp"`
	TotalPortfolioValue string `json:"total_portfolio_value"`
	TotalStaked         string `json:"total_staked"`
	ActiveTier          string `json:"active_tier"`
	TokenCount          int    `json:"token_count"`
	TotalCycles         int    `json:"total_cycles"`
	LastUpdated         string `json:"last_updated"`
}

// PerformanceMetrics represents aggregated performance data
type PerformanceMetrics struct {
	AvgPerformanceBP   float64 `json:"avg_performance_bp"`
	BestPerformanceBP  int32   `json:"best_performance_bp"`
	WorstPerformanceBP int32   `json:"worst_performance_bp"`
	TotalCycles        int     `json:"total_cycles"`
	PositiveCycles     int     `json:"positive_cycles"`
	TotalGraceApplied  int64   `json:"total_grace_applied"`
}

const snapshotColumns = `
	snapshot_id, cycle_number, cycle_id, snapshot_timestamp, params_id,
	active_tier, tier_distribution, token_count, pending_changes,
	grace_processed, tiers_refreshed,
	index_value, performance_bp, total_portfolio_value, holdings,
	total_staked, total_collected_fees`

func scanSnapshot(row interface{ Scan(...any) error }) (types.CycleSnapshot, error) {
	var cycle types.CycleSnapshot
	var distributionJSON, holdingsJSON []byte

	err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleNumber, &cycle.CycleID, &cycle.Timestamp, &cycle.ParamsID,
		&cycle.ActiveTier, &distributionJSON, &cycle.TokenCount, &cycle.PendingChanges,
		&cycle.GraceProcessed, &cycle.TiersRefreshed,
		&cycle.IndexValue, &cycle.PerformanceBP, &cycle.TotalPortfolioValue, &holdingsJSON,
		&cycle.TotalStaked, &cycle.TotalCollectedFees,
	)
	if err != nil {
		return cycle, err
	}

	if len(distributionJSON) > 0 {
		if err := json.Unmarshal(distributionJSON, &cycle.TierDistribution); err != nil {
			return cycle, fmt.Errorf("failed to unmarshal tier distribution: %w", err)
		}
	}
	if len(holdingsJSON) > 0 {
		if err := json.Unmarshal(holdingsJSON, &cycle.Holdings); err != nil {
			return cycle, fmt.Errorf("failed to unmarshal holdings: %w", err)
		}
	}
	return cycle, nil
}

// GetRecentCycles retrieves recent cycle snapshots, newest first.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT ` + snapshotColumns + `
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		cycle, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Info().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a specific cycle snapshot by its ID.
func GetCycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT ` + snapshotColumns + `
		FROM cycle_snapshots
		WHERE snapshot_id = $1
	`

	cycle, err := scanSnapshot(DB.QueryRow(query, snapshotID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("cycle with ID %d not found", snapshotID)
		}
		log.Error().Err(err).Int64("snapshot_id", snapshotID).Msg("Failed to query cycle by ID")
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}

	log.Info().Int64("snapshot_id", snapshotID).Int("cycle_number", cycle.CycleNumber).Msg("Retrieved cycle by ID")
	return &cycle, nil
}

// GetProtocolSummary retrieves high-level protocol statistics from the
// most recent cycle snapshot.
func GetProtocolSummary() (*ProtocolSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	summary := &ProtocolSummary{}

	query := `
		SELECT
			index_value,
			performance_bp,
			total_portfolio_value,
			total_staked,
			active_tier,
			token_count,
			snapshot_timestamp
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1
	`

	var lastUpdated sql.NullString
	err := DB.QueryRow(query).Scan(
		&summary.IndexValue, &summary.PerformanceBP,
		&summary.TotalPortfolioValue, &summary.TotalStaked,
		&summary.ActiveTier, &summary.TokenCount, &lastUpdated,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get latest cycle values: %w", err)
	}

	if lastUpdated.Valid {
		summary.LastUpdated = lastUpdated.String
	}

	err = DB.QueryRow("SELECT COUNT(*) FROM cycle_snapshots").Scan(&summary.TotalCycles)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get total cycle count")
	}

	log.Info().Str("indexValue", summary.IndexValue).Int("totalCycles", summary.TotalCycles).Msg("Retrieved protocol summary")
	return summary, nil
}

// GetPerformanceMetrics retrieves aggregated performance metrics across
// all recorded cycles.
func GetPerformanceMetrics() (*PerformanceMetrics, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	metrics := &PerformanceMetrics{}

	query := `
		SELECT
			COALESCE(AVG(performance_bp), 0) as avg_performance_bp,
			COALESCE(MAX(performance_bp), 0) as best_performance_bp,
			COALESCE(MIN(performance_bp), 0) as worst_performance_bp,
			COUNT(*) as total_cycles,
			COUNT(CASE WHEN performance_bp >= 0 THEN 1 END) as positive_cycles,
			COALESCE(SUM(grace_processed), 0) as total_grace_applied
		FROM cycle_snapshots
	`

	err := DB.QueryRow(query).Scan(
		&metrics.AvgPerformanceBP,
		&metrics.BestPerformanceBP,
		&metrics.WorstPerformanceBP,
		&metrics.TotalCycles,
		&metrics.PositiveCycles,
		&metrics.TotalGraceApplied,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get performance metrics: %w", err)
	}

	log.Info().
		Float64("avgPerformanceBP", metrics.AvgPerformanceBP).
		Int("totalCycles", metrics.TotalCycles).
		Int("positiveCycles", metrics.PositiveCycles).
		Msg("Retrieved performance metrics")

	return metrics, nil
}
