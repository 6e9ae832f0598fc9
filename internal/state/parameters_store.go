// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dotindex/core/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveProtocolParameters saves a new version of the protocol parameters.
func SaveProtocolParameters(params types.ProtocolParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE protocol_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO protocol_parameters (
            version, config_name, is_active, activated_at, created_at,
            grace_period_ms,
            tier1_market_cap_usd, tier1_volume_usd,
            tier2_market_cap_usd, tier2_volume_usd,
            tier3_market_cap_usd, tier3_volume_usd,
            tier4_market_cap_usd, tier4_volume_usd,
            buy_fee_bp, sell_fee_bp, streaming_fee_bp,
            max_holdings,
            oracle_staleness_secs, oracle_max_deviation_bp, oracle_min_update_interval_ms,
            rebalance_threshold_bp, cycle_interval_secs
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6,
            $7, $8,
            $9, $10,
            $11, $12,
            $13, $14,
            $15, $16, $17,
            $18,
            $19, $20, $21,
            $22, $23
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.GracePeriodMS,
		params.Tier1MarketCapUSD, params.Tier1VolumeUSD,
		params.Tier2MarketCapUSD, params.Tier2VolumeUSD,
		params.Tier3MarketCapUSD, params.Tier3VolumeUSD,
		params.Tier4MarketCapUSD, params.Tier4VolumeUSD,
		params.BuyFeeBP, params.SellFeeBP, params.StreamingFeeBP,
		params.MaxHoldings,
		params.OracleStalenessSecs, params.OracleMaxDeviationBP, params.OracleMinUpdateIntervalMS,
		params.RebalanceThresholdBP, params.CycleIntervalSecs,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert protocol parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved protocol parameters")
	return paramsID, nil
}

const parametersColumns = `
            grace_period_ms,
            tier1_market_cap_usd, tier1_volume_usd,
            tier2_market_cap_usd, tier2_volume_usd,
            tier3_market_cap_usd, tier3_volume_usd,
            tier4_market_cap_usd, tier4_volume_usd,
            buy_fee_bp, sell_fee_bp, streaming_fee_bp,
            max_holdings,
            oracle_staleness_secs, oracle_max_deviation_bp, oracle_min_update_interval_ms,
            rebalance_threshold_bp, cycle_interval_secs`

func scanParameters(row *sql.Row) (*types.ProtocolParameters, error) {
	p := &types.ProtocolParameters{}
	err := row.Scan(
		&p.GracePeriodMS,
		&p.Tier1MarketCapUSD, &p.Tier1VolumeUSD,
		&p.Tier2MarketCapUSD, &p.Tier2VolumeUSD,
		&p.Tier3MarketCapUSD, &p.Tier3VolumeUSD,
		&p.Tier4MarketCapUSD, &p.Tier4VolumeUSD,
		&p.BuyFeeBP, &p.SellFeeBP, &p.StreamingFeeBP,
		&p.MaxHoldings,
		&p.OracleStalenessSecs, &p.OracleMaxDeviationBP, &p.OracleMinUpdateIntervalMS,
		&p.RebalanceThresholdBP, &p.CycleIntervalSecs,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LoadActiveProtocolParameters loads the currently active protocol parameters.
func LoadActiveProtocolParameters(configName string) (*types.ProtocolParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT` + parametersColumns + `
        FROM protocol_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	p, err := scanParameters(DB.QueryRow(query, configName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active protocol parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active protocol parameters for config '%s': %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded active protocol parameters")
	return p, nil
}

// LoadLatestProtocolParameters loads the most recently activated
// parameters for a given config name, active or not.
func LoadLatestProtocolParameters(configName string) (*types.ProtocolParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT` + parametersColumns + `
        FROM protocol_parameters
        WHERE config_name = $1
        ORDER BY activated_at DESC, created_at DESC
        LIMIT 1;`

	p, err := scanParameters(DB.QueryRow(query, configName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no protocol parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan latest protocol parameters for config '%s': %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded latest protocol parameters (by activation/creation time)")
	return p, nil
}

// GetActiveProtocolParametersID returns the params_id of the currently
// active protocol parameters.
func GetActiveProtocolParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT params_id
        FROM protocol_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var paramsID int64
	row := DB.QueryRow(query, configName)
	err := row.Scan(&paramsID)

	if err != nil {
		if err == sql.ErrNoRows {
			// No active parameters found - this is valid, return nil
			log.Debug().Str("config", configName).Msg("No active protocol parameters found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active protocol parameters ID for config '%s': %w", configName, err)
	}

	log.Debug().
		Str("config", configName).
		Int64("params_id", paramsID).
		Msg("Retrieved active protocol parameters ID")

	return &paramsID, nil
}
