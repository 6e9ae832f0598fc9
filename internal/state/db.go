// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS protocol_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			grace_period_ms BIGINT NOT NULL,
			tier1_market_cap_usd BIGINT NOT NULL, tier1_volume_usd BIGINT NOT NULL,
			tier2_market_cap_usd BIGINT NOT NULL, tier2_volume_usd BIGINT NOT NULL,
			tier3_market_cap_usd BIGINT NOT NULL, tier3_volume_usd BIGINT NOT NULL,
			tier4_market_cap_usd BIGINT NOT NULL, tier4_volume_usd BIGINT NOT NULL,
			buy_fee_bp INTEGER NOT NULL, sell_fee_bp INTEGER NOT NULL, streaming_fee_bp INTEGER NOT NULL,
			max_holdings INTEGER NOT NULL,
			oracle_staleness_secs BIGINT NOT NULL,
			oracle_max_deviation_bp BIGINT NOT NULL,
			oracle_min_update_interval_ms BIGINT NOT NULL,
			rebalance_threshold_bp INTEGER NOT NULL,
			cycle_interval_secs BIGINT NOT NULL,
			CONSTRAINT uq_protocol_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_protocol_parameters_config_active_timestamp ON protocol_parameters(config_name, is_active, activated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_protocol_parameters_config_timestamp ON protocol_parameters(config_name, activated_at DESC);

		CREATE TABLE IF NOT EXISTS protocol_events (
			event_id UUID PRIMARY KEY,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			event_type VARCHAR(50) NOT NULL,
			component VARCHAR(50) NOT NULL,
			payload JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_protocol_events_timestamp ON protocol_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_protocol_events_type ON protocol_events(event_type);
		CREATE INDEX IF NOT EXISTS idx_protocol_events_component ON protocol_events(component);

		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			cycle_id UUID NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			params_id INTEGER REFERENCES protocol_parameters(params_id),

			-- Registry state
			active_tier VARCHAR(10) NOT NULL,
			tier_distribution JSONB,
			token_count INTEGER NOT NULL,
			pending_changes INTEGER NOT NULL,
			grace_processed INTEGER NOT NULL,
			tiers_refreshed INTEGER NOT NULL,

			-- Portfolio state. Amounts stored as NUMERIC; they can exceed int64.
			index_value NUMERIC(40, 0) NOT NULL,
			performance_bp INTEGER NOT NULL,
			total_portfolio_value NUMERIC(40, 0) NOT NULL,
			holdings JSONB,

			-- Staking state
			total_staked NUMERIC(40, 0) NOT NULL,
			total_collected_fees NUMERIC(40, 0) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
