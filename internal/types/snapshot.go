/*

This file contains the persisted shapes: versioned protocol parameters,
per-cycle snapshots and journal events.

*/

package types

import "time"

// ProtocolParameters is the versioned, database-backed protocol
// configuration. A new version is written on every change; exactly one
// version per config name is active.
type ProtocolParameters struct {
	GracePeriodMS int64 `json:"grace_period_ms"`

	Tier1MarketCapUSD int64 `json:"tier1_market_cap_usd"`
	Tier1VolumeUSD    int64 `json:"tier1_volume_usd"`
	Tier2MarketCapUSD int64 `json:"tier2_market_cap_usd"`
	Tier2VolumeUSD    int64 `json:"tier2_volume_usd"`
	Tier3MarketCapUSD int64 `json:"tier3_market_cap_usd"`
	Tier3VolumeUSD    int64 `json:"tier3_volume_usd"`
	Tier4MarketCapUSD int64 `json:"tier4_market_cap_usd"`
	Tier4VolumeUSD    int64 `json:"tier4_volume_usd"`

	BuyFeeBP       uint32 `json:"buy_fee_bp"`
	SellFeeBP      uint32 `json:"sell_fee_bp"`
	StreamingFeeBP uint32 `json:"streaming_fee_bp"`

	MaxHoldings uint32 `json:"max_holdings"`

	OracleStalenessSecs       int64 `json:"oracle_staleness_secs"`
	OracleMaxDeviationBP      int64 `json:"oracle_max_deviation_bp"`
	OracleMinUpdateIntervalMS int64 `json:"oracle_min_update_interval_ms"`

	RebalanceThresholdBP uint32 `json:"rebalance_threshold_bp"`
	CycleIntervalSecs    int64  `json:"cycle_interval_secs"`
}

// HoldingSnapshot is one portfolio position captured in a cycle snapshot.
// Amounts are decimal strings; they can exceed int64.
type HoldingSnapshot struct {
	TokenID        TokenID `json:"token_id"`
	Amount         string  `json:"amount"`
	TargetWeightBP uint32  `json:"target_weight_bp"`
	Priced         bool    `json:"priced"`
	Value          string  `json:"value"`
}

// CycleSnapshot captures the protocol state after one engine cycle.
type CycleSnapshot struct {
	SnapshotID  int64     `json:"snapshot_id,omitempty"`
	CycleNumber int       `json:"cycle_number"`
	CycleID     string    `json:"cycle_id"`
	Timestamp   time.Time `json:"timestamp"`
	ParamsID    *int64    `json:"params_id,omitempty"`

	ActiveTier       string            `json:"active_tier"`
	TierDistribution map[string]uint32 `json:"tier_distribution"`
	TokenCount       int               `json:"token_count"`
	PendingChanges   int               `json:"pending_changes"`
	GraceProcessed   uint32            `json:"grace_processed"`
	TiersRefreshed   uint32            `json:"tiers_refreshed"`

	IndexValue          string            `json:"index_value"`
	PerformanceBP       int32             `json:"performance_bp"`
	TotalPortfolioValue string            `json:"total_portfolio_value"`
	Holdings            []HoldingSnapshot `json:"holdings"`

	TotalStaked        string `json:"total_staked"`
	TotalCollectedFees string `json:"total_collected_fees"`
}

// EventRecord is one journaled protocol event (tier change, shift,
// stake, swap). Payload is stored as JSONB.
type EventRecord struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Component string         `json:"component"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}
