/*

This file contains the default protocol parameters.

These values are used if no active parameters are found in the database
during initialization, and they match the constants compiled into the
component packages.

*/

package config

import (
	"github.com/dotindex/core/internal/types"
)

// DefaultProtocolParameters provides the baseline protocol configuration.
//
// Classification thresholds and the grace period are deliberately
// conservative: tokens should migrate between tiers slowly, and only
// when their market data has held the new level for a full quarter.
var DefaultProtocolParameters = types.ProtocolParameters{
	// --- Tier Classification ---
	GracePeriodMS: 90 * 24 * 60 * 60 * 1000, // 90 days before a pending tier change applies.

	Tier1MarketCapUSD: 50_000_000, // $50M market cap floor for the entry tier.
	Tier1VolumeUSD:    5_000_000,  // $5M daily volume.
	Tier2MarketCapUSD: 250_000_000,
	Tier2VolumeUSD:    25_000_000,
	Tier3MarketCapUSD: 500_000_000,
	Tier3VolumeUSD:    50_000_000,
	Tier4MarketCapUSD: 2_000_000_000, // $2B market cap for blue-chip classification.
	Tier4VolumeUSD:    200_000_000,

	// --- Portfolio Fees (basis points) ---
	BuyFeeBP:       55,  // 0.55% on entry.
	SellFeeBP:      95,  // 0.95% on exit.
	StreamingFeeBP: 195, // 1.95% annualized management fee.

	MaxHoldings: 50, // Valuation loops iterate every holding; keep the set bounded.

	// --- Oracle Guards ---
	OracleStalenessSecs:       3600,   // Prices older than 1 hour are unusable.
	OracleMaxDeviationBP:      5000,   // Reject single updates moving more than 50%.
	OracleMinUpdateIntervalMS: 60_000, // At most one update per minute per token.

	// --- Engine ---
	RebalanceThresholdBP: 100, // Trade only when a holding drifts more than 1% from target.
	CycleIntervalSecs:    600, // Run the cycle every 10 minutes.
}
