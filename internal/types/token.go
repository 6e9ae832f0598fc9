/*

This file contains the registry-side token catalog types.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// TokenID identifies a registered token. IDs are assigned monotonically
// starting at 1; 0 is never a valid id.
type TokenID uint32

// Address identifies an external contract (token, oracle, wallet).
// The empty string is the zero address and is rejected everywhere.
type Address string

// ZeroAddress is the invalid null address.
const ZeroAddress Address = ""

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// TokenInfo is the registry's stored record for a token, including the
// applied tier and any in-flight grace-period transition.
type TokenInfo struct {
	TokenContract  Address     `json:"token_contract"`
	OracleContract Address     `json:"oracle_contract"`
	Balance        sdkmath.Int `json:"balance"`
	// WeightInvestment is the target investment weight in basis points (0-10000).
	WeightInvestment uint32 `json:"weight_investment"`
	// Tier is the currently applied tier. It may lag the tier a fresh
	// calculation would yield while a grace period is running.
	Tier Tier `json:"tier"`
	// TierChangeTimestamp is the unix-millisecond stamp of the last tier
	// event (applied change or grace-period start). Zero means never.
	TierChangeTimestamp int64 `json:"tier_change_timestamp,omitempty"`
	// PendingTier holds a parked tier change awaiting grace-period expiry.
	PendingTier    Tier `json:"pending_tier,omitempty"`
	HasPendingTier bool `json:"has_pending_tier,omitempty"`
}

// EnrichedTokenData is TokenInfo joined with live oracle market data.
// Price, market cap and volume are zero when the oracle has no fresh data.
type EnrichedTokenData struct {
	TokenContract    Address     `json:"token_contract"`
	OracleContract   Address     `json:"oracle_contract"`
	Balance          sdkmath.Int `json:"balance"`
	WeightInvestment uint32      `json:"weight_investment"`
	Tier             Tier        `json:"tier"`
	MarketCap        sdkmath.Int `json:"market_cap"`
	MarketVolume     sdkmath.Int `json:"market_volume"`
	Price            sdkmath.Int `json:"price"`
}

// PendingTierChange describes a token with a parked tier transition.
type PendingTierChange struct {
	TokenID     TokenID `json:"token_id"`
	CurrentTier Tier    `json:"current_tier"`
	PendingTier Tier    `json:"pending_tier"`
	// StartedAt is when the grace period began, unix milliseconds.
	StartedAt int64 `json:"started_at"`
}

// Role is a registry authorization role. The owner implicitly holds
// every role.
type Role string

const (
	// RoleTokenManager may add/remove tokens and run manual tier operations.
	RoleTokenManager Role = "token_manager"
	// RoleTokenUpdater may update balances/weights and process grace periods.
	RoleTokenUpdater Role = "token_updater"
)
