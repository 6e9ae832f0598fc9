/*

This file contains the portfolio-side types: holdings, fee configuration
and the portfolio operating state.

*/

package types

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// BasisPointDenom is the full scale for basis-point values (100%).
const BasisPointDenom uint32 = 10_000

var ErrFeeOutOfRange = errors.New("fee basis points exceed 10000")

// PortfolioState gates which portfolio operations are allowed.
type PortfolioState string

const (
	StateActive      PortfolioState = "active"      // Normal operations
	StatePaused      PortfolioState = "paused"      // No trades
	StateMaintenance PortfolioState = "maintenance" // Rebalancing in progress
	StateEmergency   PortfolioState = "emergency"   // Withdrawals only
)

// TokenHolding is a position the portfolio holds in one registered token.
type TokenHolding struct {
	// Amount of tokens held, in the token's smallest unit.
	Amount sdkmath.Int `json:"amount"`
	// TargetWeightBP is the target allocation in basis points (0-10000).
	// The sum across all holdings never exceeds 10000.
	TargetWeightBP uint32 `json:"target_weight_bp"`
	// LastRebalance is the unix-millisecond stamp of the last mutation.
	LastRebalance int64 `json:"last_rebalance"`
	// FeesCollected accumulates fees attributed to this holding.
	FeesCollected sdkmath.Int `json:"fees_collected"`
}

// FeeConfiguration holds the portfolio fee schedule in basis points.
type FeeConfiguration struct {
	BuyFeeBP       uint32 `json:"buy_fee_bp"`
	SellFeeBP      uint32 `json:"sell_fee_bp"`
	StreamingFeeBP uint32 `json:"streaming_fee_bp"`
}

// DefaultFeeConfiguration returns the protocol defaults:
// 0.55% buy, 0.95% sell, 1.95% annual streaming.
func DefaultFeeConfiguration() FeeConfiguration {
	return FeeConfiguration{
		BuyFeeBP:       55,
		SellFeeBP:      95,
		StreamingFeeBP: 195,
	}
}

// Validate rejects any fee above 100%.
func (f FeeConfiguration) Validate() error {
	if f.BuyFeeBP > BasisPointDenom || f.SellFeeBP > BasisPointDenom || f.StreamingFeeBP > BasisPointDenom {
		return ErrFeeOutOfRange
	}
	return nil
}

// HoldingValuation is one row of a portfolio valuation breakdown.
type HoldingValuation struct {
	TokenID TokenID     `json:"token_id"`
	Amount  sdkmath.Int `json:"amount"`
	// Price is the live oracle price, zero when unavailable.
	Price sdkmath.Int `json:"price"`
	// Value is Amount × Price, or Amount alone when pricing failed.
	Value sdkmath.Int `json:"value"`
	// Priced reports whether live market data backed this row.
	Priced bool `json:"priced"`
}

// PortfolioComposition summarizes the portfolio's current holdings.
type PortfolioComposition struct {
	TotalTokens uint32      `json:"total_tokens"`
	TotalValue  sdkmath.Int `json:"total_value"`
	Holdings    []struct {
		TokenID TokenID      `json:"token_id"`
		Holding TokenHolding `json:"holding"`
	} `json:"holdings"`
}
