/*

This file contains the staking types: per-account stake records and the
queued unstaking requests.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// StakeInfo is the per-account stake record.
type StakeInfo struct {
	// Amount currently staked, rewards auto-compounded in.
	Amount sdkmath.Int `json:"amount"`
	// StakedAt is when the stake was first created, unix milliseconds.
	StakedAt int64 `json:"staked_at"`
	// LastClaim is the last reward settlement point, unix milliseconds.
	LastClaim int64 `json:"last_claim"`
	// UnstakingPeriod in seconds, snapshotted from the active tier at the
	// time of the latest deposit. Applies to the whole balance.
	UnstakingPeriod int64 `json:"unstaking_period"`
	// TierAtStake records the active tier at the latest deposit.
	TierAtStake Tier `json:"tier_at_stake"`
}

// UnstakingRequest is one queued withdrawal of staked principal.
// Claimed requests stay in the queue; they are never compacted.
type UnstakingRequest struct {
	Amount sdkmath.Int `json:"amount"`
	// RequestedAt is when the request was created, unix milliseconds.
	RequestedAt int64 `json:"requested_at"`
	// AvailableAt is RequestedAt plus the unstaking period in force on the
	// stake at request time, unix milliseconds.
	AvailableAt int64 `json:"available_at"`
	Claimed     bool  `json:"claimed"`
}
