/*

This file contains the tier classification types shared by the registry,
portfolio and staking components.

*/

package types

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// Tier is the discrete market-cap/volume classification of a token.
// The ordering is significant: a higher tier means a larger, more liquid
// market bracket.
type Tier uint8

const (
	TierNone Tier = iota // Below minimum thresholds
	Tier1                // $50M market cap + $5M volume
	Tier2                // $250M market cap + $25M volume
	Tier3                // $500M market cap + $50M volume
	Tier4                // $2B market cap + $200M volume
)

// AllTiers lists every tier in ascending order, TierNone included.
var AllTiers = []Tier{TierNone, Tier1, Tier2, Tier3, Tier4}

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	case Tier4:
		return "tier4"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t <= Tier4
}

// HigherTiers returns the tiers strictly above t in ascending order.
// Used by the 80% rule, which scans the lowest qualifying higher tier first.
func (t Tier) HigherTiers() []Tier {
	if t >= Tier4 {
		return nil
	}
	higher := make([]Tier, 0, Tier4-t)
	for candidate := t + 1; candidate <= Tier4; candidate++ {
		higher = append(higher, candidate)
	}
	return higher
}

var ErrThresholdsNotAscending = errors.New("tier thresholds must be strictly ascending")

// TierThresholds holds the USD thresholds for each tier. Amounts are whole
// USD; they are converted to native units through the live USD rate at
// classification time.
type TierThresholds struct {
	Tier1MarketCapUSD sdkmath.Int `json:"tier1_market_cap_usd"`
	Tier1VolumeUSD    sdkmath.Int `json:"tier1_volume_usd"`
	Tier2MarketCapUSD sdkmath.Int `json:"tier2_market_cap_usd"`
	Tier2VolumeUSD    sdkmath.Int `json:"tier2_volume_usd"`
	Tier3MarketCapUSD sdkmath.Int `json:"tier3_market_cap_usd"`
	Tier3VolumeUSD    sdkmath.Int `json:"tier3_volume_usd"`
	Tier4MarketCapUSD sdkmath.Int `json:"tier4_market_cap_usd"`
	Tier4VolumeUSD    sdkmath.Int `json:"tier4_volume_usd"`
}

// DefaultTierThresholds returns the protocol defaults:
// Tier1 $50M/$5M, Tier2 $250M/$25M, Tier3 $500M/$50M, Tier4 $2B/$200M.
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{
		Tier1MarketCapUSD: sdkmath.NewInt(50_000_000),
		Tier1VolumeUSD:    sdkmath.NewInt(5_000_000),
		Tier2MarketCapUSD: sdkmath.NewInt(250_000_000),
		Tier2VolumeUSD:    sdkmath.NewInt(25_000_000),
		Tier3MarketCapUSD: sdkmath.NewInt(500_000_000),
		Tier3VolumeUSD:    sdkmath.NewInt(50_000_000),
		Tier4MarketCapUSD: sdkmath.NewInt(2_000_000_000),
		Tier4VolumeUSD:    sdkmath.NewInt(200_000_000),
	}
}

// Validate checks that both threshold series are strictly ascending
// across tiers and that every value is positive.
func (t TierThresholds) Validate() error {
	marketCaps := []sdkmath.Int{
		t.Tier1MarketCapUSD, t.Tier2MarketCapUSD, t.Tier3MarketCapUSD, t.Tier4MarketCapUSD,
	}
	volumes := []sdkmath.Int{
		t.Tier1VolumeUSD, t.Tier2VolumeUSD, t.Tier3VolumeUSD, t.Tier4VolumeUSD,
	}

	for _, series := range [][]sdkmath.Int{marketCaps, volumes} {
		for i, v := range series {
			if v.IsNil() || !v.IsPositive() {
				return ErrThresholdsNotAscending
			}
			if i > 0 && !series[i].GT(series[i-1]) {
				return ErrThresholdsNotAscending
			}
		}
	}
	return nil
}

// MarketCapUSD returns the market-cap threshold for the given tier,
// or a nil Int for TierNone.
func (t TierThresholds) MarketCapUSD(tier Tier) sdkmath.Int {
	switch tier {
	case Tier1:
		return t.Tier1MarketCapUSD
	case Tier2:
		return t.Tier2MarketCapUSD
	case Tier3:
		return t.Tier3MarketCapUSD
	case Tier4:
		return t.Tier4MarketCapUSD
	default:
		return sdkmath.Int{}
	}
}

// VolumeUSD returns the volume threshold for the given tier,
// or a nil Int for TierNone.
func (t TierThresholds) VolumeUSD(tier Tier) sdkmath.Int {
	switch tier {
	case Tier1:
		return t.Tier1VolumeUSD
	case Tier2:
		return t.Tier2VolumeUSD
	case Tier3:
		return t.Tier3VolumeUSD
	case Tier4:
		return t.Tier4VolumeUSD
	default:
		return sdkmath.Int{}
	}
}

// TierChangeReason tags why a tier transition was requested. Grace-period
// handling depends on it: override/emergency reasons apply immediately,
// everything else parks the change as pending.
type TierChangeReason string

const (
	ReasonManual         TierChangeReason = "manual"
	ReasonScheduled      TierChangeReason = "scheduled"
	ReasonAutomatic      TierChangeReason = "automatic"
	ReasonManualOverride TierChangeReason = "manual_override"
	ReasonEmergency      TierChangeReason = "emergency"

	// ReasonGracePeriodEnded is used on events when a parked change is applied.
	ReasonGracePeriodEnded TierChangeReason = "grace_period_ended"

	// AutoShiftReason is the sentinel that allows ShiftActiveTier to run
	// without owner authority.
	AutoShiftReason = "80_percent_rule"
)

// Immediate reports whether the reason bypasses the grace period.
func (r TierChangeReason) Immediate() bool {
	return r == ReasonManualOverride || r == ReasonEmergency
}
