/*

This file contains the tier classification engine: threshold-based tier
calculation, grace-period-delayed transitions, the cached tier
distribution and the 80% rule that shifts the protocol's active tier.

*/

package registry

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/types"
)

const (
	// DefaultGracePeriodMS delays automatic tier transitions by 90 days.
	DefaultGracePeriodMS int64 = 90 * 24 * 60 * 60 * 1000
	// MinGracePeriodMS is 1 hour.
	MinGracePeriodMS int64 = 60 * 60 * 1000
	// MaxGracePeriodMS is 365 days.
	MaxGracePeriodMS int64 = 365 * 24 * 60 * 60 * 1000

	// MinTokensForTierShift disables the 80% rule below this population;
	// a handful of tokens is not a statistically meaningful sample.
	MinTokensForTierShift = 5
	// TierShiftThresholdPercent is the supermajority required to shift
	// the active tier.
	TierShiftThresholdPercent = 80
)

// fallbackUSDRate is the conservative native-units-per-USD rate used when
// the live rate is unavailable (assumes 1 native = $5, 10^10 base units).
var fallbackUSDRate = sdkmath.NewInt(2_000_000_000)

// oneNativeInUnits is one whole native token in its smallest unit.
var oneNativeInUnits = sdkmath.NewInt(10_000_000_000)

// usdRate returns the native-units-per-USD conversion rate from the
// configured rate source, or the conservative fallback. Rate
// unavailability is expected and never an error.
func (r *Registry) usdRate() sdkmath.Int {
	if r.usdSource == nil || r.usdToken.IsZero() {
		return fallbackUSDRate
	}
	priceUSD, ok := r.usdSource.GetPrice(r.usdToken)
	if !ok || !priceUSD.IsPositive() {
		return fallbackUSDRate
	}
	// units per USD = (units per native) / (USD price of one native, in units)
	rate := oneNativeInUnits.Quo(priceUSD)
	if !rate.IsPositive() {
		return fallbackUSDRate
	}
	return rate
}

// CalculateTierFromValues classifies raw market data against the current
// thresholds. Thresholds are USD amounts converted to native units with a
// saturating multiply; ties at a boundary favor the higher tier, so the
// scan runs Tier4 downward.
func (r *Registry) CalculateTierFromValues(marketCap, volume sdkmath.Int) types.Tier {
	rate := r.usdRate()

	for _, tier := range []types.Tier{types.Tier4, types.Tier3, types.Tier2, types.Tier1} {
		capThreshold := safemath.SaturatingMul(r.thresholds.MarketCapUSD(tier), rate)
		volThreshold := safemath.SaturatingMul(r.thresholds.VolumeUSD(tier), rate)
		if marketCap.GTE(capThreshold) && volume.GTE(volThreshold) {
			return tier
		}
	}
	return types.TierNone
}

// calculateTokenTier reads live market data and classifies it. The bool
// is false when the oracle has no fresh data for the token.
func (r *Registry) calculateTokenTier(tokenContract types.Address) (types.Tier, bool) {
	marketCap, ok := r.marketData.GetMarketCap(tokenContract)
	if !ok {
		return types.TierNone, false
	}
	volume, ok := r.marketData.GetMarketVolume(tokenContract)
	if !ok {
		return types.TierNone, false
	}
	return r.CalculateTierFromValues(marketCap, volume), true
}

// handleTierChange routes a computed tier change for a token. Override and
// emergency reasons apply immediately and keep the distribution cache in
// lock-step; all other reasons park the change as pending and start the
// grace period. Equal tiers are a no-op.
func (r *Registry) handleTierChange(id types.TokenID, info *types.TokenInfo, newTier types.Tier, reason types.TierChangeReason) {
	oldTier := info.Tier
	if newTier == oldTier {
		return
	}
	now := r.nowMillis()

	if reason.Immediate() {
		r.decrementTierCount(oldTier)
		r.incrementTierCount(newTier)

		info.Tier = newTier
		info.TierChangeTimestamp = now
		info.HasPendingTier = false
		info.PendingTier = types.TierNone

		r.log.Info().
			Uint32("tokenID", uint32(id)).
			Str("oldTier", oldTier.String()).
			Str("newTier", newTier.String()).
			Str("reason", string(reason)).
			Msg("Token tier changed")
		return
	}

	info.PendingTier = newTier
	info.HasPendingTier = true
	info.TierChangeTimestamp = now

	r.log.Info().
		Uint32("tokenID", uint32(id)).
		Str("currentTier", oldTier.String()).
		Str("pendingTier", newTier.String()).
		Int64("graceEndTime", now+r.gracePeriodMS).
		Msg("Grace period started for tier change")
}

// ProcessGracePeriods applies every pending tier change whose grace
// period has elapsed and returns the number applied. Safe to call
// repeatedly; tokens without an expired pending change are untouched.
func (r *Registry) ProcessGracePeriods(caller types.Address) (uint32, error) {
	if err := r.ensureRole(caller, types.RoleTokenUpdater); err != nil {
		return 0, fmt.Errorf("process grace periods: %w", err)
	}

	now := r.nowMillis()
	var processed uint32

	for id := types.TokenID(1); id < r.nextTokenID; id++ {
		info, ok := r.tokens[id]
		if !ok || !info.HasPendingTier {
			continue
		}
		if now-info.TierChangeTimestamp < r.gracePeriodMS {
			continue
		}

		oldTier := info.Tier
		r.decrementTierCount(oldTier)
		r.incrementTierCount(info.PendingTier)

		info.Tier = info.PendingTier
		info.PendingTier = types.TierNone
		info.HasPendingTier = false
		info.TierChangeTimestamp = now
		r.tokens[id] = info
		processed++

		r.log.Info().
			Uint32("tokenID", uint32(id)).
			Str("oldTier", oldTier.String()).
			Str("newTier", info.Tier.String()).
			Str("reason", string(types.ReasonGracePeriodEnded)).
			Msg("Token tier changed")
	}

	if processed > 0 {
		r.checkAutoTierShift()
	}
	return processed, nil
}

// RefreshAllTiers recalculates every token's tier from live market data
// and routes differences through the grace-period logic. Returns the
// number of tokens whose classification changed. Tokens without market
// data keep their stored tier.
func (r *Registry) RefreshAllTiers(caller types.Address) (uint32, error) {
	if err := r.ensureRole(caller, types.RoleTokenManager); err != nil {
		return 0, fmt.Errorf("refresh all tiers: %w", err)
	}

	var updated uint32
	for id := types.TokenID(1); id < r.nextTokenID; id++ {
		info, ok := r.tokens[id]
		if !ok {
			continue
		}
		newTier, ok := r.calculateTokenTier(info.TokenContract)
		if !ok || newTier == info.Tier {
			continue
		}
		r.handleTierChange(id, &info, newTier, types.ReasonScheduled)
		r.tokens[id] = info
		updated++
	}

	r.checkAutoTierShift()
	return updated, nil
}

// TierDistribution returns the cached token count per tier in ascending
// tier order.
func (r *Registry) TierDistribution() map[types.Tier]uint32 {
	distribution := make(map[types.Tier]uint32, len(types.AllTiers))
	for _, tier := range types.AllTiers {
		distribution[tier] = r.tierDistribution[tier]
	}
	return distribution
}

// RefreshTierDistribution rebuilds the distribution cache with a full
// scan (owner only). The cache is maintained in lock-step on every tier
// change; this exists to recover from operational mistakes.
func (r *Registry) RefreshTierDistribution(caller types.Address) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("refresh tier distribution: %w", err)
	}
	fresh := make(map[types.Tier]uint32, len(types.AllTiers))
	for _, info := range r.tokens {
		fresh[info.Tier]++
	}
	r.tierDistribution = fresh
	return nil
}

// ShouldShiftTier evaluates the 80% rule. Disabled below the minimum
// population. Tiers strictly above the active tier are scanned low to
// high; the first one holding at least 80% of all tokens wins, so the
// lowest qualifying higher tier is the shift target.
func (r *Registry) ShouldShiftTier() (types.Tier, bool) {
	total := uint32(len(r.tokens))
	if total < MinTokensForTierShift {
		return types.TierNone, false
	}

	for _, candidate := range r.activeTier.HigherTiers() {
		count := r.tierDistribution[candidate]
		percentage := uint64(count) * 100 / uint64(total)
		if percentage >= TierShiftThresholdPercent {
			return candidate, true
		}
	}
	return types.TierNone, false
}

// ShiftActiveTier moves the protocol's rebalancing target tier. Owner
// gated unless the reason is the automatic-rule sentinel. A shift to the
// current tier is a no-op.
func (r *Registry) ShiftActiveTier(caller types.Address, newTier types.Tier, reason string) error {
	if reason != types.AutoShiftReason {
		if err := r.ensureOwner(caller); err != nil {
			return fmt.Errorf("shift active tier: %w", err)
		}
	}
	if !newTier.Valid() {
		return fmt.Errorf("shift active tier: %w", types.ErrInvalidParameter)
	}

	oldTier := r.activeTier
	if oldTier == newTier {
		return nil
	}

	r.activeTier = newTier
	r.lastTierChange = r.nowMillis()

	r.log.Info().
		Str("oldTier", oldTier.String()).
		Str("newTier", newTier.String()).
		Str("reason", reason).
		Uint32("qualifying", r.tierDistribution[newTier]).
		Int("totalTokens", len(r.tokens)).
		Msg("Active tier shifted")
	return nil
}

// checkAutoTierShift runs after every tier-affecting mutation; there is
// no scheduler, so this is how the active tier stays current.
func (r *Registry) checkAutoTierShift() {
	if target, ok := r.ShouldShiftTier(); ok {
		_ = r.ShiftActiveTier(r.owner, target, types.AutoShiftReason)
	}
}

func (r *Registry) incrementTierCount(tier types.Tier) {
	r.tierDistribution[tier]++
}

func (r *Registry) decrementTierCount(tier types.Tier) {
	if r.tierDistribution[tier] > 0 {
		r.tierDistribution[tier]--
	}
}
