/*

This file contains the token registry: the catalog of registered tokens,
role-based access control, emergency tier overrides and the read API the
other components consume.

*/

package registry

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/types"
)

// MarketDataSource supplies live oracle data for registered tokens.
// A false bool means no fresh data is available; callers fall back or
// skip, they never fail hard on it.
type MarketDataSource interface {
	GetPrice(token types.Address) (sdkmath.Int, bool)
	GetMarketCap(token types.Address) (sdkmath.Int, bool)
	GetMarketVolume(token types.Address) (sdkmath.Int, bool)
}

type roleKey struct {
	role    types.Role
	account types.Address
}

// Registry is the token catalog and tier classification authority.
// It is not safe for concurrent use; the engine serializes access.
type Registry struct {
	owner types.Address
	roles map[roleKey]bool

	tokens       map[types.TokenID]types.TokenInfo
	contractToID map[types.Address]types.TokenID
	nextTokenID  types.TokenID

	activeTier     types.Tier
	lastTierChange int64

	thresholds       types.TierThresholds
	tierDistribution map[types.Tier]uint32
	gracePeriodMS    int64

	marketData MarketDataSource
	usdSource  MarketDataSource
	usdToken   types.Address

	nowFn func() time.Time
	log   zerolog.Logger
}

// New creates a registry owned by owner, reading market data from source.
// The active tier starts at Tier1 and thresholds at the protocol defaults.
func New(owner types.Address, source MarketDataSource) (*Registry, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("new registry: owner: %w", types.ErrZeroAddress)
	}
	if source == nil {
		return nil, fmt.Errorf("new registry: nil market data source: %w", types.ErrInvalidParameter)
	}
	return &Registry{
		owner:            owner,
		roles:            make(map[roleKey]bool),
		tokens:           make(map[types.TokenID]types.TokenInfo),
		contractToID:     make(map[types.Address]types.TokenID),
		nextTokenID:      1,
		activeTier:       types.Tier1,
		thresholds:       types.DefaultTierThresholds(),
		tierDistribution: make(map[types.Tier]uint32),
		gracePeriodMS:    DefaultGracePeriodMS,
		marketData:       source,
		nowFn:            time.Now,
		log:              logger.GetForComponent("registry"),
	}, nil
}

// SetNowFunc overrides the clock. Tests only.
func (r *Registry) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}

func (r *Registry) nowMillis() int64 {
	return r.nowFn().UnixMilli()
}

func (r *Registry) ensureOwner(caller types.Address) error {
	if caller != r.owner {
		return types.ErrUnauthorized
	}
	return nil
}

// ensureRole checks the caller holds the role. The owner passes every
// role check.
func (r *Registry) ensureRole(caller types.Address, role types.Role) error {
	if caller == r.owner {
		return nil
	}
	if r.roles[roleKey{role: role, account: caller}] {
		return nil
	}
	return types.ErrUnauthorized
}

// GrantRole gives a role to an account (owner only).
func (r *Registry) GrantRole(caller types.Address, role types.Role, account types.Address) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	if account.IsZero() {
		return fmt.Errorf("grant role: %w", types.ErrZeroAddress)
	}
	r.roles[roleKey{role: role, account: account}] = true
	r.log.Info().Str("role", string(role)).Str("account", string(account)).Msg("Role granted")
	return nil
}

// RevokeRole removes a role from an account (owner only).
func (r *Registry) RevokeRole(caller types.Address, role types.Role, account types.Address) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	delete(r.roles, roleKey{role: role, account: account})
	r.log.Info().Str("role", string(role)).Str("account", string(account)).Msg("Role revoked")
	return nil
}

// HasRole reports whether the account holds the role. The owner holds
// every role implicitly.
func (r *Registry) HasRole(role types.Role, account types.Address) bool {
	return account == r.owner || r.roles[roleKey{role: role, account: account}]
}

// AddToken registers a token with its oracle and classifies it from live
// market data. The initial classification applies immediately; there is
// nothing to grace-protect on a new entry. Duplicate contracts are
// rejected.
func (r *Registry) AddToken(caller, tokenContract, oracleContract types.Address) (types.TokenID, error) {
	if err := r.ensureRole(caller, types.RoleTokenManager); err != nil {
		return 0, fmt.Errorf("add token: %w", err)
	}
	if tokenContract.IsZero() || oracleContract.IsZero() {
		return 0, fmt.Errorf("add token: %w", types.ErrZeroAddress)
	}
	if _, exists := r.contractToID[tokenContract]; exists {
		return 0, fmt.Errorf("add token %s: %w", tokenContract, types.ErrAlreadyExists)
	}

	tier, _ := r.calculateTokenTier(tokenContract)

	id := r.nextTokenID
	r.nextTokenID++
	r.tokens[id] = types.TokenInfo{
		TokenContract:       tokenContract,
		OracleContract:      oracleContract,
		Balance:             sdkmath.ZeroInt(),
		Tier:                tier,
		TierChangeTimestamp: r.nowMillis(),
	}
	r.contractToID[tokenContract] = id
	r.incrementTierCount(tier)

	r.log.Info().
		Uint32("tokenID", uint32(id)).
		Str("contract", string(tokenContract)).
		Str("tier", tier.String()).
		Msg("Token registered")

	r.checkAutoTierShift()
	return id, nil
}

// UpdateToken sets a token's tracked balance and target investment weight,
// then recalculates its tier from live market data and routes any
// difference through the grace-period logic. Market-data unavailability
// skips the tier step; it never blocks the balance/weight update.
func (r *Registry) UpdateToken(caller types.Address, id types.TokenID, balance sdkmath.Int, weightBP uint32) error {
	if err := r.ensureRole(caller, types.RoleTokenUpdater); err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	info, ok := r.tokens[id]
	if !ok {
		return fmt.Errorf("update token %d: %w", id, types.ErrNotFound)
	}
	if balance.IsNil() || balance.IsNegative() {
		return fmt.Errorf("update token %d: balance: %w", id, types.ErrInvalidParameter)
	}
	if weightBP > types.BasisPointDenom {
		return fmt.Errorf("update token %d: weight %d exceeds %d: %w", id, weightBP, types.BasisPointDenom, types.ErrInvalidParameter)
	}
	info.Balance = balance
	info.WeightInvestment = weightBP

	if newTier, ok := r.calculateTokenTier(info.TokenContract); ok {
		r.handleTierChange(id, &info, newTier, types.ReasonAutomatic)
	}
	r.tokens[id] = info

	r.checkAutoTierShift()
	return nil
}

// RemoveToken deletes a token from the catalog and keeps the
// distribution cache consistent. A pending tier change dies with the
// token.
func (r *Registry) RemoveToken(caller types.Address, id types.TokenID) error {
	if err := r.ensureRole(caller, types.RoleTokenManager); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	info, ok := r.tokens[id]
	if !ok {
		return fmt.Errorf("remove token %d: %w", id, types.ErrNotFound)
	}

	r.decrementTierCount(info.Tier)
	delete(r.contractToID, info.TokenContract)
	delete(r.tokens, id)

	r.log.Info().
		Uint32("tokenID", uint32(id)).
		Str("contract", string(info.TokenContract)).
		Msg("Token removed")

	r.checkAutoTierShift()
	return nil
}

// UpdateTokenTier recalculates one token's tier from live market data and
// routes any change through the grace-period logic.
func (r *Registry) UpdateTokenTier(caller types.Address, id types.TokenID) (types.Tier, error) {
	if err := r.ensureRole(caller, types.RoleTokenManager); err != nil {
		return types.TierNone, fmt.Errorf("update token tier: %w", err)
	}
	info, ok := r.tokens[id]
	if !ok {
		return types.TierNone, fmt.Errorf("update token tier %d: %w", id, types.ErrNotFound)
	}

	newTier, ok := r.calculateTokenTier(info.TokenContract)
	if !ok {
		return types.TierNone, fmt.Errorf("update token tier %d: no market data: %w", id, types.ErrExternalCall)
	}

	r.handleTierChange(id, &info, newTier, types.ReasonManual)
	r.tokens[id] = info
	r.checkAutoTierShift()
	return newTier, nil
}

// EmergencyTierOverride forces a token to a tier immediately, bypassing
// the grace period and discarding any pending change (owner only).
func (r *Registry) EmergencyTierOverride(caller types.Address, id types.TokenID, newTier types.Tier) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("emergency tier override: %w", err)
	}
	if !newTier.Valid() {
		return fmt.Errorf("emergency tier override: tier %d: %w", newTier, types.ErrInvalidParameter)
	}
	info, ok := r.tokens[id]
	if !ok {
		return fmt.Errorf("emergency tier override %d: %w", id, types.ErrNotFound)
	}

	r.handleTierChange(id, &info, newTier, types.ReasonEmergency)
	r.tokens[id] = info
	r.checkAutoTierShift()
	return nil
}

// EmergencyTierOverrideToCalculated forces a token straight to its
// freshly calculated tier, skipping the grace period (owner only).
func (r *Registry) EmergencyTierOverrideToCalculated(caller types.Address, id types.TokenID) (types.Tier, error) {
	if err := r.ensureOwner(caller); err != nil {
		return types.TierNone, fmt.Errorf("emergency tier override: %w", err)
	}
	info, ok := r.tokens[id]
	if !ok {
		return types.TierNone, fmt.Errorf("emergency tier override %d: %w", id, types.ErrNotFound)
	}

	newTier, ok := r.calculateTokenTier(info.TokenContract)
	if !ok {
		return types.TierNone, fmt.Errorf("emergency tier override %d: no market data: %w", id, types.ErrExternalCall)
	}

	r.handleTierChange(id, &info, newTier, types.ReasonManualOverride)
	r.tokens[id] = info
	r.checkAutoTierShift()
	return newTier, nil
}

// ClearPendingTierChange cancels a parked tier change without applying
// it (owner only). The token keeps its current tier.
func (r *Registry) ClearPendingTierChange(caller types.Address, id types.TokenID) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("clear pending tier change: %w", err)
	}
	info, ok := r.tokens[id]
	if !ok {
		return fmt.Errorf("clear pending tier change %d: %w", id, types.ErrNotFound)
	}
	if !info.HasPendingTier {
		return nil
	}
	info.HasPendingTier = false
	info.PendingTier = types.TierNone
	r.tokens[id] = info

	r.log.Info().Uint32("tokenID", uint32(id)).Msg("Pending tier change cleared")
	return nil
}

// SetGracePeriod changes the grace period (owner only). Bounds are
// 1 hour to 365 days.
func (r *Registry) SetGracePeriod(caller types.Address, periodMS int64) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("set grace period: %w", err)
	}
	if periodMS < MinGracePeriodMS || periodMS > MaxGracePeriodMS {
		return fmt.Errorf("set grace period: %dms out of bounds: %w", periodMS, types.ErrInvalidParameter)
	}
	r.gracePeriodMS = periodMS
	r.log.Info().Int64("gracePeriodMS", periodMS).Msg("Grace period updated")
	return nil
}

// GracePeriod returns the configured grace period in milliseconds.
func (r *Registry) GracePeriod() int64 {
	return r.gracePeriodMS
}

// GracePeriodEndTime returns when the token's pending change becomes
// applicable (unix milliseconds). False when no change is pending.
func (r *Registry) GracePeriodEndTime(id types.TokenID) (int64, bool) {
	info, ok := r.tokens[id]
	if !ok || !info.HasPendingTier {
		return 0, false
	}
	return info.TierChangeTimestamp + r.gracePeriodMS, true
}

// GracePeriodRemaining returns the milliseconds until the token's pending
// change becomes applicable, zero once expired. False when no change is
// pending.
func (r *Registry) GracePeriodRemaining(id types.TokenID) (int64, bool) {
	end, ok := r.GracePeriodEndTime(id)
	if !ok {
		return 0, false
	}
	remaining := end - r.nowMillis()
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// IsGracePeriodExpired reports whether the token has a pending change
// whose grace period has fully elapsed.
func (r *Registry) IsGracePeriodExpired(id types.TokenID) bool {
	info, ok := r.tokens[id]
	if !ok || !info.HasPendingTier {
		return false
	}
	return r.nowMillis()-info.TierChangeTimestamp >= r.gracePeriodMS
}

// SetTierThresholds replaces the classification thresholds (owner only).
// Existing tiers are not recalculated; the next refresh picks them up.
func (r *Registry) SetTierThresholds(caller types.Address, thresholds types.TierThresholds) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("set tier thresholds: %w", err)
	}
	if err := thresholds.Validate(); err != nil {
		return fmt.Errorf("set tier thresholds: %w", err)
	}
	r.thresholds = thresholds
	r.log.Info().Msg("Tier thresholds updated")
	return nil
}

// TierThresholds returns the current classification thresholds.
func (r *Registry) TierThresholds() types.TierThresholds {
	return r.thresholds
}

// SetUSDRateSource configures the oracle and token used to derive the
// native-units-per-USD rate (owner only).
func (r *Registry) SetUSDRateSource(caller types.Address, source MarketDataSource, token types.Address) error {
	if err := r.ensureOwner(caller); err != nil {
		return fmt.Errorf("set usd rate source: %w", err)
	}
	if source == nil || token.IsZero() {
		return fmt.Errorf("set usd rate source: %w", types.ErrInvalidParameter)
	}
	r.usdSource = source
	r.usdToken = token
	return nil
}

// Owner returns the registry owner.
func (r *Registry) Owner() types.Address {
	return r.owner
}

// ActiveTier returns the protocol's current rebalancing target tier.
func (r *Registry) ActiveTier() types.Tier {
	return r.activeTier
}

// LastTierChange returns the unix-millisecond stamp of the last active
// tier shift, zero if it never shifted.
func (r *Registry) LastTierChange() int64 {
	return r.lastTierChange
}

// TokenCount returns the number of registered tokens.
func (r *Registry) TokenCount() int {
	return len(r.tokens)
}

// TokenExists reports whether an id is registered.
func (r *Registry) TokenExists(id types.TokenID) bool {
	_, ok := r.tokens[id]
	return ok
}

// TokenIDByContract resolves a token contract address to its id.
func (r *Registry) TokenIDByContract(contract types.Address) (types.TokenID, bool) {
	id, ok := r.contractToID[contract]
	return id, ok
}

// GetTokenInfo returns the stored catalog record for a token.
func (r *Registry) GetTokenInfo(id types.TokenID) (types.TokenInfo, error) {
	info, ok := r.tokens[id]
	if !ok {
		return types.TokenInfo{}, fmt.Errorf("get token info %d: %w", id, types.ErrNotFound)
	}
	return info, nil
}

// GetTokenData returns the catalog record joined with live oracle data.
// Oracle failures degrade to zero market fields rather than erroring;
// callers treat zeros as "no data".
func (r *Registry) GetTokenData(id types.TokenID) (types.EnrichedTokenData, error) {
	info, ok := r.tokens[id]
	if !ok {
		return types.EnrichedTokenData{}, fmt.Errorf("get token data %d: %w", id, types.ErrNotFound)
	}

	data := types.EnrichedTokenData{
		TokenContract:    info.TokenContract,
		OracleContract:   info.OracleContract,
		Balance:          info.Balance,
		WeightInvestment: info.WeightInvestment,
		Tier:             info.Tier,
		MarketCap:        sdkmath.ZeroInt(),
		MarketVolume:     sdkmath.ZeroInt(),
		Price:            sdkmath.ZeroInt(),
	}
	if price, ok := r.marketData.GetPrice(info.TokenContract); ok {
		data.Price = price
	}
	if mcap, ok := r.marketData.GetMarketCap(info.TokenContract); ok {
		data.MarketCap = mcap
	}
	if volume, ok := r.marketData.GetMarketVolume(info.TokenContract); ok {
		data.MarketVolume = volume
	}
	return data, nil
}

// GetTokensByTier returns the ids of all tokens currently in the tier,
// in ascending id order.
func (r *Registry) GetTokensByTier(tier types.Tier) []types.TokenID {
	var ids []types.TokenID
	for id := types.TokenID(1); id < r.nextTokenID; id++ {
		if info, ok := r.tokens[id]; ok && info.Tier == tier {
			ids = append(ids, id)
		}
	}
	return ids
}

// TokensWithPendingChanges returns every token with a parked tier
// transition, in ascending id order.
func (r *Registry) TokensWithPendingChanges() []types.PendingTierChange {
	var pending []types.PendingTierChange
	for id := types.TokenID(1); id < r.nextTokenID; id++ {
		info, ok := r.tokens[id]
		if !ok || !info.HasPendingTier {
			continue
		}
		pending = append(pending, types.PendingTierChange{
			TokenID:     id,
			CurrentTier: info.Tier,
			PendingTier: info.PendingTier,
			StartedAt:   info.TierChangeTimestamp,
		})
	}
	return pending
}
