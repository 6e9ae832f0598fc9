/*

This file contains the staking engine: tier-dependent unstaking periods,
auto-compounding rewards net of a performance fee, and the queued
unstaking request state machine. Every mutating entry point is guarded
against reentrancy.

*/

package staking

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/reentrancy"
	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/types"
)

const (
	// MaxUnstakingRequests caps the queued requests per account,
	// claimed entries included.
	MaxUnstakingRequests = 10

	// RewardsRateAnnual is 5% APR scaled by 10^8.
	RewardsRateAnnual int64 = 5_000_000_000
	// rateScale is the 10^8 divisor paired with RewardsRateAnnual.
	rateScale int64 = 100_000_000

	SecondsPerYear int64 = 31_536_000

	// PerformanceFeePercent is skimmed off every reward settlement.
	PerformanceFeePercent int64 = 10

	// Unstaking periods per active tier, in seconds. Tier1 is the most
	// conservative bracket and waits longest.
	Tier1UnstakingPeriod int64 = 14 * 24 * 60 * 60
	Tier2UnstakingPeriod int64 = 10 * 24 * 60 * 60
	Tier3UnstakingPeriod int64 = 7 * 24 * 60 * 60
	Tier4UnstakingPeriod int64 = 3 * 24 * 60 * 60
)

// TierSource supplies the protocol's current active tier; the registry
// implements it.
type TierSource interface {
	ActiveTier() types.Tier
}

// TokenTransfer moves index tokens between accounts. The engine holds
// staked balances under its own address.
type TokenTransfer interface {
	TransferFrom(from, to types.Address, amount sdkmath.Int) error
	Transfer(to types.Address, amount sdkmath.Int) error
}

// Engine is the staking state machine. Not safe for concurrent use
// beyond its reentrancy guard; callers serialize access.
type Engine struct {
	owner     types.Address
	self      types.Address
	feeWallet types.Address

	stakes   map[types.Address]types.StakeInfo
	requests map[types.Address][]types.UnstakingRequest

	totalStaked        sdkmath.Int
	totalCollectedFees sdkmath.Int

	paused bool
	guard  reentrancy.Guard

	tiers TierSource
	token TokenTransfer

	nowFn func() time.Time
	log   zerolog.Logger
}

// New creates a staking engine. self is the engine's own account, the
// custodian of staked tokens; feeWallet receives performance fees.
func New(owner, self, feeWallet types.Address, tiers TierSource, token TokenTransfer) (*Engine, error) {
	if owner.IsZero() || self.IsZero() || feeWallet.IsZero() {
		return nil, fmt.Errorf("new staking engine: %w", types.ErrZeroAddress)
	}
	if tiers == nil || token == nil {
		return nil, fmt.Errorf("new staking engine: nil collaborator: %w", types.ErrInvalidParameter)
	}
	return &Engine{
		owner:              owner,
		self:               self,
		feeWallet:          feeWallet,
		stakes:             make(map[types.Address]types.StakeInfo),
		requests:           make(map[types.Address][]types.UnstakingRequest),
		totalStaked:        sdkmath.ZeroInt(),
		totalCollectedFees: sdkmath.ZeroInt(),
		tiers:              tiers,
		token:              token,
		nowFn:              time.Now,
		log:                logger.GetForComponent("staking"),
	}, nil
}

// SetNowFunc overrides the clock. Tests only.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	e.nowFn = fn
}

func (e *Engine) nowMillis() int64 {
	return e.nowFn().UnixMilli()
}

func (e *Engine) ensureNotPaused() error {
	if e.paused {
		return types.ErrPaused
	}
	return nil
}

// UnstakingPeriodForTier maps the active tier to the wait in seconds.
// An unclassified tier gets the longest, most conservative period.
func UnstakingPeriodForTier(tier types.Tier) int64 {
	switch tier {
	case types.Tier2:
		return Tier2UnstakingPeriod
	case types.Tier3:
		return Tier3UnstakingPeriod
	case types.Tier4:
		return Tier4UnstakingPeriod
	default:
		return Tier1UnstakingPeriod
	}
}

// calculateRewards returns (net reward, fee) accrued since the stake's
// last claim. gross = amount × rate × elapsed_seconds / seconds_per_year
// / 10^8; the fee is 10% of gross. All math saturates or falls back to
// zero; a reward calculation never errors.
func (e *Engine) calculateRewards(stake types.StakeInfo) (net, fee sdkmath.Int) {
	elapsedSecs := (e.nowMillis() - stake.LastClaim) / 1000
	if elapsedSecs <= 0 {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt()
	}

	gross := safemath.SaturatingMul(stake.Amount, sdkmath.NewInt(RewardsRateAnnual))
	gross = safemath.SaturatingMul(gross, sdkmath.NewInt(elapsedSecs))
	gross = safemath.DivOrZero(gross, sdkmath.NewInt(SecondsPerYear))
	gross = safemath.DivOrZero(gross, sdkmath.NewInt(rateScale))

	fee = safemath.DivOrZero(safemath.SaturatingMul(gross, sdkmath.NewInt(PerformanceFeePercent)), sdkmath.NewInt(100))
	net = safemath.SaturatingSub(gross, fee)
	return net, fee
}

// Stake deposits amount into the caller's stake. An existing stake first
// settles pending rewards: the fee goes to the fee wallet and the net
// reward auto-compounds into principal. The unstaking period and tier
// are overwritten from the current active tier, which resets the wait
// for the entire accumulated balance, not just this increment. No state
// is persisted if a token transfer fails.
func (e *Engine) Stake(caller types.Address, amount sdkmath.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	defer release()

	if err := e.ensureNotPaused(); err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("stake: amount: %w", types.ErrInvalidParameter)
	}

	now := e.nowMillis()
	currentTier := e.tiers.ActiveTier()
	period := UnstakingPeriodForTier(currentTier)

	var stake types.StakeInfo
	fee := sdkmath.ZeroInt()

	if existing, ok := e.stakes[caller]; ok {
		var net sdkmath.Int
		net, fee = e.calculateRewards(existing)

		stake = types.StakeInfo{
			Amount:          safemath.SaturatingAdd(safemath.SaturatingAdd(existing.Amount, amount), net),
			StakedAt:        existing.StakedAt,
			LastClaim:       now,
			UnstakingPeriod: period,
			TierAtStake:     currentTier,
		}
	} else {
		stake = types.StakeInfo{
			Amount:          amount,
			StakedAt:        now,
			LastClaim:       now,
			UnstakingPeriod: period,
			TierAtStake:     currentTier,
		}
	}

	// External calls before any state commit.
	if err := e.token.TransferFrom(caller, e.self, amount); err != nil {
		return fmt.Errorf("stake: pull tokens: %w", err)
	}
	if fee.IsPositive() {
		if err := e.token.Transfer(e.feeWallet, fee); err != nil {
			return fmt.Errorf("stake: fee transfer: %w", err)
		}
	}

	e.stakes[caller] = stake
	e.totalStaked = safemath.SaturatingAdd(e.totalStaked, amount)
	if fee.IsPositive() {
		e.totalCollectedFees = safemath.SaturatingAdd(e.totalCollectedFees, fee)
	}

	e.log.Info().
		Str("account", string(caller)).
		Str("amount", amount.String()).
		Int64("unstakingPeriodSecs", period).
		Str("tier", currentTier.String()).
		Msg("Tokens staked")
	return nil
}

// RequestUnstake moves amount out of the stake into a queued request
// that matures after the stake's stored unstaking period. The period is
// the one on the existing stake, not recalculated. At most 10 requests
// may be queued per account, claimed ones included. A stake drained to
// zero is deleted.
func (e *Engine) RequestUnstake(caller types.Address, amount sdkmath.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return fmt.Errorf("request unstake: %w", err)
	}
	defer release()

	if err := e.ensureNotPaused(); err != nil {
		return fmt.Errorf("request unstake: %w", err)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("request unstake: amount: %w", types.ErrInvalidParameter)
	}

	stake, ok := e.stakes[caller]
	if !ok {
		return fmt.Errorf("request unstake: no stake: %w", types.ErrNotFound)
	}
	if stake.Amount.LT(amount) {
		return fmt.Errorf("request unstake: %w", types.ErrInsufficientBalance)
	}
	if len(e.requests[caller]) >= MaxUnstakingRequests {
		return fmt.Errorf("request unstake: request limit reached: %w", types.ErrInvalidParameter)
	}

	now := e.nowMillis()
	availableAt := now + stake.UnstakingPeriod*1000

	stake.Amount = safemath.SaturatingSub(stake.Amount, amount)
	e.requests[caller] = append(e.requests[caller], types.UnstakingRequest{
		Amount:      amount,
		RequestedAt: now,
		AvailableAt: availableAt,
	})

	if stake.Amount.IsZero() {
		delete(e.stakes, caller)
	} else {
		e.stakes[caller] = stake
	}
	e.totalStaked = safemath.SaturatingSub(e.totalStaked, amount)

	e.log.Info().
		Str("account", string(caller)).
		Str("amount", amount.String()).
		Int64("availableAt", availableAt).
		Msg("Unstake requested")
	return nil
}

// ClaimUnstaked pays out every matured, unclaimed request in one batched
// transfer and marks them claimed. Errors when nothing has matured.
// Idempotent: a second call after a successful claim finds no claimable
// work and errors without touching already-claimed entries.
func (e *Engine) ClaimUnstaked(caller types.Address) (sdkmath.Int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim unstaked: %w", err)
	}
	defer release()

	if err := e.ensureNotPaused(); err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim unstaked: %w", err)
	}

	requests := e.requests[caller]
	if len(requests) == 0 {
		return sdkmath.Int{}, fmt.Errorf("claim unstaked: no requests: %w", types.ErrNotFound)
	}

	now := e.nowMillis()
	total := sdkmath.ZeroInt()
	var claimable []int

	for i, request := range requests {
		if !request.Claimed && now >= request.AvailableAt {
			total = safemath.SaturatingAdd(total, request.Amount)
			claimable = append(claimable, i)
		}
	}
	if len(claimable) == 0 {
		return sdkmath.Int{}, fmt.Errorf("claim unstaked: nothing matured: %w", types.ErrInvalidParameter)
	}

	if err := e.token.Transfer(caller, total); err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim unstaked: %w", err)
	}

	for _, i := range claimable {
		requests[i].Claimed = true
	}
	e.requests[caller] = requests

	e.log.Info().
		Str("account", string(caller)).
		Str("amount", total.String()).
		Int("requests", len(claimable)).
		Msg("Unstaked tokens claimed")
	return total, nil
}

// ClaimRewards pays the accrued net reward out externally (no
// compounding), sends the fee to the fee wallet and advances last_claim.
// Errors when the net reward computes to zero.
func (e *Engine) ClaimRewards(caller types.Address) (sdkmath.Int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim rewards: %w", err)
	}
	defer release()

	if err := e.ensureNotPaused(); err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim rewards: %w", err)
	}

	stake, ok := e.stakes[caller]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("claim rewards: no stake: %w", types.ErrNotFound)
	}

	net, fee := e.calculateRewards(stake)
	if net.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("claim rewards: no rewards accrued: %w", types.ErrInvalidParameter)
	}

	if err := e.token.Transfer(caller, net); err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim rewards: %w", err)
	}
	if fee.IsPositive() {
		if err := e.token.Transfer(e.feeWallet, fee); err != nil {
			return sdkmath.Int{}, fmt.Errorf("claim rewards: fee transfer: %w", err)
		}
	}

	stake.LastClaim = e.nowMillis()
	e.stakes[caller] = stake
	if fee.IsPositive() {
		e.totalCollectedFees = safemath.SaturatingAdd(e.totalCollectedFees, fee)
	}

	e.log.Info().
		Str("account", string(caller)).
		Str("netReward", net.String()).
		Str("fee", fee.String()).
		Msg("Rewards claimed")
	return net, nil
}

// Pause blocks all mutating operations (owner only).
func (e *Engine) Pause(caller types.Address) error {
	if caller != e.owner {
		return fmt.Errorf("pause: %w", types.ErrUnauthorized)
	}
	e.paused = true
	e.log.Warn().Msg("Staking paused")
	return nil
}

// Unpause resumes operations (owner only).
func (e *Engine) Unpause(caller types.Address) error {
	if caller != e.owner {
		return fmt.Errorf("unpause: %w", types.ErrUnauthorized)
	}
	e.paused = false
	e.log.Info().Msg("Staking unpaused")
	return nil
}

// IsPaused reports whether mutating operations are blocked.
func (e *Engine) IsPaused() bool {
	return e.paused
}

// SetFeeWallet changes the performance fee recipient (owner only).
func (e *Engine) SetFeeWallet(caller, wallet types.Address) error {
	if caller != e.owner {
		return fmt.Errorf("set fee wallet: %w", types.ErrUnauthorized)
	}
	if wallet.IsZero() {
		return fmt.Errorf("set fee wallet: %w", types.ErrZeroAddress)
	}
	e.feeWallet = wallet
	return nil
}

// FeeWallet returns the performance fee recipient.
func (e *Engine) FeeWallet() types.Address {
	return e.feeWallet
}

// GetStake returns the account's stake record.
func (e *Engine) GetStake(account types.Address) (types.StakeInfo, bool) {
	stake, ok := e.stakes[account]
	return stake, ok
}

// GetUnstakingRequests returns the account's queued requests, claimed
// ones included.
func (e *Engine) GetUnstakingRequests(account types.Address) []types.UnstakingRequest {
	requests := make([]types.UnstakingRequest, len(e.requests[account]))
	copy(requests, e.requests[account])
	return requests
}

// ClaimableRewards returns the net reward the account would receive from
// ClaimRewards right now.
func (e *Engine) ClaimableRewards(account types.Address) sdkmath.Int {
	stake, ok := e.stakes[account]
	if !ok {
		return sdkmath.ZeroInt()
	}
	net, _ := e.calculateRewards(stake)
	return net
}

// ClaimableUnstaked returns the total amount of matured, unclaimed
// requests for the account.
func (e *Engine) ClaimableUnstaked(account types.Address) sdkmath.Int {
	now := e.nowMillis()
	total := sdkmath.ZeroInt()
	for _, request := range e.requests[account] {
		if !request.Claimed && now >= request.AvailableAt {
			total = safemath.SaturatingAdd(total, request.Amount)
		}
	}
	return total
}

// TotalStaked returns the aggregate staked balance.
func (e *Engine) TotalStaked() sdkmath.Int {
	return e.totalStaked
}

// TotalCollectedFees returns the cumulative performance fees taken.
func (e *Engine) TotalCollectedFees() sdkmath.Int {
	return e.totalCollectedFees
}
