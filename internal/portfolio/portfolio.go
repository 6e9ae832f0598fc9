/*

This file contains the index portfolio: weighted token holdings with the
100% allocation invariant, the operating state machine, fee configuration
and contract reference wiring.

*/

package portfolio

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/types"
)

// DefaultMaxHoldings caps the number of distinct tokens the portfolio
// will hold.
const DefaultMaxHoldings uint32 = 50

// TokenDataSource supplies enriched token data; the registry implements it.
type TokenDataSource interface {
	GetTokenData(id types.TokenID) (types.EnrichedTokenData, error)
}

// Portfolio tracks weighted holdings and derives the index value against
// an immutable baseline. Not safe for concurrent use; the engine
// serializes access.
type Portfolio struct {
	owner types.Address
	state types.PortfolioState

	holdings map[types.TokenID]types.TokenHolding
	// heldIDs preserves insertion order so iteration is deterministic.
	heldIDs     []types.TokenID
	maxHoldings uint32

	fees               types.FeeConfiguration
	totalFeesCollected sdkmath.Int
	cashBuffer         sdkmath.Int

	emergencyPaused bool

	// Informational contract references, surfaced by the web API.
	registryContract,
	tokenContract,
	dexContract,
	oracleContract types.Address

	tokenData TokenDataSource

	// Index baseline. basePortfolioValue zero means uninitialized.
	basePortfolioValue sdkmath.Int
	currentIndexValue  sdkmath.Int
	indexTracking      bool
	lastIndexUpdate    int64
	deployedAt         int64

	nowFn func() time.Time
	log   zerolog.Logger
}

// New creates a portfolio owned by owner, reading token data from source.
func New(owner types.Address, source TokenDataSource) (*Portfolio, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("new portfolio: owner: %w", types.ErrZeroAddress)
	}
	if source == nil {
		return nil, fmt.Errorf("new portfolio: nil token data source: %w", types.ErrInvalidParameter)
	}
	p := &Portfolio{
		owner:              owner,
		state:              types.StateActive,
		holdings:           make(map[types.TokenID]types.TokenHolding),
		maxHoldings:        DefaultMaxHoldings,
		fees:               types.DefaultFeeConfiguration(),
		totalFeesCollected: sdkmath.ZeroInt(),
		cashBuffer:         sdkmath.ZeroInt(),
		tokenData:          source,
		basePortfolioValue: sdkmath.ZeroInt(),
		currentIndexValue:  IndexBaseValue,
		nowFn:              time.Now,
		log:                logger.GetForComponent("portfolio"),
	}
	p.deployedAt = p.nowMillis()
	return p, nil
}

// SetNowFunc overrides the clock. Tests only.
func (p *Portfolio) SetNowFunc(fn func() time.Time) {
	p.nowFn = fn
	p.deployedAt = p.nowMillis()
}

func (p *Portfolio) nowMillis() int64 {
	return p.nowFn().UnixMilli()
}

func (p *Portfolio) ensureOwner(caller types.Address) error {
	if caller != p.owner {
		return types.ErrUnauthorized
	}
	return nil
}

func (p *Portfolio) ensureNotPaused() error {
	if p.emergencyPaused {
		return types.ErrPaused
	}
	return nil
}

// totalTargetWeight sums target weights across all holdings, in basis
// points.
func (p *Portfolio) totalTargetWeight() uint32 {
	var total uint32
	for _, id := range p.heldIDs {
		total += p.holdings[id].TargetWeightBP
	}
	return total
}

// AddTokenHolding adds a position (owner only). The weight-sum invariant
// is enforced here: existing weights plus the proposed one must not
// exceed 100%.
func (p *Portfolio) AddTokenHolding(caller types.Address, id types.TokenID, amount sdkmath.Int, targetWeightBP uint32) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("add token holding: %w", err)
	}
	if err := p.ensureNotPaused(); err != nil {
		return fmt.Errorf("add token holding: %w", err)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("add token holding %d: amount: %w", id, types.ErrInvalidParameter)
	}
	if targetWeightBP > types.BasisPointDenom {
		return fmt.Errorf("add token holding %d: weight %d: %w", id, targetWeightBP, types.ErrInvalidParameter)
	}
	if _, exists := p.holdings[id]; exists {
		return fmt.Errorf("add token holding %d: %w", id, types.ErrAlreadyExists)
	}
	if uint32(len(p.heldIDs)) >= p.maxHoldings {
		return fmt.Errorf("add token holding %d: holdings cap %d reached: %w", id, p.maxHoldings, types.ErrInvalidParameter)
	}
	if p.totalTargetWeight()+targetWeightBP > types.BasisPointDenom {
		return fmt.Errorf("add token holding %d: total weight would exceed 100%%: %w", id, types.ErrInvalidParameter)
	}

	now := p.nowMillis()
	p.holdings[id] = types.TokenHolding{
		Amount:         amount,
		TargetWeightBP: targetWeightBP,
		LastRebalance:  now,
		FeesCollected:  sdkmath.ZeroInt(),
	}
	p.heldIDs = append(p.heldIDs, id)

	p.log.Info().
		Uint32("tokenID", uint32(id)).
		Str("amount", amount.String()).
		Uint32("targetWeightBP", targetWeightBP).
		Msg("Token holding added")

	p.refreshIndexBestEffort()
	return nil
}

// UpdateTokenHolding replaces a position's amount and target weight
// (owner only). The weight sum over all other holdings plus the new
// weight must fit in 100%.
func (p *Portfolio) UpdateTokenHolding(caller types.Address, id types.TokenID, newAmount sdkmath.Int, newWeightBP uint32) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("update token holding: %w", err)
	}
	if err := p.ensureNotPaused(); err != nil {
		return fmt.Errorf("update token holding: %w", err)
	}
	if newWeightBP > types.BasisPointDenom {
		return fmt.Errorf("update token holding %d: weight %d: %w", id, newWeightBP, types.ErrInvalidParameter)
	}
	if newAmount.IsNil() || newAmount.IsNegative() {
		return fmt.Errorf("update token holding %d: amount: %w", id, types.ErrInvalidParameter)
	}
	holding, exists := p.holdings[id]
	if !exists {
		return fmt.Errorf("update token holding %d: %w", id, types.ErrNotFound)
	}
	if p.totalTargetWeight()-holding.TargetWeightBP+newWeightBP > types.BasisPointDenom {
		return fmt.Errorf("update token holding %d: total weight would exceed 100%%: %w", id, types.ErrInvalidParameter)
	}

	holding.Amount = newAmount
	holding.TargetWeightBP = newWeightBP
	holding.LastRebalance = p.nowMillis()
	p.holdings[id] = holding

	p.refreshIndexBestEffort()
	return nil
}

// RemoveTokenHolding deletes a position (owner only). Removal can only
// shrink the weight sum, so no allocation check is needed.
func (p *Portfolio) RemoveTokenHolding(caller types.Address, id types.TokenID) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("remove token holding: %w", err)
	}
	if err := p.ensureNotPaused(); err != nil {
		return fmt.Errorf("remove token holding: %w", err)
	}
	if _, exists := p.holdings[id]; !exists {
		return fmt.Errorf("remove token holding %d: %w", id, types.ErrNotFound)
	}

	delete(p.holdings, id)
	for i, held := range p.heldIDs {
		if held == id {
			p.heldIDs = append(p.heldIDs[:i], p.heldIDs[i+1:]...)
			break
		}
	}

	p.log.Info().Uint32("tokenID", uint32(id)).Msg("Token holding removed")
	p.refreshIndexBestEffort()
	return nil
}

// HoldingEntry is one row of a batch add.
type HoldingEntry struct {
	TokenID        types.TokenID
	Amount         sdkmath.Int
	TargetWeightBP uint32
}

// AddMultipleHoldings adds several positions atomically (owner only).
// The whole batch is validated before anything is written; a single bad
// entry rejects the batch.
func (p *Portfolio) AddMultipleHoldings(caller types.Address, entries []HoldingEntry) (uint32, error) {
	if err := p.ensureOwner(caller); err != nil {
		return 0, fmt.Errorf("add multiple holdings: %w", err)
	}
	if err := p.ensureNotPaused(); err != nil {
		return 0, fmt.Errorf("add multiple holdings: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("add multiple holdings: empty batch: %w", types.ErrInvalidParameter)
	}
	if uint32(len(p.heldIDs))+uint32(len(entries)) > p.maxHoldings {
		return 0, fmt.Errorf("add multiple holdings: would exceed holdings cap: %w", types.ErrInvalidParameter)
	}

	var batchWeight uint32
	seen := make(map[types.TokenID]bool, len(entries))
	for _, entry := range entries {
		if entry.Amount.IsNil() || !entry.Amount.IsPositive() || entry.TargetWeightBP > types.BasisPointDenom {
			return 0, fmt.Errorf("add multiple holdings: token %d: %w", entry.TokenID, types.ErrInvalidParameter)
		}
		if _, exists := p.holdings[entry.TokenID]; exists || seen[entry.TokenID] {
			return 0, fmt.Errorf("add multiple holdings: token %d: %w", entry.TokenID, types.ErrAlreadyExists)
		}
		seen[entry.TokenID] = true
		batchWeight += entry.TargetWeightBP
	}
	if p.totalTargetWeight()+batchWeight > types.BasisPointDenom {
		return 0, fmt.Errorf("add multiple holdings: total weight would exceed 100%%: %w", types.ErrInvalidParameter)
	}

	now := p.nowMillis()
	for _, entry := range entries {
		p.holdings[entry.TokenID] = types.TokenHolding{
			Amount:         entry.Amount,
			TargetWeightBP: entry.TargetWeightBP,
			LastRebalance:  now,
			FeesCollected:  sdkmath.ZeroInt(),
		}
		p.heldIDs = append(p.heldIDs, entry.TokenID)
	}

	p.refreshIndexBestEffort()
	return uint32(len(entries)), nil
}

// UpdateMultipleAmounts updates amounts for several positions (owner
// only). Unknown ids are skipped, matching the per-row tolerance of a
// bulk rebalance sync.
func (p *Portfolio) UpdateMultipleAmounts(caller types.Address, updates map[types.TokenID]sdkmath.Int) (uint32, error) {
	if err := p.ensureOwner(caller); err != nil {
		return 0, fmt.Errorf("update multiple amounts: %w", err)
	}
	if err := p.ensureNotPaused(); err != nil {
		return 0, fmt.Errorf("update multiple amounts: %w", err)
	}
	if len(updates) == 0 {
		return 0, fmt.Errorf("update multiple amounts: empty batch: %w", types.ErrInvalidParameter)
	}

	now := p.nowMillis()
	var updated uint32
	for id, amount := range updates {
		holding, exists := p.holdings[id]
		if !exists || amount.IsNil() || amount.IsNegative() {
			continue
		}
		holding.Amount = amount
		holding.LastRebalance = now
		p.holdings[id] = holding
		updated++
	}

	p.refreshIndexBestEffort()
	return updated, nil
}

// SetState moves the portfolio state machine (owner only).
func (p *Portfolio) SetState(caller types.Address, newState types.PortfolioState, reason string) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	oldState := p.state
	p.state = newState

	p.log.Info().
		Str("oldState", string(oldState)).
		Str("newState", string(newState)).
		Str("reason", reason).
		Msg("Portfolio state changed")
	return nil
}

// EmergencyPause blocks all mutating operations (owner only).
func (p *Portfolio) EmergencyPause(caller types.Address, reason string) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("emergency pause: %w", err)
	}
	p.emergencyPaused = true
	p.state = types.StateEmergency
	p.log.Warn().Str("reason", reason).Msg("Portfolio emergency paused")
	return nil
}

// ResumeOperations lifts an emergency pause (owner only).
func (p *Portfolio) ResumeOperations(caller types.Address, reason string) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("resume operations: %w", err)
	}
	p.emergencyPaused = false
	p.state = types.StateActive
	p.log.Info().Str("reason", reason).Msg("Portfolio operations resumed")
	return nil
}

// SetFeeConfig replaces the fee schedule (owner only).
func (p *Portfolio) SetFeeConfig(caller types.Address, config types.FeeConfiguration) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("set fee config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("set fee config: %w", err)
	}
	p.fees = config
	p.log.Info().
		Uint32("buyFeeBP", config.BuyFeeBP).
		Uint32("sellFeeBP", config.SellFeeBP).
		Uint32("streamingFeeBP", config.StreamingFeeBP).
		Msg("Fee configuration updated")
	return nil
}

// SetMaxHoldings changes the holdings cap (owner only). It cannot go
// below the current number of holdings.
func (p *Portfolio) SetMaxHoldings(caller types.Address, max uint32) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("set max holdings: %w", err)
	}
	if max == 0 || max < uint32(len(p.heldIDs)) {
		return fmt.Errorf("set max holdings: %d: %w", max, types.ErrInvalidParameter)
	}
	p.maxHoldings = max
	return nil
}

// DepositCashBuffer credits the stable-asset buffer (owner only).
func (p *Portfolio) DepositCashBuffer(caller types.Address, amount sdkmath.Int) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("deposit cash buffer: %w", err)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("deposit cash buffer: %w", types.ErrInvalidParameter)
	}
	p.cashBuffer = p.cashBuffer.Add(amount)
	return nil
}

// WithdrawCashBuffer debits the stable-asset buffer (owner only).
func (p *Portfolio) WithdrawCashBuffer(caller types.Address, amount sdkmath.Int) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("withdraw cash buffer: %w", err)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("withdraw cash buffer: %w", types.ErrInvalidParameter)
	}
	if amount.GT(p.cashBuffer) {
		return fmt.Errorf("withdraw cash buffer: %w", types.ErrInsufficientBalance)
	}
	p.cashBuffer = p.cashBuffer.Sub(amount)
	return nil
}

// SetContractReferences wires the external contract addresses (owner
// only). Zero addresses leave the existing reference untouched.
func (p *Portfolio) SetContractReferences(caller types.Address, registry, token, dex, oracle types.Address) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("set contract references: %w", err)
	}
	if !registry.IsZero() {
		p.registryContract = registry
	}
	if !token.IsZero() {
		p.tokenContract = token
	}
	if !dex.IsZero() {
		p.dexContract = dex
	}
	if !oracle.IsZero() {
		p.oracleContract = oracle
	}
	return nil
}

// Owner returns the portfolio owner.
func (p *Portfolio) Owner() types.Address { return p.owner }

// State returns the current operating state.
func (p *Portfolio) State() types.PortfolioState { return p.state }

// IsEmergencyPaused reports whether mutations are blocked.
func (p *Portfolio) IsEmergencyPaused() bool { return p.emergencyPaused }

// FeeConfig returns the current fee schedule.
func (p *Portfolio) FeeConfig() types.FeeConfiguration { return p.fees }

// MaxHoldings returns the holdings cap.
func (p *Portfolio) MaxHoldings() uint32 { return p.maxHoldings }

// CashBuffer returns the stable-asset buffer balance.
func (p *Portfolio) CashBuffer() sdkmath.Int { return p.cashBuffer }

// ContractReferences returns the wired external contract addresses in
// registry, token, dex, oracle order.
func (p *Portfolio) ContractReferences() (registry, token, dex, oracle types.Address) {
	return p.registryContract, p.tokenContract, p.dexContract, p.oracleContract
}

// HoldsToken reports whether the portfolio holds the token.
func (p *Portfolio) HoldsToken(id types.TokenID) bool {
	_, exists := p.holdings[id]
	return exists
}

// TotalTokensHeld returns the number of distinct holdings.
func (p *Portfolio) TotalTokensHeld() uint32 {
	return uint32(len(p.heldIDs))
}

// HeldTokenIDs returns the held ids in insertion order.
func (p *Portfolio) HeldTokenIDs() []types.TokenID {
	ids := make([]types.TokenID, len(p.heldIDs))
	copy(ids, p.heldIDs)
	return ids
}

// GetTokenHolding returns the stored position for a token.
func (p *Portfolio) GetTokenHolding(id types.TokenID) (types.TokenHolding, bool) {
	holding, exists := p.holdings[id]
	return holding, exists
}

// TotalTargetWeight returns the summed target weight across all
// holdings, in basis points.
func (p *Portfolio) TotalTargetWeight() uint32 {
	return p.totalTargetWeight()
}

// RemainingWeightCapacity returns how much allocation headroom is left,
// in basis points.
func (p *Portfolio) RemainingWeightCapacity() uint32 {
	total := p.totalTargetWeight()
	if total >= types.BasisPointDenom {
		return 0
	}
	return types.BasisPointDenom - total
}

// Composition summarizes the current holdings. Total value here is the
// raw amount sum plus cash buffer; live valuation is a separate, fallible
// query.
func (p *Portfolio) Composition() types.PortfolioComposition {
	comp := types.PortfolioComposition{
		TotalTokens: uint32(len(p.heldIDs)),
		TotalValue:  p.cashBuffer,
	}
	for _, id := range p.heldIDs {
		holding := p.holdings[id]
		comp.TotalValue = comp.TotalValue.Add(holding.Amount)
		comp.Holdings = append(comp.Holdings, struct {
			TokenID types.TokenID      `json:"token_id"`
			Holding types.TokenHolding `json:"holding"`
		}{TokenID: id, Holding: holding})
	}
	return comp
}
