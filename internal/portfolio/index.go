/*

This file contains portfolio valuation and the index value system: the
immutable baseline, the cached index value and performance in basis
points against the baseline.

*/

package portfolio

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/types"
)

// IndexBaseValue is the index's $100 baseline in native smallest units.
var IndexBaseValue = sdkmath.NewInt(100_000_000_000)

// indexStalenessMS marks the cached index value stale after 1 hour
// without an update.
const indexStalenessMS int64 = 3_600_000

// TotalPortfolioValue sums amount × live price over all holdings, plus
// the cash buffer. A token whose pricing fails (no data, or overflow in
// the multiply) degrades to amount-only valuation; the call errors only
// when holdings exist and not a single one could be priced.
func (p *Portfolio) TotalPortfolioValue() (sdkmath.Int, error) {
	if len(p.heldIDs) == 0 {
		return p.cashBuffer, nil
	}

	total := p.cashBuffer
	var priced uint32

	for _, id := range p.heldIDs {
		holding := p.holdings[id]
		data, err := p.tokenData.GetTokenData(id)
		if err != nil || data.Price.IsNil() || data.Price.IsZero() {
			total = safemath.SaturatingAdd(total, holding.Amount)
			continue
		}
		value, err := safemath.CheckedMul(holding.Amount, data.Price)
		if err != nil {
			total = safemath.SaturatingAdd(total, holding.Amount)
			continue
		}
		total = safemath.SaturatingAdd(total, value)
		priced++
	}

	if priced == 0 {
		return sdkmath.Int{}, fmt.Errorf("total portfolio value: no market data for any holding: %w", types.ErrExternalCall)
	}
	return total, nil
}

// ValuationBreakdown returns one row per holding with its live price and
// value, flagging rows that fell back to amount-only valuation.
func (p *Portfolio) ValuationBreakdown() []types.HoldingValuation {
	rows := make([]types.HoldingValuation, 0, len(p.heldIDs))
	for _, id := range p.heldIDs {
		holding := p.holdings[id]
		row := types.HoldingValuation{
			TokenID: id,
			Amount:  holding.Amount,
			Price:   sdkmath.ZeroInt(),
			Value:   holding.Amount,
		}
		data, err := p.tokenData.GetTokenData(id)
		if err == nil && !data.Price.IsNil() && data.Price.IsPositive() {
			if value, err := safemath.CheckedMul(holding.Amount, data.Price); err == nil {
				row.Price = data.Price
				row.Value = value
				row.Priced = true
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// InitializeBaseValue sets the immutable performance baseline from the
// current portfolio value (owner only). Runs exactly once; requires at
// least one holding and a nonzero computed value. Only
// EmergencyResetBaseValue can re-arm it.
func (p *Portfolio) InitializeBaseValue(caller types.Address) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("initialize base value: %w", err)
	}
	if !p.basePortfolioValue.IsZero() {
		return fmt.Errorf("initialize base value: already initialized: %w", types.ErrInvalidParameter)
	}
	if len(p.heldIDs) == 0 {
		return fmt.Errorf("initialize base value: no holdings: %w", types.ErrInvalidParameter)
	}

	total, err := p.TotalPortfolioValue()
	if err != nil {
		return fmt.Errorf("initialize base value: %w", err)
	}
	if total.IsZero() {
		return fmt.Errorf("initialize base value: portfolio value is zero: %w", types.ErrInvalidParameter)
	}

	p.basePortfolioValue = total
	p.currentIndexValue = IndexBaseValue
	p.indexTracking = true
	p.lastIndexUpdate = p.nowMillis()

	p.log.Info().
		Str("basePortfolioValue", total.String()).
		Str("indexBaseValue", IndexBaseValue.String()).
		Msg("Index baseline initialized")
	return nil
}

// EmergencyResetBaseValue re-bases the index on the current portfolio
// value unconditionally (owner only). This is the only way to re-arm
// initialization.
func (p *Portfolio) EmergencyResetBaseValue(caller types.Address, reason string) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("emergency reset base value: %w", err)
	}
	total, err := p.TotalPortfolioValue()
	if err != nil {
		return fmt.Errorf("emergency reset base value: %w", err)
	}

	p.basePortfolioValue = total
	p.currentIndexValue = IndexBaseValue
	p.lastIndexUpdate = p.nowMillis()

	p.log.Warn().
		Str("reason", reason).
		Str("newBasePortfolioValue", total.String()).
		Msg("Index baseline emergency reset")
	return nil
}

// CurrentIndexValue computes the live index value:
// (current portfolio value / base portfolio value) × base index value.
// Overflow or division trouble is a hard error; an index value must
// never silently misreport. Before initialization it reports the base
// value.
func (p *Portfolio) CurrentIndexValue() (sdkmath.Int, error) {
	if !p.indexTracking || p.basePortfolioValue.IsZero() {
		return IndexBaseValue, nil
	}
	total, err := p.TotalPortfolioValue()
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("current index value: %w", err)
	}
	value, err := safemath.CheckedMulDiv(total, IndexBaseValue, p.basePortfolioValue)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("current index value: %w", err)
	}
	return value, nil
}

// CachedIndexValue returns the last committed index value without
// touching the oracle.
func (p *Portfolio) CachedIndexValue() sdkmath.Int {
	return p.currentIndexValue
}

// UpdateIndexValue recomputes and commits the cached index value (owner
// only).
func (p *Portfolio) UpdateIndexValue(caller types.Address) (sdkmath.Int, error) {
	if err := p.ensureOwner(caller); err != nil {
		return sdkmath.Int{}, fmt.Errorf("update index value: %w", err)
	}
	if !p.indexTracking {
		return IndexBaseValue, nil
	}

	newValue, err := p.CurrentIndexValue()
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("update index value: %w", err)
	}

	oldValue := p.currentIndexValue
	p.currentIndexValue = newValue
	p.lastIndexUpdate = p.nowMillis()

	p.log.Info().
		Str("oldValue", oldValue.String()).
		Str("newValue", newValue.String()).
		Msg("Index value updated")
	return newValue, nil
}

// refreshIndexBestEffort recomputes the cached index after a holdings
// mutation. Failures (oracle down, overflow) are tolerated; the mutation
// that triggered the refresh must not fail because pricing did.
func (p *Portfolio) refreshIndexBestEffort() {
	if !p.indexTracking {
		return
	}
	newValue, err := p.CurrentIndexValue()
	if err != nil {
		p.log.Debug().Err(err).Msg("Index refresh skipped")
		return
	}
	p.currentIndexValue = newValue
	p.lastIndexUpdate = p.nowMillis()
}

// IndexPerformanceBP returns the cached index value's signed deviation
// from the baseline in basis points (+2500 is +25%). Clamped to the
// int32 range, never wrapped.
func (p *Portfolio) IndexPerformanceBP() (int32, error) {
	return p.performanceBP(p.currentIndexValue)
}

// RealtimeIndexPerformanceBP recomputes the index value live and returns
// its performance.
func (p *Portfolio) RealtimeIndexPerformanceBP() (int32, error) {
	current, err := p.CurrentIndexValue()
	if err != nil {
		return 0, err
	}
	return p.performanceBP(current)
}

func (p *Portfolio) performanceBP(current sdkmath.Int) (int32, error) {
	if IndexBaseValue.IsZero() {
		return 0, nil
	}

	if current.GTE(IndexBaseValue) {
		gain := safemath.SaturatingSub(current, IndexBaseValue)
		bp, err := safemath.CheckedMulDiv(gain, sdkmath.NewInt(int64(types.BasisPointDenom)), IndexBaseValue)
		if err != nil {
			return 0, fmt.Errorf("index performance: %w", err)
		}
		return clampInt32(bp), nil
	}

	loss := safemath.SaturatingSub(IndexBaseValue, current)
	bp, err := safemath.CheckedMulDiv(loss, sdkmath.NewInt(int64(types.BasisPointDenom)), IndexBaseValue)
	if err != nil {
		return 0, fmt.Errorf("index performance: %w", err)
	}
	return -clampInt32(bp), nil
}

func clampInt32(v sdkmath.Int) int32 {
	if v.GT(sdkmath.NewInt(math.MaxInt32)) {
		return math.MaxInt32
	}
	return int32(v.Int64())
}

// IndexBaseMetrics returns the baseline constants for display: the base
// index value, the portfolio value captured at initialization, the
// deployment timestamp and whether tracking is live.
func (p *Portfolio) IndexBaseMetrics() (baseIndex, basePortfolio sdkmath.Int, deployedAt int64, tracking bool) {
	return IndexBaseValue, p.basePortfolioValue, p.deployedAt, p.indexTracking
}

// IsIndexTrackingEnabled reports whether the baseline is armed.
func (p *Portfolio) IsIndexTrackingEnabled() bool {
	return p.indexTracking
}

// SetIndexTracking toggles index tracking (owner only). Enabling with an
// unset baseline auto-initializes when holdings exist.
func (p *Portfolio) SetIndexTracking(caller types.Address, enabled bool) error {
	if err := p.ensureOwner(caller); err != nil {
		return fmt.Errorf("set index tracking: %w", err)
	}
	p.indexTracking = enabled
	if enabled && p.basePortfolioValue.IsZero() && len(p.heldIDs) > 0 {
		// indexTracking must be on before initialization stamps the cache.
		if err := p.InitializeBaseValue(caller); err != nil {
			return err
		}
	}
	return nil
}

// IsIndexValueStale reports whether the cached index value is older than
// one hour. Untracked portfolios are never stale.
func (p *Portfolio) IsIndexValueStale() bool {
	if !p.indexTracking {
		return false
	}
	return p.nowMillis()-p.lastIndexUpdate > indexStalenessMS
}

// IndexUpdateAge returns milliseconds since the cached index value was
// last committed.
func (p *Portfolio) IndexUpdateAge() int64 {
	age := p.nowMillis() - p.lastIndexUpdate
	if age < 0 {
		return 0
	}
	return age
}

// LastIndexUpdate returns the unix-millisecond stamp of the last cache
// commit.
func (p *Portfolio) LastIndexUpdate() int64 {
	return p.lastIndexUpdate
}
