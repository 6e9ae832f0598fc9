/*

This file contains the price oracle: a per-token store of price, market
cap and trading volume with the validation guards the protocol relies on
(max deviation, minimum update interval, staleness).

Only the latest value and its timestamp are retained per token; there is
no historical series.

*/

package oracle

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/types"
)

const (
	// DefaultStalenessThresholdSecs marks data older than 1 hour as stale.
	DefaultStalenessThresholdSecs int64 = 3600
	// DefaultMaxDeviationBP rejects price updates moving more than 50%
	// from the prior value.
	DefaultMaxDeviationBP uint32 = 5000
	// DefaultMinUpdateIntervalMS throttles updates to once per minute.
	DefaultMinUpdateIntervalMS int64 = 60_000
)

// tokenData is the stored record for one token. All amounts are in the
// native smallest unit.
type tokenData struct {
	price        sdkmath.Int
	marketCap    sdkmath.Int
	marketVolume sdkmath.Int
	// lastUpdate is unix milliseconds of the latest accepted update.
	lastUpdate int64
}

// Oracle stores current market data per token with validation on the
// write path and staleness gating on the read path.
type Oracle struct {
	owner   types.Address
	updater types.Address

	tokens map[types.Address]tokenData

	stalenessThresholdSecs int64
	maxDeviationBP         uint32
	minUpdateIntervalMS    int64

	nowFn func() time.Time
	log   zerolog.Logger
}

// New creates an oracle owned by the given address with default guards.
func New(owner types.Address) (*Oracle, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("oracle owner: %w", types.ErrZeroAddress)
	}
	return &Oracle{
		owner:                  owner,
		tokens:                 make(map[types.Address]tokenData),
		stalenessThresholdSecs: DefaultStalenessThresholdSecs,
		maxDeviationBP:         DefaultMaxDeviationBP,
		minUpdateIntervalMS:    DefaultMinUpdateIntervalMS,
		nowFn:                  time.Now,
		log:                    logger.GetForComponent("oracle"),
	}, nil
}

// SetNowFunc overrides the clock source. Intended for tests.
func (o *Oracle) SetNowFunc(nowFn func() time.Time) {
	o.nowFn = nowFn
}

func (o *Oracle) nowMillis() int64 {
	return o.nowFn().UnixMilli()
}

// SetUpdater authorizes an address to push market data (owner only).
func (o *Oracle) SetUpdater(caller, updater types.Address) error {
	if caller != o.owner {
		return fmt.Errorf("set updater: %w", types.ErrUnauthorized)
	}
	if updater.IsZero() {
		return fmt.Errorf("set updater: %w", types.ErrZeroAddress)
	}
	o.updater = updater
	return nil
}

// Configure adjusts the validation guards (owner only). Zero or negative
// values are rejected.
func (o *Oracle) Configure(caller types.Address, stalenessSecs int64, maxDeviationBP uint32, minIntervalMS int64) error {
	if caller != o.owner {
		return fmt.Errorf("configure oracle: %w", types.ErrUnauthorized)
	}
	if stalenessSecs <= 0 || minIntervalMS < 0 || maxDeviationBP == 0 {
		return fmt.Errorf("configure oracle: %w", types.ErrInvalidParameter)
	}
	o.stalenessThresholdSecs = stalenessSecs
	o.maxDeviationBP = maxDeviationBP
	o.minUpdateIntervalMS = minIntervalMS
	return nil
}

// UpdateTokenData stores fresh market data for a token. The update is
// rejected for a zero price, for a price deviating more than the
// configured basis points from the prior value, and for updates arriving
// before the minimum interval has elapsed.
func (o *Oracle) UpdateTokenData(caller, token types.Address, price, marketCap, volume sdkmath.Int) error {
	if caller != o.owner && caller != o.updater {
		return fmt.Errorf("update token data: %w", types.ErrUnauthorized)
	}
	if token.IsZero() {
		return fmt.Errorf("update token data: %w", types.ErrZeroAddress)
	}
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("update token data: price must be positive: %w", types.ErrInvalidParameter)
	}
	if marketCap.IsNil() || marketCap.IsNegative() || volume.IsNil() || volume.IsNegative() {
		return fmt.Errorf("update token data: %w", types.ErrInvalidParameter)
	}

	now := o.nowMillis()

	if prior, ok := o.tokens[token]; ok {
		if now-prior.lastUpdate < o.minUpdateIntervalMS {
			return fmt.Errorf("update token data: minimum update interval not elapsed: %w", types.ErrInvalidParameter)
		}
		deviation, err := deviationBP(prior.price, price)
		if err != nil {
			return fmt.Errorf("update token data: %w", err)
		}
		if deviation > int64(o.maxDeviationBP) {
			o.log.Warn().
				Str("token", string(token)).
				Int64("deviationBP", deviation).
				Uint32("maxBP", o.maxDeviationBP).
				Msg("Price update rejected for excessive deviation")
			return fmt.Errorf("update token data: price deviation %d bp exceeds limit: %w", deviation, types.ErrInvalidParameter)
		}
	}

	o.tokens[token] = tokenData{
		price:        price,
		marketCap:    marketCap,
		marketVolume: volume,
		lastUpdate:   now,
	}

	o.log.Debug().
		Str("token", string(token)).
		Str("price", price.String()).
		Str("marketCap", marketCap.String()).
		Str("volume", volume.String()).
		Msg("Token market data updated")

	return nil
}

// deviationBP computes |new-old|/old in basis points with full-precision
// intermediate math.
func deviationBP(oldPrice, newPrice sdkmath.Int) (int64, error) {
	if oldPrice.IsZero() {
		return 0, nil
	}
	var delta sdkmath.Int
	if newPrice.GTE(oldPrice) {
		delta = newPrice.Sub(oldPrice)
	} else {
		delta = oldPrice.Sub(newPrice)
	}
	bp, err := safemath.CheckedMulDiv(delta, sdkmath.NewInt(int64(types.BasisPointDenom)), oldPrice)
	if err != nil {
		return 0, err
	}
	if !bp.IsInt64() {
		return int64(types.BasisPointDenom) + 1, nil
	}
	return bp.Int64(), nil
}

func (o *Oracle) fresh(token types.Address) (tokenData, bool) {
	data, ok := o.tokens[token]
	if !ok {
		return tokenData{}, false
	}
	if o.nowMillis()-data.lastUpdate > o.stalenessThresholdSecs*1000 {
		return tokenData{}, false
	}
	return data, true
}

// GetPrice returns the current price, or false when absent or stale.
func (o *Oracle) GetPrice(token types.Address) (sdkmath.Int, bool) {
	data, ok := o.fresh(token)
	if !ok {
		return sdkmath.Int{}, false
	}
	return data.price, true
}

// GetMarketCap returns the current market cap, or false when absent or stale.
func (o *Oracle) GetMarketCap(token types.Address) (sdkmath.Int, bool) {
	data, ok := o.fresh(token)
	if !ok {
		return sdkmath.Int{}, false
	}
	return data.marketCap, true
}

// GetMarketVolume returns the current volume, or false when absent or stale.
func (o *Oracle) GetMarketVolume(token types.Address) (sdkmath.Int, bool) {
	data, ok := o.fresh(token)
	if !ok {
		return sdkmath.Int{}, false
	}
	return data.marketVolume, true
}

// IsPriceStale reports whether the stored data for token is older than
// the staleness threshold. Advisory only; reads already gate on it.
func (o *Oracle) IsPriceStale(token types.Address) bool {
	data, ok := o.tokens[token]
	if !ok {
		return true
	}
	return o.nowMillis()-data.lastUpdate > o.stalenessThresholdSecs*1000
}

// LastUpdate returns the unix-millisecond stamp of the latest accepted
// update, or false when the token is unknown.
func (o *Oracle) LastUpdate(token types.Address) (int64, bool) {
	data, ok := o.tokens[token]
	if !ok {
		return 0, false
	}
	return data.lastUpdate, true
}
