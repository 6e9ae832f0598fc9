/*

This file contains the rebalance planner. Given the current holdings,
live prices and target weights, it produces a two-phase trade plan:
sells of overweight holdings first, then buys of underweight holdings
funded by the sale proceeds.

*/

package rebalance

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/types"
)

// Error definitions for plan validation
var (
	ErrInvalidTargetWeights = errors.New("target weights contain invalid values")
	ErrMissingPriceData     = errors.New("required price data is missing")
	ErrInvalidHolding       = errors.New("holding state is invalid")
	ErrInvalidThreshold     = errors.New("deviation threshold is invalid")
)

// Direction says which side of the reserve pair a trade is on.
type Direction int

const (
	// Sell trades the holding's token for the reserve token.
	Sell Direction = iota
	// Buy trades the reserve token for the holding's token.
	Buy
)

func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// Holding is one portfolio position as seen by the planner.
type Holding struct {
	TokenID        types.TokenID
	Contract       types.Address
	Amount         sdkmath.Int
	TargetWeightBP uint32
	// Price is the live price in reserve units per token. Zero means
	// the token could not be priced this cycle.
	Price sdkmath.Int
}

// Action is one planned trade against the reserve token.
type Action struct {
	TokenID  types.TokenID
	Contract types.Address
	Dir      Direction
	// AmountIn is the input side of the swap: tokens when selling,
	// reserve units when buying.
	AmountIn sdkmath.Int
	// DeltaValue is the drift being corrected, in reserve units.
	DeltaValue sdkmath.Int
	// DeviationBP is the drift from target in basis points of the
	// portfolio value.
	DeviationBP uint32
}

// GeneratePlan analyzes drift between current and target weights and
// returns the trades needed to correct it. Holdings drifted by no more
// than thresholdBP are left alone. Unpriced holdings are skipped; the
// planner never trades a token it cannot value.
func GeneratePlan(holdings []Holding, thresholdBP uint32) (sells, buys []Action, err error) {
	planLogger := logger.GetForComponent("rebalance_planner")

	if err := validateInputs(holdings, thresholdBP); err != nil {
		planLogger.Error().Err(err).Msg("Input validation failed")
		return nil, nil, err
	}

	totalValue, priced := portfolioValue(holdings)
	if totalValue.IsZero() {
		planLogger.Info().Msg("No priced value to rebalance, no actions to plan")
		return []Action{}, []Action{}, nil
	}
	if priced < len(holdings) {
		planLogger.Warn().
			Int("priced", priced).
			Int("holdings", len(holdings)).
			Msg("Some holdings are unpriced and will be skipped")
	}

	for _, h := range holdings {
		if h.Price.IsZero() {
			continue
		}

		currentValue := safemath.SaturatingMul(h.Amount, h.Price)
		targetValue, err := safemath.CheckedMulDiv(totalValue, sdkmath.NewInt(int64(h.TargetWeightBP)), sdkmath.NewInt(int64(types.BasisPointDenom)))
		if err != nil {
			return nil, nil, fmt.Errorf("target value for token %d: %w", h.TokenID, err)
		}

		var dir Direction
		var delta sdkmath.Int
		if currentValue.GTE(targetValue) {
			dir = Sell
			delta = currentValue.Sub(targetValue)
		} else {
			dir = Buy
			delta = targetValue.Sub(currentValue)
		}

		deviationBP := safemath.DivOrZero(safemath.SaturatingMul(delta, sdkmath.NewInt(int64(types.BasisPointDenom))), totalValue)
		if !deviationBP.GT(sdkmath.NewInt(int64(thresholdBP))) {
			continue
		}

		action := Action{
			TokenID:     h.TokenID,
			Contract:    h.Contract,
			Dir:         dir,
			DeltaValue:  delta,
			DeviationBP: clampBP(deviationBP),
		}
		if dir == Sell {
			action.AmountIn = safemath.DivOrZero(delta, h.Price)
			if action.AmountIn.IsZero() {
				continue
			}
			sells = append(sells, action)
		} else {
			action.AmountIn = delta
			buys = append(buys, action)
		}
	}

	// Largest drift first; token id breaks ties so plans are stable.
	sortByDrift(sells)
	sortByDrift(buys)

	planLogger.Info().
		Int("sells", len(sells)).
		Int("buys", len(buys)).
		Str("totalValue", totalValue.String()).
		Msg("Rebalance plan generated")

	return sells, buys, nil
}

// validateInputs performs validation of the planner inputs.
func validateInputs(holdings []Holding, thresholdBP uint32) error {
	if thresholdBP > types.BasisPointDenom {
		return fmt.Errorf("%w: threshold %d exceeds %d bp", ErrInvalidThreshold, thresholdBP, types.BasisPointDenom)
	}

	totalWeight := uint32(0)
	for i, h := range holdings {
		if h.TokenID == 0 {
			return fmt.Errorf("%w: holding %d has no token id", ErrInvalidHolding, i)
		}
		if h.Contract.IsZero() {
			return fmt.Errorf("%w: holding %d has no contract", ErrInvalidHolding, i)
		}
		if h.Amount.IsNil() || h.Amount.IsNegative() {
			return fmt.Errorf("%w: holding %d has invalid amount", ErrInvalidHolding, i)
		}
		if h.Price.IsNil() || h.Price.IsNegative() {
			return fmt.Errorf("%w: holding %d has invalid price", ErrMissingPriceData, i)
		}
		if h.TargetWeightBP > types.BasisPointDenom {
			return fmt.Errorf("%w: holding %d target %d bp", ErrInvalidTargetWeights, i, h.TargetWeightBP)
		}
		totalWeight += h.TargetWeightBP
	}

	if totalWeight > types.BasisPointDenom {
		return fmt.Errorf("%w: weights sum to %d bp", ErrInvalidTargetWeights, totalWeight)
	}
	return nil
}

// portfolioValue sums amount times price over the priced holdings.
func portfolioValue(holdings []Holding) (sdkmath.Int, int) {
	total := sdkmath.ZeroInt()
	priced := 0
	for _, h := range holdings {
		if h.Price.IsZero() {
			continue
		}
		total = safemath.SaturatingAdd(total, safemath.SaturatingMul(h.Amount, h.Price))
		priced++
	}
	return total, priced
}

func sortByDrift(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].DeltaValue.Equal(actions[j].DeltaValue) {
			return actions[i].TokenID < actions[j].TokenID
		}
		return actions[i].DeltaValue.GT(actions[j].DeltaValue)
	})
}

func clampBP(v sdkmath.Int) uint32 {
	if v.GT(sdkmath.NewInt(int64(types.BasisPointDenom))) {
		return types.BasisPointDenom
	}
	return uint32(v.Int64())
}
