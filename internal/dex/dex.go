/*

This file contains the constant-product swap pool collaborator consumed
by the rebalancer.

*/

package dex

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/reentrancy"
	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/types"
)

// Pool holds the reserves of one trading pair.
type Pool struct {
	TokenA   types.Address
	TokenB   types.Address
	ReserveA sdkmath.Int
	ReserveB sdkmath.Int
}

type pairKey struct {
	a, b types.Address
}

// SwapPool is a minimal constant-product AMM. Not safe for concurrent
// use beyond its reentrancy guard; callers serialize access.
type SwapPool struct {
	owner types.Address

	pools map[pairKey]Pool
	// keys preserves insertion order for price scans.
	keys []pairKey

	guard reentrancy.Guard
	log   zerolog.Logger
}

// New creates a swap pool registry owned by owner.
func New(owner types.Address) (*SwapPool, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("new swap pool: owner: %w", types.ErrZeroAddress)
	}
	return &SwapPool{
		owner: owner,
		pools: make(map[pairKey]Pool),
		log:   logger.GetForComponent("dex"),
	}, nil
}

// SetPool creates or replaces the pool for a pair (owner only).
func (s *SwapPool) SetPool(caller, tokenA, tokenB types.Address, reserveA, reserveB sdkmath.Int) error {
	if caller != s.owner {
		return fmt.Errorf("set pool: %w", types.ErrUnauthorized)
	}
	if tokenA.IsZero() || tokenB.IsZero() || tokenA == tokenB {
		return fmt.Errorf("set pool: %w", types.ErrInvalidParameter)
	}
	if reserveA.IsNil() || reserveB.IsNil() || reserveA.IsNegative() || reserveB.IsNegative() {
		return fmt.Errorf("set pool: reserves: %w", types.ErrInvalidParameter)
	}

	key := pairKey{a: tokenA, b: tokenB}
	if _, exists := s.pools[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.pools[key] = Pool{TokenA: tokenA, TokenB: tokenB, ReserveA: reserveA, ReserveB: reserveB}

	s.log.Info().
		Str("tokenA", string(tokenA)).
		Str("tokenB", string(tokenB)).
		Str("reserveA", reserveA.String()).
		Str("reserveB", reserveB.String()).
		Msg("Pool configured")
	return nil
}

// lookup finds the pool for a pair in either orientation.
func (s *SwapPool) lookup(from, to types.Address) (pairKey, Pool, bool) {
	if pool, ok := s.pools[pairKey{a: from, b: to}]; ok {
		return pairKey{a: from, b: to}, pool, true
	}
	if pool, ok := s.pools[pairKey{a: to, b: from}]; ok {
		return pairKey{a: to, b: from}, pool, true
	}
	return pairKey{}, Pool{}, false
}

// Swap trades amount of from for to along path, which must be exactly
// the two-token route [from, to]. Output follows the constant-product
// formula out = reserve_out × in / (reserve_in + in), truncating.
// Unknown pairs and zero reserves are rejected.
func (s *SwapPool) Swap(from, to types.Address, amount sdkmath.Int, path []types.Address) (sdkmath.Int, error) {
	release, err := s.guard.Enter()
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("swap: %w", err)
	}
	defer release()

	if len(path) != 2 || path[0] != from || path[1] != to {
		return sdkmath.Int{}, fmt.Errorf("swap: malformed path: %w", types.ErrInvalidParameter)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("swap: amount: %w", types.ErrInvalidParameter)
	}

	key, pool, ok := s.lookup(from, to)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("swap: no pool for %s/%s: %w", from, to, types.ErrNotFound)
	}

	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if pool.TokenA != from {
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || reserveIn.LT(amount) {
		return sdkmath.Int{}, fmt.Errorf("swap: %w", types.ErrInsufficientBalance)
	}

	amountOut := safemath.DivOrZero(safemath.SaturatingMul(reserveOut, amount), safemath.SaturatingAdd(reserveIn, amount))

	reserveIn = safemath.SaturatingAdd(reserveIn, amount)
	reserveOut = safemath.SaturatingSub(reserveOut, amountOut)
	if pool.TokenA == from {
		pool.ReserveA, pool.ReserveB = reserveIn, reserveOut
	} else {
		pool.ReserveA, pool.ReserveB = reserveOut, reserveIn
	}
	s.pools[key] = pool

	s.log.Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("amountIn", amount.String()).
		Str("amountOut", amountOut.String()).
		Msg("Swap executed")
	return amountOut, nil
}

// GetTokenPrice returns the spot price of token in units of its pool
// counterpart, scanning pools in registration order. Integer division;
// truncates.
func (s *SwapPool) GetTokenPrice(token types.Address) (sdkmath.Int, error) {
	for _, key := range s.keys {
		pool := s.pools[key]
		if pool.TokenA == token && pool.ReserveB.IsPositive() {
			return pool.ReserveA.Quo(pool.ReserveB), nil
		}
		if pool.TokenB == token && pool.ReserveA.IsPositive() {
			return pool.ReserveB.Quo(pool.ReserveA), nil
		}
	}
	return sdkmath.Int{}, fmt.Errorf("get token price %s: %w", token, types.ErrNotFound)
}

// GetPool returns the pool for a pair in either orientation.
func (s *SwapPool) GetPool(tokenA, tokenB types.Address) (Pool, bool) {
	_, pool, ok := s.lookup(tokenA, tokenB)
	return pool, ok
}

// Pools returns every configured pool in registration order.
func (s *SwapPool) Pools() []Pool {
	out := make([]Pool, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, s.pools[key])
	}
	return out
}
