/*

This file provides overflow-safe arithmetic on sdkmath.Int for the
protocol's value computations.

sdkmath.Int panics once a value exceeds 256 bits. Value-determining paths
(index value, performance) use the Checked variants and surface a typed
error; additive balance paths use the Saturating variants, which clamp at
the representable bound and floor at zero.

*/

package safemath

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/dotindex/core/internal/types"
)

// maxInt is the largest magnitude sdkmath.Int can represent.
var maxInt = sdkmath.NewIntFromBigInt(new(big.Int).Sub(
	new(big.Int).Lsh(big.NewInt(1), sdkmath.MaxBitLen), big.NewInt(1)))

// CheckedMul multiplies a and b, returning ErrArithmeticOverflow when the
// product is unrepresentable.
func CheckedMul(a, b sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nil operand in multiplication", types.ErrInvalidParameter)
	}
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	if product.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s * %s", types.ErrArithmeticOverflow, a, b)
	}
	return sdkmath.NewIntFromBigInt(product), nil
}

// CheckedDiv divides a by b, returning an error on division by zero.
func CheckedDiv(a, b sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nil operand in division", types.ErrInvalidParameter)
	}
	if b.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: division by zero", types.ErrArithmeticOverflow)
	}
	return a.Quo(b), nil
}

// CheckedMulDiv computes a*b/den with the intermediate product held at
// full precision, so it cannot overflow unless the final quotient does.
func CheckedMulDiv(a, b, den sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || den.IsNil() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nil operand", types.ErrInvalidParameter)
	}
	if den.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: division by zero", types.ErrArithmeticOverflow)
	}
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	quotient := new(big.Int).Quo(product, den.BigInt())
	if quotient.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s * %s / %s", types.ErrArithmeticOverflow, a, b, den)
	}
	return sdkmath.NewIntFromBigInt(quotient), nil
}

// SaturatingAdd adds a and b, clamping at the representable maximum.
func SaturatingAdd(a, b sdkmath.Int) sdkmath.Int {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	if sum.BitLen() > sdkmath.MaxBitLen {
		return maxInt
	}
	return sdkmath.NewIntFromBigInt(sum)
}

// SaturatingSub subtracts b from a, flooring at zero. Amounts are never
// negative in this protocol.
func SaturatingSub(a, b sdkmath.Int) sdkmath.Int {
	if b.GTE(a) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

// SaturatingMul multiplies a and b, clamping at the representable maximum.
func SaturatingMul(a, b sdkmath.Int) sdkmath.Int {
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	if product.BitLen() > sdkmath.MaxBitLen {
		return maxInt
	}
	return sdkmath.NewIntFromBigInt(product)
}

// DivOrZero divides a by b, yielding zero on a zero divisor. Reward math
// uses this so a misconfigured rate degrades to a zero reward instead of
// halting the call.
func DivOrZero(a, b sdkmath.Int) sdkmath.Int {
	if b.IsZero() {
		return sdkmath.ZeroInt()
	}
	return a.Quo(b)
}
