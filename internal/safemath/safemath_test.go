package safemath

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

// nearMax is large enough that squaring it exceeds 256 bits.
var nearMax = sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))

func TestCheckedMul(t *testing.T) {
	got, err := CheckedMul(sdkmath.NewInt(6), sdkmath.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int64())

	_, err = CheckedMul(nearMax, nearMax)
	assert.ErrorIs(t, err, types.ErrArithmeticOverflow)

	_, err = CheckedMul(sdkmath.Int{}, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestCheckedDiv(t *testing.T) {
	got, err := CheckedDiv(sdkmath.NewInt(100), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(33), got.Int64(), "integer division truncates")

	_, err = CheckedDiv(sdkmath.NewInt(1), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrArithmeticOverflow)
}

func TestCheckedMulDiv(t *testing.T) {
	// a*b would overflow on its own; the full-precision intermediate keeps
	// the quotient representable.
	got, err := CheckedMulDiv(nearMax, nearMax, nearMax)
	require.NoError(t, err)
	assert.True(t, got.Equal(nearMax))

	got, err = CheckedMulDiv(sdkmath.NewInt(700), sdkmath.NewInt(10_000), sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(7000), got.Int64())

	_, err = CheckedMulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrArithmeticOverflow)

	_, err = CheckedMulDiv(nearMax, nearMax, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrArithmeticOverflow)
}

func TestSaturatingAdd(t *testing.T) {
	got := SaturatingAdd(sdkmath.NewInt(1), sdkmath.NewInt(2))
	assert.Equal(t, int64(3), got.Int64())

	got = SaturatingAdd(maxInt, sdkmath.NewInt(1))
	assert.True(t, got.Equal(maxInt), "clamps at the representable maximum")
}

func TestSaturatingSub(t *testing.T) {
	got := SaturatingSub(sdkmath.NewInt(5), sdkmath.NewInt(3))
	assert.Equal(t, int64(2), got.Int64())

	got = SaturatingSub(sdkmath.NewInt(3), sdkmath.NewInt(5))
	assert.True(t, got.IsZero(), "floors at zero")

	got = SaturatingSub(sdkmath.NewInt(3), sdkmath.NewInt(3))
	assert.True(t, got.IsZero())
}

func TestSaturatingMul(t *testing.T) {
	got := SaturatingMul(sdkmath.NewInt(6), sdkmath.NewInt(7))
	assert.Equal(t, int64(42), got.Int64())

	got = SaturatingMul(nearMax, nearMax)
	assert.True(t, got.Equal(maxInt))
}

func TestDivOrZero(t *testing.T) {
	got := DivOrZero(sdkmath.NewInt(10), sdkmath.NewInt(2))
	assert.Equal(t, int64(5), got.Int64())

	got = DivOrZero(sdkmath.NewInt(10), sdkmath.ZeroInt())
	assert.True(t, got.IsZero())
}
