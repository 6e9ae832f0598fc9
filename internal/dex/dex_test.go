package dex

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

const owner = types.Address("owner")

func newPool(t *testing.T) *SwapPool {
	t.Helper()
	pool, err := New(owner)
	require.NoError(t, err)
	return pool
}

func TestConstantProductSwap(t *testing.T) {
	s := newPool(t)
	require.NoError(t, s.SetPool(owner, "tokenA", "tokenB", sdkmath.NewInt(1000), sdkmath.NewInt(1000)))

	// out = 1000×100/(1000+100) = 90, truncated.
	out, err := s.Swap("tokenA", "tokenB", sdkmath.NewInt(100), []types.Address{"tokenA", "tokenB"})
	require.NoError(t, err)
	assert.Equal(t, int64(90), out.Int64())

	pool, ok := s.GetPool("tokenA", "tokenB")
	require.True(t, ok)
	assert.Equal(t, int64(1100), pool.ReserveA.Int64())
	assert.Equal(t, int64(910), pool.ReserveB.Int64())
}

func TestSwapReverseOrientation(t *testing.T) {
	s := newPool(t)
	require.NoError(t, s.SetPool(owner, "tokenA", "tokenB", sdkmath.NewInt(1000), sdkmath.NewInt(2000)))

	// Swapping B for A uses reserveB as input side.
	out, err := s.Swap("tokenB", "tokenA", sdkmath.NewInt(1000), []types.Address{"tokenB", "tokenA"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000*1000/(2000+1000)), out.Int64())

	pool, _ := s.GetPool("tokenA", "tokenB")
	assert.Equal(t, int64(1000-333), pool.ReserveA.Int64())
	assert.Equal(t, int64(3000), pool.ReserveB.Int64())
}

func TestSwapPathValidation(t *testing.T) {
	s := newPool(t)
	require.NoError(t, s.SetPool(owner, "tokenA", "tokenB", sdkmath.NewInt(1000), sdkmath.NewInt(1000)))

	tests := []struct {
		name string
		path []types.Address
	}{
		{"empty path", nil},
		{"single element", []types.Address{"tokenA"}},
		{"three elements", []types.Address{"tokenA", "tokenC", "tokenB"}},
		{"wrong order", []types.Address{"tokenB", "tokenA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Swap("tokenA", "tokenB", sdkmath.NewInt(100), tt.path)
			assert.ErrorIs(t, err, types.ErrInvalidParameter)
		})
	}
}

func TestSwapUnknownPool(t *testing.T) {
	s := newPool(t)
	_, err := s.Swap("tokenA", "tokenB", sdkmath.NewInt(100), []types.Address{"tokenA", "tokenB"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSwapZeroReserves(t *testing.T) {
	s := newPool(t)
	require.NoError(t, s.SetPool(owner, "tokenA", "tokenB", sdkmath.NewInt(1000), sdkmath.ZeroInt()))

	_, err := s.Swap("tokenA", "tokenB", sdkmath.NewInt(100), []types.Address{"tokenA", "tokenB"})
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestGetTokenPrice(t *testing.T) {
	s := newPool(t)
	require.NoError(t, s.SetPool(owner, "tokenA", "tokenB", sdkmath.NewInt(5000), sdkmath.NewInt(1000)))

	price, err := s.GetTokenPrice("tokenA")
	require.NoError(t, err)
	assert.Equal(t, int64(5), price.Int64())

	price, err = s.GetTokenPrice("tokenB")
	require.NoError(t, err)
	assert.Equal(t, int64(0), price.Int64())

	_, err = s.GetTokenPrice("unknown")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSetPoolAuthorization(t *testing.T) {
	s := newPool(t)
	err := s.SetPool("stranger", "tokenA", "tokenB", sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	err = s.SetPool(owner, "tokenA", "tokenA", sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}
