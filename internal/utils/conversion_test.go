package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

func TestSDKIntToFloat64(t *testing.T) {
	// 1e9 smallest units at precision 9 is one whole dollar.
	got, err := SDKIntToFloat64(sdkmath.NewInt(1_000_000_000), 9)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = SDKIntToFloat64(sdkmath.NewInt(123_450_000_000), 9)
	require.NoError(t, err)
	assert.InDelta(t, 123.45, got, 1e-9)

	got, err = SDKIntToFloat64(sdkmath.ZeroInt(), 9)
	require.NoError(t, err)
	assert.Zero(t, got)

	// Precision zero passes through unscaled.
	got, err = SDKIntToFloat64(sdkmath.NewInt(42), 0)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, got, 1e-9)
}

func TestSDKIntToFloat64Validation(t *testing.T) {
	_, err := SDKIntToFloat64(sdkmath.NewInt(1), -1)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 9)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 9)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}
