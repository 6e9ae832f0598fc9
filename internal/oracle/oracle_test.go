package oracle

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

const (
	owner   = types.Address("owner")
	updater = types.Address("updater")
	tokenA  = types.Address("token_a")
)

// newTestOracle returns an oracle with a controllable clock starting at
// base and a helper to advance it.
func newTestOracle(t *testing.T) (*Oracle, *int64) {
	t.Helper()
	o, err := New(owner)
	require.NoError(t, err)

	now := int64(1_700_000_000_000)
	o.SetNowFunc(func() time.Time {
		return time.UnixMilli(now)
	})
	return o, &now
}

func TestNewValidation(t *testing.T) {
	_, err := New(types.ZeroAddress)
	assert.ErrorIs(t, err, types.ErrZeroAddress)
}

func TestUpdateAndRead(t *testing.T) {
	o, _ := newTestOracle(t)

	err := o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(100), sdkmath.NewInt(1_000_000), sdkmath.NewInt(50_000))
	require.NoError(t, err)

	price, ok := o.GetPrice(tokenA)
	require.True(t, ok)
	assert.Equal(t, int64(100), price.Int64())

	mcap, ok := o.GetMarketCap(tokenA)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_000), mcap.Int64())

	volume, ok := o.GetMarketVolume(tokenA)
	require.True(t, ok)
	assert.Equal(t, int64(50_000), volume.Int64())

	stamp, ok := o.LastUpdate(tokenA)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_000_000), stamp)
}

func TestUpdateAuthorization(t *testing.T) {
	o, _ := newTestOracle(t)

	err := o.UpdateTokenData("stranger", tokenA, sdkmath.NewInt(100), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, o.SetUpdater(owner, updater))
	err = o.UpdateTokenData(updater, tokenA, sdkmath.NewInt(100), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.NoError(t, err)
}

func TestUpdateRejectsBadValues(t *testing.T) {
	o, _ := newTestOracle(t)

	err := o.UpdateTokenData(owner, types.ZeroAddress, sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrZeroAddress)

	err = o.UpdateTokenData(owner, tokenA, sdkmath.ZeroInt(), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	err = o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(1), sdkmath.NewInt(-1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestMinimumUpdateInterval(t *testing.T) {
	o, now := newTestOracle(t)

	require.NoError(t, o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(100), sdkmath.NewInt(1), sdkmath.NewInt(1)))

	// 30s later: below the default 60s interval.
	*now += 30_000
	err := o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(101), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	*now += 30_000
	err = o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(101), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.NoError(t, err)
}

func TestDeviationGuard(t *testing.T) {
	o, now := newTestOracle(t)

	require.NoError(t, o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(1000), sdkmath.NewInt(1), sdkmath.NewInt(1)))

	// 60% jump exceeds the default 50% cap.
	*now += 60_000
	err := o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(1600), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	// A rejected update must not overwrite the stored price.
	price, ok := o.GetPrice(tokenA)
	require.True(t, ok)
	assert.Equal(t, int64(1000), price.Int64())

	// Exactly at the cap passes; the guard rejects strictly greater.
	err = o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(1500), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.NoError(t, err)

	// Drops are measured symmetrically.
	*now += 60_000
	err = o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(700), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestStalenessGatesReads(t *testing.T) {
	o, now := newTestOracle(t)

	require.NoError(t, o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(100), sdkmath.NewInt(1), sdkmath.NewInt(1)))

	*now += DefaultStalenessThresholdSecs * 1000
	_, ok := o.GetPrice(tokenA)
	assert.True(t, ok, "data exactly at the threshold is still fresh")
	assert.False(t, o.IsPriceStale(tokenA))

	*now += 1
	_, ok = o.GetPrice(tokenA)
	assert.False(t, ok)
	_, ok = o.GetMarketCap(tokenA)
	assert.False(t, ok)
	assert.True(t, o.IsPriceStale(tokenA))

	// LastUpdate is not staleness gated.
	_, ok = o.LastUpdate(tokenA)
	assert.True(t, ok)
}

func TestConfigure(t *testing.T) {
	o, now := newTestOracle(t)

	err := o.Configure("stranger", 10, 100, 0)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	err = o.Configure(owner, 0, 100, 0)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	require.NoError(t, o.Configure(owner, 10, 100, 0))

	// Interval of zero allows back to back updates; 1% deviation cap binds.
	require.NoError(t, o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(10_000), sdkmath.NewInt(1), sdkmath.NewInt(1)))
	err = o.UpdateTokenData(owner, tokenA, sdkmath.NewInt(10_200), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	// 10s staleness window.
	*now += 10_001
	_, ok := o.GetPrice(tokenA)
	assert.False(t, ok)
}

func TestUnknownToken(t *testing.T) {
	o, _ := newTestOracle(t)

	_, ok := o.GetPrice(tokenA)
	assert.False(t, ok)
	assert.True(t, o.IsPriceStale(tokenA))
	_, ok = o.LastUpdate(tokenA)
	assert.False(t, ok)
}
