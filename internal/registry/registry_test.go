package registry

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

const owner = types.Address("owner")

// fakeMarketData serves canned oracle values per token address.
type fakeMarketData struct {
	prices  map[types.Address]sdkmath.Int
	caps    map[types.Address]sdkmath.Int
	volumes map[types.Address]sdkmath.Int
}

func newFakeMarketData() *fakeMarketData {
	return &fakeMarketData{
		prices:  make(map[types.Address]sdkmath.Int),
		caps:    make(map[types.Address]sdkmath.Int),
		volumes: make(map[types.Address]sdkmath.Int),
	}
}

func (f *fakeMarketData) set(token types.Address, price, mcap, volume int64) {
	f.prices[token] = sdkmath.NewInt(price)
	f.caps[token] = sdkmath.NewInt(mcap)
	f.volumes[token] = sdkmath.NewInt(volume)
}

// setUSD sets market data scaled so that, at the fallback rate of
// 2_000_000_000 native units per USD, the token lands in the wanted tier.
func (f *fakeMarketData) setUSD(token types.Address, capUSD, volumeUSD int64) {
	rate := sdkmath.NewInt(2_000_000_000)
	f.prices[token] = sdkmath.NewInt(1)
	f.caps[token] = sdkmath.NewInt(capUSD).Mul(rate)
	f.volumes[token] = sdkmath.NewInt(volumeUSD).Mul(rate)
}

func (f *fakeMarketData) GetPrice(token types.Address) (sdkmath.Int, bool) {
	v, ok := f.prices[token]
	return v, ok
}

func (f *fakeMarketData) GetMarketCap(token types.Address) (sdkmath.Int, bool) {
	v, ok := f.caps[token]
	return v, ok
}

func (f *fakeMarketData) GetMarketVolume(token types.Address) (sdkmath.Int, bool) {
	v, ok := f.volumes[token]
	return v, ok
}

type fixture struct {
	reg  *Registry
	data *fakeMarketData
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	data := newFakeMarketData()
	reg, err := New(owner, data)
	require.NoError(t, err)

	f := &fixture{reg: reg, data: data, now: time.UnixMilli(1_700_000_000_000)}
	reg.SetNowFunc(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) addToken(t *testing.T, contract types.Address, capUSD, volumeUSD int64) types.TokenID {
	t.Helper()
	f.data.setUSD(contract, capUSD, volumeUSD)
	id, err := f.reg.AddToken(owner, contract, contract+"-oracle")
	require.NoError(t, err)
	return id
}

func TestCalculateTierFromValues(t *testing.T) {
	f := newFixture(t)
	rate := sdkmath.NewInt(2_000_000_000)
	usd := func(v int64) sdkmath.Int { return sdkmath.NewInt(v).Mul(rate) }

	tests := []struct {
		name      string
		marketCap sdkmath.Int
		volume    sdkmath.Int
		want      types.Tier
	}{
		{"below tier1", usd(49_999_999), usd(4_999_999), types.TierNone},
		{"exactly tier1 boundary", usd(50_000_000), usd(5_000_000), types.Tier1},
		{"cap qualifies volume does not", usd(300_000_000), usd(4_999_999), types.TierNone},
		{"volume qualifies cap does not", usd(10_000_000), usd(300_000_000), types.TierNone},
		{"mid tier2", usd(300_000_000), usd(30_000_000), types.Tier2},
		{"tier3 cap tier2 volume", usd(600_000_000), usd(30_000_000), types.Tier2},
		{"exactly tier4 boundary", usd(2_000_000_000), usd(200_000_000), types.Tier4},
		{"far above tier4", usd(50_000_000_000), usd(5_000_000_000), types.Tier4},
		{"zero values", sdkmath.ZeroInt(), sdkmath.ZeroInt(), types.TierNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.reg.CalculateTierFromValues(tt.marketCap, tt.volume))
		})
	}
}

func TestAddTokenClassifiesImmediately(t *testing.T) {
	f := newFixture(t)

	id := f.addToken(t, "tokenA", 300_000_000, 30_000_000)
	info, err := f.reg.GetTokenInfo(id)
	require.NoError(t, err)
	assert.Equal(t, types.Tier2, info.Tier)
	assert.False(t, info.HasPendingTier)

	dist := f.reg.TierDistribution()
	assert.Equal(t, uint32(1), dist[types.Tier2])
}

func TestAddTokenRejectsDuplicateContract(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, "tokenA", 300_000_000, 30_000_000)

	_, err := f.reg.AddToken(owner, "tokenA", "other-oracle")
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}

func TestAddTokenWithoutMarketDataGetsTierNone(t *testing.T) {
	f := newFixture(t)

	id, err := f.reg.AddToken(owner, "dark-token", "dark-oracle")
	require.NoError(t, err)
	info, err := f.reg.GetTokenInfo(id)
	require.NoError(t, err)
	assert.Equal(t, types.TierNone, info.Tier)
}

func TestRoleEnforcement(t *testing.T) {
	f := newFixture(t)
	stranger := types.Address("stranger")

	_, err := f.reg.AddToken(stranger, "tokenA", "oracleA")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, f.reg.GrantRole(owner, types.RoleTokenManager, stranger))
	f.data.setUSD("tokenA", 300_000_000, 30_000_000)
	_, err = f.reg.AddToken(stranger, "tokenA", "oracleA")
	assert.NoError(t, err)

	require.NoError(t, f.reg.RevokeRole(owner, types.RoleTokenManager, stranger))
	_, err = f.reg.AddToken(stranger, "tokenB", "oracleB")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestGracePeriodParksDowngrade(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "tokenA", 600_000_000, 60_000_000)
	require.Equal(t, types.Tier3, mustInfo(t, f.reg, id).Tier)

	// Market data degrades to tier1 territory.
	f.data.setUSD("tokenA", 60_000_000, 6_000_000)
	_, err := f.reg.UpdateTokenTier(owner, id)
	require.NoError(t, err)

	info := mustInfo(t, f.reg, id)
	assert.Equal(t, types.Tier3, info.Tier, "applied tier must not change during grace")
	assert.True(t, info.HasPendingTier)
	assert.Equal(t, types.Tier1, info.PendingTier)

	dist := f.reg.TierDistribution()
	assert.Equal(t, uint32(1), dist[types.Tier3], "distribution counts the applied tier while pending")
	assert.Equal(t, uint32(0), dist[types.Tier1])
}

func TestProcessGracePeriodsBoundary(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "tokenA", 600_000_000, 60_000_000)

	f.data.setUSD("tokenA", 60_000_000, 6_000_000)
	_, err := f.reg.UpdateTokenTier(owner, id)
	require.NoError(t, err)

	grace := time.Duration(f.reg.GracePeriod()) * time.Millisecond

	// One millisecond before expiry nothing applies.
	f.advance(grace - time.Millisecond)
	processed, err := f.reg.ProcessGracePeriods(owner)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, types.Tier3, mustInfo(t, f.reg, id).Tier)

	// At exactly the boundary the change applies.
	f.advance(time.Millisecond)
	processed, err = f.reg.ProcessGracePeriods(owner)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), processed)

	info := mustInfo(t, f.reg, id)
	assert.Equal(t, types.Tier1, info.Tier)
	assert.False(t, info.HasPendingTier)
	assert.Equal(t, f.now.UnixMilli(), info.TierChangeTimestamp, "apply re-stamps the change time")

	// Processing again is a no-op.
	processed, err = f.reg.ProcessGracePeriods(owner)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestEmergencyOverrideBypassesGrace(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "tokenA", 600_000_000, 60_000_000)

	// Park a pending downgrade first.
	f.data.setUSD("tokenA", 60_000_000, 6_000_000)
	_, err := f.reg.UpdateTokenTier(owner, id)
	require.NoError(t, err)
	require.True(t, mustInfo(t, f.reg, id).HasPendingTier)

	require.NoError(t, f.reg.EmergencyTierOverride(owner, id, types.Tier4))

	info := mustInfo(t, f.reg, id)
	assert.Equal(t, types.Tier4, info.Tier)
	assert.False(t, info.HasPendingTier, "override discards the pending change")

	dist := f.reg.TierDistribution()
	assert.Equal(t, uint32(1), dist[types.Tier4])
	assert.Equal(t, uint32(0), dist[types.Tier3])
}

func TestEmergencyOverrideOwnerOnly(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "tokenA", 600_000_000, 60_000_000)

	err := f.reg.EmergencyTierOverride("stranger", id, types.Tier1)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestClearPendingTierChange(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "tokenA", 600_000_000, 60_000_000)

	f.data.setUSD("tokenA", 60_000_000, 6_000_000)
	_, err := f.reg.UpdateTokenTier(owner, id)
	require.NoError(t, err)

	require.NoError(t, f.reg.ClearPendingTierChange(owner, id))
	info := mustInfo(t, f.reg, id)
	assert.Equal(t, types.Tier3, info.Tier)
	assert.False(t, info.HasPendingTier)

	// Even after the grace window, nothing applies.
	f.advance(100 * 24 * time.Hour)
	processed, err := f.reg.ProcessGracePeriods(owner)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestSetGracePeriodBounds(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.reg.SetGracePeriod(owner, MinGracePeriodMS-1), types.ErrInvalidParameter)
	assert.ErrorIs(t, f.reg.SetGracePeriod(owner, MaxGracePeriodMS+1), types.ErrInvalidParameter)
	assert.NoError(t, f.reg.SetGracePeriod(owner, MinGracePeriodMS))
	assert.Equal(t, MinGracePeriodMS, f.reg.GracePeriod())
}

func TestDistributionSumsToTokenCount(t *testing.T) {
	f := newFixture(t)
	f.addToken(t, "a", 60_000_000, 6_000_000)
	f.addToken(t, "b", 300_000_000, 30_000_000)
	idC := f.addToken(t, "c", 600_000_000, 60_000_000)
	f.addToken(t, "d", 3_000_000_000, 300_000_000)

	sumDist := func() uint32 {
		var sum uint32
		for _, count := range f.reg.TierDistribution() {
			sum += count
		}
		return sum
	}
	assert.Equal(t, uint32(4), sumDist())

	require.NoError(t, f.reg.EmergencyTierOverride(owner, idC, types.Tier1))
	assert.Equal(t, uint32(4), sumDist())

	require.NoError(t, f.reg.RemoveToken(owner, idC))
	assert.Equal(t, uint32(3), sumDist())
	assert.Equal(t, 3, f.reg.TokenCount())
}

func TestEightyPercentRule(t *testing.T) {
	f := newFixture(t)

	// Four tier3 tokens out of four: below the minimum population, no shift.
	for _, contract := range []types.Address{"a", "b", "c", "d"} {
		f.addToken(t, contract, 600_000_000, 60_000_000)
	}
	assert.Equal(t, types.Tier1, f.reg.ActiveTier())

	// Fifth token in tier1: 4/5 = 80% in tier3, shift fires automatically.
	f.addToken(t, "e", 60_000_000, 6_000_000)
	assert.Equal(t, types.Tier3, f.reg.ActiveTier())
}

func TestEightyPercentRuleBelowThreshold(t *testing.T) {
	f := newFixture(t)

	for _, contract := range []types.Address{"a", "b", "c"} {
		f.addToken(t, contract, 600_000_000, 60_000_000)
	}
	f.addToken(t, "d", 60_000_000, 6_000_000)
	f.addToken(t, "e", 60_000_000, 6_000_000)

	// 3/5 = 60% in tier3: no shift.
	_, ok := f.reg.ShouldShiftTier()
	assert.False(t, ok)
	assert.Equal(t, types.Tier1, f.reg.ActiveTier())
}

func TestRuleOnlyShiftsUpward(t *testing.T) {
	f := newFixture(t)

	var ids []types.TokenID
	for _, contract := range []types.Address{"a", "b", "c", "d", "e"} {
		ids = append(ids, f.addToken(t, contract, 3_000_000_000, 300_000_000))
	}
	// 5/5 in tier4 shifted the active tier there.
	require.Equal(t, types.Tier4, f.reg.ActiveTier())

	// Concentrating the population below the active tier does not pull
	// the active tier back down; only owner action can.
	for _, id := range ids {
		require.NoError(t, f.reg.EmergencyTierOverride(owner, id, types.Tier2))
	}
	assert.Equal(t, types.Tier4, f.reg.ActiveTier())

	require.NoError(t, f.reg.ShiftActiveTier(owner, types.Tier2, "manual"))
	assert.Equal(t, types.Tier2, f.reg.ActiveTier())
}

func TestShiftActiveTierAuthority(t *testing.T) {
	f := newFixture(t)

	err := f.reg.ShiftActiveTier("stranger", types.Tier2, "manual")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	// The automatic-rule sentinel bypasses the owner gate.
	err = f.reg.ShiftActiveTier("stranger", types.Tier2, types.AutoShiftReason)
	assert.NoError(t, err)
	assert.Equal(t, types.Tier2, f.reg.ActiveTier())
}

func TestRefreshAllTiersParksChanges(t *testing.T) {
	f := newFixture(t)
	idA := f.addToken(t, "a", 600_000_000, 60_000_000)
	idB := f.addToken(t, "b", 300_000_000, 30_000_000)

	f.data.setUSD("a", 3_000_000_000, 300_000_000) // upgrade candidate
	f.data.setUSD("b", 300_000_000, 30_000_000)    // unchanged

	updated, err := f.reg.RefreshAllTiers(owner)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), updated)

	infoA := mustInfo(t, f.reg, idA)
	assert.Equal(t, types.Tier3, infoA.Tier)
	assert.True(t, infoA.HasPendingTier)
	assert.Equal(t, types.Tier4, infoA.PendingTier)
	assert.False(t, mustInfo(t, f.reg, idB).HasPendingTier)
}

func TestGetTokenDataDegradesOnOracleFailure(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "a", 600_000_000, 60_000_000)

	// Oracle loses the token.
	delete(f.data.prices, "a")
	delete(f.data.caps, "a")
	delete(f.data.volumes, "a")

	data, err := f.reg.GetTokenData(id)
	require.NoError(t, err)
	assert.True(t, data.Price.IsZero())
	assert.True(t, data.MarketCap.IsZero())
	assert.True(t, data.MarketVolume.IsZero())
	assert.Equal(t, types.Tier3, data.Tier, "stored tier survives oracle failure")
}

func TestGetTokensByTier(t *testing.T) {
	f := newFixture(t)
	idA := f.addToken(t, "a", 600_000_000, 60_000_000)
	f.addToken(t, "b", 60_000_000, 6_000_000)
	idC := f.addToken(t, "c", 600_000_000, 60_000_000)

	assert.Equal(t, []types.TokenID{idA, idC}, f.reg.GetTokensByTier(types.Tier3))
	assert.Empty(t, f.reg.GetTokensByTier(types.Tier4))
}

func TestUpdateTokenValidation(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "a", 600_000_000, 60_000_000)

	err := f.reg.UpdateToken(owner, id, sdkmath.NewInt(100), types.BasisPointDenom+1)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	err = f.reg.UpdateToken(owner, id, sdkmath.NewInt(-1), 500)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	require.NoError(t, f.reg.UpdateToken(owner, id, sdkmath.NewInt(100), 500))
	info := mustInfo(t, f.reg, id)
	assert.Equal(t, uint32(500), info.WeightInvestment)
	assert.Equal(t, int64(100), info.Balance.Int64())
}

func TestUpdateTokenRecalculatesTier(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "a", 60_000_000, 6_000_000)
	require.Equal(t, types.Tier1, mustInfo(t, f.reg, id).Tier)

	// Market data improves to tier3 territory: the balance update parks
	// the recalculated tier behind the grace period.
	f.data.setUSD("a", 600_000_000, 60_000_000)
	require.NoError(t, f.reg.UpdateToken(owner, id, sdkmath.NewInt(100), 500))

	info := mustInfo(t, f.reg, id)
	assert.Equal(t, types.Tier1, info.Tier, "applied tier waits out the grace period")
	assert.True(t, info.HasPendingTier)
	assert.Equal(t, types.Tier3, info.PendingTier)

	f.advance(time.Duration(f.reg.GracePeriod()) * time.Millisecond)
	processed, err := f.reg.ProcessGracePeriods(owner)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), processed)
	assert.Equal(t, types.Tier3, mustInfo(t, f.reg, id).Tier)
}

func TestUpdateTokenToleratesOracleFailure(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "a", 600_000_000, 60_000_000)

	// Oracle loses the token: the balance/weight update still lands and
	// the stored tier stays put.
	delete(f.data.prices, "a")
	delete(f.data.caps, "a")
	delete(f.data.volumes, "a")

	require.NoError(t, f.reg.UpdateToken(owner, id, sdkmath.NewInt(250), 1000))
	info := mustInfo(t, f.reg, id)
	assert.Equal(t, int64(250), info.Balance.Int64())
	assert.Equal(t, types.Tier3, info.Tier)
	assert.False(t, info.HasPendingTier)
}

func TestUpdateTokenTriggersAutoShift(t *testing.T) {
	f := newFixture(t)

	ids := make([]types.TokenID, 0, 5)
	for _, contract := range []types.Address{"a", "b", "c", "d", "e"} {
		ids = append(ids, f.addToken(t, contract, 60_000_000, 6_000_000))
	}
	require.Equal(t, types.Tier1, f.reg.ActiveTier())
	short := MinGracePeriodMS
	require.NoError(t, f.reg.SetGracePeriod(owner, short))

	// Four of five graduate to tier3 via balance updates and grace expiry.
	for _, id := range ids[:4] {
		info := mustInfo(t, f.reg, id)
		f.data.setUSD(info.TokenContract, 600_000_000, 60_000_000)
		require.NoError(t, f.reg.UpdateToken(owner, id, sdkmath.NewInt(1), 100))
	}
	f.advance(time.Duration(short) * time.Millisecond)

	// The grace expiries apply through the next balance update's
	// processing path; run them explicitly, then confirm one more
	// UpdateToken leaves the shifted tier in place.
	_, err := f.reg.ProcessGracePeriods(owner)
	require.NoError(t, err)
	assert.Equal(t, types.Tier3, f.reg.ActiveTier())

	require.NoError(t, f.reg.UpdateToken(owner, ids[4], sdkmath.NewInt(1), 100))
	assert.Equal(t, types.Tier3, f.reg.ActiveTier())
}

func TestGracePeriodRemaining(t *testing.T) {
	f := newFixture(t)
	id := f.addToken(t, "a", 600_000_000, 60_000_000)

	_, ok := f.reg.GracePeriodRemaining(id)
	assert.False(t, ok, "no pending change means no grace period")

	f.data.setUSD("a", 60_000_000, 6_000_000)
	_, err := f.reg.UpdateTokenTier(owner, id)
	require.NoError(t, err)

	remaining, ok := f.reg.GracePeriodRemaining(id)
	require.True(t, ok)
	assert.Equal(t, f.reg.GracePeriod(), remaining)

	f.advance(time.Hour)
	remaining, ok = f.reg.GracePeriodRemaining(id)
	require.True(t, ok)
	assert.Equal(t, f.reg.GracePeriod()-time.Hour.Milliseconds(), remaining)
}

func mustInfo(t *testing.T, reg *Registry, id types.TokenID) types.TokenInfo {
	t.Helper()
	info, err := reg.GetTokenInfo(id)
	require.NoError(t, err)
	return info
}
