package engine

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/dex"
	"github.com/dotindex/core/internal/portfolio"
	"github.com/dotindex/core/internal/registry"
	"github.com/dotindex/core/internal/staking"
	"github.com/dotindex/core/internal/types"
)

const (
	owner   = types.Address("owner")
	reserve = types.Address("token_usdc")
)

type fakeLedger struct{}

func (fakeLedger) TransferFrom(from, to types.Address, amount sdkmath.Int) error { return nil }
func (fakeLedger) Transfer(to types.Address, amount sdkmath.Int) error           { return nil }

// fakeMarketData prices tokens directly in native units.
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
	engine    *Engine
	registry  *registry.Registry
	portfolio *portfolio.Portfolio
	staking   *staking.Engine
	pool      *dex.SwapPool
	market    *fakeMarketData
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	market := newFakeMarketData()
	reg, err := registry.New(owner, market)
	require.NoError(t, err)

	port, err := portfolio.New(owner, reg)
	require.NoError(t, err)

	stake, err := staking.New(owner, "staking_wallet", "fee_wallet", reg, fakeLedger{})
	require.NoError(t, err)

	pool, err := dex.New(owner)
	require.NoError(t, err)

	params := types.ProtocolParameters{RebalanceThresholdBP: 100}
	eng, err := NewEngine(Config{
		Owner:         owner,
		Registry:      reg,
		Portfolio:     port,
		Staking:       stake,
		Dex:           pool,
		ReserveToken:  reserve,
		Params:        &params,
		ConfigName:    DEFAULT_CONFIG_NAME,
		ConfigVersion: DEFAULT_CONFIG_VERSION,
		Persist:       false,
	})
	require.NoError(t, err)

	return &fixture{
		engine:    eng,
		registry:  reg,
		portfolio: port,
		staking:   stake,
		pool:      pool,
		market:    market,
	}
}

// addHolding registers the token, prices it and adds it to the portfolio.
func (f *fixture) addHolding(t *testing.T, contract types.Address, price, amount int64, weightBP uint32) types.TokenID {
	t.Helper()

	f.market.set(contract, price, 1_000_000, 1_000_000)
	id, err := f.registry.AddToken(owner, contract, types.Address("oracle_"+string(contract)))
	require.NoError(t, err)
	require.NoError(t, f.portfolio.AddTokenHolding(owner, id, sdkmath.NewInt(amount), weightBP))
	return id
}

func TestNewEngineValidation(t *testing.T) {
	f := newFixture(t)
	params := types.ProtocolParameters{}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing owner", func(c *Config) { c.Owner = types.ZeroAddress }},
		{"missing registry", func(c *Config) { c.Registry = nil }},
		{"missing portfolio", func(c *Config) { c.Portfolio = nil }},
		{"missing staking", func(c *Config) { c.Staking = nil }},
		{"missing dex", func(c *Config) { c.Dex = nil }},
		{"missing reserve", func(c *Config) { c.ReserveToken = types.ZeroAddress }},
		{"missing params", func(c *Config) { c.Params = nil }},
		{"missing config name", func(c *Config) { c.ConfigName = "" }},
		{"bad version", func(c *Config) { c.ConfigVersion = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Owner: owner, Registry: f.registry, Portfolio: f.portfolio,
				Staking: f.staking, Dex: f.pool, ReserveToken: reserve,
				Params: &params, ConfigName: "cfg", ConfigVersion: 1,
			}
			tc.mutate(&cfg)
			_, err := NewEngine(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunCycleOnEmptyProtocol(t *testing.T) {
	f := newFixture(t)

	// Nothing registered, nothing held. The cycle must be a no-op, not
	// a failure.
	f.engine.RunCycle(context.Background())

	assert.Equal(t, 0, f.registry.TokenCount())
	assert.Equal(t, uint32(0), f.portfolio.TotalTokensHeld())
}

func TestRunCycleRebalancesDriftedPortfolio(t *testing.T) {
	f := newFixture(t)

	// Two equal-weight tokens priced at 1, drifted 70/30.
	a := f.addHolding(t, "token_a", 1, 700, 5000)
	b := f.addHolding(t, "token_b", 1, 300, 5000)

	require.NoError(t, f.pool.SetPool(owner, "token_a", reserve, sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000)))
	require.NoError(t, f.pool.SetPool(owner, reserve, "token_b", sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000)))

	f.engine.RunCycle(context.Background())

	// The sell leg pushed 200 token_a into its pool.
	poolA, ok := f.pool.GetPool("token_a", reserve)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_200), poolA.ReserveA.Int64())

	// The buy leg spent 200 reserve on token_b.
	poolB, ok := f.pool.GetPool(reserve, "token_b")
	require.True(t, ok)
	assert.Equal(t, int64(1_000_200), poolB.ReserveA.Int64())

	// Executed trades are committed back into the holdings: token_a lost
	// the 200 sold, token_b gained the 199 the buy leg returned.
	heldA, ok := f.portfolio.GetTokenHolding(a)
	require.True(t, ok)
	assert.Equal(t, int64(500), heldA.Amount.Int64())
	heldB, ok := f.portfolio.GetTokenHolding(b)
	require.True(t, ok)
	assert.Equal(t, int64(499), heldB.Amount.Int64())

	// With post-trade amounts committed, the drift is gone: a second
	// cycle plans nothing and the pools stay put.
	f.engine.RunCycle(context.Background())

	poolA, ok = f.pool.GetPool("token_a", reserve)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_200), poolA.ReserveA.Int64())
	poolB, ok = f.pool.GetPool(reserve, "token_b")
	require.True(t, ok)
	assert.Equal(t, int64(1_000_200), poolB.ReserveA.Int64())
}

func TestRunCycleSkipsBalancedPortfolio(t *testing.T) {
	f := newFixture(t)

	f.addHolding(t, "token_a", 1, 500, 5000)
	f.addHolding(t, "token_b", 1, 500, 5000)

	require.NoError(t, f.pool.SetPool(owner, "token_a", reserve, sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000)))
	require.NoError(t, f.pool.SetPool(owner, "token_b", reserve, sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000)))

	f.engine.RunCycle(context.Background())

	poolA, ok := f.pool.GetPool("token_a", reserve)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_000), poolA.ReserveA.Int64())
}

func TestRunCycleRefreshesIndexValue(t *testing.T) {
	f := newFixture(t)

	id := f.addHolding(t, "token_a", 1, 1000, 5000)
	require.NoError(t, f.portfolio.InitializeBaseValue(owner))

	// Double the holding and run a cycle: the cached index should track
	// the valuation change.
	require.NoError(t, f.portfolio.UpdateTokenHolding(owner, id, sdkmath.NewInt(2000), 5000))
	f.engine.RunCycle(context.Background())

	expected := portfolio.IndexBaseValue.MulRaw(2)
	assert.Equal(t, expected, f.portfolio.CachedIndexValue())

	performanceBP, err := f.portfolio.IndexPerformanceBP()
	require.NoError(t, err)
	assert.Equal(t, int32(10000), performanceBP)
}

func TestRunCycleAppliesMaturedGracePeriods(t *testing.T) {
	f := newFixture(t)

	base := time.UnixMilli(1_700_000_000_000)
	now := base
	f.registry.SetNowFunc(func() time.Time { return now })

	// Register at tier1-grade market data, then collapse it so a
	// downgrade parks behind the grace period.
	f.market.set("token_a", 1, 200_000_000_000_000_000, 20_000_000_000_000_000)
	id, err := f.registry.AddToken(owner, "token_a", "oracle_a")
	require.NoError(t, err)

	f.market.set("token_a", 1, 0, 0)
	_, err = f.registry.UpdateTokenTier(owner, id)
	require.NoError(t, err)
	require.Len(t, f.registry.TokensWithPendingChanges(), 1)

	// Before expiry the cycle leaves the pending change parked.
	f.engine.RunCycle(context.Background())
	assert.Len(t, f.registry.TokensWithPendingChanges(), 1)

	// After the grace period the cycle applies it.
	now = base.Add(time.Duration(f.registry.GracePeriod()) * time.Millisecond)
	f.engine.RunCycle(context.Background())
	assert.Empty(t, f.registry.TokensWithPendingChanges())

	info, err := f.registry.GetTokenInfo(id)
	require.NoError(t, err)
	assert.Equal(t, types.TierNone, info.Tier)
}

func TestRunLoopStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.RunLoop(ctx, time.Hour)
		close(done)
	}()

	// The first cycle runs immediately; cancel and wait for the loop
	// to notice.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunLoop did not stop after context cancellation")
	}
}
