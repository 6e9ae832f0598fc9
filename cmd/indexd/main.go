package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	sdkmath "cosmossdk.io/math"

	"github.com/dotindex/core/internal/config"
	"github.com/dotindex/core/internal/dex"
	"github.com/dotindex/core/internal/engine"
	"github.com/dotindex/core/internal/ledger"
	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/oracle"
	"github.com/dotindex/core/internal/portfolio"
	"github.com/dotindex/core/internal/registry"
	"github.com/dotindex/core/internal/staking"
	"github.com/dotindex/core/internal/state"
	"github.com/dotindex/core/internal/types"
	"github.com/dotindex/core/internal/web"
)

// main is the entry point for the index protocol daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Index Protocol Core Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Protocol Parameters
	params, err := state.LoadActiveProtocolParameters(engine.DEFAULT_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active protocol parameters, using defaults and saving.")
		defaultParams := config.DefaultProtocolParameters
		if _, err := state.SaveProtocolParameters(defaultParams, engine.DEFAULT_CONFIG_NAME, engine.DEFAULT_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default protocol parameters.")
		}
		params = &defaultParams
	}
	log.Info().Msg("Protocol parameters loaded successfully.")

	// --- 2. Component Initialization ---
	owner := types.Address(config.OwnerAddress)

	priceOracle, err := oracle.New(owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create oracle")
	}
	if err := priceOracle.Configure(owner, params.OracleStalenessSecs, uint32(params.OracleMaxDeviationBP), params.OracleMinUpdateIntervalMS); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure oracle")
	}

	reg, err := registry.New(owner, priceOracle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token registry")
	}
	if err := reg.SetGracePeriod(owner, params.GracePeriodMS); err != nil {
		log.Fatal().Err(err).Msg("Failed to set grace period")
	}
	if err := reg.SetTierThresholds(owner, thresholdsFromParams(*params)); err != nil {
		log.Fatal().Err(err).Msg("Failed to set tier thresholds")
	}
	usdReference := types.Address(config.USDReferenceContract)
	if err := reg.SetUSDRateSource(owner, priceOracle, usdReference); err != nil {
		log.Fatal().Err(err).Msg("Failed to set USD rate source")
	}

	port, err := portfolio.New(owner, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create portfolio")
	}
	if params.MaxHoldings > 0 {
		if err := port.SetMaxHoldings(owner, params.MaxHoldings); err != nil {
			log.Fatal().Err(err).Msg("Failed to set max holdings")
		}
	}
	if err := port.SetFeeConfig(owner, types.FeeConfiguration{
		BuyFeeBP:       params.BuyFeeBP,
		SellFeeBP:      params.SellFeeBP,
		StreamingFeeBP: params.StreamingFeeBP,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set fee configuration")
	}

	stakingWallet := types.Address(config.StakingWalletAddress)
	book, err := ledger.New(usdReference, stakingWallet)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token ledger")
	}
	stake, err := staking.New(owner, stakingWallet, types.Address(config.FeeWalletAddress), reg, book)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create staking engine")
	}

	pool, err := dex.New(owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create swap pool")
	}

	// Optionally seed the registry with the default token universe.
	if config.SeedRegistry {
		seedRegistry(reg, owner)
	}

	// --- 3. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, web.Components{
		Registry:  reg,
		Portfolio: port,
		Staking:   stake,
		Dex:       pool,
	}, engine.DEFAULT_CONFIG_NAME)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting protocol dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Create Engine Instance with Dependency Injection ---
	log.Info().Msg("Creating engine instance with dependency injection...")

	protocolEngine, err := engine.NewEngine(engine.Config{
		Owner:         owner,
		Registry:      reg,
		Portfolio:     port,
		Staking:       stake,
		Dex:           pool,
		ReserveToken:  usdReference,
		Params:        params,
		ConfigName:    engine.DEFAULT_CONFIG_NAME,
		ConfigVersion: engine.DEFAULT_CONFIG_VERSION,
		Persist:       true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine instance")
	}

	log.Info().Msg("Engine instance created successfully")

	// --- 5. Start Engine Main Loop ---
	interval := time.Duration(config.CycleIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Duration(params.CycleIntervalSecs) * time.Second
	}
	log.Info().Str("interval", interval.String()).Msg("Starting engine main loop")

	ctx := context.Background()
	protocolEngine.RunLoop(ctx, interval)
}

// seedRegistry registers the default token universe.
func seedRegistry(reg *registry.Registry, owner types.Address) {
	for _, seed := range config.SeedTokens {
		id, err := reg.AddToken(owner, types.Address(seed.TokenContract), types.Address(seed.OracleContract))
		if err != nil {
			log.Warn().Err(err).Str("symbol", seed.Symbol).Msg("Failed to seed token")
			continue
		}
		log.Info().Str("symbol", seed.Symbol).Uint32("tokenID", uint32(id)).Msg("Seeded token")
	}
}

// thresholdsFromParams converts persisted parameter values into the
// registry's threshold set.
func thresholdsFromParams(params types.ProtocolParameters) types.TierThresholds {
	return types.TierThresholds{
		Tier1MarketCapUSD: sdkmath.NewInt(params.Tier1MarketCapUSD),
		Tier1VolumeUSD:    sdkmath.NewInt(params.Tier1VolumeUSD),
		Tier2MarketCapUSD: sdkmath.NewInt(params.Tier2MarketCapUSD),
		Tier2VolumeUSD:    sdkmath.NewInt(params.Tier2VolumeUSD),
		Tier3MarketCapUSD: sdkmath.NewInt(params.Tier3MarketCapUSD),
		Tier3VolumeUSD:    sdkmath.NewInt(params.Tier3VolumeUSD),
		Tier4MarketCapUSD: sdkmath.NewInt(params.Tier4MarketCapUSD),
		Tier4VolumeUSD:    sdkmath.NewInt(params.Tier4VolumeUSD),
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
