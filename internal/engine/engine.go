/*

This file contains the protocol engine: the top-level service that owns
the registry, portfolio, staking and swap-pool wiring and drives the
periodic maintenance cycle.

*/

package engine

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/dex"
	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/portfolio"
	"github.com/dotindex/core/internal/rebalance"
	"github.com/dotindex/core/internal/safemath"
	"github.com/dotindex/core/internal/registry"
	"github.com/dotindex/core/internal/staking"
	"github.com/dotindex/core/internal/state"
	"github.com/dotindex/core/internal/types"
)

const (
	// Export constants for use in main.go
	DEFAULT_CONFIG_NAME    = "default_protocol_config"
	DEFAULT_CONFIG_VERSION = 1
)

// Engine drives the periodic protocol cycle: grace-period processing,
// tier refresh, index update, rebalancing and state journaling.
type Engine struct {
	logger zerolog.Logger

	owner     types.Address
	registry  *registry.Registry
	portfolio *portfolio.Portfolio
	staking   *staking.Engine
	pool      *dex.SwapPool
	executor  *rebalance.Executor

	params        *types.ProtocolParameters
	configName    string
	configVersion int

	// persist controls whether snapshots and events go to the database.
	// Disabled in tests that run without Postgres.
	persist bool

	cycleCount int
}

// Config holds the configuration for creating a new Engine instance
type Config struct {
	Owner         types.Address
	Registry      *registry.Registry
	Portfolio     *portfolio.Portfolio
	Staking       *staking.Engine
	Dex           *dex.SwapPool
	ReserveToken  types.Address
	Params        *types.ProtocolParameters
	ConfigName    string
	ConfigVersion int
	Persist       bool
}

// NewEngine creates the engine with dependency injection.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	executor, err := rebalance.NewExecutor(cfg.Dex, cfg.ReserveToken)
	if err != nil {
		return nil, fmt.Errorf("engine executor: %w", err)
	}

	engine := &Engine{
		logger:        logger.GetForComponent("engine_core"),
		owner:         cfg.Owner,
		registry:      cfg.Registry,
		portfolio:     cfg.Portfolio,
		staking:       cfg.Staking,
		pool:          cfg.Dex,
		executor:      executor,
		params:        cfg.Params,
		configName:    cfg.ConfigName,
		configVersion: cfg.ConfigVersion,
		persist:       cfg.Persist,
	}

	engine.logger.Info().
		Str("configName", engine.configName).
		Int("configVersion", engine.configVersion).
		Bool("persist", engine.persist).
		Msg("Engine instance created successfully with dependency injection")

	return engine, nil
}

// validateConfig validates the engine configuration
func validateConfig(cfg Config) error {
	if cfg.Owner.IsZero() {
		return fmt.Errorf("owner cannot be empty")
	}
	if cfg.Registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	if cfg.Portfolio == nil {
		return fmt.Errorf("portfolio cannot be nil")
	}
	if cfg.Staking == nil {
		return fmt.Errorf("staking engine cannot be nil")
	}
	if cfg.Dex == nil {
		return fmt.Errorf("swap pool cannot be nil")
	}
	if cfg.ReserveToken.IsZero() {
		return fmt.Errorf("reserve token cannot be empty")
	}
	if cfg.Params == nil {
		return fmt.Errorf("protocol parameters cannot be nil")
	}
	if cfg.ConfigName == "" {
		return fmt.Errorf("config name cannot be empty")
	}
	if cfg.ConfigVersion <= 0 {
		return fmt.Errorf("config version must be positive")
	}
	return nil
}

// RunLoop starts the main engine loop with the specified interval
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().
		Dur("interval", interval).
		Msg("Starting engine main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	e.cycleCount++
	e.logger.Info().Int("cycle", e.cycleCount).Msg("Initiating engine cycle")
	e.RunCycle(ctx)
	e.logger.Info().Int("cycle", e.cycleCount).Msg("Engine cycle completed")

	// Continue with ticker
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.cycleCount++
			e.logger.Info().Int("cycle", e.cycleCount).Msg("Initiating engine cycle")
			e.RunCycle(ctx)
			e.logger.Info().Int("cycle", e.cycleCount).Msg("Engine cycle completed")
		}
	}
}

// RunCycle executes one complete protocol maintenance cycle
func (e *Engine) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Generate unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting Protocol Cycle ---")

	snapshot := types.CycleSnapshot{
		CycleNumber: e.getCycleNumber(),
		CycleID:     cycleID,
		Timestamp:   cycleStartTime,
		ParamsID:    e.getParamsID(),
	}

	// --- Step 1: Tier Maintenance ---
	cycleLogger.Info().Msg("Step 1: Processing grace periods and refreshing tiers...")

	graceProcessed, err := e.registry.ProcessGracePeriods(e.owner)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Grace period processing failed")
	} else if graceProcessed > 0 {
		cycleLogger.Info().Uint32("applied", graceProcessed).Msg("Pending tier changes applied")
		e.journalEvent(cycleID, "grace_periods_applied", "registry", map[string]any{
			"applied": graceProcessed,
		})
	}
	snapshot.GraceProcessed = graceProcessed

	tiersRefreshed, err := e.registry.RefreshAllTiers(e.owner)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Tier refresh failed")
	}
	snapshot.TiersRefreshed = tiersRefreshed

	activeTier := e.registry.ActiveTier()
	snapshot.ActiveTier = activeTier.String()
	snapshot.TokenCount = e.registry.TokenCount()
	snapshot.PendingChanges = len(e.registry.TokensWithPendingChanges())
	snapshot.TierDistribution = tierDistributionStrings(e.registry.TierDistribution())

	cycleLogger.Info().
		Str("activeTier", snapshot.ActiveTier).
		Int("tokens", snapshot.TokenCount).
		Int("pendingChanges", snapshot.PendingChanges).
		Msg("Step 1: Tier maintenance complete.")

	// --- Step 2: Index Valuation ---
	cycleLogger.Info().Msg("Step 2: Refreshing index value...")

	indexValue, err := e.portfolio.UpdateIndexValue(e.owner)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Index refresh failed, using cached value")
		indexValue = e.portfolio.CachedIndexValue()
	}
	snapshot.IndexValue = indexValue.String()

	if performanceBP, err := e.portfolio.IndexPerformanceBP(); err == nil {
		snapshot.PerformanceBP = performanceBP
	} else {
		cycleLogger.Debug().Err(err).Msg("Index performance unavailable this cycle")
	}

	totalValue, err := e.portfolio.TotalPortfolioValue()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Portfolio valuation failed")
		snapshot.TotalPortfolioValue = "0"
	} else {
		snapshot.TotalPortfolioValue = totalValue.String()
	}
	snapshot.Holdings = e.captureHoldings()

	cycleLogger.Info().
		Str("indexValue", snapshot.IndexValue).
		Str("totalValue", snapshot.TotalPortfolioValue).
		Int32("performanceBP", snapshot.PerformanceBP).
		Msg("Step 2: Index valuation complete.")

	// --- Step 3: Rebalancing ---
	cycleLogger.Info().Msg("Step 3: Planning and executing rebalance...")
	e.rebalanceHoldings(cycleID, cycleLogger)

	// --- Step 4: Staking State ---
	snapshot.TotalStaked = e.staking.TotalStaked().String()
	snapshot.TotalCollectedFees = e.staking.TotalCollectedFees().String()

	// --- Step 5: Journal Snapshot ---
	e.saveCycleSnapshot(snapshot)

	cycleLogger.Info().
		Str("cycleDuration", time.Since(cycleStartTime).String()).
		Msg("--- Protocol Cycle Completed ---")
}

// rebalanceHoldings plans drift-correcting trades and runs them through
// the swap pool. Failures are logged and left for the next cycle.
func (e *Engine) rebalanceHoldings(cycleID string, cycleLogger zerolog.Logger) {
	holdings := e.plannerHoldings()
	if len(holdings) == 0 {
		cycleLogger.Info().Msg("No holdings to rebalance")
		return
	}

	sells, buys, err := rebalance.GeneratePlan(holdings, e.params.RebalanceThresholdBP)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Rebalance planning failed")
		return
	}
	if len(sells) == 0 && len(buys) == 0 {
		cycleLogger.Info().Msg("Portfolio within drift threshold, no trades needed")
		return
	}

	receipts := e.executor.Execute(sells, buys)
	committed := e.commitReceipts(receipts, cycleLogger)

	executed, failed := 0, 0
	for _, r := range receipts {
		if r.Error == "" {
			executed++
		} else {
			failed++
		}
	}
	cycleLogger.Info().
		Int("planned", len(receipts)).
		Int("executed", executed).
		Int("failed", failed).
		Uint32("holdingsUpdated", committed).
		Msg("Step 3: Rebalance execution complete.")

	e.journalEvent(cycleID, "rebalance_executed", "engine", map[string]any{
		"planned":  len(receipts),
		"executed": executed,
		"failed":   failed,
		"receipts": receipts,
	})
}

// commitReceipts folds executed swaps back into the portfolio so the
// next cycle plans against post-trade amounts: sells debit the amount
// sent in, buys credit the amount received. Failed actions change
// nothing and stay in the drift for the next cycle.
func (e *Engine) commitReceipts(receipts []rebalance.Receipt, cycleLogger zerolog.Logger) uint32 {
	updates := make(map[types.TokenID]sdkmath.Int)
	for _, r := range receipts {
		if r.Error != "" {
			continue
		}
		amount, staged := updates[r.TokenID]
		if !staged {
			held, ok := e.portfolio.GetTokenHolding(r.TokenID)
			if !ok {
				continue
			}
			amount = held.Amount
		}
		if r.Direction == rebalance.Sell.String() {
			amount = safemath.SaturatingSub(amount, r.AmountIn)
		} else {
			amount = safemath.SaturatingAdd(amount, r.AmountOut)
		}
		updates[r.TokenID] = amount
	}
	if len(updates) == 0 {
		return 0
	}

	updated, err := e.portfolio.UpdateMultipleAmounts(e.owner, updates)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to commit rebalance results to portfolio")
		return 0
	}
	return updated
}

// plannerHoldings assembles the planner's view of the portfolio: live
// amounts and target weights joined with registry prices.
func (e *Engine) plannerHoldings() []rebalance.Holding {
	ids := e.portfolio.HeldTokenIDs()
	holdings := make([]rebalance.Holding, 0, len(ids))

	for _, id := range ids {
		held, ok := e.portfolio.GetTokenHolding(id)
		if !ok {
			continue
		}

		data, err := e.registry.GetTokenData(id)
		if err != nil {
			e.logger.Warn().Err(err).Uint32("tokenID", uint32(id)).Msg("Token missing from registry, skipping")
			continue
		}

		holdings = append(holdings, rebalance.Holding{
			TokenID:        id,
			Contract:       data.TokenContract,
			Amount:         held.Amount,
			TargetWeightBP: held.TargetWeightBP,
			Price:          data.Price,
		})
	}
	return holdings
}

// captureHoldings converts the live valuation breakdown into snapshot rows.
func (e *Engine) captureHoldings() []types.HoldingSnapshot {
	breakdown := e.portfolio.ValuationBreakdown()
	rows := make([]types.HoldingSnapshot, 0, len(breakdown))

	for _, v := range breakdown {
		row := types.HoldingSnapshot{
			TokenID: v.TokenID,
			Amount:  v.Amount.String(),
			Priced:  v.Priced,
			Value:   v.Value.String(),
		}
		if held, ok := e.portfolio.GetTokenHolding(v.TokenID); ok {
			row.TargetWeightBP = held.TargetWeightBP
		}
		rows = append(rows, row)
	}
	return rows
}

// getCycleNumber increments and returns the persistent cycle counter from database
func (e *Engine) getCycleNumber() int {
	if !e.persist {
		return e.cycleCount
	}
	cycleNumber, err := state.IncrementCycleNumber()
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to increment cycle number, using fallback")
		return int(time.Now().Unix() % 1000000)
	}
	return cycleNumber
}

// getParamsID retrieves the current active protocol parameters ID from database
func (e *Engine) getParamsID() *int64 {
	if !e.persist {
		return nil
	}
	paramsID, err := state.GetActiveProtocolParametersID(e.configName)
	if err != nil {
		e.logger.Error().Err(err).Str("configName", e.configName).Msg("Failed to get active protocol parameters ID")
		return nil
	}
	return paramsID
}

// saveCycleSnapshot saves the cycle snapshot to database
func (e *Engine) saveCycleSnapshot(snapshot types.CycleSnapshot) {
	if !e.persist {
		return
	}
	snapshotID, err := state.SaveCycleSnapshot(snapshot)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to save cycle snapshot to database")
		return
	}
	e.logger.Info().Int64("snapshot_id", snapshotID).Msg("Cycle snapshot saved successfully")
}

// journalEvent writes a protocol event, best effort.
func (e *Engine) journalEvent(cycleID, eventType, component string, payload map[string]any) {
	if !e.persist {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["cycle_id"] = cycleID

	err := state.SaveEvent(types.EventRecord{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Component: component,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("eventType", eventType).Msg("Failed to journal event")
	}
}

func tierDistributionStrings(distribution map[types.Tier]uint32) map[string]uint32 {
	out := make(map[string]uint32, len(distribution))
	for tier, count := range distribution {
		out[tier.String()] = count
	}
	return out
}
