package rebalance

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/dex"
	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/types"
)

// Receipt records the outcome of one executed action.
type Receipt struct {
	TokenID   types.TokenID `json:"token_id"`
	Direction string        `json:"direction"`
	AmountIn  sdkmath.Int   `json:"amount_in"`
	AmountOut sdkmath.Int   `json:"amount_out"`
	Error     string        `json:"error,omitempty"`
}

// Executor runs a plan against the swap pool. Sells execute before
// buys so sale proceeds fund the purchases.
type Executor struct {
	pool    *dex.SwapPool
	reserve types.Address
	log     zerolog.Logger
}

// NewExecutor wires the executor to its swap pool and reserve token.
func NewExecutor(pool *dex.SwapPool, reserve types.Address) (*Executor, error) {
	if pool == nil {
		return nil, fmt.Errorf("new executor: pool: %w", types.ErrInvalidParameter)
	}
	if reserve.IsZero() {
		return nil, fmt.Errorf("new executor: reserve: %w", types.ErrZeroAddress)
	}
	return &Executor{
		pool:    pool,
		reserve: reserve,
		log:     logger.GetForComponent("rebalance_executor"),
	}, nil
}

// Execute runs the plan action by action. A failed swap is recorded in
// its receipt and does not stop the remaining actions; a partially
// applied plan converges further on the next cycle.
func (e *Executor) Execute(sells, buys []Action) []Receipt {
	receipts := make([]Receipt, 0, len(sells)+len(buys))

	for _, action := range sells {
		receipts = append(receipts, e.execute(action, action.Contract, e.reserve))
	}
	for _, action := range buys {
		receipts = append(receipts, e.execute(action, e.reserve, action.Contract))
	}

	failed := 0
	for _, r := range receipts {
		if r.Error != "" {
			failed++
		}
	}
	e.log.Info().
		Int("executed", len(receipts)-failed).
		Int("failed", failed).
		Msg("Rebalance plan executed")

	return receipts
}

func (e *Executor) execute(action Action, from, to types.Address) Receipt {
	receipt := Receipt{
		TokenID:   action.TokenID,
		Direction: action.Dir.String(),
		AmountIn:  action.AmountIn,
		AmountOut: sdkmath.ZeroInt(),
	}

	out, err := e.pool.Swap(from, to, action.AmountIn, []types.Address{from, to})
	if err != nil {
		receipt.Error = err.Error()
		e.log.Warn().
			Err(err).
			Uint32("tokenID", uint32(action.TokenID)).
			Str("direction", receipt.Direction).
			Str("amountIn", action.AmountIn.String()).
			Msg("Swap failed, skipping action")
		return receipt
	}

	receipt.AmountOut = out
	e.log.Debug().
		Uint32("tokenID", uint32(action.TokenID)).
		Str("direction", receipt.Direction).
		Str("amountIn", action.AmountIn.String()).
		Str("amountOut", out.String()).
		Msg("Swap executed")
	return receipt
}
