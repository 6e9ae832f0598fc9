/*

This file contains an in-memory balance book for a single token
contract. It backs the staking engine's transfer collaborator in
deployments that run without a live chain connection.

*/

package ledger

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/types"
)

// Ledger tracks balances for one token. Transfer debits the operator
// account, matching the staking engine's expectation that its own
// wallet is the sender.
type Ledger struct {
	mu sync.Mutex

	token    types.Address
	operator types.Address
	balances map[types.Address]sdkmath.Int

	log zerolog.Logger
}

// New creates a ledger for token with operator as the implicit sender
// of Transfer calls.
func New(token, operator types.Address) (*Ledger, error) {
	if token.IsZero() || operator.IsZero() {
		return nil, fmt.Errorf("new ledger: %w", types.ErrZeroAddress)
	}
	return &Ledger{
		token:    token,
		operator: operator,
		balances: make(map[types.Address]sdkmath.Int),
		log:      logger.GetForComponent("ledger"),
	}, nil
}

// Token returns the token contract this ledger tracks.
func (l *Ledger) Token() types.Address { return l.token }

// Mint credits an account out of thin air. Bootstrap and tests only.
func (l *Ledger) Mint(to types.Address, amount sdkmath.Int) error {
	if to.IsZero() {
		return fmt.Errorf("mint: %w", types.ErrZeroAddress)
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("mint: amount: %w", types.ErrInvalidParameter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

// BalanceOf returns the balance of account, zero when unknown.
func (l *Ledger) BalanceOf(account types.Address) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account)
}

// TransferFrom moves amount from one account to another.
func (l *Ledger) TransferFrom(from, to types.Address, amount sdkmath.Int) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("transfer from: %w", types.ErrZeroAddress)
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("transfer from: amount: %w", types.ErrInvalidParameter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceLocked(from)
	if balance.LT(amount) {
		return fmt.Errorf("transfer from %s: balance %s < %s: %w", from, balance, amount, types.ErrInsufficientBalance)
	}

	l.balances[from] = balance.Sub(amount)
	l.balances[to] = l.balanceLocked(to).Add(amount)

	l.log.Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("amount", amount.String()).
		Msg("Tokens transferred")
	return nil
}

// Transfer moves amount from the operator account to another account.
func (l *Ledger) Transfer(to types.Address, amount sdkmath.Int) error {
	return l.TransferFrom(l.operator, to, amount)
}

func (l *Ledger) balanceLocked(account types.Address) sdkmath.Int {
	if balance, ok := l.balances[account]; ok {
		return balance
	}
	return sdkmath.ZeroInt()
}
