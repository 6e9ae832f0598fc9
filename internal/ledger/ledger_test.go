package ledger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

func TestMintAndTransfer(t *testing.T) {
	l, err := New("token_dot", "staking_wallet")
	require.NoError(t, err)

	require.NoError(t, l.Mint("alice", sdkmath.NewInt(1000)))
	assert.Equal(t, int64(1000), l.BalanceOf("alice").Int64())

	require.NoError(t, l.TransferFrom("alice", "staking_wallet", sdkmath.NewInt(400)))
	assert.Equal(t, int64(600), l.BalanceOf("alice").Int64())
	assert.Equal(t, int64(400), l.BalanceOf("staking_wallet").Int64())

	// Transfer debits the operator account.
	require.NoError(t, l.Transfer("bob", sdkmath.NewInt(150)))
	assert.Equal(t, int64(250), l.BalanceOf("staking_wallet").Int64())
	assert.Equal(t, int64(150), l.BalanceOf("bob").Int64())
}

func TestTransferInsufficientBalance(t *testing.T) {
	l, err := New("token_dot", "staking_wallet")
	require.NoError(t, err)

	require.NoError(t, l.Mint("alice", sdkmath.NewInt(10)))
	err = l.TransferFrom("alice", "bob", sdkmath.NewInt(11))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	// Balances untouched on failure.
	assert.Equal(t, int64(10), l.BalanceOf("alice").Int64())
	assert.True(t, l.BalanceOf("bob").IsZero())
}

func TestValidation(t *testing.T) {
	_, err := New(types.ZeroAddress, "op")
	assert.Error(t, err)

	l, err := New("token_dot", "op")
	require.NoError(t, err)

	assert.Error(t, l.Mint(types.ZeroAddress, sdkmath.NewInt(1)))
	assert.Error(t, l.Mint("alice", sdkmath.NewInt(-1)))
	assert.Error(t, l.TransferFrom("alice", types.ZeroAddress, sdkmath.NewInt(1)))
}
