package reentrancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotindex/core/internal/types"
)

func TestGuardBlocksNestedEntry(t *testing.T) {
	var g Guard

	release, err := g.Enter()
	require.NoError(t, err)
	assert.True(t, g.Held())

	_, err = g.Enter()
	assert.ErrorIs(t, err, types.ErrReentrantCall)

	release()
	assert.False(t, g.Held())

	release, err = g.Enter()
	require.NoError(t, err)
	release()
}

func TestGuardZeroValueReady(t *testing.T) {
	var g Guard
	assert.False(t, g.Held())
}
