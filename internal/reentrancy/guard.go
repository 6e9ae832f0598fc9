/*

This file contains the reentrancy guard shared by the staking engine and
the swap pool. Execution is serialized per call, so the guard is a flag
plus a check rather than a mutex; the atomic swap keeps it safe if a
caller ever drives the engine from multiple goroutines.

*/

package reentrancy

import (
	"sync/atomic"

	"github.com/dotindex/core/internal/types"
)

// Guard blocks nested entry into state-mutating operations. The zero
// value is ready to use.
type Guard struct {
	held atomic.Bool
}

// Enter acquires the guard and returns the release function, which must
// run on every exit path (defer it immediately). Returns ErrReentrantCall
// when the guard is already held.
func (g *Guard) Enter() (func(), error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, types.ErrReentrantCall
	}
	return func() { g.held.Store(false) }, nil
}

// Held reports whether the guard is currently taken.
func (g *Guard) Held() bool {
	return g.held.Load()
}
