/*

This file contains the shared error taxonomy. Components wrap these with
operation context so callers can classify failures with errors.Is.

*/

package types

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the owner key or
	// the required role.
	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrNotFound is returned for unknown token/stake/pool identifiers.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on duplicate registration.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidParameter is returned for out-of-range or malformed input.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrZeroAddress is returned when a null contract address is supplied.
	ErrZeroAddress = errors.New("zero address")

	// ErrInsufficientBalance is returned when an amount exceeds what is held.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPaused is returned while a safety pause is in force.
	ErrPaused = errors.New("operation paused")

	// ErrReentrantCall is returned when a guarded entry point is re-entered.
	ErrReentrantCall = errors.New("reentrant call")

	// ErrExternalCall is returned when a collaborator call trapped or errored.
	ErrExternalCall = errors.New("external call failed")

	// ErrArithmeticOverflow is returned when a value-determining computation
	// cannot be represented.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
