package staking

import "errors"

var (
	// ErrInvalidParameter covers zero amounts and out-of-range tier indices or
	// other malformed inputs.
	ErrInvalidParameter = errors.New("staking: invalid parameter")
	// ErrInvalidState is returned when an operation is attempted in the wrong
	// lifecycle phase, e.g. withdrawing before the unlock time.
	ErrInvalidState = errors.New("staking: invalid state")
	// ErrCapacityExceeded is returned when the tier table is full or a deposit
	// would push the pool above the staking cap.
	ErrCapacityExceeded = errors.New("staking: capacity exceeded")
	// ErrUnauthorized is returned when a non-administrator invokes a gated
	// operation.
	ErrUnauthorized = errors.New("staking: unauthorized")
	// ErrNotFound is returned when a position index does not refer to an open
	// position.
	ErrNotFound = errors.New("staking: position not found")
	// ErrTransferFailure wraps custodial transfer errors; the triggering
	// operation is rolled back in full.
	ErrTransferFailure = errors.New("staking: custodial transfer failed")

	errNilCustodian = errors.New("staking engine: custodian not configured")
)
