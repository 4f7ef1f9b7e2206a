package tipjar

import "errors"

var (
	// ErrEmptyName is returned when a register or update call supplies a
	// blank display name.
	ErrEmptyName = errors.New("tipjar: name required")
	// ErrAlreadyRegistered is returned when the caller already owns a
	// creator record or the requested name is claimed by any creator.
	ErrAlreadyRegistered = errors.New("tipjar: already registered")
	// ErrCreatorNotRegistered is returned when the targeted identity or
	// name has no creator record.
	ErrCreatorNotRegistered = errors.New("tipjar: creator not registered")
	// ErrNotACreator is returned when the caller attempts an owner-only
	// operation without owning a record.
	ErrNotACreator = errors.New("tipjar: caller is not a creator")
	// ErrNoFundsSent is returned when a tip carries no value.
	ErrNoFundsSent = errors.New("tipjar: tip amount must be positive")
	// ErrNoFundsToWithdraw is returned when a withdrawal finds a zero
	// balance.
	ErrNoFundsToWithdraw = errors.New("tipjar: nothing to withdraw")
	// ErrWithdrawFailed is returned when the outbound transfer failed; the
	// balance has been restored and the call is safely retryable.
	ErrWithdrawFailed = errors.New("tipjar: withdrawal transfer failed")

	errNilState      = errors.New("tipjar engine: state not configured")
	errNilTransferer = errors.New("tipjar engine: transferer not configured")
)
