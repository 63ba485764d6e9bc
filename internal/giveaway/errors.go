package giveaway

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("giveaway not found")
	ErrInvalidState = errors.New("invalid giveaway state")
	ErrStore        = errors.New("giveaway store error")
)

var (
	ErrInvalidPrize       = kindError(ErrValidation, "prize must have at least 2 characters")
	ErrInvalidWinnerCount = kindError(ErrValidation, "winner count must be at least 1")
	ErrInvalidDuration    = kindError(ErrValidation, "duration must be positive")
	ErrInvalidFormat      = kindError(ErrValidation, "invalid duration format")
	ErrUnknownUnit        = kindError(ErrValidation, "unknown duration unit")

	ErrAlreadyEnded = kindError(ErrInvalidState, "giveaway already ended")
	ErrNotYetEnded  = kindError(ErrInvalidState, "giveaway has not ended yet")

	ErrCorruptStore = kindError(ErrStore, "giveaway store is corrupt")
	ErrNotSaved     = kindError(ErrStore, "giveaway ending not saved yet")
)

type kinded struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error { return &kinded{kind: kind, msg: msg} }

func (e *kinded) Error() string { return e.msg }
func (e *kinded) Unwrap() error { return e.kind }

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
