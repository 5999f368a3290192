package blackjack

import (
	"errors"
)

var (
	ErrInvalidStake      = errors.New("stake must be positive")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRoundInProgress   = errors.New("round in progress")
	ErrRoundNotFound     = errors.New("round not found")
	ErrRoundNotActive    = errors.New("round not active")
	ErrDrawUnavailable   = errors.New("draw unavailable")
)

// ErrorKind returns a stable short name for err, used for metric labels and
// API error codes. Unknown errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidStake):
		return "invalid_stake"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrRoundInProgress):
		return "round_in_progress"
	case errors.Is(err, ErrRoundNotFound):
		return "round_not_found"
	case errors.Is(err, ErrRoundNotActive):
		return "round_not_active"
	case errors.Is(err, ErrDrawUnavailable):
		return "draw_unavailable"
	default:
		return "internal"
	}
}
