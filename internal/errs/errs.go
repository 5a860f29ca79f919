// Package errs defines the error kinds returned by the pool engine.
//
// Every error returned by an engine operation matches exactly one kind with
// errors.Is. Specific errors wrap a kind so callers can branch on either.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAlreadyExists         = errors.New("already exists")
	ErrNotFound              = errors.New("not found")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow   = errors.New("arithmetic underflow")
	ErrLiquidityUnderflow    = errors.New("liquidity underflow")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrTickArrayNotFound     = errors.New("tick array not found")
)

// Specific errors. Each one matches its kind through errors.Is.
var (
	ErrInvalidFeeRate              = New(ErrInvalidParameter, "invalid fee rate")
	ErrInvalidProtocolFeeRate      = New(ErrInvalidParameter, "invalid protocol fee rate")
	ErrInvalidTickSpacing          = New(ErrInvalidParameter, "invalid tick spacing")
	ErrInvalidTickIndex            = New(ErrInvalidParameter, "invalid tick index")
	ErrInvalidTickRange            = New(ErrInvalidParameter, "invalid tick range")
	ErrInvalidSqrtPrice            = New(ErrInvalidParameter, "sqrt price out of bounds")
	ErrInvalidSqrtPriceLimit       = New(ErrInvalidParameter, "invalid sqrt price limit direction")
	ErrZeroAmount                  = New(ErrInvalidParameter, "amount must be greater than zero")
	ErrZeroLiquidity               = New(ErrInvalidParameter, "liquidity must be greater than zero")
	ErrInvalidStartTick            = New(ErrInvalidParameter, "invalid tick array start index")
	ErrInvalidTokenMintOrder       = New(ErrInvalidParameter, "token mints must be ordered")
	ErrInvalidTimestamp            = New(ErrInvalidParameter, "timestamp moved backwards")
	ErrInvalidRewardIndex          = New(ErrInvalidParameter, "invalid reward index")
	ErrRewardVaultUnderfunded      = New(ErrInvalidParameter, "reward vault does not cover a day of emissions")
	ErrPositionNotEmpty            = New(ErrInvalidParameter, "position is not empty")
	ErrSameTickRange               = New(ErrInvalidParameter, "tick range unchanged")
	ErrFullRangeOnly               = New(ErrInvalidParameter, "pool only supports full-range positions")
	ErrTokenMaxExceeded            = New(ErrSlippageExceeded, "token max exceeded")
	ErrTokenMinSubceeded           = New(ErrSlippageExceeded, "token min subceeded")
	ErrPartialFill                 = New(ErrSlippageExceeded, "trade resulted in partial fill")
	ErrAmountOutBelowMinimum       = New(ErrSlippageExceeded, "amount out below minimum threshold")
	ErrAmountInAboveMaximum        = New(ErrSlippageExceeded, "amount in above maximum threshold")
	ErrMultiplicationOverflow      = New(ErrArithmeticOverflow, "multiplication overflow")
	ErrNumberDownCastOverflow      = New(ErrArithmeticOverflow, "number cast overflow")
	ErrTokenAmountOverflow         = New(ErrArithmeticOverflow, "token amount exceeds u64")
	ErrFeeGrowthOverflow           = New(ErrArithmeticOverflow, "fee growth accumulator overflow")
	ErrRewardGrowthOverflow        = New(ErrArithmeticOverflow, "reward growth accumulator overflow")
	ErrSqrtPriceBelowMinimum       = New(ErrArithmeticUnderflow, "sqrt price below minimum")
	ErrDuplicateTwoHopPool         = New(ErrInvalidParameter, "two-hop swap routes through the same pool twice")
	ErrInvalidIntermediaryMint     = New(ErrInvalidParameter, "hops do not share the intermediary mint")
	ErrIntermediateAmountMismatch  = New(ErrSlippageExceeded, "intermediate token amount mismatch")
	ErrPositionLocked              = New(ErrInvalidParameter, "position is locked")
	ErrPositionNotLockable         = New(ErrInvalidParameter, "position has no liquidity to lock")
	ErrInvalidAdaptiveFeeConstants = New(ErrInvalidParameter, "invalid adaptive fee constants")
	ErrInvalidFeeTierIndex         = New(ErrInvalidParameter, "invalid fee tier index")
	ErrNotAdaptiveFeePool          = New(ErrInvalidParameter, "pool does not use an adaptive fee tier")
	ErrInvalidTradeEnableTimestamp = New(ErrInvalidParameter, "invalid trade enable timestamp")
	ErrTradeNotEnabled             = New(ErrInvalidParameter, "trading is not enabled yet")
)

// Error is a specific error that belongs to a kind.
type Error struct {
	Kind error
	Msg  string
}

// New creates an error of the given kind.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Newf formats a one-off error of the given kind.
func Newf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

var kinds = []struct {
	err   error
	label string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrAlreadyExists, "already_exists"},
	{ErrNotFound, "not_found"},
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrArithmeticUnderflow, "arithmetic_underflow"},
	{ErrLiquidityUnderflow, "liquidity_underflow"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrTickArrayNotFound, "tick_array_not_found"},
}

// KindOf returns a stable label for the kind of err, for metrics and logs.
// Errors outside the engine's kinds are reported as "internal".
func KindOf(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "internal"
}
