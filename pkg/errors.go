package pkg

import "errors"

var (
	// ErrMalformedExpression is returned when a filled template cannot be
	// evaluated. The evaluator's own error is wrapped alongside it.
	ErrMalformedExpression = errors.New("malformed expression")
	// ErrDegenerateGroup is returned for dice groups with zero dice or zero sides.
	ErrDegenerateGroup = errors.New("dice must have positive count and sides")
	// ErrComplexityOverflow is returned when a combination count does not fit in an int64.
	ErrComplexityOverflow = errors.New("combination count overflows int64")
	ErrResultOutOfRange   = errors.New("result out of range")
	ErrNotDiceNotation    = errors.New("string does not match dice notation")
	// ErrTooManyDice is returned when a roll needs more dice than the
	// Roller allows.
	ErrTooManyDice = errors.New("too many dice")
)
