// Package pkg evaluates dice notation such as "2d6 + 4" inside ordinary
// arithmetic. Notation can be rolled once with a Roller or enumerated
// exhaustively into an exact Distribution with a Builder.
package pkg

import "context"

var (
	defaultRoller  = NewRoller()
	defaultBuilder = NewBuilder()
)

// Evaluate rolls notation once using the global random source.
func Evaluate(notation string) (int64, error) {
	return defaultRoller.Evaluate(notation)
}

// BuildDistribution computes the exact distribution of notation with the
// default Builder. Check Complexity first for untrusted input.
func BuildDistribution(ctx context.Context, notation string) (*Distribution, error) {
	return defaultBuilder.Build(ctx, notation)
}

// PossibleRolls lists every raw outcome of notation in enumeration order.
func PossibleRolls(ctx context.Context, notation string) ([]int64, error) {
	return defaultBuilder.Outcomes(ctx, notation)
}
