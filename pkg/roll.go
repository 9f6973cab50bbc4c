package pkg

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/abennett/destiny/pkg/formula"
)

// Roll records one evaluation of a notation string.
type Roll struct {
	Notation   string
	Groups     []Group
	Results    []int64
	Expression string
	Total      int64
}

func (r Roll) String() string {
	return fmt.Sprintf("%s => %d", r.Notation, r.Total)
}

// Roller simulates single rolls. It is as safe for concurrent use as its
// Source; the one from NewRoller without WithSource is.
type Roller struct {
	src     Source
	eval    formula.Evaluator
	maxDice int64
}

type RollerOption func(*Roller)

func WithSource(src Source) RollerOption {
	return func(r *Roller) {
		r.src = src
	}
}

func WithRollerEvaluator(eval formula.Evaluator) RollerOption {
	return func(r *Roller) {
		r.eval = eval
	}
}

// WithMaxDice caps the number of dice a single Roll may throw across all of
// its groups. Zero or less means no limit.
func WithMaxDice(n int64) RollerOption {
	return func(r *Roller) {
		r.maxDice = n
	}
}

func NewRoller(opts ...RollerOption) *Roller {
	r := &Roller{
		src:  globalSource{},
		eval: formula.Expr{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// globalSource draws from math/rand/v2's top-level generator.
type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n)
}

// RollGroup sums Count independent draws from [1, Sides].
func (r *Roller) RollGroup(g Group) (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	var result int64
	for x := 0; x < g.Count; x++ {
		face := int64(r.src.IntN(g.Sides) + 1)
		if result > math.MaxInt64-face {
			return 0, fmt.Errorf("%w: sum of %s exceeds int64", ErrResultOutOfRange, g)
		}
		result += face
	}
	return result, nil
}

// Roll replaces each dice group in notation with a simulated roll and
// evaluates the result. Every group is validated before anything is rolled.
func (r *Roller) Roll(notation string) (Roll, error) {
	tmpl, groups := Extract(notation)
	var dice int64
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return Roll{}, err
		}
		dice += int64(g.Count)
		if r.maxDice > 0 && dice > r.maxDice {
			return Roll{}, fmt.Errorf("%w: %q needs more than %d", ErrTooManyDice, notation, r.maxDice)
		}
	}
	results := make([]int64, len(groups))
	for idx, g := range groups {
		v, err := r.RollGroup(g)
		if err != nil {
			return Roll{}, err
		}
		results[idx] = v
	}
	expr, err := tmpl.Fill(results)
	if err != nil {
		return Roll{}, err
	}
	total, err := evaluate(r.eval, expr)
	if err != nil {
		return Roll{}, err
	}
	return Roll{
		Notation:   notation,
		Groups:     groups,
		Results:    results,
		Expression: expr,
		Total:      total,
	}, nil
}

// Evaluate returns the total of a single simulated roll of notation.
func (r *Roller) Evaluate(notation string) (int64, error) {
	roll, err := r.Roll(notation)
	if err != nil {
		return 0, err
	}
	return roll.Total, nil
}

// evaluate runs expr through eval and truncates the result toward zero.
func evaluate(eval formula.Evaluator, expr string) (int64, error) {
	v, err := eval.Evaluate(expr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMalformedExpression, expr, err)
	}
	total, err := formula.Truncate(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrResultOutOfRange, expr, err)
	}
	return total, nil
}
