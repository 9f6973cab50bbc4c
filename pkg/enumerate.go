package pkg

import (
	"fmt"
	"math"
	"math/bits"
)

// Weighted is a value together with the number of ways it occurs.
type Weighted struct {
	Value  int64
	Weight int64
}

func mulInt64(a, b int64) (int64, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// Combinations is Sides^Count, the number of ways the group can land.
func (g Group) Combinations() (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	n := int64(1)
	for x := 0; x < g.Count; x++ {
		var ok bool
		n, ok = mulInt64(n, int64(g.Sides))
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrComplexityOverflow, g)
		}
	}
	return n, nil
}

// Walk calls fn with the sum of every combination of the group's dice. The
// first die varies slowest and the last fastest, each running 1..Sides.
func (g Group) Walk(fn func(sum int64)) error {
	if _, err := g.Combinations(); err != nil {
		return err
	}
	dice := make([]int, g.Count)
	for idx := range dice {
		dice[idx] = 1
	}
	sum := int64(g.Count)
	for {
		fn(sum)
		i := len(dice) - 1
		for i >= 0 && dice[i] == g.Sides {
			sum -= int64(g.Sides - 1)
			dice[i] = 1
			i--
		}
		if i < 0 {
			return nil
		}
		dice[i]++
		sum++
	}
}

// Outcomes lists all Sides^Count sums with multiplicity, in Walk order.
func (g Group) Outcomes() ([]int64, error) {
	n, err := g.Combinations()
	if err != nil {
		return nil, err
	}
	outcomes := make([]int64, 0, n)
	err = g.Walk(func(sum int64) {
		outcomes = append(outcomes, sum)
	})
	return outcomes, err
}

// Frequencies counts how many combinations produce each sum, ascending by
// sum. The counts match Outcomes but are built by convolving one die at a
// time, so the cost is polynomial in Count and Sides.
func (g Group) Frequencies() ([]Weighted, error) {
	if _, err := g.Combinations(); err != nil {
		return nil, err
	}
	// ways[i] counts the combinations summing to i+dice for the dice so far
	ways := []int64{1}
	for d := 0; d < g.Count; d++ {
		next := make([]int64, len(ways)+g.Sides-1)
		for i, w := range ways {
			if w == 0 {
				continue
			}
			for face := 0; face < g.Sides; face++ {
				next[i+face] += w
			}
		}
		ways = next
	}
	freqs := make([]Weighted, len(ways))
	for i, w := range ways {
		freqs[i] = Weighted{Value: int64(i + g.Count), Weight: w}
	}
	return freqs, nil
}

// Complexity is the number of combinations an exhaustive distribution of
// notation has to evaluate: the product of Sides^Count over its groups. It
// only looks at the groups, so it is cheap to call before Build.
func Complexity(notation string) (int64, error) {
	_, groups := Extract(notation)
	return complexity(groups)
}

func complexity(groups []Group) (int64, error) {
	total := int64(1)
	for _, g := range groups {
		n, err := g.Combinations()
		if err != nil {
			return 0, err
		}
		var ok bool
		total, ok = mulInt64(total, n)
		if !ok {
			return 0, fmt.Errorf("%w: product exceeds int64 at %s", ErrComplexityOverflow, g)
		}
	}
	return total, nil
}
