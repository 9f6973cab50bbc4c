package pkg

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abennett/destiny/pkg/formula"
)

// Policy decides what happens when one combination fails to evaluate.
type Policy int

const (
	// FailFast aborts the whole build with the first evaluation error.
	FailFast Policy = iota
	// SkipFailures drops failed combinations and takes them out of the
	// denominator, recording their weight in Distribution.Failed.
	SkipFailures
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case SkipFailures:
		return "skip-failures"
	default:
		return "Policy(" + strconv.Itoa(int(p)) + ")"
	}
}

const (
	chunksPerWorker = 4
	ctxCheckEvery   = 1024
)

// Row is one line of a distribution, ready for presentation.
type Row struct {
	Value      int64
	Count      int64
	Percentage float64
	RollOver   float64
	RollUnder  float64
}

// Distribution is the exact outcome distribution of a notation string.
type Distribution struct {
	Notation string
	Counts   map[int64]int64
	// Total is the number of combinations enumerated, Failed the number
	// dropped under SkipFailures.
	Total  int64
	Failed int64

	Percentage map[int64]float64
	RollOver   map[int64]float64
	RollUnder  map[int64]float64
}

// FromOutcomes counts a raw list of outcomes into a Distribution.
func FromOutcomes(notation string, outcomes []int64) *Distribution {
	counts := make(map[int64]int64)
	for _, o := range outcomes {
		counts[o]++
	}
	return newDistribution(notation, counts, int64(len(outcomes)), 0)
}

func newDistribution(notation string, counts map[int64]int64, total, failed int64) *Distribution {
	d := &Distribution{
		Notation:   notation,
		Counts:     counts,
		Total:      total,
		Failed:     failed,
		Percentage: make(map[int64]float64, len(counts)),
		RollOver:   make(map[int64]float64, len(counts)),
		RollUnder:  make(map[int64]float64, len(counts)),
	}
	den := float64(d.Outcomes())
	var below int64
	for _, v := range d.values() {
		c := counts[v]
		d.Percentage[v] = float64(c) / den
		d.RollUnder[v] = float64(below) / den
		d.RollOver[v] = float64(d.Outcomes()-below) / den
		below += c
	}
	return d
}

// Outcomes is the denominator: combinations that evaluated successfully.
func (d *Distribution) Outcomes() int64 {
	return d.Total - d.Failed
}

func (d *Distribution) values() []int64 {
	values := make([]int64, 0, len(d.Counts))
	for v := range d.Counts {
		values = append(values, v)
	}
	slices.Sort(values)
	return values
}

// Rows returns the distribution sorted ascending by value.
func (d *Distribution) Rows() []Row {
	values := d.values()
	rows := make([]Row, len(values))
	for idx, v := range values {
		rows[idx] = Row{
			Value:      v,
			Count:      d.Counts[v],
			Percentage: d.Percentage[v],
			RollOver:   d.RollOver[v],
			RollUnder:  d.RollUnder[v],
		}
	}
	return rows
}

// Stats summarises a distribution.
type Stats struct {
	Min      int64
	Max      int64
	Mean     float64
	Variance float64
	StdDev   float64
}

func (d *Distribution) Stats() Stats {
	values := d.values()
	if len(values) == 0 {
		return Stats{}
	}
	var mean float64
	for _, v := range values {
		mean += float64(v) * d.Percentage[v]
	}
	var variance float64
	for _, v := range values {
		diff := float64(v) - mean
		variance += diff * diff * d.Percentage[v]
	}
	return Stats{
		Min:      values[0],
		Max:      values[len(values)-1],
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
	}
}

// Builder enumerates every combination of a notation's dice and evaluates
// each one. A Builder holds no per-call state and may be shared.
type Builder struct {
	eval    formula.Evaluator
	workers int
	policy  Policy
	logger  *slog.Logger
}

type BuilderOption func(*Builder)

func WithEvaluator(eval formula.Evaluator) BuilderOption {
	return func(b *Builder) {
		b.eval = eval
	}
}

func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

func WithPolicy(p Policy) BuilderOption {
	return func(b *Builder) {
		b.policy = p
	}
}

func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		eval:    formula.Expr{},
		workers: runtime.NumCPU(),
		policy:  FailFast,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build computes the exact distribution of notation. Each group is reduced
// to its sum frequencies first, and every combination of distinct sums is
// evaluated once and counted with the product of their frequencies, which
// gives the same counts as evaluating every raw combination.
func (b *Builder) Build(ctx context.Context, notation string) (*Distribution, error) {
	tmpl, groups := Extract(notation)
	total, err := complexity(groups)
	if err != nil {
		return nil, err
	}
	tables := make([][]Weighted, len(groups))
	for idx, g := range groups {
		tables[idx], err = g.Frequencies()
		if err != nil {
			return nil, err
		}
	}

	b.logger.Debug("building distribution",
		"notation", notation,
		"combinations", total,
		"policy", b.policy)
	results, err := b.run(ctx, tmpl, tables, b.policy, false)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int64)
	var (
		failed   int64
		firstErr error
	)
	for _, r := range results {
		for v, c := range r.counts {
			counts[v] += c
		}
		failed += r.failed
		if firstErr == nil {
			firstErr = r.err
		}
	}
	if len(counts) == 0 {
		return nil, firstErr
	}
	if failed > 0 {
		b.logger.Debug("skipped failed combinations",
			"notation", notation,
			"failed", failed,
			"error", firstErr)
	}
	return newDistribution(notation, counts, total, failed), nil
}

// Outcomes evaluates every raw combination of notation's dice and returns
// the outcomes in order, with the first group varying slowest. Outcomes
// always fails fast.
func (b *Builder) Outcomes(ctx context.Context, notation string) ([]int64, error) {
	tmpl, groups := Extract(notation)
	if _, err := complexity(groups); err != nil {
		return nil, err
	}
	tables := make([][]Weighted, len(groups))
	for idx, g := range groups {
		sums, err := g.Outcomes()
		if err != nil {
			return nil, err
		}
		table := make([]Weighted, len(sums))
		for i, s := range sums {
			table[i] = Weighted{Value: s, Weight: 1}
		}
		tables[idx] = table
	}

	results, err := b.run(ctx, tmpl, tables, FailFast, true)
	if err != nil {
		return nil, err
	}
	var outcomes []int64
	for _, r := range results {
		outcomes = append(outcomes, r.outcomes...)
	}
	return outcomes, nil
}

type chunkResult struct {
	counts   map[int64]int64
	outcomes []int64
	failed   int64
	err      error
}

// run splits the mixed-radix index space over tables into contiguous
// chunks and evaluates them on a bounded pool. Results are in chunk order.
func (b *Builder) run(ctx context.Context, tmpl Template, tables [][]Weighted, policy Policy, collect bool) ([]chunkResult, error) {
	n := int64(1)
	for _, t := range tables {
		n *= int64(len(t))
	}
	chunks := int64(b.workers * chunksPerWorker)
	chunks = min(chunks, n)
	size := (n + chunks - 1) / chunks

	results := make([]chunkResult, 0, chunks)
	for lo := int64(0); lo < n; lo += size {
		results = append(results, chunkResult{})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for c := range results {
		lo := int64(c) * size
		hi := min(lo+size, n)
		g.Go(func() error {
			r, err := b.evalChunk(ctx, tmpl, tables, lo, hi, policy, collect)
			results[c] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Builder) evalChunk(ctx context.Context, tmpl Template, tables [][]Weighted, lo, hi int64, policy Policy, collect bool) (chunkResult, error) {
	r := chunkResult{counts: make(map[int64]int64)}
	if collect {
		r.outcomes = make([]int64, 0, hi-lo)
	}

	// digits[i] indexes tables[i]; the last table varies fastest
	digits := make([]int, len(tables))
	rem := lo
	for i := len(tables) - 1; i >= 0; i-- {
		base := int64(len(tables[i]))
		digits[i] = int(rem % base)
		rem /= base
	}

	var builder strings.Builder
	for idx := lo; idx < hi; idx++ {
		if (idx-lo)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return r, err
			}
		}

		weight := int64(1)
		builder.Reset()
		for i, seg := range tmpl.Segments {
			builder.WriteString(seg)
			if i < len(digits) {
				w := tables[i][digits[i]]
				builder.WriteString(strconv.FormatInt(w.Value, 10))
				weight *= w.Weight
			}
		}

		v, err := evaluate(b.eval, builder.String())
		switch {
		case err != nil && policy == FailFast:
			return r, err
		case err != nil:
			r.failed += weight
			if r.err == nil {
				r.err = err
			}
		default:
			r.counts[v] += weight
			if collect {
				r.outcomes = append(r.outcomes, v)
			}
		}

		for i := len(digits) - 1; i >= 0; i-- {
			digits[i]++
			if digits[i] < len(tables[i]) {
				break
			}
			digits[i] = 0
		}
	}
	return r, nil
}

func (d *Distribution) String() string {
	s := d.Stats()
	return fmt.Sprintf("%s: %d outcomes, min %d, max %d, mean %.2f", d.Notation, d.Outcomes(), s.Min, s.Max, s.Mean)
}
