package pkg

import (
	"context"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/abennett/destiny/pkg/formula"
)

func checkInvariants(t *testing.T, d *Distribution) {
	t.Helper()
	var sum float64
	for v, p := range d.Percentage {
		sum += p
		must.InDelta(t, 1.0, d.RollOver[v]+d.RollUnder[v], 1e-9)
	}
	must.InDelta(t, 1.0, sum, 1e-9)

	var counted int64
	for _, c := range d.Counts {
		must.Positive(t, c)
		counted += c
	}
	must.EqOp(t, d.Outcomes(), counted)
}

func TestPossibleRolls(t *testing.T) {
	tests := []struct {
		notation string
		want     []int64
	}{
		{notation: "1d4", want: []int64{1, 2, 3, 4}},
		{notation: "1d6", want: []int64{1, 2, 3, 4, 5, 6}},
		{notation: "1d4 + 2", want: []int64{3, 4, 5, 6}},
		{notation: "2d4", want: []int64{2, 3, 4, 5, 3, 4, 5, 6, 4, 5, 6, 7, 5, 6, 7, 8}},
		{notation: "1d2 * 10 + 1d3", want: []int64{11, 12, 13, 21, 22, 23}},
		{notation: "5 - 3", want: []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.notation, func(t *testing.T) {
			got, err := PossibleRolls(context.Background(), tt.notation)
			must.NoError(t, err)
			must.Eq(t, tt.want, got)
		})
	}
}

func TestOutcomesOrderIndependentOfWorkers(t *testing.T) {
	ctx := context.Background()
	want, err := NewBuilder(WithWorkers(1)).Outcomes(ctx, "1d6 + 2d4 * 1d3")
	must.NoError(t, err)
	must.SliceLen(t, 6*16*3, want)

	got, err := NewBuilder(WithWorkers(7)).Outcomes(ctx, "1d6 + 2d4 * 1d3")
	must.NoError(t, err)
	must.Eq(t, want, got)
}

func TestBuild2d6(t *testing.T) {
	d, err := BuildDistribution(context.Background(), "2d6")
	must.NoError(t, err)
	must.EqOp(t, int64(36), d.Total)
	must.EqOp(t, int64(0), d.Failed)
	must.Eq(t, map[int64]int64{
		2: 1, 3: 2, 4: 3, 5: 4, 6: 5, 7: 6, 8: 5, 9: 4, 10: 3, 11: 2, 12: 1,
	}, d.Counts)
	checkInvariants(t, d)

	must.InDelta(t, 6.0/36, d.Percentage[7], 1e-12)
	must.InDelta(t, 1.0, d.RollOver[2], 1e-12)
	must.InDelta(t, 0.0, d.RollUnder[2], 1e-12)
	must.InDelta(t, 1.0/36, d.RollOver[12], 1e-12)
	must.InDelta(t, 35.0/36, d.RollUnder[12], 1e-12)

	rows := d.Rows()
	must.SliceLen(t, 11, rows)
	for idx, row := range rows {
		must.EqOp(t, int64(idx+2), row.Value)
		must.EqOp(t, d.Counts[row.Value], row.Count)
	}

	s := d.Stats()
	must.EqOp(t, int64(2), s.Min)
	must.EqOp(t, int64(12), s.Max)
	must.InDelta(t, 7.0, s.Mean, 1e-9)
	must.InDelta(t, 35.0/6, s.Variance, 1e-9)
}

func TestBuildMatchesRawEnumeration(t *testing.T) {
	ctx := context.Background()
	for _, notation := range []string{
		"1d6 + 2d4 - 1d3",
		"(2d6) / 3",
		"1d20 + 3d6",
		"2d6 * 1d4 - 10",
		"-1d8 / 3 + 1d2",
	} {
		t.Run(notation, func(t *testing.T) {
			outcomes, err := PossibleRolls(ctx, notation)
			must.NoError(t, err)
			want := FromOutcomes(notation, outcomes)

			got, err := NewBuilder(WithWorkers(3)).Build(ctx, notation)
			must.NoError(t, err)
			must.Eq(t, want.Counts, got.Counts)
			must.EqOp(t, want.Total, got.Total)
			checkInvariants(t, got)

			n, err := Complexity(notation)
			must.NoError(t, err)
			must.EqOp(t, n, got.Total)
		})
	}
}

func TestBuildTruncatesTowardZero(t *testing.T) {
	ctx := context.Background()
	d, err := BuildDistribution(ctx, "1d4 / 2")
	must.NoError(t, err)
	must.Eq(t, map[int64]int64{0: 1, 1: 2, 2: 1}, d.Counts)

	d, err = BuildDistribution(ctx, "-1d4 / 2")
	must.NoError(t, err)
	must.Eq(t, map[int64]int64{0: 1, -1: 2, -2: 1}, d.Counts)
	checkInvariants(t, d)
}

func TestBuildLarge(t *testing.T) {
	d, err := BuildDistribution(context.Background(), "8d10")
	must.NoError(t, err)
	must.EqOp(t, int64(100_000_000), d.Total)
	must.EqOp(t, int64(1), d.Counts[8])
	must.EqOp(t, int64(1), d.Counts[80])
	must.MapLen(t, 73, d.Counts)
	checkInvariants(t, d)
}

func TestBuildFailFast(t *testing.T) {
	for _, notation := range []string{"1d4 + asdf", "1da4 + 3", "1d4 + 1d", "(1d4 + 1d6"} {
		t.Run(notation, func(t *testing.T) {
			_, err := BuildDistribution(context.Background(), notation)
			must.ErrorIs(t, err, ErrMalformedExpression)
		})
	}

	_, err := BuildDistribution(context.Background(), "12 / (1d3 - 2)")
	must.ErrorIs(t, err, formula.ErrDivisionByZero)
}

func TestBuildSkipFailures(t *testing.T) {
	b := NewBuilder(WithPolicy(SkipFailures))
	d, err := b.Build(context.Background(), "12 / (1d3 - 2)")
	must.NoError(t, err)
	must.EqOp(t, int64(3), d.Total)
	must.EqOp(t, int64(1), d.Failed)
	must.EqOp(t, int64(2), d.Outcomes())
	must.Eq(t, map[int64]int64{-12: 1, 12: 1}, d.Counts)
	must.InDelta(t, 0.5, d.Percentage[12], 1e-12)
	checkInvariants(t, d)

	// weighted: 2d2 sums to 3 in two of four ways
	d, err = b.Build(context.Background(), "1 / (2d2 - 3)")
	must.NoError(t, err)
	must.EqOp(t, int64(4), d.Total)
	must.EqOp(t, int64(2), d.Failed)
	checkInvariants(t, d)

	_, err = b.Build(context.Background(), "1d4 + asdf")
	must.ErrorIs(t, err, ErrMalformedExpression)
}

func TestBuildRejects(t *testing.T) {
	ctx := context.Background()
	_, err := BuildDistribution(ctx, "1d6 + 0d4")
	must.ErrorIs(t, err, ErrDegenerateGroup)

	_, err = BuildDistribution(ctx, "100d100")
	must.ErrorIs(t, err, ErrComplexityOverflow)

	_, err = PossibleRolls(ctx, "3d0")
	must.ErrorIs(t, err, ErrDegenerateGroup)
}

func TestBuildCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildDistribution(ctx, "3d6")
	must.ErrorIs(t, err, context.Canceled)
}

func TestPolicyString(t *testing.T) {
	must.EqOp(t, "fail-fast", FailFast.String())
	must.EqOp(t, "skip-failures", SkipFailures.String())
}
