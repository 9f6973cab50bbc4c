package pkg

import (
	"testing"

	"github.com/shoenig/test/must"
)

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup("1d20")
	must.NoError(t, err)
	must.EqOp(t, Group{Count: 1, Sides: 20}, g)

	_, err = ParseGroup("cantaloupe")
	must.ErrorIs(t, err, ErrNotDiceNotation)

	_, err = ParseGroup("1d20+1")
	must.ErrorIs(t, err, ErrNotDiceNotation)

	_, err = ParseGroup("0d6")
	must.ErrorIs(t, err, ErrDegenerateGroup)
}

func TestGroupString(t *testing.T) {
	g := Group{Count: 1, Sides: 20}
	must.EqOp(t, "1d20", g.String())
}

func TestGroupValidate(t *testing.T) {
	must.NoError(t, Group{Count: 1, Sides: 1}.Validate())
	must.ErrorIs(t, Group{Count: 0, Sides: 6}.Validate(), ErrDegenerateGroup)
	must.ErrorIs(t, Group{Count: 2, Sides: 0}.Validate(), ErrDegenerateGroup)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		notation string
		template string
		groups   []Group
	}{
		{
			name:     "single group",
			notation: "1d6",
			template: "{}",
			groups:   []Group{{Count: 1, Sides: 6}},
		},
		{
			name:     "groups in order",
			notation: "1d20 + 3d6 - 2",
			template: "{} + {} - 2",
			groups:   []Group{{Count: 1, Sides: 20}, {Count: 3, Sides: 6}},
		},
		{
			name:     "whitespace and parentheses kept",
			notation: "  (   3 + 1d1 ) *2 ",
			template: "  (   3 + {} ) *2 ",
			groups:   []Group{{Count: 1, Sides: 1}},
		},
		{
			name:     "malformed fragments stay literal",
			notation: "1da4 + d6 + 1d",
			template: "1da4 + d6 + 1d",
			groups:   nil,
		},
		{
			name:     "uppercase D is not dice",
			notation: "2D6",
			template: "2D6",
			groups:   nil,
		},
		{
			name:     "literal braces cannot collide",
			notation: "{} + 1d4",
			template: "{} + {}",
			groups:   []Group{{Count: 1, Sides: 4}},
		},
		{
			name:     "degenerate groups are extracted",
			notation: "0d6",
			template: "{}",
			groups:   []Group{{Count: 0, Sides: 6}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, groups := Extract(tt.notation)
			must.EqOp(t, tt.template, tmpl.String())
			must.Eq(t, tt.groups, groups)
			must.EqOp(t, len(groups), tmpl.Placeholders())
		})
	}
}

func TestTemplateFill(t *testing.T) {
	tmpl, _ := Extract("{} + 1d4 * (2d6)")
	filled, err := tmpl.Fill([]int64{3, -7})
	must.NoError(t, err)
	must.EqOp(t, "{} + 3 * (-7)", filled)

	_, err = tmpl.Fill([]int64{1})
	must.Error(t, err)
}
