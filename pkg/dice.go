package pkg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	diceRegex = regexp.MustCompile(`(\d+)d(\d+)`)
	groupOnly = regexp.MustCompile(`^\s*(\d+)d(\d+)\s*$`)
)

// Group is a single NdM token: Count dice with Sides faces each.
type Group struct {
	Count int
	Sides int
}

// ParseGroup parses a string holding exactly one NdM token.
func ParseGroup(s string) (Group, error) {
	var g Group
	matches := groupOnly.FindStringSubmatch(s)
	if len(matches) != 3 {
		return g, fmt.Errorf("%w: %q", ErrNotDiceNotation, s)
	}
	g, ok := groupFromMatch(matches[1], matches[2])
	if !ok {
		return g, fmt.Errorf("%w: %q", ErrNotDiceNotation, s)
	}
	return g, g.Validate()
}

func groupFromMatch(count, sides string) (Group, bool) {
	c, err := strconv.Atoi(count)
	if err != nil {
		return Group{}, false
	}
	s, err := strconv.Atoi(sides)
	if err != nil {
		return Group{}, false
	}
	return Group{Count: c, Sides: s}, true
}

func (g Group) Validate() error {
	if g.Count < 1 || g.Sides < 1 {
		return fmt.Errorf("%w: %s", ErrDegenerateGroup, g)
	}
	return nil
}

func (g Group) String() string {
	return fmt.Sprintf("%dd%d", g.Count, g.Sides)
}

// Template is a notation string with its dice tokens cut out. Segments holds
// the literal text around the tokens, so there is always one more segment
// than there are groups.
type Template struct {
	Segments []string
}

// Placeholders reports how many values Fill expects.
func (t Template) Placeholders() int {
	if len(t.Segments) == 0 {
		return 0
	}
	return len(t.Segments) - 1
}

// Fill substitutes values, in order, for the template's placeholders.
func (t Template) Fill(values []int64) (string, error) {
	if len(values) != t.Placeholders() {
		return "", fmt.Errorf("template has %d placeholders, got %d values", t.Placeholders(), len(values))
	}
	var builder strings.Builder
	for idx, seg := range t.Segments {
		builder.WriteString(seg)
		if idx < len(values) {
			builder.WriteString(strconv.FormatInt(values[idx], 10))
		}
	}
	return builder.String(), nil
}

// String renders the template with "{}" in place of each dice token.
func (t Template) String() string {
	return strings.Join(t.Segments, "{}")
}

// Extract finds every NdM token in notation, left to right. Anything that
// does not match, including fragments like "1da4" or "1d", stays in the
// template as literal text. Extract never fails.
func Extract(notation string) (Template, []Group) {
	var (
		segments []string
		groups   []Group
		last     int
	)
	for _, loc := range diceRegex.FindAllStringSubmatchIndex(notation, -1) {
		g, ok := groupFromMatch(notation[loc[2]:loc[3]], notation[loc[4]:loc[5]])
		if !ok {
			// too large for int; left for the evaluator to reject
			continue
		}
		segments = append(segments, notation[last:loc[0]])
		groups = append(groups, g)
		last = loc[1]
	}
	segments = append(segments, notation[last:])
	return Template{Segments: segments}, groups
}
