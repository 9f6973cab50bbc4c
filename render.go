package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"

	"github.com/abennett/destiny/pkg/messages"
)

var distColumns = []table.Column{
	{Title: "Roll", Width: 8},
	{Title: "#Rolls", Width: 10},
	{Title: "Roll%", Width: 8},
	{Title: "Over%", Width: 8},
	{Title: "Under%", Width: 8},
}

func percent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64)
}

func distributionRows(rows []messages.DistributionRow) []table.Row {
	out := make([]table.Row, len(rows))
	for idx, row := range rows {
		out[idx] = table.Row{
			strconv.FormatInt(row.Value, 10),
			strconv.FormatInt(row.Count, 10),
			percent(row.Percentage),
			percent(row.RollOver),
			percent(row.RollUnder),
		}
	}
	return out
}

// renderDistribution draws a distribution as a table followed by a summary.
func renderDistribution(d messages.DistributionResponse) string {
	t := newTable(distColumns)
	t.SetRows(distributionRows(d.Rows))
	t.SetHeight(len(d.Rows) + 1)

	var sb strings.Builder
	sb.WriteString(d.Notation)
	sb.WriteString("\n")
	sb.WriteString(baseStyle.Render(t.View()))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "combinations: %d  mean: %.2f  stddev: %.2f\n", d.Total, d.Mean, d.StdDev)
	if d.Failed > 0 {
		fmt.Fprintf(&sb, "failed: %d of %d combinations skipped\n", d.Failed, d.Total)
	}
	return sb.String()
}
