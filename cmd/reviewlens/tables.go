package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/TobiSchelling/ReviewLens/internal/validation"
)

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printValidation(r *validation.Report) {
	table := newTable("Category", "Cases", "Preprocessing", "Predictions", "High confidence", "Avg confidence")
	row := func(name string, m validation.Metrics) []string {
		return []string{
			name,
			fmt.Sprint(m.TotalCases),
			fmt.Sprintf("%.0f%%", m.PreprocessingRate*100),
			fmt.Sprintf("%.0f%%", m.PredictionRate*100),
			fmt.Sprintf("%.0f%%", m.HighConfidenceRate*100),
			fmt.Sprintf("%.3f", m.MeanConfidence),
		}
	}
	for _, name := range r.Categories {
		table.Append(row(name, r.Metrics.Categories[name]))
	}
	table.Append(row("overall", r.Metrics.Overall))
	table.Render()
}
