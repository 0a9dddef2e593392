package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. A zero maxWidth leaves the column
// unbounded; longer cells wrap.
type column struct {
	header   string
	align    text.Align
	maxWidth int
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.header
		align := col.align
		if align == text.AlignDefault {
			align = text.AlignLeft
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    col.maxWidth,
		}
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
