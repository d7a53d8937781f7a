package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

// renderResult formats the per-dataset job outcome as a terminal table.
func renderResult(result domain.JobResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"DATASET", "STATE", "TILES", "ERROR"})

	for _, d := range result.Datasets {
		tw.AppendRow(table.Row{d.Dataset, string(d.State), strconv.Itoa(d.Tiles), d.Error})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
