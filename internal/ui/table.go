package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"gpubw/internal/matrix"
	"gpubw/internal/scenario"
)

func setupTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	return table
}

func CellRows(cmp *matrix.ComparisonReport) [][]string {
	if cmp == nil {
		return nil
	}
	cells := cmp.SortedCells()
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			fmt.Sprintf("p%d", c.Package),
			fmt.Sprintf("g%d", c.Device),
			FormatBandwidth(c.Baseline),
			FormatBandwidth(c.Observed),
			FormatDelta(c.Delta),
			FormatRelative(c.Relative),
			string(c.Status),
		})
	}
	return rows
}

func JobRows(report *scenario.Report) [][]string {
	rows := make([][]string, 0, len(report.Jobs))
	for _, job := range report.Jobs {
		resolved := "-"
		switch {
		case job.Resolved != nil:
			resolved = "p" + strconv.Itoa(*job.Resolved)
		case job.Unresolved:
			resolved = "unresolved"
		}
		reported := "-"
		if job.ReportedPackage != nil {
			reported = "p" + strconv.Itoa(*job.ReportedPackage)
		}
		rows = append(rows, []string{
			strconv.Itoa(job.ID),
			strconv.Itoa(len(job.Pinnings)),
			FormatIDs("g", job.Visible),
			reported,
			resolved,
			strconv.Itoa(len(job.Failures)),
		})
	}
	return rows
}

var (
	cellHeaders = []string{"Package", "Device", "Baseline", "Observed", "Delta", "Relative", "Status"}
	jobHeaders  = []string{"Job", "Pinnings", "Visible", "Reported", "Resolved", "Failures"}
)

// PrintReportTable writes the comparison cells and, for scheduler-placed runs, the jobs.
func PrintReportTable(w io.Writer, report *scenario.Report) {
	table := setupTable(w, cellHeaders)
	table.AppendBulk(CellRows(report.Comparison))
	table.Render()

	if len(report.Jobs) > 1 || len(report.Placements) > 0 {
		fmt.Fprintln(w)
		jobs := setupTable(w, jobHeaders)
		jobs.AppendBulk(JobRows(report))
		jobs.Render()
	}
}
