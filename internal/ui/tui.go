package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gpubw/internal/matrix"
	"gpubw/internal/scenario"
)

type view int

const (
	viewCells view = iota
	viewJobs
	viewJobDetail
)

type Model struct {
	report *scenario.Report
	view   view
	cells  table.Model
	jobs   table.Model
	job    *scenario.Job
	width  int
	height int
}

func NewModel(report *scenario.Report) Model {
	return Model{
		report: report,
		view:   viewCells,
		cells:  newTable(cellHeaders, []int{8, 7, 14, 14, 10, 10, 11}, CellRows(report.Comparison)),
		jobs:   newTable(jobHeaders, []int{5, 9, 14, 9, 11, 9}, JobRows(report)),
		width:  80,
		height: 24,
	}
}

func newTable(headers []string, widths []int, rows [][]string) table.Model {
	columns := make([]table.Column, 0, len(headers))
	for i, h := range headers {
		columns = append(columns, table.Column{Title: h, Width: widths[i]})
	}
	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, table.Row(r))
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(primaryColor).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - 14; h > 4 {
			m.cells.SetHeight(h)
			m.jobs.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "tab":
			switch m.view {
			case viewCells:
				m.view = viewJobs
			case viewJobs:
				m.view = viewCells
			}
			return m, nil

		case "enter":
			if m.view == viewJobs {
				if i := m.jobs.Cursor(); i >= 0 && i < len(m.report.Jobs) {
					m.job = m.report.Jobs[i]
					m.view = viewJobDetail
				}
			}
			return m, nil

		case "esc":
			if m.view == viewJobDetail {
				m.view = viewJobs
				m.job = nil
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.view {
	case viewCells:
		m.cells, cmd = m.cells.Update(msg)
	case viewJobs:
		m.jobs, cmd = m.jobs.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch m.view {
	case viewCells:
		b.WriteString(subtitleStyle.Render("Cells"))
		b.WriteString("\n")
		b.WriteString(m.cells.View())
	case viewJobs:
		b.WriteString(subtitleStyle.Render("Jobs"))
		b.WriteString("\n")
		b.WriteString(m.jobs.View())
	case viewJobDetail:
		b.WriteString(m.renderJob())
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf(" %s on %s ", m.report.Scenario, m.report.Node)))
	b.WriteString("  ")
	b.WriteString(highlightStyle.Render(string(m.report.State)))
	if cmp := m.report.Comparison; cmp != nil {
		b.WriteString(fmt.Sprintf("   %s %s %s",
			matchedStyle.Render(fmt.Sprintf("%d matched", cmp.Count(matrix.StatusMatched))),
			missingStyle.Render(fmt.Sprintf("%d missing", cmp.Count(matrix.StatusMissing))),
			unresolvedStyle.Render(fmt.Sprintf("%d unresolved", cmp.Count(matrix.StatusUnresolved)))))
	}
	if n := len(m.report.Failures); n > 0 {
		b.WriteString("   ")
		b.WriteString(missingStyle.Render(fmt.Sprintf("%d failures", n)))
	}
	return b.String()
}

func (m Model) renderJob() string {
	job := m.job
	var b strings.Builder

	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Job %d", job.ID)))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Visible:"), deviceStyle.Render(FormatIDs("g", job.Visible))))
	if job.ReportedPackage != nil {
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Reported:"), packageStyle.Render(fmt.Sprintf("p%d", *job.ReportedPackage))))
	}
	switch {
	case job.Resolved != nil:
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Resolved:"), packageStyle.Render(fmt.Sprintf("p%d", *job.Resolved))))
	case job.Unresolved:
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Resolved:"), unresolvedStyle.Render("ambiguous")))
	}

	if len(job.Candidates) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  candidate  distance  locality   prediction"))
		b.WriteString("\n")
		for _, c := range job.Candidates {
			b.WriteString(fmt.Sprintf("  p%-8d  %-8d  %-9s  %s\n", c.Package, c.Distance, FormatBandwidth(&c.Locality), c.Prediction))
		}
	}

	if len(job.Measurements) > 0 {
		b.WriteString("\n")
		for _, ms := range job.Measurements {
			b.WriteString("  " + ms.String() + "\n")
		}
	}

	for _, f := range job.Failures {
		b.WriteString(fmt.Sprintf("\n  %s %s %s", missingStyle.Render(string(f.Kind)), f.Pinning, dimStyle.Render(f.Message)))
	}
	for _, note := range job.Notes {
		b.WriteString(fmt.Sprintf("\n  %s", highlightStyle.Render(note)))
	}
	return b.String()
}

func (m Model) renderHelp() string {
	keyStyle := lipgloss.NewStyle().Foreground(secondaryColor)
	sepStyle := dimStyle

	var parts []string
	switch m.view {
	case viewJobDetail:
		parts = append(parts, keyStyle.Render("esc")+sepStyle.Render(" back"))
	case viewJobs:
		parts = append(parts, keyStyle.Render("↑/↓")+sepStyle.Render(" navigate"))
		parts = append(parts, keyStyle.Render("enter")+sepStyle.Render(" details"))
		parts = append(parts, keyStyle.Render("tab")+sepStyle.Render(" cells"))
	default:
		parts = append(parts, keyStyle.Render("↑/↓")+sepStyle.Render(" navigate"))
		parts = append(parts, keyStyle.Render("tab")+sepStyle.Render(" jobs"))
	}
	parts = append(parts, keyStyle.Render("q")+sepStyle.Render(" quit"))

	return helpStyle.Render(strings.Join(parts, dimStyle.Render(" • ")))
}

func Browse(report *scenario.Report) error {
	p := tea.NewProgram(NewModel(report), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
