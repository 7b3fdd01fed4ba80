package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gpubw/internal/matrix"
	"gpubw/internal/pinning"
	"gpubw/internal/scenario"
	"gpubw/internal/topology"
)

func PrintTopology(w io.Writer, topo *topology.Topology) {
	if topo == nil {
		fmt.Fprintln(w, errorBoxStyle.Render("Topology unavailable"))
		return
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Node " + topo.Node))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s %d    %s %d    %s %d\n\n",
		packageStyle.Render("Packages:"), len(topo.Packages),
		deviceStyle.Render("Devices:"), len(topo.Devices),
		cpuStyle.Render("CPUs:"), topo.TotalCPUs()))

	for _, pkg := range topo.Packages {
		b.WriteString(fmt.Sprintf("  %s %d  %s\n",
			packageStyle.Render("Package"), pkg.ID,
			dimStyle.Render(fmt.Sprintf("(%d cpus: %s)", len(pkg.CPUs), topology.FormatCPUList(pkg.CPUs)))))

		devices := topo.DevicesOf(pkg.ID)
		if len(devices) == 0 {
			b.WriteString(dimStyle.Render("     └─ no local devices"))
			b.WriteString("\n")
		}
		for i, dev := range devices {
			prefix := "├─"
			if i == len(devices)-1 {
				prefix = "└─"
			}
			b.WriteString(fmt.Sprintf("     %s %s\n", prefix, deviceStyle.Render(fmt.Sprintf("g%d", dev))))
		}
	}

	fmt.Fprintln(w, boxStyle.Render(b.String()))
}

// PrintReport writes the run summary box: identity, cell counts, failures and jobs that
// could not be placed.
func PrintReport(w io.Writer, report *scenario.Report) {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s on %s", report.Scenario, report.Node)))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Run:"), report.RunID))
	if report.Queue != "" {
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Queue:"), report.Queue))
	}
	if !report.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  %s %s (%s)\n", dimStyle.Render("Started:"),
			humanize.Time(report.StartedAt), report.Duration().Round(time.Millisecond)))
	}
	b.WriteString(fmt.Sprintf("  %s %s    %s %d\n",
		dimStyle.Render("State:"), highlightStyle.Render(string(report.State)),
		dimStyle.Render("Pinnings:"), report.Pinnings))

	if cmp := report.Comparison; cmp != nil {
		b.WriteString(fmt.Sprintf("\n  %s %d    %s %d    %s %d\n",
			matchedStyle.Render("Matched:"), cmp.Count(matrix.StatusMatched),
			missingStyle.Render("Missing:"), cmp.Count(matrix.StatusMissing),
			unresolvedStyle.Render("Unresolved:"), cmp.Count(matrix.StatusUnresolved)))
	}

	if len(report.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render("  Failures"))
		b.WriteString("\n")
		for _, f := range report.Failures {
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				missingStyle.Render(string(f.Kind)), f.Pinning, dimStyle.Render(f.Message)))
		}
	}

	if unresolved := report.UnresolvedJobs(); len(unresolved) > 0 {
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render("  Unresolved jobs"))
		b.WriteString("\n")
		for _, job := range unresolved {
			b.WriteString(fmt.Sprintf("  job %d  %s  %s\n",
				job.ID, FormatIDs("g", job.Visible), dimStyle.Render(candidateSummary(job))))
		}
	}

	style := successBoxStyle
	switch {
	case report.State == scenario.StateFailed:
		style = errorBoxStyle
	case report.HasFailures() || len(report.UnresolvedJobs()) > 0:
		style = warningBoxStyle
	}
	fmt.Fprintln(w, style.Render(b.String()))
}

func PrintPinnings(w io.Writer, pinnings []pinning.Pinning, commands [][]string) {
	fmt.Fprintln(w, subtitleStyle.Render("Dry run"))
	fmt.Fprintln(w)
	for i, p := range pinnings {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, highlightStyle.Render(p.String()))
		if i < len(commands) {
			fmt.Fprintf(w, "      %s\n", dimStyle.Render(strings.Join(commands[i], " ")))
		}
	}
	fmt.Fprintln(w)
}

func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, errorBoxStyle.Render(fmt.Sprintf("✗ Error: %v", err)))
	fmt.Fprintln(w)
}

func candidateSummary(job *scenario.Job) string {
	if len(job.Candidates) == 0 {
		return "no measurements"
	}
	parts := make([]string, 0, len(job.Candidates))
	for _, c := range job.Candidates {
		parts = append(parts, fmt.Sprintf("p%d(d=%d)", c.Package, c.Distance))
	}
	return strings.Join(parts, " ")
}
