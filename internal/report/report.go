// Package report renders workflow outcomes and listings for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskflow/internal/scheduler"
)

const barWidth = 40

// ProgressBar renders completed/failed/running/pending counts as a fixed-width bar
// followed by "completed/total".
func ProgressBar(total, completed, failed, running int) string {
	if total <= 0 {
		return ""
	}

	completedWidth := (completed * barWidth) / total
	failedWidth := (failed * barWidth) / total
	runningWidth := (running * barWidth) / total
	pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

	return fmt.Sprintf("[%s]  %d/%d", bar, completed, total)
}

// Outcome writes a human-readable report of a workflow snapshot.
// The status column comes last so styled text does not break tab alignment.
func Outcome(w io.Writer, out *scheduler.Outcome) {
	title := StyleTitle.Render(fmt.Sprintf("Workflow %s", out.Name))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", lipgloss.Width(title)))

	fmt.Fprintf(w, "ID:       %s\n", out.WorkflowID)
	if out.Description != "" {
		fmt.Fprintf(w, "About:    %s\n", out.Description)
	}
	status := out.Status.String()
	fmt.Fprintf(w, "Status:   %s\n", StatusStyle(status).Render(status))
	fmt.Fprintf(w, "Duration: %s\n", formatSeconds(out.DurationSeconds))

	running := 0
	for _, r := range out.Results {
		if r.Status == scheduler.TaskRunning {
			running++
		}
	}
	if bar := ProgressBar(out.TotalTasks, out.CompletedTasks, out.FailedTasks, running); bar != "" {
		fmt.Fprintf(w, "\n%s\n", bar)
	}

	if len(out.Results) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tNAME\tEXECUTOR\tDURATION\tSTATUS")
		fmt.Fprintln(tw, "----\t----\t--------\t--------\t------")
		for _, r := range out.Results {
			s := r.Status.String()
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.TaskID, r.TaskName, r.Executor, formatSeconds(r.DurationSeconds), StatusStyle(s).Render(s))
		}
		tw.Flush()
	}

	var failures []string
	for _, r := range out.Results {
		if r.Error != "" {
			failures = append(failures, fmt.Sprintf("  %s: %s", r.TaskID, r.Error))
		}
	}
	if out.Error != "" || len(failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, StyleStatusFailed.Render("Errors"))
		if out.Error != "" {
			fmt.Fprintf(w, "  workflow: %s\n", out.Error)
		}
		for _, f := range failures {
			fmt.Fprintln(w, f)
		}
	}
}

// Summaries writes a table of workflow summaries.
func Summaries(w io.Writer, summaries []scheduler.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, StyleMuted.Render("No workflows recorded."))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTASKS\tDURATION\tCREATED\tSTATUS")
	fmt.Fprintln(tw, "--\t----\t-----\t--------\t-------\t------")
	for _, s := range summaries {
		status := s.Status.String()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.Name, s.TaskCount, formatSeconds(s.DurationSeconds),
			s.CreatedAt.Local().Format(time.DateTime), StatusStyle(status).Render(status))
	}
	tw.Flush()
}

func formatSeconds(secs *float64) string {
	if secs == nil {
		return "-"
	}
	return (time.Duration(*secs * float64(time.Second))).Round(time.Millisecond).String()
}
