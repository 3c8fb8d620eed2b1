package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aristath/taskflow/internal/events"
)

// Watch prints a line for every task transition and progress update read from ch.
// It returns when ctx is done, ch is closed, or the watched workflow finishes.
func Watch(ctx context.Context, w io.Writer, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if line := ProgressLine(ev); line != "" {
				fmt.Fprintln(w, line)
			}
			if _, done := ev.(events.WorkflowFinishedEvent); done {
				return
			}
		}
	}
}

// ProgressLine formats a single event, or returns "" for events not worth showing.
func ProgressLine(ev events.Event) string {
	switch e := ev.(type) {
	case events.TaskStartedEvent:
		return fmt.Sprintf("%s %s (%s)", StyleStatusRunning.Render("started  "), e.ID, e.Executor)
	case events.TaskCompletedEvent:
		return fmt.Sprintf("%s %s in %s", StyleStatusComplete.Render("completed"), e.ID, e.Duration.Round(time.Millisecond))
	case events.TaskFailedEvent:
		return fmt.Sprintf("%s %s: %s", StyleStatusFailed.Render("failed   "), e.ID, e.Err)
	case events.WorkflowProgressEvent:
		return StyleMuted.Render(ProgressBar(e.Total, e.Completed, e.Failed, e.Running))
	case events.WorkflowCancelledEvent:
		return StyleStatusFailed.Render("workflow cancelled")
	default:
		return ""
	}
}
