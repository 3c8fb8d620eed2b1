package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/executor"
)

// DefaultMaxConcurrent bounds the size of each dispatch batch when not configured.
const DefaultMaxConcurrent = 5

// StateStore receives workflow snapshots for observability.
// Save failures are logged and never affect scheduling.
type StateStore interface {
	SaveWorkflow(ctx context.Context, outcome *Outcome) error
}

// EngineConfig configures the workflow engine.
type EngineConfig struct {
	MaxConcurrent int              // Max tasks per dispatch batch (default 5)
	TaskTimeout   time.Duration    // Per-task executor timeout (0 disables)
	Store         StateStore       // Optional snapshot store
	Bus           *events.EventBus // Optional event bus
	Logger        *slog.Logger     // Defaults to slog.Default()
	Clock         func() time.Time // Defaults to time.Now
	NewID         func() string    // Workflow/task ID generator, defaults to uuid.NewString
}

// Engine drives workflows to completion, dispatching ready tasks in bounded
// concurrent batches to executors resolved through the registry.
type Engine struct {
	registry *executor.Registry
	cfg      EngineConfig
	logger   *slog.Logger

	mu          sync.Mutex
	active      map[string]*Workflow
	activeOrder []string
	history     []*Workflow
	cancels     map[string]context.CancelFunc
}

// NewEngine creates an engine bound to the given registry.
func NewEngine(registry *executor.Registry, cfg EngineConfig) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow engine: executor registry is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &Engine{
		registry: registry,
		cfg:      cfg,
		logger:   cfg.Logger,
		active:   make(map[string]*Workflow),
		cancels:  make(map[string]context.CancelFunc),
	}, nil
}

// MaxConcurrent returns the configured batch size.
func (e *Engine) MaxConcurrent() int {
	return e.cfg.MaxConcurrent
}

// Create builds a pending workflow from task definitions and registers it as active.
// Definitions without an ID get a generated one. Dependencies are not checked here:
// a dependency on an unknown ID simply never becomes satisfied.
func (e *Engine) Create(ctx context.Context, name, description string, defs []TaskDefinition) (*Workflow, error) {
	tasks := make([]*Task, 0, len(defs))
	seen := make(map[string]bool, len(defs))

	for i, def := range defs {
		if err := checkDefinition(i, def); err != nil {
			return nil, err
		}
		id := def.ID
		if id == "" {
			id = e.cfg.NewID()
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate task id %q", id)
		}
		seen[id] = true

		tasks = append(tasks, &Task{
			ID:           id,
			Name:         def.Name,
			ExecutorRef:  def.Executor,
			Prompt:       def.Prompt,
			Dependencies: slices.Clone(def.Dependencies),
			Context:      maps.Clone(def.Context),
			Status:       TaskPending,
		})
	}

	wf := newWorkflow(e.cfg.NewID(), name, description, tasks, e.cfg.Clock())

	e.mu.Lock()
	e.active[wf.id] = wf
	e.activeOrder = append(e.activeOrder, wf.id)
	e.mu.Unlock()

	e.logger.Info("created workflow", "workflow_id", wf.id, "name", name, "tasks", len(tasks))
	e.persist(ctx, wf)

	return wf, nil
}

// Run creates a workflow and executes it.
func (e *Engine) Run(ctx context.Context, name, description string, defs []TaskDefinition) (*Outcome, error) {
	wf, err := e.Create(ctx, name, description, defs)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, wf.ID())
}

// Execute drives an active workflow to a terminal status and archives it.
// Task failures are recorded in the outcome; the returned error is reserved for
// control-level problems (unknown workflow, workflow already started).
// Cancelling ctx stops dispatching, signals in-flight executors and ends the
// workflow as Cancelled.
func (e *Engine) Execute(ctx context.Context, workflowID string) (*Outcome, error) {
	e.mu.Lock()
	wf, ok := e.active[workflowID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if err := wf.begin(e.cfg.Clock()); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancels[workflowID] = cancel
	e.mu.Unlock()
	defer cancel()

	logger := e.logger.With("workflow_id", workflowID)
	logger.Info("starting workflow", "name", wf.name, "tasks", len(wf.tasks))
	e.publish(events.WorkflowStartedEvent{
		ID:        workflowID,
		Name:      wf.name,
		Total:     len(wf.tasks),
		Timestamp: e.cfg.Clock(),
	})
	e.persist(ctx, wf)

	e.drive(runCtx, wf, logger)

	if err := ctx.Err(); err != nil {
		wf.cancel(fmt.Sprintf("execution interrupted: %v", err), e.cfg.Clock())
	}
	status := wf.finish(e.cfg.Clock())

	e.mu.Lock()
	e.archiveLocked(workflowID)
	delete(e.cancels, workflowID)
	e.mu.Unlock()

	out := wf.Outcome()
	e.persist(ctx, wf)

	var duration time.Duration
	if out.DurationSeconds != nil {
		duration = time.Duration(*out.DurationSeconds * float64(time.Second))
	}
	e.publish(events.WorkflowFinishedEvent{
		ID:        workflowID,
		Status:    status.String(),
		Err:       out.Error,
		Duration:  duration,
		Timestamp: e.cfg.Clock(),
	})
	logger.Info("workflow finished",
		"status", status.String(),
		"completed", out.CompletedTasks,
		"failed", out.FailedTasks,
		"total", out.TotalTasks,
	)

	return out, nil
}

// drive is the scheduling loop: compute the ready set, dispatch up to
// MaxConcurrent of them concurrently, wait for the whole batch, repeat.
func (e *Engine) drive(ctx context.Context, wf *Workflow, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		ready := wf.ReadyTasks()
		if len(ready) == 0 {
			c := wf.counts()
			switch {
			case c.pending == 0:
				return
			case c.failed > 0:
				names := taskNames(wf.FailedTasks())
				logger.Error("workflow failed due to failed tasks", "failed", names)
				wf.abort("failed tasks: " + strings.Join(names, ", "))
				return
			default:
				err := Diagnose(wf.Tasks())
				if err == nil {
					err = fmt.Errorf("%w: %d pending task(s) never became ready", ErrDeadlock, c.pending)
				}
				logger.Warn("no ready tasks but pending tasks remain", "pending", c.pending, "error", err)
				wf.abort(err.Error())
				return
			}
		}

		batch := ready[:min(len(ready), e.cfg.MaxConcurrent)]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.MaxConcurrent)
		for _, task := range batch {
			g.Go(func() error {
				e.runTask(gctx, wf, task, logger)
				return nil // Task status lives on the workflow, not the return value
			})
		}
		_ = g.Wait()

		c := wf.counts()
		e.publish(events.WorkflowProgressEvent{
			ID:        wf.id,
			Total:     len(wf.tasks),
			Completed: c.completed,
			Running:   c.running,
			Failed:    c.failed,
			Pending:   c.pending,
			Timestamp: e.cfg.Clock(),
		})
		e.persist(ctx, wf)
	}
}

// Status returns a snapshot of an active or archived workflow.
func (e *Engine) Status(workflowID string) (*Outcome, bool) {
	wf, ok := e.lookup(workflowID)
	if !ok {
		return nil, false
	}
	return wf.Outcome(), true
}

// Workflow returns the active or archived workflow with the given ID.
func (e *Engine) Workflow(workflowID string) (*Workflow, bool) {
	return e.lookup(workflowID)
}

// Cancel marks an active workflow as cancelled, archives it and signals any
// executors it still has in flight. Returns false if the workflow is not active.
func (e *Engine) Cancel(ctx context.Context, workflowID string) bool {
	e.mu.Lock()
	wf, ok := e.active[workflowID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	wf.cancel("cancelled", e.cfg.Clock())
	e.archiveLocked(workflowID)
	if cancel, running := e.cancels[workflowID]; running {
		cancel()
	}
	e.mu.Unlock()

	e.logger.Info("workflow cancelled", "workflow_id", workflowID)
	e.publish(events.WorkflowCancelledEvent{ID: workflowID, Timestamp: e.cfg.Clock()})
	e.persist(ctx, wf)
	return true
}

// List returns summaries of active workflows, followed by archived ones when
// includeHistory is set.
func (e *Engine) List(includeHistory bool) []Summary {
	e.mu.Lock()
	workflows := make([]*Workflow, 0, len(e.activeOrder)+len(e.history))
	for _, id := range e.activeOrder {
		workflows = append(workflows, e.active[id])
	}
	if includeHistory {
		workflows = append(workflows, e.history...)
	}
	e.mu.Unlock()

	summaries := make([]Summary, 0, len(workflows))
	for _, wf := range workflows {
		summaries = append(summaries, wf.Outcome().Summary())
	}
	return summaries
}

func (e *Engine) lookup(workflowID string) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if wf, ok := e.active[workflowID]; ok {
		return wf, true
	}
	for _, wf := range e.history {
		if wf.id == workflowID {
			return wf, true
		}
	}
	return nil, false
}

// archiveLocked moves a workflow from the active set to history.
// Must be called with e.mu held; a no-op if the workflow is not active.
func (e *Engine) archiveLocked(workflowID string) {
	wf, ok := e.active[workflowID]
	if !ok {
		return
	}
	delete(e.active, workflowID)
	e.activeOrder = slices.DeleteFunc(e.activeOrder, func(id string) bool { return id == workflowID })
	e.history = append(e.history, wf)
}

func (e *Engine) publish(ev events.Event) {
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(ev)
	}
}

func (e *Engine) persist(ctx context.Context, wf *Workflow) {
	if e.cfg.Store == nil {
		return
	}
	if err := e.cfg.Store.SaveWorkflow(context.WithoutCancel(ctx), wf.Outcome()); err != nil {
		e.logger.Warn("failed to save workflow state", "workflow_id", wf.id, "error", err)
	}
}

func taskNames(tasks []*Task) []string {
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Name)
	}
	return names
}
