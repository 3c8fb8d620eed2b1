package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/definition"
	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/executor"
	"github.com/aristath/taskflow/internal/metrics"
	"github.com/aristath/taskflow/internal/persistence"
	"github.com/aristath/taskflow/internal/scheduler"
)

// RunnerOptions carries collaborators that override or extend the configuration.
type RunnerOptions struct {
	Logger *slog.Logger

	// Executors are registered after the configured command executors and
	// replace any of them with the same name.
	Executors []executor.Executor

	// Store overrides cfg.Store when non-nil. The Runner closes it on Close.
	Store persistence.Store

	// Publisher overrides dialing cfg.Events.AMQPURL when non-nil.
	Publisher events.Publisher
}

// Runner assembles the engine and everything around it from a Config:
// executors with retry and circuit breaking, the state store, the event bus,
// metrics and the optional RabbitMQ forwarder.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *executor.Registry
	procMgr  *executor.ProcessManager
	breakers *CircuitBreakerRegistry
	store    persistence.Store
	bus      *events.EventBus
	metrics  *metrics.Collector
	engine   *scheduler.Engine

	amqp      *events.AMQPPublisher // Owned connection, nil when injected or disabled
	forwarder *events.Forwarder

	stop context.CancelFunc
}

// NewRunner builds a Runner. cfg must already be validated.
func NewRunner(ctx context.Context, cfg *config.Config, opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		registry: executor.NewRegistry(logger),
		procMgr:  executor.NewProcessManager(),
		bus:      events.NewEventBus(),
		metrics:  metrics.NewCollector(),
	}
	if cfg.CircuitBreaker.Enabled {
		r.breakers = NewCircuitBreakerRegistry(BreakerSettings{
			ConsecutiveFailures: cfg.CircuitBreaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(cfg.CircuitBreaker.OpenTimeoutSeconds) * time.Second,
			HalfOpenRequests:    cfg.CircuitBreaker.HalfOpenRequests,
		}, logger)
	}

	if err := r.registerExecutors(opts.Executors); err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = openStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}
	r.store = store

	bgCtx, stop := context.WithCancel(context.Background())
	r.stop = stop
	go r.metrics.Run(bgCtx, r.bus.SubscribeAll(0))

	pub := opts.Publisher
	if pub == nil && cfg.Events.AMQPURL != "" {
		p, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			// Forwarding is optional; workflows still run without it.
			logger.Warn("RabbitMQ not available, events will not be forwarded", "error", err)
		} else {
			r.amqp = p
			pub = p
		}
	}
	if pub != nil {
		r.forwarder = events.NewForwarder(r.bus, pub, logger)
		go r.forwarder.Run(bgCtx)
	}

	engineCfg := scheduler.EngineConfig{
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		TaskTimeout:   cfg.Engine.TaskTimeout(),
		Bus:           r.bus,
		Logger:        logger,
	}
	if store != nil {
		engineCfg.Store = store
	}
	engine, err := scheduler.NewEngine(r.registry, engineCfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.engine = engine

	return r, nil
}

// registerExecutors builds command executors from the config, in name order,
// followed by the extra executors, wrapping each with the resilience policies.
func (r *Runner) registerExecutors(extra []executor.Executor) error {
	names := make([]string, 0, len(r.cfg.Executors))
	for name := range r.cfg.Executors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ec := r.cfg.Executors[name]
		cmd, err := executor.NewCommandExecutor(executor.CommandConfig{
			Name:    name,
			Command: ec.Command,
			Args:    ec.Args,
			WorkDir: ec.WorkDir,
			Env:     ec.Env,
		}, r.procMgr)
		if err != nil {
			return fmt.Errorf("executor %q: %w", name, err)
		}
		r.registry.Register(r.wrap(cmd))
	}

	for _, e := range extra {
		r.registry.Register(r.wrap(e))
	}
	return nil
}

func (r *Runner) wrap(e executor.Executor) executor.Executor {
	retry := r.retryConfig()
	if r.breakers == nil && retry == nil {
		return e
	}
	return NewResilientExecutor(e, r.breakers, retry)
}

func (r *Runner) retryConfig() *RetryConfig {
	rc := r.cfg.Retry
	if !rc.Enabled {
		return nil
	}
	return &RetryConfig{
		InitialInterval:     time.Duration(rc.InitialIntervalMS) * time.Millisecond,
		MaxInterval:         time.Duration(rc.MaxIntervalMS) * time.Millisecond,
		MaxElapsedTime:      time.Duration(rc.MaxElapsedMS) * time.Millisecond,
		Multiplier:          rc.Multiplier,
		RandomizationFactor: rc.RandomizationFactor,
	}
}

// openStore opens the configured state store. Driver "none" yields a nil store.
func openStore(ctx context.Context, sc config.StoreConfig) (persistence.Store, error) {
	switch sc.Driver {
	case config.StoreSQLite:
		s, err := persistence.NewSQLiteStore(ctx, sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := persistence.NewPostgresStore(ctx, sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case config.StoreNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// Run creates a workflow from the definition and executes it to a terminal status.
func (r *Runner) Run(ctx context.Context, def *definition.File) (*scheduler.Outcome, error) {
	return r.engine.Run(ctx, def.Name, def.Description, def.Tasks)
}

// Validate checks the definition's dependency graph and that every task names
// a registered executor. It returns the task IDs in execution order.
func (r *Runner) Validate(def *definition.File) ([]string, error) {
	order, err := def.Order()
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, t := range def.Tasks {
		if _, ok := r.registry.Resolve(t.Executor); !ok {
			unknown = append(unknown, fmt.Sprintf("%s (%s)", t.Executor, t.Name))
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("definition %s: unknown executors: %s", def.Name, strings.Join(unknown, ", "))
	}
	return order, nil
}

// Engine returns the underlying workflow engine.
func (r *Runner) Engine() *scheduler.Engine { return r.engine }

// Metrics returns the Prometheus collector fed by this runner's events.
func (r *Runner) Metrics() *metrics.Collector { return r.metrics }

// Bus returns the event bus the engine publishes to.
func (r *Runner) Bus() *events.EventBus { return r.bus }

// ErrNoStore is returned by history lookups when persistence is disabled.
var ErrNoStore = errors.New("state store disabled")

// History lists stored workflow summaries, newest first.
func (r *Runner) History(ctx context.Context, limit int) ([]scheduler.Summary, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.ListWorkflows(ctx, limit)
}

// Get returns a workflow snapshot, preferring the engine's live copy over the store.
func (r *Runner) Get(ctx context.Context, workflowID string) (*scheduler.Outcome, error) {
	if out, ok := r.engine.Status(workflowID); ok {
		return out, nil
	}
	if r.store == nil {
		return nil, fmt.Errorf("%w: %s", scheduler.ErrWorkflowNotFound, workflowID)
	}
	return r.store.GetWorkflow(ctx, workflowID)
}

// Close stops background consumers, kills tracked subprocesses and releases
// the store and the RabbitMQ connection.
func (r *Runner) Close() error {
	var errs []error

	if err := r.procMgr.KillAll(); err != nil {
		errs = append(errs, fmt.Errorf("kill processes: %w", err))
	}

	r.bus.Close()
	r.stop()
	r.metrics.Wait()
	if r.forwarder != nil {
		r.forwarder.Wait()
	}

	if r.amqp != nil {
		if err := r.amqp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
