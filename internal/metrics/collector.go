// Package metrics exposes workflow and task counters to Prometheus.
//
// A Collector owns its own registry and is fed exclusively from the event bus,
// so the scheduler never depends on Prometheus directly.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/taskflow/internal/events"
)

const namespace = "taskflow"

// Collector turns bus events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	workflowsTotal  *prometheus.CounterVec
	workflowsActive prometheus.Gauge

	mu      sync.Mutex
	started map[string]bool // Workflows seen starting and not yet finished

	done chan struct{}
}

// NewCollector creates a Collector with all metrics registered on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Executor wall time per task.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"executor", "status"}),
		workflowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Workflows that reached a terminal status.",
		}, []string{"status"}),
		workflowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Workflows currently executing.",
		}),
		started: make(map[string]bool),
		done:    make(chan struct{}),
	}

	c.registry.MustRegister(c.tasksTotal, c.taskDuration, c.workflowsTotal, c.workflowsActive)
	return c
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Run consumes events until ctx is done or the channel closes.
// Subscribe before the first workflow starts; events published earlier are not seen.
func (c *Collector) Run(ctx context.Context, ch <-chan events.Event) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(ev)
		}
	}
}

// Wait blocks until Run has returned.
func (c *Collector) Wait() {
	<-c.done
}

// Observe records a single event.
func (c *Collector) Observe(ev events.Event) {
	switch e := ev.(type) {
	case events.TaskCompletedEvent:
		c.tasksTotal.WithLabelValues("completed").Inc()
		c.taskDuration.WithLabelValues(e.Executor, "completed").Observe(e.Duration.Seconds())
	case events.TaskFailedEvent:
		c.tasksTotal.WithLabelValues("failed").Inc()
		c.taskDuration.WithLabelValues(e.Executor, "failed").Observe(e.Duration.Seconds())
	case events.WorkflowStartedEvent:
		c.mu.Lock()
		c.started[e.ID] = true
		c.mu.Unlock()
		c.workflowsActive.Inc()
	case events.WorkflowFinishedEvent:
		c.mu.Lock()
		delete(c.started, e.ID)
		c.mu.Unlock()
		c.workflowsActive.Dec()
		c.workflowsTotal.WithLabelValues(e.Status).Inc()
	case events.WorkflowCancelledEvent:
		// A running workflow is counted by its finished event; one cancelled
		// before it started never gets one.
		c.mu.Lock()
		running := c.started[e.ID]
		c.mu.Unlock()
		if !running {
			c.workflowsTotal.WithLabelValues("cancelled").Inc()
		}
	}
}
