package executor

import (
	"log/slog"
	"sync"
)

// Registry maps executor names to Executor instances.
// Names are listed in first-registration order.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	order     []string
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger falls back to slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		executors: make(map[string]Executor),
		logger:    logger,
	}
}

// Register stores the executor under its declared name.
// Registering a name twice replaces the earlier executor and logs a warning;
// the name keeps its original position in Names.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Name()
	if _, exists := r.executors[name]; exists {
		r.logger.Warn("replacing registered executor", "executor", name)
	} else {
		r.order = append(r.order, name)
	}
	r.executors[name] = e
}

// Resolve returns the executor registered under name.
func (r *Registry) Resolve(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[name]
	return e, ok
}

// Names returns all registered names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of registered executors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}
