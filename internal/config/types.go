package config

import "time"

// EngineConfig controls workflow scheduling.
type EngineConfig struct {
	MaxConcurrent      int `json:"max_concurrent"`       // Max tasks dispatched per batch
	TaskTimeoutSeconds int `json:"task_timeout_seconds"` // Per-task executor timeout, 0 disables
}

// TaskTimeout returns the per-task timeout as a duration.
func (c EngineConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// RetryConfig configures exponential backoff around executor calls.
type RetryConfig struct {
	Enabled             bool    `json:"enabled"`
	InitialIntervalMS   int     `json:"initial_interval_ms"`
	MaxIntervalMS       int     `json:"max_interval_ms"`
	MaxElapsedMS        int     `json:"max_elapsed_ms"`
	Multiplier          float64 `json:"multiplier"`
	RandomizationFactor float64 `json:"randomization_factor"`
}

// CircuitBreakerConfig configures the per-executor circuit breakers.
type CircuitBreakerConfig struct {
	Enabled             bool   `json:"enabled"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"` // Trip after this many failures in a row
	OpenTimeoutSeconds  int    `json:"open_timeout_seconds"` // Stay open this long before probing
	HalfOpenRequests    uint32 `json:"half_open_requests"`   // Probe requests allowed when half-open
}

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreNone     = "none"
)

// StoreConfig selects where workflow snapshots are kept.
type StoreConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"` // SQLite database file
	DSN    string `json:"dsn,omitempty"`  // PostgreSQL connection string
}

// EventsConfig configures forwarding of workflow events to RabbitMQ.
type EventsConfig struct {
	AMQPURL  string `json:"amqp_url,omitempty"` // Empty disables forwarding
	Exchange string `json:"exchange"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"` // Empty disables the HTTP listener
}

// ExecutorConfig defines a command-backed executor.
type ExecutorConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	WorkDir string            `json:"work_dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Engine         EngineConfig              `json:"engine"`
	Retry          RetryConfig               `json:"retry"`
	CircuitBreaker CircuitBreakerConfig      `json:"circuit_breaker"`
	Store          StoreConfig               `json:"store"`
	Events         EventsConfig              `json:"events"`
	Metrics        MetricsConfig             `json:"metrics"`
	Executors      map[string]ExecutorConfig `json:"executors"`
}
