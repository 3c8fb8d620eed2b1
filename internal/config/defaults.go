package config

import (
	"os"
	"path/filepath"
)

// DefaultExchange is the RabbitMQ exchange events are published to.
const DefaultExchange = "taskflow.events"

// DefaultConfig returns the default configuration with the built-in shell executor.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrent:      5,
			TaskTimeoutSeconds: 600,
		},
		Retry: RetryConfig{
			Enabled:             true,
			InitialIntervalMS:   100,
			MaxIntervalMS:       10_000,
			MaxElapsedMS:        120_000,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			OpenTimeoutSeconds:  30,
			HalfOpenRequests:    3,
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
			Path:   defaultStatePath(),
		},
		Events: EventsConfig{
			Exchange: DefaultExchange,
		},
		Executors: map[string]ExecutorConfig{
			"shell": {
				Command: "sh",
				Args:    []string{"-c", `eval "$TASKFLOW_PROMPT"`},
			},
		},
	}
}

// defaultStatePath returns ~/.taskflow/state.db, or a project-local path if
// the home directory is unknown.
func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".taskflow", "state.db")
	}
	return filepath.Join(home, ".taskflow", "state.db")
}
