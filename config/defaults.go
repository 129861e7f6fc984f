package config

import "time"

// DefaultConfig returns the built-in defaults: in-memory state store,
// three invocation attempts per step, exponential backoff from 500ms.
func DefaultConfig() *Config {
	return &Config{
		Log:          DefaultLogConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Store:        DefaultStoreConfig(),
		Agents:       DefaultAgentsConfig(),
		Workflows:    WorkflowsConfig{},
		Metrics:      DefaultMetricsConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Server:       DefaultServerConfig(),
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultOrchestratorConfig returns the default execution configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxParallelSteps:  8,
		RunTimeout:        10 * time.Minute,
		PersistAttempts:   3,
		PersistRetryDelay: 100 * time.Millisecond,
	}
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "memory",
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "coagent:",
		},
		SQL: SQLConfig{
			Driver:          "sqlite",
			Name:            "coagent.db",
			Host:            "localhost",
			Port:            5432,
			User:            "coagent",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "coagent",
			Collection: "workflow_runs",
		},
	}
}

// DefaultAgentsConfig returns the default agent configuration.
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		InvokeTimeout: 2 * time.Minute,
		RateRPS:       0,
		RateBurst:     1,
		Retry:         DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns the default retry policy shape.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRange: 250 * time.Millisecond,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "coagent",
	}
}

// DefaultServerConfig returns the default HTTP server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "coagent",
		SampleRate:   0.1,
	}
}
