// Package coagent is the entry point of the agent orchestration engine: it
// wires configuration, the agent registry, workflow definitions, the state
// store and the orchestrator into an Engine that callers submit workflow
// requests to.
//
// Usage:
//
//	cfg := config.DefaultConfig()
//	engine, err := coagent.New(cfg)
//	if err != nil { ... }
//	defer engine.Close(context.Background())
//
//	engine.RegisterAgent("research", myResearchInvoker)
//
//	run, err := engine.Submit(ctx, coagent.SubmitRequest{
//	    Type:    workflow.TypeContentCampaign,
//	    OwnerID: "user-42",
//	    Name:    "Q3 waterfront campaign",
//	    Params:  types.Payload{"topic": "waterfront condos", "location": "miami"},
//	})
package coagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bayonhq/coagent/agent"
	"github.com/bayonhq/coagent/config"
	"github.com/bayonhq/coagent/internal/metrics"
	"github.com/bayonhq/coagent/internal/telemetry"
	"github.com/bayonhq/coagent/orchestrator"
	"github.com/bayonhq/coagent/retry"
	"github.com/bayonhq/coagent/store"
	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

// SubmitRequest describes one workflow submission.
type SubmitRequest struct {
	// Type is the workflow type, e.g. workflow.TypeContentCampaign.
	Type string
	// OwnerID identifies the submitting user.
	OwnerID string
	// Name is a human-readable display name for the run.
	Name string
	// Params is the free-form parameter map handed to the steps.
	Params types.Payload
}

// Engine is the orchestration engine facade. It is safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	agents    *agent.Registry
	workflows *workflow.Registry
	policies  *retry.PolicySet
	orch      *orchestrator.Orchestrator
	collector *metrics.Collector
	providers *telemetry.Providers

	watcher       *config.DirWatcher
	watcherCancel context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithLogger replaces the config-built logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithStore replaces the config-built state store. The Engine takes
// ownership and closes it on Close.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.store = st }
}

// New builds an Engine from cfg. A nil cfg uses the defaults. Built-in
// workflow definitions are always registered; a configured definitions
// directory is loaded on top.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		logger, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		e.logger = logger
	}

	providers, err := telemetry.Init(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	e.providers = providers

	if cfg.Metrics.Enabled {
		e.collector = metrics.NewCollector(cfg.Metrics.Namespace, e.logger)
	}

	if e.store == nil {
		st, err := buildStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("build store: %w", err)
		}
		e.store = st
	}

	e.policies = buildPolicies(cfg.Agents)
	e.agents = agent.NewRegistry(e.logger)
	for name, endpoint := range cfg.Agents.Endpoints {
		var inv agent.Invoker = agent.NewHTTPInvoker(name, endpoint, nil, e.logger)
		if cfg.Agents.RateRPS > 0 {
			inv = agent.RateLimited(inv, cfg.Agents.RateRPS, cfg.Agents.RateBurst)
		}
		e.agents.Register(name, inv)
	}

	e.workflows = workflow.NewRegistry(e.logger)
	for _, def := range workflow.Builtins() {
		if err := e.workflows.Register(def); err != nil {
			return nil, fmt.Errorf("register builtin workflow: %w", err)
		}
	}
	if dir := cfg.Workflows.DefinitionsDir; dir != "" {
		if err := workflow.LoadDir(dir, e.workflows); err != nil {
			return nil, fmt.Errorf("load workflow definitions: %w", err)
		}
		if cfg.Workflows.WatchDefinitions {
			if err := e.startWatcher(dir); err != nil {
				return nil, err
			}
		}
	}

	executor := orchestrator.NewExecutor(e.agents, e.policies, cfg.Agents.InvokeTimeout, e.collector, e.logger)
	e.orch = orchestrator.New(e.store, executor, orchestrator.Options{
		MaxParallelSteps:  cfg.Orchestrator.MaxParallelSteps,
		RunTimeout:        cfg.Orchestrator.RunTimeout,
		PersistAttempts:   cfg.Orchestrator.PersistAttempts,
		PersistRetryDelay: cfg.Orchestrator.PersistRetryDelay,
	}, e.collector, e.logger)

	return e, nil
}

// RegisterAgent binds an in-process invoker to a capability name. In-process
// agents take precedence over configured HTTP endpoints of the same name.
func (e *Engine) RegisterAgent(name string, inv agent.Invoker) {
	e.agents.Register(name, inv)
}

// RegisterWorkflow adds a workflow definition beyond the built-in ones.
func (e *Engine) RegisterWorkflow(def *workflow.Definition) error {
	return e.workflows.Register(def)
}

// Logger returns the engine's logger, for callers embedding the engine in a
// larger process.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// Submit validates the request, persists the pending run and starts
// executing it in the background. An unknown workflow type returns a
// definition error and persists nothing. The returned run is the pending
// snapshot; poll Status for progress.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*workflow.Run, error) {
	def, err := e.workflows.Get(req.Type)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.NewError(types.ErrKindValidation, "engine is closed")
	}
	e.mu.Unlock()

	run := workflow.NewRun(uuid.NewString(), def, req.OwnerID, req.Name, req.Params)
	if err := e.store.Save(ctx, run); err != nil {
		return nil, types.Errorf(types.ErrKindPersistence, "persisting run %s", run.ID).WithCause(err)
	}
	snapshot := run.Clone()

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[run.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.cancels, run.ID)
			e.mu.Unlock()
		}()
		if err := e.orch.Execute(runCtx, def, run); err != nil {
			e.logger.Error("workflow run lost persistence",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}()

	e.logger.Info("workflow submitted",
		zap.String("run_id", run.ID),
		zap.String("workflow_type", req.Type),
		zap.String("owner_id", req.OwnerID),
	)
	return snapshot, nil
}

// Status returns the latest persisted snapshot of the run.
func (e *Engine) Status(ctx context.Context, runID string) (*workflow.Run, error) {
	return e.store.Load(ctx, runID)
}

// Cancel signals a running workflow to stop: in-flight steps abandon
// further retries and pending steps are skipped. Cancelling a terminal run
// is a no-op. Unknown run ids return store.ErrNotFound.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	cancel, active := e.cancels[runID]
	e.mu.Unlock()

	if active {
		cancel()
		e.logger.Info("workflow cancellation requested", zap.String("run_id", runID))
		return nil
	}

	// Not active: report not-found for unknown ids, acknowledge terminal runs.
	_, err := e.store.Load(ctx, runID)
	return err
}

// ListByOwner returns every run submitted by one owner, newest first.
func (e *Engine) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	return e.store.ListByOwner(ctx, ownerID)
}

// Close cancels all active runs, waits for them to reach a terminal state
// and releases the store and telemetry resources. ctx bounds the wait.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	if e.watcher != nil {
		_ = e.watcher.Stop()
		e.watcherCancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("close timed out waiting for active runs")
	}

	var err error
	if e.providers != nil {
		err = e.providers.Shutdown(ctx)
	}
	if cerr := e.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// startWatcher reloads the definitions directory whenever a YAML file in it
// changes. Reloading replaces matching workflow types in place.
func (e *Engine) startWatcher(dir string) error {
	watcher, err := config.NewDirWatcher(dir, config.WithWatcherLogger(e.logger))
	if err != nil {
		return fmt.Errorf("watch workflow definitions: %w", err)
	}
	watcher.OnChange(func(event config.FileEvent) {
		if event.Op == config.FileOpRemove {
			return
		}
		if err := workflow.LoadDir(dir, e.workflows); err != nil {
			e.logger.Warn("workflow definition reload failed",
				zap.String("path", event.Path),
				zap.Error(err),
			)
			return
		}
		e.logger.Info("workflow definitions reloaded", zap.String("path", event.Path))
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := watcher.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start definition watcher: %w", err)
	}
	e.watcher = watcher
	e.watcherCancel = cancel
	return nil
}

// buildLogger constructs a zap logger from the log section.
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zcfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          cfg.Format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	return zcfg.Build()
}

// buildStore constructs the configured state store backend.
func buildStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil

	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.NewRedisStore(ctx, store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})

	case "sql":
		return store.NewSQLStore(store.SQLConfig{
			Driver: cfg.SQL.Driver,
			DSN:    cfg.SQL.DSN(),
		})

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.NewMongoStore(ctx, store.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildPolicies converts the retry configuration into a policy set.
func buildPolicies(cfg config.AgentsConfig) *retry.PolicySet {
	set := retry.NewPolicySet(toPolicy(cfg.Retry))
	for name, rc := range cfg.Overrides {
		set.Set(name, toPolicy(rc))
	}
	return set
}

func toPolicy(rc config.RetryConfig) *retry.Policy {
	p := &retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay,
		MaxDelay:    rc.MaxDelay,
		Multiplier:  rc.Multiplier,
		JitterRange: rc.JitterRange,
	}
	for _, kind := range rc.NonRetryable {
		p.NonRetryable = append(p.NonRetryable, types.ErrorKind(kind))
	}
	return p
}
