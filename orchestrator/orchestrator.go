package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bayonhq/coagent/internal/metrics"
	"github.com/bayonhq/coagent/store"
	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

const tracerName = "github.com/bayonhq/coagent/orchestrator"

// Options bound the orchestrator's execution behavior.
type Options struct {
	// MaxParallelSteps caps concurrent steps per run. Zero means unlimited.
	MaxParallelSteps int
	// RunTimeout bounds a whole run. Zero means no timeout.
	RunTimeout time.Duration
	// PersistAttempts is how many times a snapshot write is tried before the
	// run fails with a persistence error. Values below 1 mean one attempt.
	PersistAttempts int
	// PersistRetryDelay is the pause between snapshot write attempts.
	PersistRetryDelay time.Duration
}

// Orchestrator executes workflow runs: it schedules dependency wavefronts,
// fans eligible steps out to the Executor, cascades skips, persists the run
// after every transition and attaches the synthesized result.
type Orchestrator struct {
	store    store.Store
	executor *Executor
	opts     Options
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates an Orchestrator. collector may be nil.
func New(st store.Store, executor *Executor, opts Options, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PersistAttempts < 1 {
		opts.PersistAttempts = 1
	}
	return &Orchestrator{
		store:    st,
		executor: executor,
		opts:     opts,
		metrics:  collector,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// Execute drives run from pending to a terminal status. The run must have
// been created for def and not started yet. Cancelling ctx abandons retries,
// skips the remaining pending steps and fails the run with a cancelled kind.
//
// Execute always leaves the run in a terminal status; the returned error is
// non-nil only when progress could no longer be recorded in the store.
func (o *Orchestrator) Execute(ctx context.Context, def *workflow.Definition, run *workflow.Run) error {
	log := o.logger.With(
		zap.String("run_id", run.ID),
		zap.String("workflow_type", run.Type),
	)

	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.run_id", run.ID),
		attribute.String("workflow.type", run.Type),
		attribute.Int("workflow.steps", len(run.Steps)),
	))
	defer span.End()

	runCtx := ctx
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	if o.metrics != nil {
		o.metrics.RunStarted()
	}
	started := time.Now()

	// mu serializes every mutation of run and guards snapshotting, so two
	// steps completing at the same instant cannot race a persist.
	var mu sync.Mutex

	if err := o.persist(run, &mu); err != nil {
		return o.abandon(run, &mu, log, err)
	}

	mu.Lock()
	run.Status = workflow.RunRunning
	mu.Unlock()
	if err := o.persist(run, &mu); err != nil {
		return o.abandon(run, &mu, log, err)
	}

	log.Info("workflow run started", zap.Int("steps", len(run.Steps)))

	var persistMu sync.Mutex
	var persistErr error
	notePersistErr := func(err error) {
		persistMu.Lock()
		if persistErr == nil {
			persistErr = err
		}
		persistMu.Unlock()
	}
	failedPersist := func() error {
		persistMu.Lock()
		defer persistMu.Unlock()
		return persistErr
	}

	for {
		mu.Lock()
		done := run.AllStepsTerminal()
		mu.Unlock()
		if done || runCtx.Err() != nil {
			break
		}
		if err := failedPersist(); err != nil {
			return o.abandon(run, &mu, log, err)
		}

		if changed := o.applySkips(def, run, &mu); changed {
			if err := o.persist(run, &mu); err != nil {
				return o.abandon(run, &mu, log, err)
			}
			continue
		}

		mu.Lock()
		eligible := workflow.Eligible(def, run.StepStatuses())
		mu.Unlock()
		if len(eligible) == 0 {
			// A validated definition always yields an eligible step while
			// non-terminal steps remain; reaching this point means the graph
			// was mutated underneath us.
			return o.abandon(run, &mu, log, types.Errorf(types.ErrKindDefinition,
				"workflow %s stalled with non-terminal steps", run.Type))
		}

		var g errgroup.Group
		if o.opts.MaxParallelSteps > 0 {
			g.SetLimit(o.opts.MaxParallelSteps)
		}
		for _, id := range eligible {
			tpl, _ := def.Step(id)
			g.Go(func() error {
				o.runStep(runCtx, def, run, tpl, &mu, notePersistErr)
				return nil
			})
		}
		// Join barrier: the loop resumes once the whole wavefront reported.
		_ = g.Wait()

		if err := o.persist(run, &mu); err != nil {
			return o.abandon(run, &mu, log, err)
		}
	}

	if err := failedPersist(); err != nil {
		return o.abandon(run, &mu, log, err)
	}

	mu.Lock()
	if runCtx.Err() != nil {
		o.cancelRemaining(run, types.KindOf(runCtx.Err()))
	}
	o.finalize(def, run)
	status := run.Status
	mu.Unlock()

	if err := o.persist(run, &mu); err != nil {
		return o.abandon(run, &mu, log, err)
	}

	if o.metrics != nil {
		o.metrics.RunFinished(run.Type, string(status), time.Since(started))
	}
	span.SetAttributes(attribute.String("workflow.status", string(status)))
	log.Info("workflow run finished",
		zap.String("status", string(status)),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// runStep executes one step and records its terminal outcome.
func (o *Orchestrator) runStep(ctx context.Context, def *workflow.Definition, run *workflow.Run, tpl workflow.StepTemplate, mu *sync.Mutex, notePersistErr func(error)) {
	ctx, span := o.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.run_id", run.ID),
		attribute.String("workflow.step", tpl.ID),
		attribute.String("workflow.agent", tpl.Agent),
	))
	defer span.End()

	mu.Lock()
	stepRun, ok := run.Step(tpl.ID)
	params := run.Params.Clone()
	depOutputs := make(map[string]types.Payload, len(tpl.DependsOn))
	for _, dep := range tpl.DependsOn {
		if depStep, found := run.Step(dep); found && depStep.Output != nil {
			depOutputs[dep] = depStep.Output.Clone()
		}
	}
	mu.Unlock()
	if !ok {
		return
	}

	transition := func(apply func(*workflow.StepRun)) {
		mu.Lock()
		apply(stepRun)
		mu.Unlock()
		if err := o.persist(run, mu); err != nil {
			notePersistErr(err)
		}
	}

	started := time.Now()
	o.executor.Execute(ctx, run.Type, tpl, params, depOutputs, transition)

	mu.Lock()
	status := stepRun.Status
	mu.Unlock()
	if o.metrics != nil {
		o.metrics.StepFinished(run.Type, tpl.Agent, string(status), time.Since(started))
	}
	span.SetAttributes(attribute.String("workflow.step_status", string(status)))
}

// applySkips cascades failure through the graph until a fixpoint: a pending
// step with a failed or skipped dependency becomes skipped, which may skip
// its own dependents in turn.
func (o *Orchestrator) applySkips(def *workflow.Definition, run *workflow.Run, mu *sync.Mutex) bool {
	mu.Lock()
	defer mu.Unlock()

	changed := false
	for {
		skips := workflow.Skippable(def, run.StepStatuses())
		if len(skips) == 0 {
			return changed
		}
		changed = true
		for _, skip := range skips {
			step, ok := run.Step(skip.StepID)
			if !ok {
				continue
			}
			now := time.Now().UTC()
			step.Status = workflow.StepSkipped
			step.SkipReason = skip.Reason
			step.EndedAt = &now
			o.logger.Info("step skipped",
				zap.String("run_id", run.ID),
				zap.String("step", skip.StepID),
				zap.String("reason", skip.Reason),
			)
			if o.metrics != nil {
				o.metrics.StepFinished(run.Type, step.Agent, string(workflow.StepSkipped), 0)
			}
		}
	}
}

// cancelRemaining skips every still-pending step after a cancellation or
// run timeout. Caller holds mu.
func (o *Orchestrator) cancelRemaining(run *workflow.Run, kind types.ErrorKind) {
	reason := "workflow " + string(kind)
	for _, step := range run.Steps {
		if step.Status.IsTerminal() {
			continue
		}
		now := time.Now().UTC()
		step.Status = workflow.StepSkipped
		step.SkipReason = reason
		step.EndedAt = &now
	}
	run.Error = &workflow.StepError{Kind: kind, Message: reason}
}

// finalize computes the terminal run status and attaches the synthesized
// result. Caller holds mu.
func (o *Orchestrator) finalize(def *workflow.Definition, run *workflow.Run) {
	allSucceeded := true
	anySucceeded := false
	criticalFailed := false
	for _, step := range run.Steps {
		if step.Status == workflow.StepSucceeded {
			anySucceeded = true
			continue
		}
		allSucceeded = false
		if tpl, ok := def.Step(step.ID); ok && tpl.Critical {
			criticalFailed = true
		}
	}

	switch {
	case run.Error != nil:
		run.Status = workflow.RunFailed
	case allSucceeded:
		run.Status = workflow.RunCompleted
	case criticalFailed || !anySucceeded:
		run.Status = workflow.RunFailed
	default:
		run.Status = workflow.RunPartiallyCompleted
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Result = workflow.Synthesize(def, run)
}

// persist writes a consistent snapshot of the run, retrying a bounded
// number of times. Persistence uses a detached context so a cancelled run
// still records its final state.
func (o *Orchestrator) persist(run *workflow.Run, mu *sync.Mutex) error {
	mu.Lock()
	snapshot := run.Clone()
	mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= o.opts.PersistAttempts; attempt++ {
		start := time.Now()
		err := o.store.Save(context.Background(), snapshot)
		if o.metrics != nil {
			o.metrics.StoreOp("save", err, time.Since(start))
		}
		if err == nil {
			return nil
		}
		lastErr = err
		o.logger.Warn("run snapshot persist failed",
			zap.String("run_id", run.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < o.opts.PersistAttempts && o.opts.PersistRetryDelay > 0 {
			time.Sleep(o.opts.PersistRetryDelay)
		}
	}
	return types.Errorf(types.ErrKindPersistence,
		"persisting run %s failed after %d attempts", run.ID, o.opts.PersistAttempts).WithCause(lastErr)
}

// abandon marks the run failed with a persistence error and makes one
// best-effort attempt to record that state.
func (o *Orchestrator) abandon(run *workflow.Run, mu *sync.Mutex, log *zap.Logger, cause error) error {
	serr := types.AsError(cause)

	mu.Lock()
	now := time.Now().UTC()
	for _, step := range run.Steps {
		if !step.Status.IsTerminal() {
			step.Status = workflow.StepSkipped
			step.SkipReason = "workflow abandoned: " + string(serr.Kind)
			step.EndedAt = &now
		}
	}
	run.Status = workflow.RunFailed
	run.Error = &workflow.StepError{Kind: serr.Kind, Message: serr.Message}
	run.CompletedAt = &now
	snapshot := run.Clone()
	status := run.Status
	mu.Unlock()

	// Best effort; the store may well still be down.
	_ = o.store.Save(context.Background(), snapshot)

	if o.metrics != nil {
		o.metrics.RunFinished(run.Type, string(status), time.Since(run.CreatedAt))
	}
	log.Error("workflow run abandoned", zap.Error(cause))
	return cause
}
