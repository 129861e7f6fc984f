package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bayonhq/coagent/agent"
	"github.com/bayonhq/coagent/internal/metrics"
	"github.com/bayonhq/coagent/retry"
	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

// TransitionFunc applies a mutation to the step's run record. The
// orchestrator supplies an implementation that holds the run lock while
// apply executes and persists the run afterwards, so every attempt leaves
// a durable trace.
type TransitionFunc func(apply func(*workflow.StepRun))

// Executor runs exactly one step to a terminal outcome: it resolves the
// step input from workflow parameters and dependency outputs, invokes the
// agent under the retry policy, and reports every state change through the
// transition callback. It never touches the state store itself.
type Executor struct {
	agents        *agent.Registry
	policies      *retry.PolicySet
	invokeTimeout time.Duration
	metrics       *metrics.Collector
	logger        *zap.Logger
}

// NewExecutor creates a step executor. A zero invokeTimeout disables the
// per-attempt deadline. collector may be nil.
func NewExecutor(agents *agent.Registry, policies *retry.PolicySet, invokeTimeout time.Duration, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policies == nil {
		policies = retry.NewPolicySet(nil)
	}
	return &Executor{
		agents:        agents,
		policies:      policies,
		invokeTimeout: invokeTimeout,
		metrics:       collector,
		logger:        logger.With(zap.String("component", "step_executor")),
	}
}

// Execute drives one step to succeeded, failed or skipped. ctx carries the
// run's cancellation signal: once it fires, the current attempt may finish
// but no further attempt starts.
func (e *Executor) Execute(ctx context.Context, workflowType string, tpl workflow.StepTemplate, params types.Payload, depOutputs map[string]types.Payload, transition TransitionFunc) {
	log := e.logger.With(
		zap.String("workflow_type", workflowType),
		zap.String("step", tpl.ID),
		zap.String("agent", tpl.Agent),
	)

	input, skipReason, err := resolveInput(tpl, params, depOutputs)
	if skipReason != "" {
		log.Info("step skipped before invocation", zap.String("reason", skipReason))
		transition(func(s *workflow.StepRun) {
			now := time.Now().UTC()
			s.Status = workflow.StepSkipped
			s.SkipReason = skipReason
			s.EndedAt = &now
		})
		return
	}
	if err != nil {
		serr := types.AsError(err)
		log.Warn("step input resolution failed", zap.Error(err))
		transition(func(s *workflow.StepRun) {
			now := time.Now().UTC()
			s.Status = workflow.StepFailed
			s.LastError = &workflow.StepError{Kind: serr.Kind, Message: serr.Message}
			s.EndedAt = &now
		})
		return
	}

	policy := e.policies.For(tpl.Agent)
	attempt := 0

	for {
		attempt++
		transition(func(s *workflow.StepRun) {
			s.Status = workflow.StepRunning
			s.Attempts = attempt
			if s.StartedAt == nil {
				now := time.Now().UTC()
				s.StartedAt = &now
			}
		})

		output, invokeErr := e.invoke(ctx, tpl.Agent, input)
		if invokeErr == nil {
			log.Info("step succeeded", zap.Int("attempts", attempt))
			transition(func(s *workflow.StepRun) {
				now := time.Now().UTC()
				s.Status = workflow.StepSucceeded
				s.Output = output
				s.EndedAt = &now
			})
			return
		}

		serr := types.AsError(invokeErr)

		// The run was cancelled or timed out; abandon further attempts no
		// matter what the policy says.
		if ctx.Err() != nil {
			kind := types.KindOf(ctx.Err())
			log.Info("step abandoned", zap.String("kind", string(kind)), zap.Int("attempts", attempt))
			transition(func(s *workflow.StepRun) {
				now := time.Now().UTC()
				s.Status = workflow.StepFailed
				s.LastError = &workflow.StepError{Kind: kind, Message: "workflow " + string(kind)}
				s.EndedAt = &now
			})
			return
		}

		again, delay := policy.ShouldRetry(serr.Kind, attempt)
		if !again {
			log.Warn("step failed",
				zap.String("kind", string(serr.Kind)),
				zap.Int("attempts", attempt),
				zap.Error(invokeErr),
			)
			transition(func(s *workflow.StepRun) {
				now := time.Now().UTC()
				s.Status = workflow.StepFailed
				s.LastError = &workflow.StepError{Kind: serr.Kind, Message: serr.Message}
				s.EndedAt = &now
			})
			return
		}

		log.Info("step attempt failed, retrying",
			zap.String("kind", string(serr.Kind)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		transition(func(s *workflow.StepRun) {
			s.LastError = &workflow.StepError{Kind: serr.Kind, Message: serr.Message}
		})
		if e.metrics != nil {
			e.metrics.StepRetried(tpl.Agent, string(serr.Kind))
		}

		// Wait out the backoff without blocking sibling steps; a fired
		// cancellation ends the step instead of starting the next attempt.
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			kind := types.KindOf(ctx.Err())
			transition(func(s *workflow.StepRun) {
				now := time.Now().UTC()
				s.Status = workflow.StepFailed
				s.LastError = &workflow.StepError{Kind: kind, Message: "workflow " + string(kind)}
				s.EndedAt = &now
			})
			return
		case <-timer.C:
		}
	}
}

// invoke performs a single attempt, bounded by the per-attempt timeout.
func (e *Executor) invoke(ctx context.Context, agentName string, input types.Payload) (types.Payload, error) {
	if e.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.invokeTimeout)
		defer cancel()
	}
	return e.agents.Invoke(ctx, agentName, input)
}

// resolveInput builds the step's input payload from the submitted workflow
// parameters and the outputs of its dependencies. A missing dependency
// output skips the step (second return value); a missing parameter is a
// validation error.
func resolveInput(tpl workflow.StepTemplate, params types.Payload, depOutputs map[string]types.Payload) (types.Payload, string, error) {
	input := make(types.Payload, len(tpl.Input))
	for key, ref := range tpl.Input {
		switch ref.Kind {
		case workflow.SourceParams:
			value, ok := params[ref.Key]
			if !ok {
				return nil, "", types.Errorf(types.ErrKindValidation,
					"step %s input %q requires missing parameter %q", tpl.ID, key, ref.Key)
			}
			input[key] = value

		case workflow.SourceStep:
			output, ok := depOutputs[ref.StepID]
			if !ok {
				return nil, "missing output from dependency: " + ref.StepID, nil
			}
			if ref.Key == "" {
				input[key] = map[string]any(output)
				continue
			}
			value, ok := output[ref.Key]
			if !ok {
				return nil, "missing output " + ref.Key + " from dependency: " + ref.StepID, nil
			}
			input[key] = value

		default:
			return nil, "", types.Errorf(types.ErrKindDefinition,
				"step %s input %q has unknown source kind %q", tpl.ID, key, ref.Kind)
		}
	}
	return input, "", nil
}
