package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bayonhq/coagent/agent"
	"github.com/bayonhq/coagent/store"
	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

func testOptions() Options {
	return Options{
		MaxParallelSteps:  4,
		PersistAttempts:   2,
		PersistRetryDelay: time.Millisecond,
	}
}

func newTestOrchestrator(reg *agent.Registry, st store.Store, opts Options) *Orchestrator {
	exec := NewExecutor(reg, fastPolicies(3), 0, nil, zap.NewNop())
	return New(st, exec, opts, nil, zap.NewNop())
}

// echoAgent returns a fixed payload for every invocation.
func echoAgent(out types.Payload) agent.Invoker {
	return agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		return out, nil
	})
}

func builtin(t *testing.T, workflowType string) *workflow.Definition {
	t.Helper()
	for _, def := range workflow.Builtins() {
		if def.Type == workflowType {
			return def
		}
	}
	t.Fatalf("no builtin definition %s", workflowType)
	return nil
}

func TestExecuteBrandBuildingCompletes(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register(workflow.AgentResearch, echoAgent(types.Payload{"audit": "solid presence"}))
	reg.Register(workflow.AgentMarketAnalysis, echoAgent(types.Payload{"strategy": "luxury niche"}))
	reg.Register(workflow.AgentContentStudio, echoAgent(types.Payload{"content": "launch posts"}))

	def := builtin(t, workflow.TypeBrandBuilding)
	run := workflow.NewRun("run-1", def, "owner-a", "Brand push", types.Payload{
		"agent_profile": "10y residential",
		"market":        "austin",
	})

	st := store.NewMemoryStore()
	defer st.Close()
	o := newTestOrchestrator(reg, st, testOptions())

	require.NoError(t, o.Execute(context.Background(), def, run))

	assert.Equal(t, workflow.RunCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Result)
	assert.Len(t, run.Result.Outputs, 3)
	assert.Empty(t, run.Result.Incomplete)
	for _, step := range run.Steps {
		assert.Equal(t, workflow.StepSucceeded, step.Status)
		assert.Equal(t, 1, step.Attempts)
	}

	// The store holds the same terminal snapshot.
	loaded, err := st.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunCompleted, loaded.Status)
	require.NotNil(t, loaded.Result)
	assert.Len(t, loaded.Result.Outputs, 3)
}

func TestExecuteCriticalFailureCascades(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("research", agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		return nil, types.NewError(types.ErrKindAgentFailure, "model error")
	}))
	reg.Register("content-studio", echoAgent(types.Payload{"posts": "x"}))

	def := &workflow.Definition{
		Type: "content-campaign",
		Steps: []workflow.StepTemplate{
			{ID: "research", Agent: "research", Critical: true},
			{ID: "social-media", Agent: "content-studio", DependsOn: []string{"research"}},
		},
	}
	require.NoError(t, def.Validate())
	run := workflow.NewRun("run-1", def, "owner-a", "Campaign", nil)

	st := store.NewMemoryStore()
	defer st.Close()
	o := newTestOrchestrator(reg, st, testOptions())

	require.NoError(t, o.Execute(context.Background(), def, run))

	assert.Equal(t, workflow.RunFailed, run.Status)

	research, _ := run.Step("research")
	assert.Equal(t, workflow.StepFailed, research.Status)
	assert.Equal(t, 3, research.Attempts)
	assert.Equal(t, types.ErrKindAgentFailure, research.LastError.Kind)

	social, _ := run.Step("social-media")
	assert.Equal(t, workflow.StepSkipped, social.Status)
	assert.Equal(t, "dependency failed: research", social.SkipReason)

	require.NotNil(t, run.Result)
	assert.Empty(t, run.Result.Outputs)
	assert.Len(t, run.Result.Incomplete, 2)
}

func TestExecuteNonCriticalFailureIsPartial(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("research", agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		return nil, types.NewError(types.ErrKindAgentFailure, "model error")
	}))
	reg.Register("content-studio", echoAgent(types.Payload{"newsletter": "july edition"}))

	def := &workflow.Definition{
		Type: "content-campaign",
		Steps: []workflow.StepTemplate{
			{ID: "research", Agent: "research"},
			{ID: "social-media", Agent: "content-studio", DependsOn: []string{"research"}},
			{ID: "newsletter", Agent: "content-studio", Critical: true},
		},
	}
	require.NoError(t, def.Validate())
	run := workflow.NewRun("run-1", def, "owner-a", "Campaign", nil)

	st := store.NewMemoryStore()
	defer st.Close()
	o := newTestOrchestrator(reg, st, testOptions())

	require.NoError(t, o.Execute(context.Background(), def, run))

	assert.Equal(t, workflow.RunPartiallyCompleted, run.Status)

	social, _ := run.Step("social-media")
	assert.Equal(t, workflow.StepSkipped, social.Status)
	assert.Equal(t, "dependency failed: research", social.SkipReason)

	require.NotNil(t, run.Result)
	assert.Contains(t, run.Result.Outputs, "newsletter")
	assert.Len(t, run.Result.Incomplete, 2)
}

func TestExecuteIndependentStepsOverlap(t *testing.T) {
	var mu sync.Mutex
	var completed []string
	record := func(id string) {
		mu.Lock()
		completed = append(completed, id)
		mu.Unlock()
	}

	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("slow", agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		time.Sleep(150 * time.Millisecond)
		record("slow-step")
		return types.Payload{}, nil
	}))
	reg.Register("fast", agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		record("fast-step")
		return types.Payload{}, nil
	}))

	def := &workflow.Definition{
		Type: "parallel",
		Steps: []workflow.StepTemplate{
			{ID: "slow-step", Agent: "slow", Critical: true},
			{ID: "fast-step", Agent: "fast", Critical: true},
		},
	}
	run := workflow.NewRun("run-1", def, "owner-a", "Parallel", nil)

	st := store.NewMemoryStore()
	defer st.Close()
	o := newTestOrchestrator(reg, st, testOptions())

	require.NoError(t, o.Execute(context.Background(), def, run))

	assert.Equal(t, workflow.RunCompleted, run.Status)
	// The fast step must not have waited for the slow one.
	require.Len(t, completed, 2)
	assert.Equal(t, "fast-step", completed[0])
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("blocker", agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	reg.Register("content-studio", echoAgent(types.Payload{}))

	def := &workflow.Definition{
		Type: "cancellable",
		Steps: []workflow.StepTemplate{
			{ID: "first", Agent: "blocker", Critical: true},
			{ID: "second", Agent: "content-studio", DependsOn: []string{"first"}, Critical: true},
		},
	}
	run := workflow.NewRun("run-1", def, "owner-a", "Cancel me", nil)

	st := store.NewMemoryStore()
	defer st.Close()
	o := newTestOrchestrator(reg, st, testOptions())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, o.Execute(ctx, def, run))

	assert.Equal(t, workflow.RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, types.ErrKindCancelled, run.Error.Kind)

	first, _ := run.Step("first")
	assert.Equal(t, workflow.StepFailed, first.Status)
	assert.Equal(t, types.ErrKindCancelled, first.LastError.Kind)

	second, _ := run.Step("second")
	assert.Equal(t, workflow.StepSkipped, second.Status)
	assert.Equal(t, "workflow cancelled", second.SkipReason)
}

func TestExecuteRunTimeout(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("blocker", agent.InvokerFunc(func(ctx context.Context, input types.Payload) (types.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	def := &workflow.Definition{
		Type: "slow",
		Steps: []workflow.StepTemplate{
			{ID: "only", Agent: "blocker", Critical: true},
		},
	}
	run := workflow.NewRun("run-1", def, "owner-a", "Slow", nil)

	st := store.NewMemoryStore()
	defer st.Close()
	opts := testOptions()
	opts.RunTimeout = 50 * time.Millisecond
	o := newTestOrchestrator(reg, st, opts)

	require.NoError(t, o.Execute(context.Background(), def, run))

	assert.Equal(t, workflow.RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, types.ErrKindTimeout, run.Error.Kind)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Save(ctx context.Context, run *workflow.Run) error {
	return errors.New("disk full")
}
func (failingStore) Load(ctx context.Context, runID string) (*workflow.Run, error) {
	return nil, store.ErrNotFound
}
func (failingStore) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	return nil, nil
}
func (failingStore) Close() error { return nil }

func TestExecutePersistFailure(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("research", echoAgent(types.Payload{}))

	def := &workflow.Definition{
		Type: "doomed",
		Steps: []workflow.StepTemplate{
			{ID: "only", Agent: "research", Critical: true},
		},
	}
	run := workflow.NewRun("run-1", def, "owner-a", "Doomed", nil)

	o := newTestOrchestrator(reg, failingStore{}, testOptions())

	err := o.Execute(context.Background(), def, run)
	require.Error(t, err)
	assert.Equal(t, types.ErrKindPersistence, types.KindOf(err))

	assert.Equal(t, workflow.RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, types.ErrKindPersistence, run.Error.Kind)
	require.NotNil(t, run.CompletedAt)
}

// recordingStore captures the run status of every snapshot saved.
type recordingStore struct {
	inner    store.Store
	mu       sync.Mutex
	statuses []workflow.RunStatus
}

func (r *recordingStore) Save(ctx context.Context, run *workflow.Run) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, run.Status)
	r.mu.Unlock()
	return r.inner.Save(ctx, run)
}
func (r *recordingStore) Load(ctx context.Context, runID string) (*workflow.Run, error) {
	return r.inner.Load(ctx, runID)
}
func (r *recordingStore) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	return r.inner.ListByOwner(ctx, ownerID)
}
func (r *recordingStore) Close() error { return r.inner.Close() }

func TestExecutePersistsEveryPhase(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register("research", echoAgent(types.Payload{}))

	def := &workflow.Definition{
		Type: "simple",
		Steps: []workflow.StepTemplate{
			{ID: "only", Agent: "research", Critical: true},
		},
	}
	run := workflow.NewRun("run-1", def, "owner-a", "Simple", nil)

	rec := &recordingStore{inner: store.NewMemoryStore()}
	defer rec.Close()
	o := newTestOrchestrator(reg, rec, testOptions())

	require.NoError(t, o.Execute(context.Background(), def, run))

	require.GreaterOrEqual(t, len(rec.statuses), 3)
	assert.Equal(t, workflow.RunPending, rec.statuses[0])
	assert.Equal(t, workflow.RunRunning, rec.statuses[1])
	assert.Equal(t, workflow.RunCompleted, rec.statuses[len(rec.statuses)-1])
}

func TestTerminalRunIsImmutable(t *testing.T) {
	reg := agent.NewRegistry(zap.NewNop())
	reg.Register(workflow.AgentResearch, echoAgent(types.Payload{"audit": "ok"}))
	reg.Register(workflow.AgentMarketAnalysis, echoAgent(types.Payload{"strategy": "ok"}))
	reg.Register(workflow.AgentContentStudio, echoAgent(types.Payload{"content": "ok"}))

	def := builtin(t, workflow.TypeBrandBuilding)
	run := workflow.NewRun("run-1", def, "owner-a", "Brand", types.Payload{
		"agent_profile": "p", "market": "m",
	})

	st := store.NewMemoryStore()
	defer st.Close()
	o := newTestOrchestrator(reg, st, testOptions())
	require.NoError(t, o.Execute(context.Background(), def, run))

	first, err := st.Load(context.Background(), "run-1")
	require.NoError(t, err)
	second, err := st.Load(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	require.NotNil(t, first.Result)
	require.NotNil(t, second.Result)
	assert.Equal(t, first.Result.Summary, second.Result.Summary)
	assert.Equal(t, first.Result.Outputs, second.Result.Outputs)
}
