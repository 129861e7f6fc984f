package agent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bayonhq/coagent/types"
)

// Invoker calls one agent capability with a payload and returns its output.
// An Invoker performs a single attempt; retries are owned by the caller.
// Implementations must classify failures via *types.Error and must not
// mutate orchestration state.
type Invoker interface {
	Invoke(ctx context.Context, input types.Payload) (types.Payload, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, input types.Payload) (types.Payload, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, input types.Payload) (types.Payload, error) {
	return f(ctx, input)
}

// Registry maps stable agent names to Invoker implementations.
// It is safe for concurrent use and is expected to be fully populated before
// any workflow run starts.
type Registry struct {
	invokers map[string]Invoker
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		invokers: make(map[string]Invoker),
		logger:   logger.With(zap.String("component", "agent_registry")),
	}
}

// Register binds an invoker to a capability name, replacing any previous
// binding.
func (r *Registry) Register(name string, inv Invoker) {
	r.mu.Lock()
	r.invokers[name] = inv
	r.mu.Unlock()

	r.logger.Info("agent registered", zap.String("agent", name))
}

// Get returns the invoker for the given capability name.
func (r *Registry) Get(name string) (Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[name]
	return inv, ok
}

// Invoke looks up the capability and performs a single attempt. An unknown
// name yields an agent-unavailable error without any remote call.
func (r *Registry) Invoke(ctx context.Context, name string, input types.Payload) (types.Payload, error) {
	inv, ok := r.Get(name)
	if !ok {
		return nil, types.Errorf(types.ErrKindAgentUnavailable, "agent not registered: %s", name)
	}
	return inv.Invoke(ctx, input)
}

// Names returns the registered capability names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	return names
}
