package workflow

import (
	"sync"

	"go.uber.org/zap"

	"github.com/bayonhq/coagent/types"
)

// Registry holds the workflow definitions known to the engine. It is
// populated at process start (builtins plus any YAML-loaded definitions) and
// read-only afterwards, so one registry value can safely serve every run.
type Registry struct {
	defs   map[string]*Definition
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty definition registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		defs:   make(map[string]*Definition),
		logger: logger.With(zap.String("component", "workflow_registry")),
	}
}

// Register validates and adds a definition. Registering an already-known
// type replaces the previous definition.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return types.NewError(types.ErrKindDefinition, "invalid workflow definition").WithCause(err)
	}

	r.mu.Lock()
	r.defs[def.Type] = def
	r.mu.Unlock()

	r.logger.Info("workflow definition registered",
		zap.String("type", def.Type),
		zap.Int("steps", len(def.Steps)),
	)
	return nil
}

// Get returns the definition for a workflow type. An unknown type yields a
// definition-error so submit callers can surface it without a run record.
func (r *Registry) Get(workflowType string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[workflowType]
	if !ok {
		return nil, types.Errorf(types.ErrKindDefinition, "unknown workflow type: %s", workflowType)
	}
	return def, nil
}

// Types returns the registered workflow type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	return out
}
