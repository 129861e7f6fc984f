package workflow

import (
	"fmt"
	"strings"
)

// SourceKind tells where a step input value is taken from.
type SourceKind string

const (
	// SourceParams reads a key from the run's submitted parameters.
	SourceParams SourceKind = "params"
	// SourceStep reads the output payload of a dependency step.
	SourceStep SourceKind = "step"
)

// SourceRef points at a value available to a step when it becomes eligible:
// either a submitted workflow parameter or (part of) a dependency's output.
//
// The YAML form is a dotted string:
//
//	params.<key>      — one submitted parameter
//	steps.<id>        — a dependency's whole output payload
//	steps.<id>.<key>  — one key of a dependency's output
type SourceRef struct {
	Kind   SourceKind
	StepID string // set when Kind == SourceStep
	Key    string // empty means the whole payload (step sources only)
}

// ParseSourceRef parses the dotted string form of a SourceRef.
func ParseSourceRef(s string) (SourceRef, error) {
	parts := strings.SplitN(s, ".", 3)
	switch {
	case len(parts) == 2 && parts[0] == "params" && parts[1] != "":
		return SourceRef{Kind: SourceParams, Key: parts[1]}, nil
	case len(parts) == 2 && parts[0] == "steps" && parts[1] != "":
		return SourceRef{Kind: SourceStep, StepID: parts[1]}, nil
	case len(parts) == 3 && parts[0] == "steps" && parts[1] != "" && parts[2] != "":
		return SourceRef{Kind: SourceStep, StepID: parts[1], Key: parts[2]}, nil
	}
	return SourceRef{}, fmt.Errorf("invalid source ref %q: want params.<key>, steps.<id> or steps.<id>.<key>", s)
}

// String returns the dotted form of the ref.
func (r SourceRef) String() string {
	switch {
	case r.Kind == SourceParams:
		return "params." + r.Key
	case r.Key == "":
		return "steps." + r.StepID
	default:
		return "steps." + r.StepID + "." + r.Key
	}
}

// MarshalYAML serializes the ref in its dotted string form.
func (r SourceRef) MarshalYAML() (any, error) {
	return r.String(), nil
}

// UnmarshalYAML parses the dotted string form.
func (r *SourceRef) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	ref, err := ParseSourceRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// StepTemplate declares one step of a workflow definition.
type StepTemplate struct {
	// ID uniquely identifies the step within its definition.
	ID string `json:"id" yaml:"id"`
	// Agent is the capability name invoked for this step.
	Agent string `json:"agent" yaml:"agent"`
	// DependsOn lists step ids that must succeed before this step starts.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Critical marks the step as required for overall run success.
	Critical bool `json:"critical" yaml:"critical"`
	// Input maps input payload keys to their sources.
	Input map[string]SourceRef `json:"input,omitempty" yaml:"input,omitempty"`
}

// Definition is a reusable workflow template: an ordered set of step
// templates whose dependency edges form a DAG. Definitions are loaded at
// process start and never mutated at runtime.
type Definition struct {
	// Type is the workflow type identifier, e.g. "content-campaign".
	Type string `json:"type" yaml:"type"`
	// Description describes the workflow for humans.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Steps lists the step templates in declaration order.
	Steps []StepTemplate `json:"steps" yaml:"steps"`
}

// Step returns the template with the given id.
func (d *Definition) Step(id string) (StepTemplate, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepTemplate{}, false
}

// Validate checks the structural invariants of the definition: non-empty
// type and steps, unique step ids, dependencies referencing earlier steps,
// an acyclic dependency graph, and step-input refs pointing only at declared
// dependencies.
func (d *Definition) Validate() error {
	if d.Type == "" {
		return fmt.Errorf("definition has no type")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %s has no steps", d.Type)
	}

	declared := make(map[string]int, len(d.Steps))
	for i, step := range d.Steps {
		if step.ID == "" {
			return fmt.Errorf("definition %s: step %d has no id", d.Type, i)
		}
		if step.Agent == "" {
			return fmt.Errorf("definition %s: step %s has no agent", d.Type, step.ID)
		}
		if _, dup := declared[step.ID]; dup {
			return fmt.Errorf("definition %s: duplicate step id %s", d.Type, step.ID)
		}
		declared[step.ID] = i
	}

	for i, step := range d.Steps {
		deps := make(map[string]bool, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			j, ok := declared[dep]
			if !ok {
				return fmt.Errorf("definition %s: step %s depends on unknown step %s", d.Type, step.ID, dep)
			}
			// Declaration order doubles as a topological order, which also
			// rules out cycles and self-dependencies.
			if j >= i {
				return fmt.Errorf("definition %s: step %s depends on later step %s", d.Type, step.ID, dep)
			}
			deps[dep] = true
		}

		for key, ref := range step.Input {
			if ref.Kind == SourceStep && !deps[ref.StepID] {
				return fmt.Errorf("definition %s: step %s input %q reads %s which is not a declared dependency",
					d.Type, step.ID, key, ref.StepID)
			}
		}
	}

	return nil
}
