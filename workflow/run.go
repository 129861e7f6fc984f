package workflow

import (
	"time"

	"github.com/bayonhq/coagent/types"
)

// RunStatus is the overall status of a workflow run.
type RunStatus string

const (
	RunPending            RunStatus = "pending"
	RunRunning            RunStatus = "running"
	RunCompleted          RunStatus = "completed"
	RunFailed             RunStatus = "failed"
	RunPartiallyCompleted RunStatus = "partially-completed"
)

// IsTerminal reports whether no further run transition can occur.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunPartiallyCompleted
}

// StepStatus is the status of one step run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether no further step transition can occur.
func (s StepStatus) IsTerminal() bool {
	return s == StepSucceeded || s == StepFailed || s == StepSkipped
}

// StepError is the persisted form of a step failure: kind plus message,
// detached from any Go error value.
type StepError struct {
	Kind    types.ErrorKind `json:"kind" yaml:"kind"`
	Message string          `json:"message" yaml:"message"`
}

// StepRun is the dynamic record of one step within a run.
type StepRun struct {
	// ID matches the StepTemplate id.
	ID string `json:"id"`
	// Agent is the capability invoked, denormalized for observability.
	Agent string `json:"agent"`
	// Status is the current step status.
	Status StepStatus `json:"status"`
	// Attempts counts invocations performed so far.
	Attempts int `json:"attempts"`
	// LastError records the most recent failure, if any.
	LastError *StepError `json:"last_error,omitempty"`
	// SkipReason explains a skipped status, e.g. "dependency failed: research".
	SkipReason string `json:"skip_reason,omitempty"`
	// StartedAt is set when the step first transitions to running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is set when the step reaches a terminal status.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Output is the raw agent output payload on success.
	Output types.Payload `json:"output,omitempty"`
}

// Clone returns a deep-enough copy for snapshotting: timestamps and the
// error record are copied, the output payload is shallow-copied.
func (s *StepRun) Clone() *StepRun {
	out := *s
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.Output = s.Output.Clone()
	return &out
}

// StepIssue summarizes a non-succeeded step in a workflow result.
type StepIssue struct {
	ID     string     `json:"id"`
	Status StepStatus `json:"status"`
	Reason string     `json:"reason"`
}

// Result is the immutable final payload of a terminal run: every succeeded
// step's output keyed by step id, a human-readable summary, and the issues
// of any failed or skipped steps.
type Result struct {
	Outputs    map[string]types.Payload `json:"outputs"`
	Summary    string                   `json:"summary"`
	Incomplete []StepIssue              `json:"incomplete,omitempty"`
}

// Run is the dynamic record of one workflow execution. It is owned
// exclusively by the orchestrator while running and becomes immutable once
// Status is terminal.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`
	// Type names the workflow definition this run instantiates.
	Type string `json:"type"`
	// OwnerID identifies the submitting user.
	OwnerID string `json:"owner_id"`
	// Name is the human-readable display name.
	Name string `json:"name"`
	// Status is the overall run status.
	Status RunStatus `json:"status"`
	// Params holds the submitted workflow parameters.
	Params types.Payload `json:"params,omitempty"`
	// Steps holds the step runs in definition order.
	Steps []*StepRun `json:"steps"`
	// Error records a run-level failure (cancellation, persistence loss).
	Error *StepError `json:"error,omitempty"`
	// Result is attached once the run reaches a terminal status.
	Result *Result `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun creates a pending run for the given definition with one pending
// StepRun per step template, in definition order.
func NewRun(id string, def *Definition, ownerID, name string, params types.Payload) *Run {
	steps := make([]*StepRun, 0, len(def.Steps))
	for _, tpl := range def.Steps {
		steps = append(steps, &StepRun{
			ID:     tpl.ID,
			Agent:  tpl.Agent,
			Status: StepPending,
		})
	}
	return &Run{
		ID:        id,
		Type:      def.Type,
		OwnerID:   ownerID,
		Name:      name,
		Status:    RunPending,
		Params:    params.Clone(),
		Steps:     steps,
		CreatedAt: time.Now().UTC(),
	}
}

// Step returns the step run with the given id.
func (r *Run) Step(id string) (*StepRun, bool) {
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// StepStatuses returns a snapshot of step id -> status, the shape the
// scheduler consumes.
func (r *Run) StepStatuses() map[string]StepStatus {
	out := make(map[string]StepStatus, len(r.Steps))
	for _, s := range r.Steps {
		out[s.ID] = s.Status
	}
	return out
}

// AllStepsTerminal reports whether every step has reached a terminal status.
func (r *Run) AllStepsTerminal() bool {
	for _, s := range r.Steps {
		if !s.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Clone returns a snapshot safe to hand to callers and stores while the
// orchestrator keeps mutating the original.
func (r *Run) Clone() *Run {
	out := *r
	out.Params = r.Params.Clone()
	out.Steps = make([]*StepRun, len(r.Steps))
	for i, s := range r.Steps {
		out.Steps[i] = s.Clone()
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Result != nil {
		res := Result{
			Outputs: make(map[string]types.Payload, len(r.Result.Outputs)),
			Summary: r.Result.Summary,
		}
		for k, v := range r.Result.Outputs {
			res.Outputs[k] = v.Clone()
		}
		res.Incomplete = append(res.Incomplete, r.Result.Incomplete...)
		out.Result = &res
	}
	return &out
}
