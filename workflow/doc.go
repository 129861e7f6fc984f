// Package workflow holds the declarative side of the orchestration engine:
// workflow definitions (step templates and their dependency graph), the
// definition registry with the built-in Bayon Coagent templates, the runtime
// run/step-run model, the pure dependency scheduler, and the result
// synthesizer.
//
// Definitions are data, not code: a workflow type is a named set of step
// templates, each naming an agent capability, an input mapping and a
// dependency list. New workflow types are added by registering a definition,
// never by touching the orchestrator's state machine.
package workflow
