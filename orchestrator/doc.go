// Package orchestrator drives workflow runs to completion: it executes
// individual steps under retry policy, schedules dependency wavefronts
// concurrently, persists every state transition and synthesizes the final
// result.
//
// One Orchestrator instance serves any number of concurrent runs; all
// per-run mutable state lives on the stack of Execute.
package orchestrator
