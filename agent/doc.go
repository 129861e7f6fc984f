// Package agent defines the invocation boundary between the orchestration
// engine and the AI capabilities it coordinates.
//
// An Invoker performs exactly one attempt against a named capability and
// classifies any failure into the standard error kinds, so retry and
// reporting logic upstream never inspects agent-specific errors. The Registry
// maps stable capability names (research, content-studio, listing-writer,
// market-analysis, ...) to Invoker implementations and is built once at
// process start.
package agent
