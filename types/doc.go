// Package types defines the shared types of the Coagent orchestration
// engine: the opaque Payload exchanged with agent capabilities and the
// structured error model consumed by the invoker, retry and orchestration
// layers.
//
// types is the lowest-level package of the module and depends on nothing
// internal, so every other package can share its contracts without creating
// import cycles.
package types
