// Package store defines the Workflow State Store boundary: the durable
// record of workflow runs that the orchestrator persists after every state
// transition, plus memory, Redis, SQL and MongoDB implementations.
//
// All mutation goes through the orchestrator; a store implementation only
// has to provide read-after-write consistency for a single run id.
package store

import (
	"context"
	"errors"

	"github.com/bayonhq/coagent/workflow"
)

// Common errors
var (
	// ErrNotFound is returned by Load for an unknown run id.
	ErrNotFound = errors.New("workflow run not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// Store is the durable record of workflow runs. Save persists a full run
// snapshot (last write wins per run id), Load returns the latest persisted
// snapshot, and ListByOwner returns every run submitted by one owner.
type Store interface {
	Save(ctx context.Context, run *workflow.Run) error
	Load(ctx context.Context, runID string) (*workflow.Run, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error)
	Close() error
}
