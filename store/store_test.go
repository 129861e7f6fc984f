package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bayonhq/coagent/types"
	"github.com/bayonhq/coagent/workflow"
)

func sampleRun(id, owner string, createdAt time.Time) *workflow.Run {
	def := &workflow.Definition{
		Type: "brand-building",
		Steps: []workflow.StepTemplate{
			{ID: "brand-audit", Agent: "research", Critical: true},
			{ID: "brand-strategy", Agent: "market-analysis", DependsOn: []string{"brand-audit"}, Critical: true},
		},
	}
	run := workflow.NewRun(id, def, owner, "Brand push", types.Payload{"market": "austin"})
	run.CreatedAt = createdAt
	return run
}

// conformance exercises the Store contract against any backend.
func conformance(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("load unknown run", func(t *testing.T) {
		_, err := s.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		run := sampleRun("run-1", "owner-a", base)
		run.Steps[0].Status = workflow.StepSucceeded
		run.Steps[0].Attempts = 2
		run.Steps[0].Output = types.Payload{"report": "strong market"}
		run.Steps[1].Status = workflow.StepFailed
		run.Steps[1].LastError = &workflow.StepError{Kind: types.ErrKindTimeout, Message: "slow agent"}

		require.NoError(t, s.Save(ctx, run))

		loaded, err := s.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, run.ID, loaded.ID)
		assert.Equal(t, run.OwnerID, loaded.OwnerID)
		assert.Equal(t, workflow.StepSucceeded, loaded.Steps[0].Status)
		assert.Equal(t, 2, loaded.Steps[0].Attempts)
		assert.Equal(t, "strong market", loaded.Steps[0].Output["report"])
		require.NotNil(t, loaded.Steps[1].LastError)
		assert.Equal(t, types.ErrKindTimeout, loaded.Steps[1].LastError.Kind)
	})

	t.Run("save overwrites snapshot", func(t *testing.T) {
		run := sampleRun("run-1", "owner-a", base)
		run.Status = workflow.RunCompleted
		done := base.Add(time.Minute)
		run.CompletedAt = &done
		require.NoError(t, s.Save(ctx, run))

		loaded, err := s.Load(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, workflow.RunCompleted, loaded.Status)
		require.NotNil(t, loaded.CompletedAt)
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, sampleRun("run-2", "owner-a", base.Add(2*time.Hour))))
		require.NoError(t, s.Save(ctx, sampleRun("run-3", "owner-b", base.Add(time.Hour))))

		runs, err := s.ListByOwner(ctx, "owner-a")
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-2", runs[0].ID)
		assert.Equal(t, "run-1", runs[1].ID)

		runs, err = s.ListByOwner(ctx, "owner-b")
		require.NoError(t, err)
		require.Len(t, runs, 1)

		runs, err = s.ListByOwner(ctx, "owner-unknown")
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	conformance(t, s)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	run := sampleRun("run-x", "owner-a", time.Now())
	require.NoError(t, s.Save(ctx, run))

	// Mutating the saved value or a loaded snapshot must not leak into the store.
	run.Status = workflow.RunFailed
	loaded, err := s.Load(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, workflow.RunPending, loaded.Status)

	loaded.Steps[0].Status = workflow.StepFailed
	again, err := s.Load(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepPending, again.Steps[0].Status)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	err := s.Save(context.Background(), sampleRun("r", "o", time.Now()))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Load(context.Background(), "r")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "coagent-test:")
	defer s.Close()

	conformance(t, s)
}

func TestRedisStore_DroppedIndexEntry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "coagent-test:")
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleRun("run-1", "owner-a", time.Now())))
	require.NoError(t, s.Save(ctx, sampleRun("run-2", "owner-a", time.Now().Add(time.Second))))

	// Delete one run value out of band; listing skips the stale index entry.
	mr.Del("coagent-test:run:run-1")

	runs, err := s.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestSQLStore(t *testing.T) {
	s, err := NewSQLStore(SQLConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	conformance(t, s)
}

func TestSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := NewSQLStore(SQLConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported sql driver")
}
