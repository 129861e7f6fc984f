package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects dispatched events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []FileEvent
}

func (r *eventRecorder) record(e FileEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) snapshot() []FileEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FileEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, pred func([]FileEvent) bool) []FileEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if evts := r.snapshot(); pred(evts) {
			return evts
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for events, got %v", r.snapshot())
	return nil
}

func newTestWatcher(t *testing.T, dir string) (*DirWatcher, *eventRecorder) {
	t.Helper()
	w, err := NewDirWatcher(dir,
		WithPollInterval(20*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	rec := &eventRecorder{}
	w.OnChange(rec.record)
	return w, rec
}

func TestDirWatcherDetectsCreate(t *testing.T) {
	dir := t.TempDir()
	w, rec := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: x\n"), 0o600))

	events := rec.waitFor(t, func(evts []FileEvent) bool { return len(evts) >= 1 })
	assert.Equal(t, path, events[0].Path)
	assert.Equal(t, FileOpCreate, events[0].Op)
}

func TestDirWatcherDetectsWriteAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campaign.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	w, rec := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Mod times can have coarse granularity; push it forward explicitly.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	events := rec.waitFor(t, func(evts []FileEvent) bool { return len(evts) >= 1 })
	assert.Equal(t, FileOpWrite, events[0].Op)

	require.NoError(t, os.Remove(path))
	events = rec.waitFor(t, func(evts []FileEvent) bool {
		for _, e := range evts {
			if e.Op == FileOpRemove {
				return true
			}
		}
		return false
	})
	assert.Equal(t, path, events[len(events)-1].Path)
}

func TestDirWatcherIgnoresNonYAML(t *testing.T) {
	dir := t.TempDir()
	w, rec := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestDirWatcherStartTwice(t *testing.T) {
	w, _ := newTestWatcher(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Error(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
}

func TestDirWatcherMissingDir(t *testing.T) {
	w, err := NewDirWatcher(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.False(t, w.IsRunning())
}
