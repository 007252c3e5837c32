//go:build windows
// +build windows

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/juste-un-gars/anemone_sync_windows/internal/remote"
)

func TestNormalizeOverlapKey(t *testing.T) {
	tests := map[string]string{
		"a\\b\\c":   "a/b/c",
		"/a/b/":     "a/b",
		"a":         "a",
		"":          "",
		"\\a\\b\\\\": "a/b",
	}
	for in, want := range tests {
		if got := normalizeOverlapKey(in); got != want {
			t.Errorf("normalizeOverlapKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGatewayOverlapAncestorDescendant(t *testing.T) {
	g := &Gateway{active: make(map[string]struct{})}

	if err := g.acquireOverlap(context.Background(), []string{"a/b"}); err != nil {
		t.Fatalf("acquireOverlap: %v", err)
	}

	if !g.hasOverlapLocked([]string{"a/b/c"}) {
		t.Error("expected descendant path to overlap with active ancestor")
	}
	if !g.hasOverlapLocked([]string{"a"}) {
		t.Error("expected ancestor path to overlap with active descendant")
	}
	if g.hasOverlapLocked([]string{"a/other"}) {
		t.Error("did not expect sibling path to overlap")
	}

	g.releaseOverlap([]string{"a/b"})
	if g.hasOverlapLocked([]string{"a/b/c"}) {
		t.Error("expected overlap to clear after release")
	}
}

func TestGatewayAcquireOverlapGivesUpOnContextWhileHeld(t *testing.T) {
	g := &Gateway{active: make(map[string]struct{})}
	if err := g.acquireOverlap(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("acquireOverlap: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_ = g.acquireOverlap(ctx, []string{"x"})
		close(done)
	}()

	select {
	case <-done:
		// expected: acquireOverlap gave up once its context timed out while
		// the path was still held.
	case <-time.After(time.Second):
		t.Fatal("acquireOverlap did not respect context cancellation while blocked")
	}
}

type fakeTaskClient struct {
	remote.ObjectStoreClient
	states []remote.TaskState
	calls  int
}

func (f *fakeTaskClient) WaitTask(ctx context.Context, id remote.TaskID) (remote.TaskState, error) {
	state := f.states[f.calls]
	if f.calls < len(f.states)-1 {
		f.calls++
	}
	return state, nil
}

func TestGatewayPollTaskCompletes(t *testing.T) {
	client := &fakeTaskClient{states: []remote.TaskState{remote.TaskPending, remote.TaskPending, remote.TaskComplete}}
	g := &Gateway{client: client}

	if err := g.pollTask(context.Background(), remote.TaskID("t1")); err != nil {
		t.Fatalf("pollTask: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("expected 2 advances before completion, got %d", client.calls)
	}
}

func TestGatewayPollTaskError(t *testing.T) {
	client := &fakeTaskClient{states: []remote.TaskState{remote.TaskError}}
	g := &Gateway{client: client}

	if err := g.pollTask(context.Background(), remote.TaskID("t1")); err == nil {
		t.Fatal("expected error from pollTask on task error state")
	}
}
