//go:build windows
// +build windows

package reconcile

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_sync_windows/internal/remote"
)

func TestJoinRelative(t *testing.T) {
	tests := []struct {
		parent, name, want string
	}{
		{"", "foo.txt", "foo.txt"},
		{"a", "b.txt", "a/b.txt"},
		{"a/b", "c.txt", "a/b/c.txt"},
	}
	for _, tt := range tests {
		if got := joinRelative(tt.parent, tt.name); got != tt.want {
			t.Errorf("joinRelative(%q, %q) = %q, want %q", tt.parent, tt.name, got, tt.want)
		}
	}
}

func TestToRemoteFileInfo(t *testing.T) {
	now := time.Unix(1700000000, 0)
	obj := remote.ObjectInfo{Path: "docs/report.pdf", Size: 4096, ModTime: now, IsDir: false}

	info := toRemoteFileInfo("docs/report.pdf", obj)
	if info.Path != "docs/report.pdf" {
		t.Errorf("Path = %q, want docs/report.pdf", info.Path)
	}
	if info.Size != 4096 {
		t.Errorf("Size = %d, want 4096", info.Size)
	}
	if !info.ModTime.Equal(now) {
		t.Errorf("ModTime = %v, want %v", info.ModTime, now)
	}
	if info.IsDirectory {
		t.Error("IsDirectory = true, want false")
	}
}

func TestReconcilerJoinRemote(t *testing.T) {
	r := &Reconciler{remotePrefix: "teams/acme"}
	if got := r.joinRemote(""); got != "teams/acme" {
		t.Errorf("joinRemote(\"\") = %q, want teams/acme", got)
	}
	if got := r.joinRemote("sub/dir"); got != "teams/acme/sub/dir" {
		t.Errorf("joinRemote(sub/dir) = %q, want teams/acme/sub/dir", got)
	}
}

func TestReconcilerNonBlockingGate(t *testing.T) {
	r := &Reconciler{parallelism: defaultParallelism, logger: zap.NewNop()}
	r.running = true

	// Run should return immediately without touching engine/client, since a
	// run is already marked in progress.
	if err := r.Run(nil, "", ModeLocal); err != nil {
		t.Errorf("Run() while already running returned %v, want nil", err)
	}
}
