//go:build windows
// +build windows

package cloudfiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_sync_windows/internal/retry"
)

// TombstoneStore persists the tombstone table of directories moved aside by
// tombstoneAndDelete, so a crash between the move and the deletion doesn't
// orphan the moved directory. No reboot-time deletion is scheduled;
// CleanupPendingDeletesOnStartup retries the recorded entries on a later
// launch.
type TombstoneStore interface {
	RecordTombstone(ctx context.Context, originalPath, tombstonePath string) error
	ListTombstones(ctx context.Context) ([]TombstoneEntry, error)
	ClearTombstone(ctx context.Context, tombstonePath string) error
}

// TombstoneEntry is one row of the tombstone table.
type TombstoneEntry struct {
	OriginalPath  string
	TombstonePath string
	CreatedAt     time.Time
}

// RootLifecycle drives register/connect/disconnect/unregister for a single
// sync root, including bounded-retry registration and tombstone-based safe
// deletion of a busy directory.
type RootLifecycle struct {
	syncRoot   *SyncRootManager
	tombstones TombstoneStore
	logger     *zap.Logger
}

// NewRootLifecycle wires a sync root manager to its tombstone persistence.
// tombstones may be nil, in which case CleanupPendingDeletesOnStartup is a
// no-op and a directory moved aside by Unregister is not recorded.
func NewRootLifecycle(syncRoot *SyncRootManager, tombstones TombstoneStore, logger *zap.Logger) *RootLifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RootLifecycle{syncRoot: syncRoot, tombstones: tombstones, logger: logger}
}

// RegisterWithRetry registers the sync root, retrying transient failures
// (the directory not yet visible to the filesystem, a prior unregister
// still draining) per a bounded exponential backoff.
func (l *RootLifecycle) RegisterWithRetry(ctx context.Context) error {
	policy := retry.RootRegistrationPolicy(l.logger, func(err error) bool {
		category, retryable := ClassifyError(err)
		return retryable && category == ErrorCategoryTransient
	})
	return policy.Do(ctx, "register sync root", l.syncRoot.Register)
}

// Connect connects the sync root and reopens the callback gate, so a
// reconnect after a prior Disconnect starts from a clean gate state.
func (l *RootLifecycle) Connect() error {
	l.syncRoot.ReopenGate()
	return l.syncRoot.Connect()
}

// Shutdown closes the callback gate, drains in-flight kernel callbacks,
// then disconnects. It does not unregister — that's a separate, explicit
// operation since it removes all placeholders.
func (l *RootLifecycle) Shutdown(gateTimeout time.Duration) error {
	if drained := l.syncRoot.BlockCallbacksAndDrain(gateTimeout); !drained {
		l.logger.Warn("callback drain timed out, proceeding with disconnect anyway",
			zap.Duration("timeout", gateTimeout),
		)
	}
	return l.syncRoot.Disconnect()
}

// Unregister removes the sync root registration, then deletes the directory
// under the tombstone deletion policy. Only when the unregister call itself
// fails with a transient error is the directory first moved aside to a
// tombstone name and recorded, so CleanupPendingDeletesOnStartup can finish
// the deletion on a later launch. A directory whose deletion still fails
// after the retries is left where it is, unrecorded, and Unregister returns
// nil; it is not moved aside.
func (l *RootLifecycle) Unregister(ctx context.Context) error {
	rootPath := l.syncRoot.Path()

	if err := l.syncRoot.Unregister(); err != nil {
		category, _ := ClassifyError(err)
		if category != ErrorCategoryTransient {
			return fmt.Errorf("unregister sync root: %w", err)
		}
		l.logger.Warn("sync root busy, tombstoning for deferred deletion",
			zap.String("path", rootPath), zap.Error(err),
		)
		return l.tombstoneAndDelete(ctx, rootPath)
	}

	return l.deleteDirectory(ctx, rootPath)
}

// tombstoneAndDelete moves a busy directory aside under a unique name and
// records it, then retries an in-place delete attempt of the moved copy a
// bounded number of times before giving up for this run (a later
// CleanupPendingDeletesOnStartup call finishes the job).
func (l *RootLifecycle) tombstoneAndDelete(ctx context.Context, originalPath string) error {
	tombstonePath := filepath.Join(filepath.Dir(originalPath), tombstoneName(originalPath))

	if err := os.Rename(originalPath, tombstonePath); err != nil {
		return fmt.Errorf("move to tombstone: %w", err)
	}

	if l.tombstones != nil {
		if err := l.tombstones.RecordTombstone(ctx, originalPath, tombstonePath); err != nil {
			l.logger.Warn("failed to record tombstone", zap.Error(err))
		}
	}

	return l.deleteDirectory(ctx, tombstonePath)
}

// deleteDirectory retries os.RemoveAll under the tombstone deletion policy
// (six attempts, 250ms to 5s) since an antivirus or indexer can hold a
// handle open briefly after the sync root tears down.
func (l *RootLifecycle) deleteDirectory(ctx context.Context, path string) error {
	policy := retry.TombstoneDeletionPolicy(l.logger, func(err error) bool {
		return os.IsExist(err) || isBusyFilesystemError(err)
	})

	err := policy.Do(ctx, "delete tombstoned directory", func() error {
		return os.RemoveAll(path)
	})
	if err != nil {
		l.logger.Warn("directory deletion did not complete, leaving for startup cleanup",
			zap.String("path", path), zap.Error(err))
		return nil
	}

	if l.tombstones != nil {
		if tErr := l.tombstones.ClearTombstone(ctx, path); tErr != nil {
			l.logger.Warn("failed to clear tombstone record", zap.Error(tErr))
		}
	}
	return nil
}

// CleanupPendingDeletesOnStartup finishes any tombstone deletions left
// over from a prior run that crashed or was killed before completing them.
func (l *RootLifecycle) CleanupPendingDeletesOnStartup(ctx context.Context) error {
	if l.tombstones == nil {
		return nil
	}

	entries, err := l.tombstones.ListTombstones(ctx)
	if err != nil {
		return fmt.Errorf("list tombstones: %w", err)
	}

	for _, entry := range entries {
		l.logger.Info("resuming tombstone deletion from previous run",
			zap.String("path", entry.TombstonePath),
		)
		if err := l.deleteDirectory(ctx, entry.TombstonePath); err != nil {
			l.logger.Warn("tombstone cleanup failed, will retry next startup",
				zap.String("path", entry.TombstonePath), zap.Error(err))
		}
	}
	return nil
}

func tombstoneName(originalPath string) string {
	return fmt.Sprintf(".%s.deleting-%d", filepath.Base(originalPath), time.Now().UnixNano())
}

// isBusyFilesystemError reports whether err looks like a transient
// sharing-violation style failure worth retrying, as opposed to a
// permission or not-found error that retrying won't fix.
func isBusyFilesystemError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return false
	}
	if os.IsPermission(err) {
		return false
	}
	return true
}
