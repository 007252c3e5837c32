//go:build windows
// +build windows

// Package reconcile walks the local directory tree and converges placeholder
// state against a server listing, the engine-side counterpart of the
// teacher's internal/sync tree-walk-and-diff loop generalized to the cloud
// filter placeholder model.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/windows"

	"github.com/juste-un-gars/anemone_sync_windows/internal/cloudfiles"
	"github.com/juste-un-gars/anemone_sync_windows/internal/remote"
)

// Mode selects how deeply a reconcile pass inspects a subtree.
type Mode int

const (
	// ModeLocal examines placeholder state only and never contacts the
	// remote object store; used on file-system-watcher error recovery.
	ModeLocal Mode = iota
	// ModeFull fetches a remote listing for every directory it descends
	// into and converges local placeholder state against it.
	ModeFull
)

const defaultParallelism = 8

// Reconciler converges local placeholder state with the remote object store.
type Reconciler struct {
	engine       *cloudfiles.PlaceholderEngine
	client       remote.ObjectStoreClient
	remotePrefix string
	logger       *zap.Logger

	parallelism int
	exclusions  *exclusionSet

	mu      sync.Mutex
	running bool
}

// New builds a Reconciler over an already-connected placeholder engine and
// object store client. remotePrefix is joined onto relative paths before
// each remote listing call.
func New(engine *cloudfiles.PlaceholderEngine, client remote.ObjectStoreClient, remotePrefix string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		engine:       engine,
		client:       client,
		remotePrefix: remotePrefix,
		logger:       logger.With(zap.String("component", "reconcile")),
		parallelism:  defaultParallelism,
		exclusions:   newExclusionSet(nil),
	}
}

// SetParallelism overrides the bounded pool size recursive descent runs
// under (default 8).
func (r *Reconciler) SetParallelism(n int) {
	if n > 0 {
		r.parallelism = n
	}
}

// SetExclusionPatterns adds job-specific glob patterns on top of the fixed
// temp/system/recycle-bin/editor-swap set every reconciler carries.
func (r *Reconciler) SetExclusionPatterns(patterns []string) error {
	set, err := newExclusionSetFromGlobs(patterns)
	if err != nil {
		return err
	}
	r.exclusions = set
	return nil
}

// Run attempts a reconciliation pass rooted at relativePath ("" for the
// whole sync root). Reconciliation is serialized by a single non-blocking
// gate: if a run is already in progress, Run returns immediately without
// error instead of queuing or blocking.
func (r *Reconciler) Run(ctx context.Context, relativePath string, mode Mode) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("reconcile already running, skipping invocation")
		return nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.parallelism)

	var errsMu sync.Mutex
	var errs error
	record := func(err error) {
		if err == nil {
			return
		}
		errsMu.Lock()
		errs = multierr.Append(errs, err)
		errsMu.Unlock()
	}

	group.Go(func() error {
		return r.reconcileDir(gctx, group, relativePath, mode, record)
	})

	if err := group.Wait(); err != nil {
		record(err)
	}
	return errs
}

// reconcileDir reconciles one directory level and, for subdirectories that
// still need convergence, schedules a recursive descent onto the bounded
// pool rather than recursing inline. Every error encountered is recorded
// through record instead of aborting the whole pass, so one bad subtree
// doesn't starve siblings of reconciliation.
func (r *Reconciler) reconcileDir(ctx context.Context, group *errgroup.Group, relativePath string, mode Mode, record func(error)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	localPath := r.engine.FullPath(relativePath)
	localEntries, err := os.ReadDir(localPath)
	if err != nil && !os.IsNotExist(err) {
		record(fmt.Errorf("read local dir %s: %w", relativePath, err))
		return nil
	}

	localByName := make(map[string]os.DirEntry, len(localEntries))
	for _, e := range localEntries {
		localByName[e.Name()] = e
	}

	if mode == ModeLocal {
		for _, entry := range localEntries {
			name := entry.Name()
			child := joinRelative(relativePath, name)
			if r.exclusions.matches(name) {
				r.markExcluded(child)
				continue
			}
			if entry.IsDir() {
				child := child
				group.Go(func() error {
					return r.reconcileDir(ctx, group, child, mode, record)
				})
			}
		}
		return nil
	}

	remotePath := r.joinRemote(relativePath)
	remoteEntries, err := r.client.List(ctx, remotePath)
	if err != nil {
		record(fmt.Errorf("list remote %s: %w", remotePath, err))
		return nil
	}

	for _, obj := range remoteEntries {
		name := path.Base(obj.Path)
		if r.exclusions.matches(name) {
			r.markExcluded(joinRelative(relativePath, name))
			continue
		}

		child := joinRelative(relativePath, name)
		local, existsLocally := localByName[name]

		if !existsLocally {
			// Remote-only entry: lay down a fresh placeholder. A local-only
			// entry with no remote counterpart is either a brand new local
			// file (the upload path handles it) or a phantom; reconciliation
			// never deletes on that basis since deletions are authoritative
			// via the change-log.
			if err := r.engine.Create([]cloudfiles.RemoteFileInfo{toRemoteFileInfo(child, obj)}); err != nil {
				record(fmt.Errorf("create placeholder %s: %w", child, err))
			}
			continue
		}

		if !obj.IsDir || !local.IsDir() {
			continue
		}

		state, err := r.engine.Read(child)
		if err != nil {
			record(fmt.Errorf("read placeholder state %s: %w", child, err))
			continue
		}
		if !state.InSync || !state.Partial {
			child := child
			group.Go(func() error {
				return r.reconcileDir(ctx, group, child, mode, record)
			})
			continue
		}

		r.markInSyncOnDemand(child)
	}

	return nil
}

// markExcluded forces a path into the excluded pin state and in-sync,
// keeping the kernel from ever attempting to hydrate or dehydrate it.
func (r *Reconciler) markExcluded(relativePath string) {
	handle, err := r.openHandle(relativePath)
	if err != nil {
		r.logger.Debug("skip excluding path, could not open handle",
			zap.String("path", relativePath), zap.Error(err))
		return
	}
	defer windows.CloseHandle(handle)

	if err := r.engine.SetPinState(handle, cloudfiles.CF_PIN_STATE_EXCLUDED, false); err != nil {
		r.logger.Warn("failed to mark path excluded", zap.String("path", relativePath), zap.Error(err))
		return
	}
	if err := r.engine.SetInSync(handle); err != nil {
		r.logger.Warn("failed to mark excluded path in-sync", zap.String("path", relativePath), zap.Error(err))
	}
}

// markInSyncOnDemand marks a converged directory in-sync and re-enables
// on-demand population so future enumerations lazily reload it instead of
// the reconciler eagerly descending again next pass.
func (r *Reconciler) markInSyncOnDemand(relativePath string) {
	handle, err := r.openHandle(relativePath)
	if err != nil {
		r.logger.Debug("skip marking converged directory, could not open handle",
			zap.String("path", relativePath), zap.Error(err))
		return
	}
	defer windows.CloseHandle(handle)

	if err := r.engine.SetInSync(handle); err != nil {
		r.logger.Warn("failed to mark directory in-sync", zap.String("path", relativePath), zap.Error(err))
	}
	if err := r.engine.EnableOnDemandPopulation(handle); err != nil {
		r.logger.Warn("failed to enable on-demand population", zap.String("path", relativePath), zap.Error(err))
	}
}

func (r *Reconciler) openHandle(relativePath string) (windows.Handle, error) {
	fullPath := r.engine.FullPath(relativePath)
	return windows.CreateFile(
		windows.StringToUTF16Ptr(fullPath),
		windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
}

func (r *Reconciler) joinRemote(relativePath string) string {
	if relativePath == "" {
		return r.remotePrefix
	}
	return path.Join(r.remotePrefix, relativePath)
}

func joinRelative(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}

func toRemoteFileInfo(relativePath string, obj remote.ObjectInfo) cloudfiles.RemoteFileInfo {
	return cloudfiles.RemoteFileInfo{
		Path:        relativePath,
		Size:        obj.Size,
		ModTime:     obj.ModTime,
		IsDirectory: obj.IsDir,
	}
}
