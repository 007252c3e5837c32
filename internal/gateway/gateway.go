//go:build windows
// +build windows

// Package gateway serializes mutating file operations (upload, create
// folder, rename, move, delete) against the remote object store, the
// engine-side counterpart of the inbound callback dispatcher.
package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/juste-un-gars/anemone_sync_windows/internal/cloudfiles"
	"github.com/juste-un-gars/anemone_sync_windows/internal/remote"
)

const (
	defaultPoolSize  = 8
	pollMinInterval  = 3 * time.Second
	pollMaxInterval  = 4 * time.Second
	maxPollAttempts  = 300
)

// NotificationKind classifies a user-facing event the Gateway surfaces
// through Notifier.
type NotificationKind int

const (
	NotifyInfo NotificationKind = iota
	NotifyWarning
	NotifyError
)

// Notifier is the narrow interface the Gateway calls into for user-facing
// events (tray balloons, toast notifications); a UI host implements it,
// and noopNotifier is the default when none is attached.
type Notifier interface {
	Notify(title, message string, kind NotificationKind)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string, NotificationKind) {}

// Gateway serializes mutating operations per path and fans them out over a
// bounded pool, so unrelated paths proceed in parallel while a path and its
// ancestors/descendants never run concurrently.
type Gateway struct {
	engine   *cloudfiles.PlaceholderEngine
	client   remote.ObjectStoreClient
	notifier Notifier
	logger   *zap.Logger

	poolSize int

	overlapMu sync.Mutex
	active    map[string]struct{}

	restoreMu sync.Mutex
	restore   map[string]struct{}
}

// New builds a Gateway over an already-connected placeholder engine and
// object store client. A nil notifier installs a no-op implementation.
func New(engine *cloudfiles.PlaceholderEngine, client remote.ObjectStoreClient, notifier Notifier, logger *zap.Logger) *Gateway {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		engine:   engine,
		client:   client,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "gateway")),
		poolSize: defaultPoolSize,
		active:   make(map[string]struct{}),
		restore:  make(map[string]struct{}),
	}
}

// SetPoolSize overrides the bounded concurrency pool (default 8).
func (g *Gateway) SetPoolSize(n int) {
	if n > 0 {
		g.poolSize = n
	}
}

// Run executes a batch of operations concurrently, up to the pool size,
// aggregating every failure with go.uber.org/multierr instead of
// cancelling siblings on the first error.
func (g *Gateway) Run(ctx context.Context, ops []Operation) error {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(g.poolSize)

	var errsMu sync.Mutex
	var errs error

	for _, op := range ops {
		op := op
		group.Go(func() error {
			if err := g.execute(gctx, op); err != nil {
				errsMu.Lock()
				errs = multierr.Append(errs, err)
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return errs
}

func (g *Gateway) execute(ctx context.Context, op Operation) error {
	paths := op.paths()
	if err := g.acquireOverlap(ctx, paths); err != nil {
		return err
	}
	defer g.releaseOverlap(paths)

	switch o := op.(type) {
	case UploadFile:
		return g.uploadFile(ctx, o)
	case CreateFolder:
		return g.createFolder(ctx, o)
	case RenameFile:
		return g.renameFile(ctx, o)
	case MoveFile:
		return g.moveFile(ctx, o)
	case DeleteFile:
		return g.deleteFile(ctx, o)
	default:
		return fmt.Errorf("gateway: unknown operation type %T", op)
	}
}

// acquireOverlap blocks until no ancestor, descendant, or exact match of
// any path in paths is active, then marks them active. This is the
// File Operations Gateway's one-active-task-per-path serialization: across
// paths operations run in parallel, but a path and its ancestors/
// descendants never overlap.
func (g *Gateway) acquireOverlap(ctx context.Context, paths []string) error {
	for {
		g.overlapMu.Lock()
		if !g.hasOverlapLocked(paths) {
			for _, p := range paths {
				g.active[normalizeOverlapKey(p)] = struct{}{}
			}
			g.overlapMu.Unlock()
			return nil
		}
		g.overlapMu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (g *Gateway) releaseOverlap(paths []string) {
	g.overlapMu.Lock()
	defer g.overlapMu.Unlock()
	for _, p := range paths {
		delete(g.active, normalizeOverlapKey(p))
	}
}

func (g *Gateway) hasOverlapLocked(paths []string) bool {
	for active := range g.active {
		for _, p := range paths {
			key := normalizeOverlapKey(p)
			if key == active || strings.HasPrefix(key, active+"/") || strings.HasPrefix(active, key+"/") {
				return true
			}
		}
	}
	return false
}

func normalizeOverlapKey(p string) string {
	return strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
}

// pollTask polls the remote task-state endpoint at randomized 3-4s
// intervals until it reports complete/error or maxPollAttempts is
// exhausted (roughly 15 minutes at the fastest interval, 20 at the slowest).
func (g *Gateway) pollTask(ctx context.Context, id remote.TaskID) error {
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		state, err := g.client.WaitTask(ctx, id)
		if err != nil {
			return fmt.Errorf("poll task %s: %w", id, err)
		}
		switch state {
		case remote.TaskComplete:
			return nil
		case remote.TaskError:
			return fmt.Errorf("poll task %s: %w", id, cloudfiles.ErrUnsuccessful)
		}

		interval := pollMinInterval + time.Duration(rand.Int63n(int64(pollMaxInterval-pollMinInterval)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("poll task %s: exceeded %d attempts", id, maxPollAttempts)
}

func (g *Gateway) uploadFile(ctx context.Context, op UploadFile) error {
	session, err := g.client.CheckUpload(ctx, op.RemotePath, op.Size)
	if err != nil {
		return fmt.Errorf("upload %s: check upload: %w", op.LocalRelativePath, err)
	}

	reader, err := op.Open()
	if err != nil {
		return fmt.Errorf("upload %s: open local file: %w", op.LocalRelativePath, err)
	}
	defer reader.Close()

	if err := g.client.UploadObject(ctx, session, reader); err != nil {
		return fmt.Errorf("upload %s: %w", op.LocalRelativePath, err)
	}

	return g.convertInSync(op.LocalRelativePath, op.RemotePath, op.Size, op.ModTime)
}

func (g *Gateway) createFolder(ctx context.Context, op CreateFolder) error {
	if err := g.client.CreateFolder(ctx, op.ParentRemotePath, op.Name); err != nil {
		return fmt.Errorf("createFolder %s: %w", op.LocalRelativePath, err)
	}
	return g.convertInSync(op.LocalRelativePath, op.ParentRemotePath+"/"+op.Name, 0, time.Time{})
}

func (g *Gateway) renameFile(ctx context.Context, op RenameFile) error {
	info, err := g.client.GetInfo(ctx, op.RemotePath)
	if err != nil {
		return fmt.Errorf("renameFile %s: fetch metadata: %w", op.OldRelativePath, err)
	}

	taskID, err := g.client.Rename(ctx, op.RemotePath, op.NewName)
	if err != nil {
		return fmt.Errorf("renameFile %s: %w", op.OldRelativePath, err)
	}
	if err := g.pollTask(ctx, taskID); err != nil {
		return fmt.Errorf("renameFile %s: %w", op.OldRelativePath, err)
	}

	return g.refreshPlaceholder(op.NewRelativePath, info)
}

func (g *Gateway) moveFile(ctx context.Context, op MoveFile) error {
	info, err := g.client.GetInfo(ctx, op.RemotePath)
	if err != nil {
		return fmt.Errorf("moveFile %s: fetch metadata: %w", op.OldRelativePath, err)
	}

	taskID, err := g.client.Move(ctx, op.RemotePath, op.ToRemotePath)
	if err != nil {
		return fmt.Errorf("moveFile %s: %w", op.OldRelativePath, err)
	}
	if err := g.pollTask(ctx, taskID); err != nil {
		return fmt.Errorf("moveFile %s: %w", op.OldRelativePath, err)
	}

	return g.refreshPlaceholder(op.NewRelativePath, info)
}

func (g *Gateway) deleteFile(ctx context.Context, op DeleteFile) error {
	if _, err := g.engine.Read(op.LocalRelativePath); err != nil {
		// Path no longer readable locally: treat as an already-settled
		// racy delete rather than failing the batch.
		g.logger.Debug("deleteFile: path unreadable locally, treating as already deleted",
			zap.String("path", op.LocalRelativePath))
		return nil
	}

	taskID, err := g.client.DeleteFiles(ctx, op.RemotePrefix, []string{op.RemotePath}, true)
	if err != nil {
		if isForbidden(err) {
			g.notifier.Notify("Delete Blocked",
				fmt.Sprintf("'%s' could not be deleted on the server", op.LocalRelativePath),
				NotifyWarning)
			g.restoreMu.Lock()
			g.restore[op.LocalRelativePath] = struct{}{}
			g.restoreMu.Unlock()
			return nil
		}
		return fmt.Errorf("deleteFile %s: %w", op.LocalRelativePath, err)
	}

	return g.pollTask(ctx, taskID)
}

// PendingRestores drains the set of paths a forbidden delete enqueued for
// reinstatement; the change-log poller's notify-delete-completion handling
// calls this to know which placeholders to recreate from the server.
func (g *Gateway) PendingRestores() []string {
	g.restoreMu.Lock()
	defer g.restoreMu.Unlock()
	paths := make([]string, 0, len(g.restore))
	for p := range g.restore {
		paths = append(paths, p)
		delete(g.restore, p)
	}
	return paths
}

func (g *Gateway) convertInSync(relativePath, remotePath string, size int64, modTime time.Time) error {
	return g.engine.Convert(relativePath, cloudfiles.RemoteFileInfo{
		Path:    relativePath,
		Size:    size,
		ModTime: modTime,
	}, true)
}

func (g *Gateway) refreshPlaceholder(relativePath string, info remote.ObjectInfo) error {
	return g.engine.UpdatePlaceholder(cloudfiles.RemoteFileInfo{
		Path:        relativePath,
		Size:        info.Size,
		ModTime:     info.ModTime,
		IsDirectory: info.IsDir,
	})
}

func isForbidden(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "forbidden")
}
