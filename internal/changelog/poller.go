//go:build windows
// +build windows

// Package changelog polls the remote object store's change-log and
// translates server events into local placeholder mutations, the
// outbound-facing counterpart of the engine-side callback dispatcher.
package changelog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/juste-un-gars/anemone_sync_windows/internal/cloudfiles"
	"github.com/juste-un-gars/anemone_sync_windows/internal/remote"
)

const (
	defaultPollInterval = 3 * time.Minute
	debugPollInterval   = 1 * time.Minute
)

// WatermarkStore persists the half-open window cursor after each
// successful iteration. Loading it back is not part of this interface:
// New takes the starting cursor from its caller.
type WatermarkStore interface {
	AdvanceChangeLogWatermark(jobID int64, lastTS time.Time) error
}

// Poller runs a single cooperative polling loop for one sync job, applying
// create/copy/restore/delete/move/rename change-log events onto the local
// placeholder tree.
type Poller struct {
	jobID        int64
	client       remote.ObjectStoreClient
	engine       *cloudfiles.PlaceholderEngine
	watermarks   WatermarkStore
	remotePrefix string
	logger       *zap.Logger

	interval time.Duration

	mu      sync.Mutex
	lastTS  time.Time
	stopped chan struct{}
	done    chan struct{}
}

// New builds a Poller starting its window at lastTS (the sync job's
// persisted watermark, or the zero time to poll from the beginning).
func New(jobID int64, client remote.ObjectStoreClient, engine *cloudfiles.PlaceholderEngine, watermarks WatermarkStore, remotePrefix string, lastTS time.Time, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		jobID:        jobID,
		client:       client,
		engine:       engine,
		watermarks:   watermarks,
		remotePrefix: remotePrefix,
		logger:       logger.With(zap.String("component", "changelog")),
		interval:     defaultPollInterval,
	}
}

// SetDebugInterval switches the sleep interval from the 3-minute default to
// the 1-minute debug cadence.
func (p *Poller) SetDebugInterval() {
	p.interval = debugPollInterval
}

// Start launches the polling loop as a background goroutine; Stop blocks
// until the current iteration finishes and the loop exits.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.stopped = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop signals the loop to exit and blocks until it has, observing
// cancellation at the sleep boundary between iterations.
func (p *Poller) Stop() {
	p.mu.Lock()
	stopped := p.stopped
	done := p.done
	p.mu.Unlock()
	if stopped == nil {
		return
	}
	close(stopped)
	<-done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		default:
		}

		if err := p.pollOnce(ctx); err != nil {
			p.logger.Warn("change-log poll iteration failed, window will be retried", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case <-time.After(p.interval):
		}
	}
}

// pollOnce runs exactly one iteration: fetch [lastTS, now), apply every
// event in server order, and only on full success advance the watermark.
func (p *Poller) pollOnce(ctx context.Context) error {
	p.mu.Lock()
	from := p.lastTS
	p.mu.Unlock()

	to := time.Now().UTC()
	entries, err := p.client.GetChangeLog(ctx, from, to)
	if err != nil {
		return fmt.Errorf("get change log [%s, %s): %w", from, to, err)
	}

	for _, entry := range entries {
		if err := p.apply(entry); err != nil {
			return fmt.Errorf("apply %s event for %s: %w", entry.Action, entry.Object.Path, err)
		}
	}

	if p.watermarks != nil {
		if err := p.watermarks.AdvanceChangeLogWatermark(p.jobID, to); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
	}

	p.mu.Lock()
	p.lastTS = to
	p.mu.Unlock()
	return nil
}

func (p *Poller) apply(entry remote.ChangeLogEntry) error {
	switch entry.Action {
	case remote.ChangeLogCreate, remote.ChangeLogCopy, remote.ChangeLogRestore:
		return p.applyCreate(entry.Object)
	case remote.ChangeLogDelete:
		return p.applyDelete(entry.Object.Path)
	case remote.ChangeLogMove, remote.ChangeLogRename:
		if entry.OldPath != "" {
			if err := p.applyDelete(entry.OldPath); err != nil {
				return err
			}
		}
		return p.applyCreate(entry.Object)
	default:
		return fmt.Errorf("unrecognized change-log action %q", entry.Action)
	}
}

// applyCreate covers create/copy/restore and the create half of move/
// rename. An existing, in-sync, non-excluded path is left as it is; an
// existing excluded stub is deleted first; every other case goes to Create,
// which lays down a placeholder where the path is missing and leaves an
// existing entry in place. The local placeholder's identity is not compared
// with the server's version.
func (p *Poller) applyCreate(obj remote.ObjectInfo) error {
	relativePath := stripRemotePrefix(obj.Path, p.remotePrefix)

	state, err := p.engine.Read(relativePath)
	if err != nil {
		return fmt.Errorf("read placeholder state %s: %w", relativePath, err)
	}
	if state.Exists && state.InSync && state.PinState != cloudfiles.CF_PIN_STATE_EXCLUDED {
		// Already converged on an earlier pass; nothing to do.
		return nil
	}
	if state.Exists && state.PinState == cloudfiles.CF_PIN_STATE_EXCLUDED {
		if err := p.engine.Delete(relativePath); err != nil {
			return fmt.Errorf("remove excluded stub %s: %w", relativePath, err)
		}
	}

	return p.engine.Create([]cloudfiles.RemoteFileInfo{{
		Path:        relativePath,
		Size:        obj.Size,
		ModTime:     obj.ModTime,
		IsDirectory: obj.IsDir,
	}})
}

// applyDelete marks the placeholder excluded (so a concurrent reconcile
// pass doesn't race it back into existence) before removing it locally.
func (p *Poller) applyDelete(remotePath string) error {
	relativePath := stripRemotePrefix(remotePath, p.remotePrefix)

	handle, err := p.openHandle(relativePath)
	if err == nil {
		if pinErr := p.engine.SetPinState(handle, cloudfiles.CF_PIN_STATE_EXCLUDED, false); pinErr != nil {
			p.logger.Warn("failed to mark deleted path excluded before removal",
				zap.String("path", relativePath), zap.Error(pinErr))
		}
		windows.CloseHandle(handle)
	}

	if err := p.engine.Delete(relativePath); err != nil {
		return fmt.Errorf("delete placeholder %s: %w", relativePath, err)
	}
	return nil
}

func (p *Poller) openHandle(relativePath string) (windows.Handle, error) {
	fullPath := p.engine.FullPath(relativePath)
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
