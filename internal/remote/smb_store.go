package remote

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_sync_windows/internal/smb"
)

// SMBObjectStore implements ObjectStoreClient over an SMB share, adapting
// the SMB package's connection and file-op plumbing to the richer contract
// the sync engine needs. SMB operations are synchronous, so
// Rename/Move/DeleteFiles perform the work inline and return an
// already-complete task id; WaitTask on an unknown id reports complete
// rather than erroring, since there is nothing left to wait for.
type SMBObjectStore struct {
	client *smb.SMBClient
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[TaskID]TaskState
}

// NewSMBObjectStore wraps an already-configured SMB client.
func NewSMBObjectStore(client *smb.SMBClient, logger *zap.Logger) *SMBObjectStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMBObjectStore{
		client: client,
		logger: logger.With(zap.String("component", "remote-smb")),
		tasks:  make(map[TaskID]TaskState),
	}
}

func (s *SMBObjectStore) Connect(ctx context.Context) error    { return s.client.Connect() }
func (s *SMBObjectStore) Disconnect(ctx context.Context) error { return s.client.Disconnect() }
func (s *SMBObjectStore) Connected() bool                      { return s.client.IsConnected() }

func (s *SMBObjectStore) List(ctx context.Context, p string) ([]ObjectInfo, error) {
	entries, err := s.client.ListRemote(p)
	if err != nil {
		return nil, err
	}
	result := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		result = append(result, ObjectInfo{
			Path:    e.Path,
			Size:    e.Size,
			ModTime: e.ModTime,
			IsDir:   e.IsDir,
		})
	}
	return result, nil
}

func (s *SMBObjectStore) GetInfo(ctx context.Context, p string) (ObjectInfo, error) {
	info, err := s.client.GetMetadata(p)
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Path: info.Path, Size: info.Size, ModTime: info.ModTime, IsDir: info.IsDir}, nil
}

func (s *SMBObjectStore) CreateFolder(ctx context.Context, parentPath, name string) error {
	full := path.Join(parentPath, name)
	return s.client.MkdirAll(full)
}

func (s *SMBObjectStore) Rename(ctx context.Context, p, newName string) (TaskID, error) {
	dst := path.Join(path.Dir(p), newName)
	if err := s.client.RenamePath(p, dst); err != nil {
		return "", fmt.Errorf("rename %s -> %s: %w", p, dst, err)
	}
	return s.completeTask(), nil
}

func (s *SMBObjectStore) Move(ctx context.Context, p, toPath string) (TaskID, error) {
	if err := s.client.RenamePath(p, toPath); err != nil {
		return "", fmt.Errorf("move %s -> %s: %w", p, toPath, err)
	}
	return s.completeTask(), nil
}

func (s *SMBObjectStore) DeleteFiles(ctx context.Context, prefix string, paths []string, trash bool) (TaskID, error) {
	var firstErr error
	for _, p := range paths {
		full := path.Join(prefix, p)
		if err := s.client.Delete(full); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", firstErr
	}
	return s.completeTask(), nil
}

// completeTask registers a synthetic already-done task id, since SMB file
// ops above run synchronously and have no server-side task to poll.
func (s *SMBObjectStore) completeTask() TaskID {
	id := TaskID(uuid.NewString())
	s.mu.Lock()
	s.tasks[id] = TaskComplete
	s.mu.Unlock()
	return id
}

func (s *SMBObjectStore) WaitTask(ctx context.Context, id TaskID) (TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tasks[id]
	if !ok {
		return TaskComplete, nil
	}
	delete(s.tasks, id)
	return state, nil
}

func (s *SMBObjectStore) CheckUpload(ctx context.Context, p string, size int64) (*UploadSession, error) {
	return &UploadSession{Path: p, Size: size}, nil
}

func (s *SMBObjectStore) UploadObject(ctx context.Context, session *UploadSession, r io.Reader) error {
	return s.client.UploadStream(session.Path, r)
}

func (s *SMBObjectStore) OpenRange(ctx context.Context, p string, offset, length int64) (io.ReadCloser, error) {
	return s.client.OpenRange(p, offset, length)
}

// GetChangeLog always returns no events: plain SMB shares expose no native
// change feed. A real object-store backend (the primary target for this
// interface) implements this against its own events API; this adapter
// exists so the SMB path still satisfies ObjectStoreClient end to end.
func (s *SMBObjectStore) GetChangeLog(ctx context.Context, from, to time.Time) ([]ChangeLogEntry, error) {
	s.logger.Debug("change-log poll against SMB backend returns no events",
		zap.Time("from", from), zap.Time("to", to))
	return nil, nil
}
