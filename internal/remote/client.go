// Package remote generalizes access to the server-side object store behind
// a single interface so the Reconciler, Fetch Pipeline, Change-Log Poller,
// and File Operations Gateway depend on a contract instead of a transport.
package remote

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a remote file or folder.
type ObjectInfo struct {
	Path      string
	Size      int64
	ModTime   time.Time
	VersionID string
	IsDir     bool
}

// ChangeLogAction classifies a change-log entry.
type ChangeLogAction string

const (
	ChangeLogCreate  ChangeLogAction = "create"
	ChangeLogDelete  ChangeLogAction = "delete"
	ChangeLogCopy    ChangeLogAction = "copy"
	ChangeLogMove    ChangeLogAction = "move"
	ChangeLogRename  ChangeLogAction = "rename"
	ChangeLogRestore ChangeLogAction = "restore"
)

// ChangeLogEntry is one remote event in a polled [from, to) window.
type ChangeLogEntry struct {
	Action  ChangeLogAction
	Object  ObjectInfo
	OldPath string // set for move/rename
}

// TaskID identifies a long-running server-side operation (rename, move,
// delete) that the Gateway polls to completion.
type TaskID string

// TaskState is the state of a polled task.
type TaskState string

const (
	TaskPending  TaskState = "pending"
	TaskComplete TaskState = "complete"
	TaskError    TaskState = "error"
)

// UploadSession is returned by CheckUpload and consumed by UploadObject; it
// carries whatever the concrete backend needs to resume or address the
// upload (a temp remote path, an upload URL, a resumable-upload id, ...).
type UploadSession struct {
	Path string
	Size int64
	// Opaque carries backend-specific session state (e.g. a pre-negotiated
	// remote temp path for the SMB backend); callers never inspect it.
	Opaque any
}

// ObjectStoreClient is the full surface every sync component depends on.
// Connect/Disconnect bracket the lifetime of the underlying transport; all
// other methods assume a connected client.
type ObjectStoreClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool

	List(ctx context.Context, path string) ([]ObjectInfo, error)
	GetInfo(ctx context.Context, path string) (ObjectInfo, error)

	CreateFolder(ctx context.Context, parentPath, name string) error

	Rename(ctx context.Context, path, newName string) (TaskID, error)
	Move(ctx context.Context, path, toPath string) (TaskID, error)
	DeleteFiles(ctx context.Context, prefix string, paths []string, trash bool) (TaskID, error)
	WaitTask(ctx context.Context, id TaskID) (TaskState, error)

	CheckUpload(ctx context.Context, path string, size int64) (*UploadSession, error)
	UploadObject(ctx context.Context, session *UploadSession, r io.Reader) error

	// OpenRange opens a streaming reader over [offset, offset+length) of a
	// remote object. length < 0 means "to EOF". Backends that only expose a
	// download URL implement this over an HTTP range request; SMB streams
	// the range directly.
	OpenRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)

	GetChangeLog(ctx context.Context, from, to time.Time) ([]ChangeLogEntry, error)
}
