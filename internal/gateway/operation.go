//go:build windows
// +build windows

package gateway

import (
	"io"
	"os"
	"time"
)

// Operation is a single mutating file operation the Gateway can serialize
// and execute. paths reports every local path the overlap map must guard
// for the duration of the operation.
type Operation interface {
	paths() []string
}

// UploadFile uploads local content to a fresh or existing remote object and
// converts the local file into an in-sync placeholder on success.
type UploadFile struct {
	LocalRelativePath string
	LocalFullPath     string
	RemotePath        string
	Size              int64
	ModTime           time.Time
}

func (o UploadFile) paths() []string { return []string{o.LocalRelativePath} }

// Open returns a reader over the local file content to upload.
func (o UploadFile) Open() (io.ReadCloser, error) {
	return os.Open(o.LocalFullPath)
}

// CreateFolder requests remote folder creation and converts the local
// directory into an in-sync placeholder on success.
type CreateFolder struct {
	LocalRelativePath string
	ParentRemotePath  string
	Name              string
}

func (o CreateFolder) paths() []string { return []string{o.LocalRelativePath} }

// RenameFile renames a remote object in place and refreshes the local
// placeholder's identity once the server reports completion.
type RenameFile struct {
	OldRelativePath string
	NewRelativePath string
	RemotePath      string
	NewName         string
}

func (o RenameFile) paths() []string { return []string{o.OldRelativePath, o.NewRelativePath} }

// MoveFile relocates a remote object to a new parent and refreshes the
// local placeholder's identity once the server reports completion.
type MoveFile struct {
	OldRelativePath string
	NewRelativePath string
	RemotePath      string
	ToRemotePath    string
}

func (o MoveFile) paths() []string { return []string{o.OldRelativePath, o.NewRelativePath} }

// DeleteFile deletes a remote object to trash. A path that can no longer
// be read locally is treated as an already-settled racy delete.
type DeleteFile struct {
	LocalRelativePath string
	RemotePrefix      string
	RemotePath        string
}

func (o DeleteFile) paths() []string { return []string{o.LocalRelativePath} }
