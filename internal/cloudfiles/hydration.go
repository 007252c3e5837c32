//go:build windows
// +build windows

// Package cloudfiles provides Go bindings for the Windows Cloud Files API.
package cloudfiles

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

const (
	defaultChunkSize    = 4 * 1024        // 4 KiB, per-read buffer size
	defaultMaxChunkSize = 2 * 1024 * 1024 // 2 MiB, object store's default preferred max
	defaultMinChunkSize = 4 * 1024
)

// HydrationHandler manages the hydration (download) of placeholder files.
type HydrationHandler struct {
	syncRoot     *SyncRootManager
	dataProvider DataProvider
	chunkSize    int64
	minChunk     int64
	maxChunk     int64
	logger       *zap.Logger

	mu               sync.Mutex
	activeHydrations map[string]*activeHydration
}

// activeHydration tracks an in-progress hydration operation, keyed by
// fetch-id (normalized-path | offset | length) so duplicate requests for
// the same byte range coalesce onto the same cancellation handle instead of
// each issuing their own fetch.
type activeHydration struct {
	cancel           context.CancelFunc
	filePath         string
	totalBytes       int64
	bytesTransferred int64
	done             chan struct{}
	err              error
}

// fetchID derives the dedup key a fetch-data request coalesces under.
func fetchID(relativePath string, offset, length int64) string {
	return fmt.Sprintf("%s|%d|%d", relativePath, offset, length)
}

// DataProvider provides data for hydrating placeholder files.
type DataProvider interface {
	// GetFileReader returns a reader for the file at the given relative path.
	// The reader should be positioned at the given offset.
	GetFileReader(ctx context.Context, relativePath string, offset int64) (io.ReadCloser, error)
}

// NewHydrationHandler creates a new hydration handler.
func NewHydrationHandler(syncRoot *SyncRootManager, provider DataProvider, logger *zap.Logger) *HydrationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HydrationHandler{
		syncRoot:         syncRoot,
		dataProvider:     provider,
		chunkSize:        defaultChunkSize,
		minChunk:         defaultMinChunkSize,
		maxChunk:         defaultMaxChunkSize,
		logger:           logger,
		activeHydrations: make(map[string]*activeHydration),
	}
}

// SetChunkSize sets the chunk size for data transfer, clamped to the
// object store's preferred [min, max] bounds.
func (h *HydrationHandler) SetChunkSize(size int64) {
	if size <= 0 {
		return
	}
	if size < h.minChunk {
		size = h.minChunk
	}
	if size > h.maxChunk {
		size = h.maxChunk
	}
	h.chunkSize = size
}

// SetChunkBounds sets the [min, max] the object store prefers for chunked
// transfer, re-clamping the current chunk size into the new bounds.
func (h *HydrationHandler) SetChunkBounds(min, max int64) {
	if min > 0 {
		h.minChunk = min
	}
	if max > 0 {
		h.maxChunk = max
	}
	h.SetChunkSize(h.chunkSize)
}

// handleFetchDataCallback is the callback function for SyncRootManager.
// It converts FetchDataCallback signature to HandleFetchData call.
func (h *HydrationHandler) handleFetchDataCallback(info *FetchDataInfo) error {
	return h.HandleFetchData(context.Background(), info)
}

// FetchDataCallback returns the SyncRootManager.SetFetchDataCallback-
// compatible closure for this handler, for callers outside this package
// wiring a sync root's callback table.
func (h *HydrationHandler) FetchDataCallback() FetchDataCallback {
	return h.handleFetchDataCallback
}

// HandleFetchData handles a fetch data callback from Windows.
// This is called when a user opens a placeholder file. Duplicate requests
// for the same (path, offset, length) coalesce onto the first request's
// in-flight fetch instead of issuing a second one.
func (h *HydrationHandler) HandleFetchData(ctx context.Context, info *FetchDataInfo) (fetchErr error) {
	// Get relative path from NormalizedPath
	// NormalizedPath format: \<sync_root_folder>\<relative_path>
	// e.g., \test_anemone\subdir\file.txt -> subdir/file.txt
	relativePath := info.FilePath

	// Strip leading backslash
	relativePath = strings.TrimPrefix(relativePath, "\\")
	relativePath = strings.TrimPrefix(relativePath, "/")

	// Strip sync root folder name from the beginning
	syncRootFolderName := filepath.Base(h.syncRoot.Path())
	if strings.HasPrefix(relativePath, syncRootFolderName+"\\") {
		relativePath = relativePath[len(syncRootFolderName)+1:]
	} else if strings.HasPrefix(relativePath, syncRootFolderName+"/") {
		relativePath = relativePath[len(syncRootFolderName)+1:]
	}

	// Normalize to forward slashes
	relativePath = strings.ReplaceAll(relativePath, "\\", "/")

	id := fetchID(relativePath, info.RequiredOffset, info.RequiredLength)

	h.mu.Lock()
	if existing, ok := h.activeHydrations[id]; ok {
		h.mu.Unlock()
		h.logger.Info("coalescing duplicate fetch onto in-flight request",
			zap.String("file", relativePath), zap.String("fetch_id", id))
		<-existing.done
		return existing.err
	}

	ctx, cancel := context.WithCancel(ctx)
	hydration := &activeHydration{
		cancel:     cancel,
		filePath:   relativePath,
		totalBytes: info.FileSize,
		done:       make(chan struct{}),
	}
	h.activeHydrations[id] = hydration
	h.mu.Unlock()

	defer func() {
		hydration.err = fetchErr
		close(hydration.done)
		h.mu.Lock()
		delete(h.activeHydrations, id)
		h.mu.Unlock()
		cancel()
	}()

	h.logger.Info("starting hydration",
		zap.String("file", relativePath),
		zap.Int64("offset", info.RequiredOffset),
		zap.Int64("size", info.FileSize),
	)

	// Get reader from data provider
	reader, err := h.dataProvider.GetFileReader(ctx, relativePath, info.RequiredOffset)
	if err != nil {
		h.logger.Error("failed to get file reader",
			zap.String("file", relativePath),
			zap.Error(err),
		)
		return fmt.Errorf("failed to get file reader: %w", err)
	}
	defer reader.Close()

	// Transfer data in chunks
	offset := info.RequiredOffset
	remaining := info.RequiredLength
	if remaining <= 0 {
		remaining = info.FileSize - offset
	}

	buffer := make([]byte, h.chunkSize)
	transferred := int64(0)

	for remaining > 0 {
		select {
		case <-ctx.Done():
			h.logger.Info("hydration cancelled",
				zap.String("file", relativePath),
				zap.Int64("transferred", transferred),
			)
			return ctx.Err()
		default:
		}

		// Determine chunk size
		toRead := h.chunkSize
		if toRead > remaining {
			toRead = remaining
		}

		// Read data
		n, err := io.ReadFull(reader, buffer[:toRead])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			h.logger.Error("failed to read data",
				zap.String("file", relativePath),
				zap.Error(err),
			)
			return fmt.Errorf("failed to read data: %w", err)
		}
		if n == 0 {
			break
		}

		// Check if this is the last chunk
		isLastChunk := (remaining - int64(n)) <= 0

		// Transfer to Windows (mark in-sync on last chunk)
		if err := TransferData(info.ConnectionKey, info.TransferKey, info.RequestKey, buffer[:n], offset, isLastChunk); err != nil {
			h.logger.Error("failed to transfer data",
				zap.String("file", relativePath),
				zap.Error(err),
			)
			return fmt.Errorf("failed to transfer data: %w", err)
		}

		offset += int64(n)
		remaining -= int64(n)
		transferred += int64(n)

		// Update tracking
		h.mu.Lock()
		if active, ok := h.activeHydrations[id]; ok {
			active.bytesTransferred = transferred
		}
		h.mu.Unlock()

		// Report progress to Windows (shows in Explorer)
		h.reportProgress(info.ConnectionKey, info.TransferKey, info.FileSize, offset)
	}

	h.logger.Info("hydration complete",
		zap.String("file", relativePath),
		zap.Int64("bytes", transferred),
	)

	// Mark file as IN_SYNC after successful hydration
	// This is REQUIRED for dehydration to work later
	// IMPORTANT: Must use CfOpenFileWithOplock, not windows.CreateFile!
	// CfSetInSyncState requires a handle from CfOpenFileWithOplock.
	fullPath := filepath.Join(h.syncRoot.Path(), relativePath)
	if protectedHandle, err := OpenFileWithOplock(fullPath, CF_OPEN_FILE_FLAG_WRITE_ACCESS); err == nil {
		defer CloseHandle(protectedHandle)

		if err := SetInSyncState(protectedHandle, CF_IN_SYNC_STATE_IN_SYNC, nil); err != nil {
			h.logger.Warn("failed to set in-sync state after hydration",
				zap.String("file", relativePath),
				zap.Error(err),
			)
		} else {
			h.logger.Debug("marked file as in-sync after hydration",
				zap.String("file", relativePath),
			)
		}
	} else {
		h.logger.Warn("failed to open file for in-sync marking",
			zap.String("file", relativePath),
			zap.Error(err),
		)
	}

	return nil
}

// CancelHydration cancels the active hydration registered under the given
// fetch-id (see fetchID), if any. This is what the dispatcher's cancel
// fetch-data handler calls: it never touches the kernel directly, it only
// trips the cancellation handle the fetch pipeline is already watching.
func (h *HydrationHandler) CancelHydration(id string) {
	h.mu.Lock()
	active, ok := h.activeHydrations[id]
	h.mu.Unlock()

	if ok && active != nil {
		h.logger.Info("cancelling hydration",
			zap.String("file", active.filePath),
			zap.Int64("transferred", active.bytesTransferred),
		)
		active.cancel()
	}
}

// CancelHydrationByPath cancels every active hydration for a file path,
// regardless of which byte range each was fetching.
func (h *HydrationHandler) CancelHydrationByPath(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, active := range h.activeHydrations {
		if active.filePath == filePath {
			h.logger.Info("cancelling hydration by path",
				zap.String("file", filePath),
			)
			active.cancel()
		}
	}
}

// GetActiveHydrations returns information about active hydrations.
func (h *HydrationHandler) GetActiveHydrations() []HydrationStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]HydrationStatus, 0, len(h.activeHydrations))
	for _, active := range h.activeHydrations {
		result = append(result, HydrationStatus{
			FilePath:         active.filePath,
			TotalBytes:       active.totalBytes,
			BytesTransferred: active.bytesTransferred,
		})
	}
	return result
}

// HydrationStatus represents the status of an active hydration.
type HydrationStatus struct {
	FilePath         string
	TotalBytes       int64
	BytesTransferred int64
}

// reportProgress reports hydration progress to Windows.
func (h *HydrationHandler) reportProgress(connectionKey CF_CONNECTION_KEY, transferKey CF_TRANSFER_KEY, total, completed int64) {
	// Use ReportProviderProgress if available
	_ = ReportProviderProgress(connectionKey, transferKey, total, completed)
}

// HydrateFile manually hydrates a placeholder file (downloads content).
func (h *HydrationHandler) HydrateFile(ctx context.Context, relativePath string) error {
	fullPath := h.syncRoot.Path() + "\\" + relativePath

	// Open the file
	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(fullPath),
		windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer windows.CloseHandle(handle)

	// Get file size
	var fileInfo windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &fileInfo); err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	fileSize := int64(fileInfo.FileSizeHigh)<<32 | int64(fileInfo.FileSizeLow)

	// Request hydration
	return HydratePlaceholder(handle, 0, fileSize, 0)
}

// DehydrateFile dehydrates a hydrated file (removes local content, keeps placeholder).
func (h *HydrationHandler) DehydrateFile(ctx context.Context, relativePath string) error {
	fullPath := h.syncRoot.Path() + "\\" + relativePath

	// Open the file
	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(fullPath),
		windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer windows.CloseHandle(handle)

	// Get file size
	var fileInfo windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &fileInfo); err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	fileSize := int64(fileInfo.FileSizeHigh)<<32 | int64(fileInfo.FileSizeLow)

	// Request dehydration
	return DehydratePlaceholder(handle, 0, fileSize, 0)
}

// SetPinned sets whether a file should always be available offline.
func (h *HydrationHandler) SetPinned(relativePath string, pinned bool) error {
	fullPath := h.syncRoot.Path() + "\\" + relativePath

	// Open the file
	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(fullPath),
		windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer windows.CloseHandle(handle)

	pinState := CF_PIN_STATE_UNPINNED
	if pinned {
		pinState = CF_PIN_STATE_PINNED
	}

	return SetPinState(handle, pinState, 0)
}
