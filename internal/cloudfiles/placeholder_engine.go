//go:build windows
// +build windows

package cloudfiles

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// PlaceholderEngine owns the state machine transitions a synced file moves
// through: created -> hydrated -> in-sync -> dehydrated -> reverted. It
// wraps a PlaceholderManager for the on-disk CF_PLACEHOLDER_CREATE_INFO path
// and adds the transitions the manager alone doesn't express (pin state,
// on-demand population, revert).
type PlaceholderEngine struct {
	manager *PlaceholderManager
	logger  *zap.Logger
}

// NewPlaceholderEngine builds an engine over an already-connected sync root.
func NewPlaceholderEngine(syncRoot *SyncRootManager, logger *zap.Logger) *PlaceholderEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaceholderEngine{
		manager: NewPlaceholderManager(syncRoot),
		logger:  logger,
	}
}

// Create lays down placeholders for the given remote entries (files get
// real placeholders, directories become real NTFS directories, matching
// PlaceholderManager.CreatePlaceholders).
func (e *PlaceholderEngine) Create(files []RemoteFileInfo) error {
	return e.manager.CreatePlaceholders(files)
}

// Read reports the current placeholder state for a path relative to the
// sync root, the "created"/"hydrated"/"in-sync"/"dehydrated" axis a caller
// needs before deciding which transition to apply next.
func (e *PlaceholderEngine) Read(relativePath string) (PlaceholderFileState, error) {
	return e.manager.GetPlaceholderState(relativePath)
}

// Hydrate requests the kernel pull content for byte range [offset, offset+length)
// of an already-open placeholder handle. A length of -1 means "to EOF".
func (e *PlaceholderEngine) Hydrate(handle windows.Handle, offset, length int64) error {
	if err := HydratePlaceholder(handle, offset, length, 0); err != nil {
		return fmt.Errorf("hydrate: %w", wrapCFAPIError(err))
	}
	return nil
}

// Dehydrate discards local content for the given byte range while keeping
// the placeholder and its identity, via CfDehydratePlaceholder. Refused if
// the placeholder is pinned. On success, clearPin optionally resets the pin
// state back to unspecified.
func (e *PlaceholderEngine) Dehydrate(relativePath string, handle windows.Handle, offset, length int64, clearPin bool) error {
	state, err := e.manager.GetPlaceholderState(relativePath)
	if err != nil {
		return fmt.Errorf("dehydrate %s: %w", relativePath, err)
	}
	if state.PinState == CF_PIN_STATE_PINNED {
		return fmt.Errorf("dehydrate %s: %w: placeholder is pinned", relativePath, ErrInvalidRequest)
	}
	if err := DehydratePlaceholder(handle, offset, length, 0); err != nil {
		return fmt.Errorf("dehydrate: %w", wrapCFAPIError(err))
	}
	if clearPin {
		if err := SetPinState(handle, CF_PIN_STATE_UNSPECIFIED, 0); err != nil {
			return fmt.Errorf("dehydrate %s: clear pin: %w", relativePath, wrapCFAPIError(err))
		}
	}
	return nil
}

// SetInSync marks a placeholder as synchronized with the server, the
// transition a fetch pipeline or change-log apply must perform once a file's
// local content (or its absence, for a freshly created placeholder) matches
// the server's version.
func (e *PlaceholderEngine) SetInSync(handle windows.Handle) error {
	if err := SetInSyncState(handle, CF_IN_SYNC_STATE_IN_SYNC, nil); err != nil {
		return fmt.Errorf("setInSync: %w", wrapCFAPIError(err))
	}
	return nil
}

// ClearInSync marks a placeholder as out-of-sync, used when a local or
// remote mutation is detected that needs reconciling before the next read.
func (e *PlaceholderEngine) ClearInSync(handle windows.Handle) error {
	req := UpdatePlaceholderRequest{Flags: CF_UPDATE_FLAG_CLEAR_IN_SYNC}
	if err := UpdatePlaceholder(handle, req); err != nil {
		return fmt.Errorf("clearInSync: %w", wrapCFAPIError(err))
	}
	return nil
}

// SetPinState applies a pin policy (pinned/unpinned/excluded/inherit) to a
// placeholder, driving whether the kernel is allowed to dehydrate it
// automatically under disk-pressure. recursive applies the same state to
// every placeholder beneath a directory handle via CF_SET_PIN_FLAG_RECURSE;
// idempotent either way.
func (e *PlaceholderEngine) SetPinState(handle windows.Handle, state CF_PIN_STATE, recursive bool) error {
	flags := uint32(0)
	if recursive {
		flags = CF_SET_PIN_FLAG_RECURSE
	}
	if err := SetPinState(handle, state, flags); err != nil {
		return fmt.Errorf("setPinState: %w", wrapCFAPIError(err))
	}
	return nil
}

// EnableOnDemandPopulation and DisableOnDemandPopulation toggle whether a
// directory placeholder's children are populated lazily via
// FETCH_PLACEHOLDERS. Each call sets exactly one of the two mutually
// exclusive flags and never both — CfUpdatePlaceholder treats them as a
// single enum, not independent bits, so OR-ing a toggle into an
// accumulated flag word (as opposed to issuing a fresh request per call)
// would silently set both and leave the kernel's interpretation undefined.
func (e *PlaceholderEngine) EnableOnDemandPopulation(handle windows.Handle) error {
	req := UpdatePlaceholderRequest{Flags: CF_UPDATE_FLAG_ENABLE_ON_DEMAND_POPULATION}
	if err := UpdatePlaceholder(handle, req); err != nil {
		return fmt.Errorf("enableOnDemandPopulation: %w", wrapCFAPIError(err))
	}
	return nil
}

func (e *PlaceholderEngine) DisableOnDemandPopulation(handle windows.Handle) error {
	req := UpdatePlaceholderRequest{Flags: CF_UPDATE_FLAG_DISABLE_ON_DEMAND_POPULATION}
	if err := UpdatePlaceholder(handle, req); err != nil {
		return fmt.Errorf("disableOnDemandPopulation: %w", wrapCFAPIError(err))
	}
	return nil
}

// UpdatePlaceholder pushes new remote metadata/identity down onto an
// existing placeholder, used by the reconciler and change-log applier when
// the server reports a new version of a file whose local placeholder
// already exists.
func (e *PlaceholderEngine) UpdatePlaceholder(file RemoteFileInfo) error {
	if err := e.manager.UpdatePlaceholder(file); err != nil {
		return fmt.Errorf("updatePlaceholder: %w", wrapCFAPIError(err))
	}
	return nil
}

// Convert lays down a placeholder for remote at its path through
// CfCreatePlaceholders. When markInSync is true the placeholder is marked
// synchronized immediately; otherwise on-demand population is left enabled
// so a future read lazily reloads it. An ordinary file already on disk at
// that path is not converted in place: the create reports already-exists,
// which is ignored, and the file is left as it is.
func (e *PlaceholderEngine) Convert(relativePath string, remote RemoteFileInfo, markInSync bool) error {
	var err error
	if markInSync {
		err = e.manager.CreateSinglePlaceholder(remote)
	} else {
		err = e.manager.CreateSinglePlaceholderOnDemand(remote)
	}
	if err != nil {
		return fmt.Errorf("convert %s: %w", relativePath, wrapCFAPIError(err))
	}
	return nil
}

// Revert reverses a placeholder back into an ordinary hydrated file with no
// cloud identity, used when a sync root is being torn down for a subtree
// without deleting the user's data (CF_PLACEHOLDER reparse point removed,
// content kept). The file is hydrated first. Without allowDataLoss, a
// placeholder that is not in-sync, or is still partial after that
// hydration, refuses the revert with ErrNotInSync.
func (e *PlaceholderEngine) Revert(relativePath string, allowDataLoss bool) error {
	if !allowDataLoss {
		state, err := e.manager.GetPlaceholderState(relativePath)
		if err != nil {
			return fmt.Errorf("revert %s: %w", relativePath, err)
		}
		if state.Exists && !state.InSync {
			return fmt.Errorf("revert %s: %w", relativePath, ErrNotInSync)
		}
	}

	fullPath := e.FullPath(relativePath)
	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(fullPath),
		windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT,
		0,
	)
	if err != nil {
		return fmt.Errorf("revert %s: open: %w", fullPath, err)
	}
	defer windows.CloseHandle(handle)

	// Hydrate first so content survives the revert, then revert the placeholder.
	if err := HydratePlaceholder(handle, 0, -1, 0); err != nil {
		e.logger.Warn("revert: hydrate before identity removal failed",
			zap.String("path", fullPath), zap.Error(err))
	}
	if !allowDataLoss {
		if state, err := e.manager.GetPlaceholderState(relativePath); err != nil || state.Partial {
			return fmt.Errorf("revert %s: %w", relativePath, ErrNotInSync)
		}
	}
	if hr, _, _ := procCfRevertPlaceholder.Call(uintptr(handle), 0, 0); hr != S_OK {
		return fmt.Errorf("revert %s: CfRevertPlaceholder failed: HRESULT 0x%08X", fullPath, hr)
	}
	return nil
}

// Delete removes a placeholder (file or directory) entirely, content and
// identity both gone.
func (e *PlaceholderEngine) Delete(relativePath string) error {
	return e.manager.DeletePlaceholder(relativePath)
}

// SyncRootPath returns the local folder this engine operates under.
func (e *PlaceholderEngine) SyncRootPath() string {
	return e.manager.syncRoot.Path()
}

// FullPath joins a relative path onto the sync root, the common prefix
// every caller in this package needs before opening a handle.
func (e *PlaceholderEngine) FullPath(relativePath string) string {
	return filepath.Join(e.manager.syncRoot.Path(), relativePath)
}

// wrapCFAPIError folds a raw *HRESULTError into the sentinel taxonomy so
// callers outside this package can classify failures with errors.Is instead
// of string-matching HRESULT text.
func wrapCFAPIError(err error) error {
	if err == nil {
		return nil
	}
	hErr, ok := err.(*HRESULTError)
	if !ok {
		return err
	}
	switch hErr.Code {
	case 0x80070005: // E_ACCESSDENIED
		return fmt.Errorf("%w: %s", ErrAccessDenied, hErr.Message)
	case 0x80070020: // ERROR_SHARING_VIOLATION
		return fmt.Errorf("%w: %s", ErrInUse, hErr.Message)
	case uint32(HRESULT_FROM_WIN32_ERROR_ALREADY_EXISTS):
		return err
	default:
		return fmt.Errorf("%w: %s", ErrUnsuccessful, hErr.Message)
	}
}
