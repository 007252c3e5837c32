//go:build windows
// +build windows

package cloudfiles

import (
	"context"

	"github.com/juste-un-gars/anemone_sync_windows/internal/store"
)

// StoreTombstones adapts internal/store's tombstone table into the
// TombstoneStore interface RootLifecycle consumes, keeping internal/store
// free of the windows-only cfapi dependency.
type StoreTombstones struct {
	store *store.Store
}

// NewStoreTombstones wraps an already-open store for use as a RootLifecycle
// TombstoneStore.
func NewStoreTombstones(s *store.Store) *StoreTombstones {
	return &StoreTombstones{store: s}
}

func (t *StoreTombstones) RecordTombstone(ctx context.Context, originalPath, tombstonePath string) error {
	return t.store.RecordTombstone(ctx, originalPath, tombstonePath)
}

func (t *StoreTombstones) ListTombstones(ctx context.Context) ([]TombstoneEntry, error) {
	records, err := t.store.ListTombstones(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]TombstoneEntry, len(records))
	for i, r := range records {
		entries[i] = TombstoneEntry{
			OriginalPath:  r.OriginalPath,
			TombstonePath: r.TombstonePath,
			CreatedAt:     r.CreatedAt,
		}
	}
	return entries, nil
}

func (t *StoreTombstones) ClearTombstone(ctx context.Context, tombstonePath string) error {
	return t.store.ClearTombstone(ctx, tombstonePath)
}
