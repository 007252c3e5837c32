package store

import (
	"context"
	"fmt"
	"time"
)

// TombstoneRecord is the persisted shape of one tombstone row. A thin
// adapter in internal/cloudfiles converts this into cloudfiles.TombstoneEntry
// so this package stays free of the windows-only cfapi dependency.
type TombstoneRecord struct {
	OriginalPath       string
	TombstonePath      string
	ScheduledForReboot bool
	CreatedAt          time.Time
}

// RecordTombstone persists a new tombstone row.
func (s *Store) RecordTombstone(ctx context.Context, originalPath, tombstonePath string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO tombstone (tombstone_path, original_path, scheduled_for_reboot, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(tombstone_path) DO NOTHING
	`, tombstonePath, originalPath, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record tombstone: %w", err)
	}
	return nil
}

// ListTombstones returns every persisted tombstone, for the startup sweep.
func (s *Store) ListTombstones(ctx context.Context) ([]TombstoneRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT tombstone_path, original_path, scheduled_for_reboot, created_at FROM tombstone
	`)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()

	var records []TombstoneRecord
	for rows.Next() {
		var r TombstoneRecord
		var scheduled int
		var createdAt int64
		if err := rows.Scan(&r.TombstonePath, &r.OriginalPath, &scheduled, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		r.ScheduledForReboot = scheduled != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tombstones: %w", err)
	}
	return records, nil
}

// ClearTombstone removes a tombstone row once its directory is gone.
func (s *Store) ClearTombstone(ctx context.Context, tombstonePath string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM tombstone WHERE tombstone_path = ?`, tombstonePath)
	if err != nil {
		return fmt.Errorf("clear tombstone: %w", err)
	}
	return nil
}

// MarkScheduledForReboot flags a tombstone as queued for rename-on-reboot
// deletion, so a restart-time sweep knows it was already handed to the OS.
func (s *Store) MarkScheduledForReboot(ctx context.Context, tombstonePath string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE tombstone SET scheduled_for_reboot = 1 WHERE tombstone_path = ?`, tombstonePath)
	if err != nil {
		return fmt.Errorf("mark scheduled for reboot: %w", err)
	}
	return nil
}
